package workflow

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RootWorkflowID is the workflow a session starts in unless configured otherwise.
const RootWorkflowID = "coffee-order"

//go:embed bundled/*.yaml
var bundledFS embed.FS

// ParseDefinitionYAML decodes a workflow from YAML/JSON bytes.
func ParseDefinitionYAML(data []byte) (Workflow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Workflow{}, fmt.Errorf("workflow: definition payload is empty")
	}
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return Workflow{}, fmt.Errorf("workflow: decode definition: %w", err)
	}
	return wf.Normalized()
}

// LoadDefinitionReader reads workflow definition data from an io.Reader.
func LoadDefinitionReader(r io.Reader) (Workflow, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Workflow{}, fmt.Errorf("workflow: read definition: %w", err)
	}
	return ParseDefinitionYAML(content)
}

// LoadDefinitionFile loads a workflow definition from an explicit file path.
func LoadDefinitionFile(path string) (Workflow, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Workflow{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	wf, parseErr := ParseDefinitionYAML(content)
	if parseErr != nil {
		return Workflow{}, fmt.Errorf("workflow: %s: %w", path, parseErr)
	}
	return wf, nil
}

// LoadDir loads every *.yaml / *.yml file in dir, sorted by file name.
func LoadDir(dir string) ([]Workflow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("workflow: read dir %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	out := make([]Workflow, 0, len(names))
	for _, name := range names {
		wf, err := LoadDefinitionFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

// Bundled returns the coffee-shop workflows compiled into the binary.
func Bundled() ([]Workflow, error) {
	var out []Workflow
	err := fs.WalkDir(bundledFS, "bundled", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}
		data, err := bundledFS.ReadFile(path)
		if err != nil {
			return err
		}
		wf, err := ParseDefinitionYAML(data)
		if err != nil {
			return fmt.Errorf("workflow: bundled %s: %w", path, err)
		}
		out = append(out, wf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadRegistry registers the bundled workflows plus any definitions found in
// extraDir. Definitions from extraDir replace bundled ones with the same id.
func LoadRegistry(extraDir string) (*Registry, error) {
	bundled, err := Bundled()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Workflow, len(bundled))
	order := make([]string, 0, len(bundled))
	for _, wf := range bundled {
		byID[wf.ID] = wf
		order = append(order, wf.ID)
	}
	if dir := strings.TrimSpace(extraDir); dir != "" {
		extra, err := LoadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, wf := range extra {
			if _, exists := byID[wf.ID]; !exists {
				order = append(order, wf.ID)
			}
			byID[wf.ID] = wf
		}
	}
	registry := NewRegistry()
	for _, id := range order {
		if err := registry.Register(byID[id]); err != nil {
			return nil, err
		}
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return registry, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
