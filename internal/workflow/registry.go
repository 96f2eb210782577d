package workflow

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maintains the known workflow definitions.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]Workflow
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{workflows: map[string]Workflow{}}
}

// Register installs a workflow. Returns an error if the ID already exists or
// the definition is invalid.
func (r *Registry) Register(wf Workflow) error {
	if wf.ID == "" {
		return fmt.Errorf("workflow: id is required")
	}
	normalized, err := wf.Normalized()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workflows[normalized.ID]; exists {
		return fmt.Errorf("workflow: %s already registered", normalized.ID)
	}
	r.workflows[normalized.ID] = normalized
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(wf Workflow) {
	if err := r.Register(wf); err != nil {
		panic(err)
	}
}

// Lookup returns a copy of the workflow registered under id.
func (r *Registry) Lookup(id string) (Workflow, error) {
	r.mu.RLock()
	wf, ok := r.workflows[id]
	r.mu.RUnlock()
	if !ok {
		return Workflow{}, fmt.Errorf("%w: %s", ErrUnknownWorkflow, id)
	}
	return wf, nil
}

// IDs returns a sorted list of registered workflow identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.workflows))
	for id := range r.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks that every invoked sub-workflow is registered.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range sortedKeys(r.workflows) {
		wf := r.workflows[id]
		for _, nodeID := range wf.NodeIDs() {
			node := wf.Nodes[nodeID]
			if node.Invokes == nil {
				continue
			}
			if _, ok := r.workflows[node.Invokes.WorkflowID]; !ok {
				return fmt.Errorf("workflow %s node %s: %w: %s", wf.ID, nodeID, ErrUnknownWorkflow, node.Invokes.WorkflowID)
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]Workflow) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
