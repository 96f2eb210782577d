package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundledWorkflowsLoad(t *testing.T) {
	registry, err := LoadRegistry("")
	require.NoError(t, err)
	assert.Equal(t, []string{"coffee-order", "make-drip", "make-espresso", "make-tea"}, registry.IDs())

	root, err := registry.Lookup(RootWorkflowID)
	require.NoError(t, err)
	assert.Equal(t, "GREET", root.Entry)
	assert.Len(t, root.Nodes, 9)

	customize := root.OutgoingEdges("CUSTOMIZE")
	require.Len(t, customize, 3)
	assert.Equal(t, "e-customize-espresso", customize[0].ID)
	require.NotNil(t, customize[1].Guard)
	assert.Equal(t, GuardEquals, customize[1].Guard.Type)
	assert.Equal(t, "drip", customize[1].Guard.Value)

	prep, ok := root.Node("PREP_TEA")
	require.True(t, ok)
	require.NotNil(t, prep.Invokes)
	assert.Equal(t, "make-tea", prep.Invokes.WorkflowID)
	assert.Equal(t, []ReturnMapping{{ParentKey: "drink_result", ChildKey: "tea_result"}}, prep.Invokes.ReturnMap)
}

func TestParseDefinitionYAMLFillsNodeIDs(t *testing.T) {
	wf, err := ParseDefinitionYAML([]byte(`
id: tiny
entry: A
nodes:
  A: { spec: { autoAdvance: true } }
  B: { spec: { terminal: true } }
edges:
  - { id: a-b, from: A, to: B }
`))
	require.NoError(t, err)
	assert.Equal(t, "A", wf.Nodes["A"].ID)
	assert.Equal(t, true, wf.Nodes["A"].Spec["autoAdvance"])
}

func TestValidateRejectsBrokenDefinitions(t *testing.T) {
	cases := map[string]string{
		"missing entry": `
id: broken
entry: NOPE
nodes:
  A: {}
`,
		"unknown edge target": `
id: broken
entry: A
nodes:
  A: {}
edges:
  - { id: a-x, from: A, to: X }
`,
		"duplicate edge": `
id: broken
entry: A
nodes:
  A: {}
  B: {}
edges:
  - { id: e, from: A, to: B }
  - { id: e, from: B, to: A }
`,
		"bad guard": `
id: broken
entry: A
nodes:
  A: {}
  B: {}
edges:
  - { id: e, from: A, to: B, guard: { type: matches, key: k } }
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDefinitionYAML([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestRegistryValidateReportsMissingSubWorkflow(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(Workflow{
		ID:    "parent",
		Entry: "A",
		Nodes: map[string]Node{
			"A": {Invokes: &Invocation{WorkflowID: "ghost"}},
		},
	})
	err := registry.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownWorkflow))

	_, err = registry.Lookup("ghost")
	assert.True(t, errors.Is(err, ErrUnknownWorkflow))
}

func TestLoadRegistryOverridesBundledFromDir(t *testing.T) {
	dir := t.TempDir()
	doc := []byte(`
id: make-tea
entry: STEEP
nodes:
  STEEP: { spec: { autoAdvance: true } }
  TEA_DONE: { spec: { terminal: true, writeKey: tea_result } }
edges:
  - { id: e-steep-done, from: STEEP, to: TEA_DONE }
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tea.yaml"), doc, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	registry, err := LoadRegistry(dir)
	require.NoError(t, err)
	tea, err := registry.Lookup("make-tea")
	require.NoError(t, err)
	assert.Equal(t, "STEEP", tea.Entry)
	assert.Len(t, tea.Nodes, 2)
}
