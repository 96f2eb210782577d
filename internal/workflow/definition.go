package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownWorkflow is returned when a workflow id is not registered.
var ErrUnknownWorkflow = errors.New("workflow: unknown workflow")

// GuardType enumerates the built-in edge guard predicates.
type GuardType string

const (
	GuardEquals    GuardType = "equals"
	GuardNotEquals GuardType = "not-equals"
	GuardExists    GuardType = "exists"
	GuardNotExists GuardType = "not-exists"
)

// Guard restricts when an edge may be traversed. The engine evaluates guards
// against the active blackboard scope; agents only ever see edges that passed.
type Guard struct {
	Type  GuardType `json:"type" yaml:"type"`
	Key   string    `json:"key" yaml:"key"`
	Value string    `json:"value,omitempty" yaml:"value,omitempty"`
}

func (g Guard) validate() error {
	if strings.TrimSpace(g.Key) == "" {
		return fmt.Errorf("guard key is required")
	}
	switch g.Type {
	case GuardEquals, GuardNotEquals, GuardExists, GuardNotExists:
		return nil
	default:
		return fmt.Errorf("unsupported guard type %q", g.Type)
	}
}

// Edge connects two nodes of the same workflow.
type Edge struct {
	ID    string `json:"id" yaml:"id"`
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	Event string `json:"event,omitempty" yaml:"event,omitempty"`
	Guard *Guard `json:"guard,omitempty" yaml:"guard,omitempty"`
}

// ReturnMapping copies a child blackboard key into the parent scope when a
// sub-workflow completes.
type ReturnMapping struct {
	ParentKey string `json:"parentKey" yaml:"parentKey"`
	ChildKey  string `json:"childKey" yaml:"childKey"`
}

// Invocation declares that entering a node pushes a sub-workflow.
type Invocation struct {
	WorkflowID string          `json:"workflowId" yaml:"workflowId"`
	ReturnMap  []ReturnMapping `json:"returnMap,omitempty" yaml:"returnMap,omitempty"`
}

// Node is a single state in a workflow graph. Spec is opaque to the engine and
// decoded by the decision agent.
type Node struct {
	ID          string         `json:"id" yaml:"id"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Spec        map[string]any `json:"spec,omitempty" yaml:"spec,omitempty"`
	Invokes     *Invocation    `json:"invokes,omitempty" yaml:"invokes,omitempty"`
}

// Workflow declares a directed graph of nodes with a single entry point.
type Workflow struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name,omitempty" yaml:"name,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Entry       string          `json:"entry" yaml:"entry"`
	Nodes       map[string]Node `json:"nodes" yaml:"nodes"`
	Edges       []Edge          `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// Clone returns a deep copy of the workflow. Node specs are copied one level
// deep, which covers every value the YAML loader produces for scalar fields.
func (wf Workflow) Clone() Workflow {
	clone := Workflow{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Entry:       wf.Entry,
	}
	if wf.Nodes != nil {
		clone.Nodes = make(map[string]Node, len(wf.Nodes))
		for id, node := range wf.Nodes {
			clone.Nodes[id] = node.clone()
		}
	}
	if len(wf.Edges) > 0 {
		clone.Edges = make([]Edge, len(wf.Edges))
		for i, edge := range wf.Edges {
			if edge.Guard != nil {
				guard := *edge.Guard
				edge.Guard = &guard
			}
			clone.Edges[i] = edge
		}
	}
	return clone
}

func (n Node) clone() Node {
	out := n
	if n.Spec != nil {
		out.Spec = make(map[string]any, len(n.Spec))
		for k, v := range n.Spec {
			out.Spec[k] = v
		}
	}
	if n.Invokes != nil {
		inv := *n.Invokes
		if len(inv.ReturnMap) > 0 {
			inv.ReturnMap = append([]ReturnMapping(nil), inv.ReturnMap...)
		}
		out.Invokes = &inv
	}
	return out
}

// Validate ensures the workflow is self-consistent.
func (wf Workflow) Validate() error {
	if strings.TrimSpace(wf.ID) == "" {
		return fmt.Errorf("workflow: id is required")
	}
	if len(wf.Nodes) == 0 {
		return fmt.Errorf("workflow %s: at least one node is required", wf.ID)
	}
	if _, ok := wf.Nodes[wf.Entry]; !ok {
		return fmt.Errorf("workflow %s: entry node %q not found", wf.ID, wf.Entry)
	}
	for id, node := range wf.Nodes {
		if node.ID != id {
			return fmt.Errorf("workflow %s: node key %s does not match id %s", wf.ID, id, node.ID)
		}
		if node.Invokes != nil {
			if strings.TrimSpace(node.Invokes.WorkflowID) == "" {
				return fmt.Errorf("workflow %s node %s: invokes.workflowId is required", wf.ID, id)
			}
			for i, m := range node.Invokes.ReturnMap {
				if m.ParentKey == "" || m.ChildKey == "" {
					return fmt.Errorf("workflow %s node %s: returnMap[%d] requires parentKey and childKey", wf.ID, id, i)
				}
			}
		}
	}
	seen := map[string]struct{}{}
	for idx, edge := range wf.Edges {
		if edge.ID == "" {
			return fmt.Errorf("workflow %s edge[%d]: id is required", wf.ID, idx)
		}
		if _, dup := seen[edge.ID]; dup {
			return fmt.Errorf("workflow %s: duplicate edge id %s", wf.ID, edge.ID)
		}
		seen[edge.ID] = struct{}{}
		if _, ok := wf.Nodes[edge.From]; !ok {
			return fmt.Errorf("workflow %s edge %s: unknown source node %s", wf.ID, edge.ID, edge.From)
		}
		if _, ok := wf.Nodes[edge.To]; !ok {
			return fmt.Errorf("workflow %s edge %s: unknown target node %s", wf.ID, edge.ID, edge.To)
		}
		if edge.Guard != nil {
			if err := edge.Guard.validate(); err != nil {
				return fmt.Errorf("workflow %s edge %s: %w", wf.ID, edge.ID, err)
			}
		}
	}
	return nil
}

// Normalized clones the workflow, fills node ids from their map keys, trims
// identifiers, and validates the result.
func (wf Workflow) Normalized() (Workflow, error) {
	clone := wf.Clone()
	clone.ID = strings.TrimSpace(clone.ID)
	clone.Entry = strings.TrimSpace(clone.Entry)
	for id, node := range clone.Nodes {
		if node.ID == "" {
			node.ID = id
		}
		clone.Nodes[id] = node
	}
	for i := range clone.Edges {
		clone.Edges[i].ID = strings.TrimSpace(clone.Edges[i].ID)
		clone.Edges[i].From = strings.TrimSpace(clone.Edges[i].From)
		clone.Edges[i].To = strings.TrimSpace(clone.Edges[i].To)
		if g := clone.Edges[i].Guard; g != nil {
			g.Type = GuardType(strings.ToLower(strings.TrimSpace(string(g.Type))))
		}
	}
	if err := clone.Validate(); err != nil {
		return Workflow{}, err
	}
	return clone, nil
}

// Node returns the node with the given id.
func (wf Workflow) Node(id string) (Node, bool) {
	node, ok := wf.Nodes[id]
	return node, ok
}

// OutgoingEdges returns the edges leaving nodeID in declaration order.
func (wf Workflow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, edge := range wf.Edges {
		if edge.From == nodeID {
			out = append(out, edge)
		}
	}
	return out
}

// NodeIDs returns the node identifiers sorted lexically.
func (wf Workflow) NodeIDs() []string {
	ids := make([]string, 0, len(wf.Nodes))
	for id := range wf.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Title returns the human name, falling back to the id.
func (wf Workflow) Title() string {
	if strings.TrimSpace(wf.Name) != "" {
		return wf.Name
	}
	return wf.ID
}
