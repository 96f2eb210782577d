package display

import (
	"fmt"
	"sort"

	"github.com/kingrea/reflex-coffee/internal/workflow"
	"github.com/kingrea/reflex-coffee/internal/workflow/engine"
)

// WorkflowSource resolves workflow definitions by id.
type WorkflowSource interface {
	Lookup(id string) (workflow.Workflow, error)
}

// Synchronizer rebuilds the engine-derived part of State after every step.
// It owns the visited set, which only ever grows.
type Synchronizer struct {
	workflows WorkflowSource
	rootID    string
	orders    map[string][]string
	visited   map[string]struct{}
}

// NewSynchronizer builds a synchronizer rooted at rootID.
func NewSynchronizer(workflows WorkflowSource, rootID string) *Synchronizer {
	return &Synchronizer{
		workflows: workflows,
		rootID:    rootID,
		orders:    map[string][]string{},
		visited:   map[string]struct{}{},
	}
}

// VisitedKey identifies a node across workflows.
func VisitedKey(workflowID, nodeID string) string {
	return workflowID + ":" + nodeID
}

// Sync copies the snapshot into state, records the active node as visited,
// and rebuilds the node display list. Running it twice on the same snapshot
// yields the same list and visited set.
func (s *Synchronizer) Sync(state *State, snap engine.Snapshot) error {
	if state == nil {
		return fmt.Errorf("display: state is required")
	}
	if snap.WorkflowID != "" && snap.NodeID != "" {
		s.visited[VisitedKey(snap.WorkflowID, snap.NodeID)] = struct{}{}
	}
	nodes, err := s.buildNodeList(snap)
	if err != nil {
		return err
	}
	state.CurrentNodeID = snap.NodeID
	state.CurrentWorkflowID = snap.WorkflowID
	state.Stack = append([]engine.StackFrame(nil), snap.Stack...)
	state.BlackboardEntries = snap.Blackboard.Entries()
	state.ValidEdges = append([]workflow.Edge(nil), snap.ValidEdges...)
	state.NodeDisplayList = nodes
	state.VisitedNodes = s.Visited()
	return nil
}

// Visited returns the visited keys sorted.
func (s *Synchronizer) Visited() []string {
	out := make([]string, 0, len(s.visited))
	for key := range s.visited {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// IsVisited reports whether workflowID:nodeID was ever active.
func (s *Synchronizer) IsVisited(workflowID, nodeID string) bool {
	_, ok := s.visited[VisitedKey(workflowID, nodeID)]
	return ok
}

// NodeOrder returns the breadth-first order of a workflow's nodes starting
// at its entry. Nodes unreachable from the entry are appended in id order so
// every node is listed once.
func (s *Synchronizer) NodeOrder(workflowID string) ([]string, error) {
	if order, ok := s.orders[workflowID]; ok {
		return order, nil
	}
	wf, err := s.workflows.Lookup(workflowID)
	if err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}
	order := BreadthFirst(wf)
	s.orders[workflowID] = order
	return order, nil
}

// BreadthFirst lists node ids in first-discovery order from the entry,
// following edges in declaration order.
func BreadthFirst(wf workflow.Workflow) []string {
	seen := map[string]struct{}{wf.Entry: {}}
	order := []string{wf.Entry}
	for i := 0; i < len(order); i++ {
		for _, edge := range wf.OutgoingEdges(order[i]) {
			if _, ok := seen[edge.To]; ok {
				continue
			}
			seen[edge.To] = struct{}{}
			order = append(order, edge.To)
		}
	}
	for _, id := range wf.NodeIDs() {
		if _, ok := seen[id]; !ok {
			order = append(order, id)
		}
	}
	return order
}

func (s *Synchronizer) buildNodeList(snap engine.Snapshot) ([]NodeDisplayInfo, error) {
	if snap.WorkflowID == "" {
		return nil, nil
	}
	rootID := s.rootID
	if len(snap.Stack) == 0 {
		rootID = snap.WorkflowID
	}
	root, err := s.workflows.Lookup(rootID)
	if err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}
	rootOrder, err := s.NodeOrder(rootID)
	if err != nil {
		return nil, err
	}

	if snap.WorkflowID == rootID {
		out := make([]NodeDisplayInfo, 0, len(rootOrder))
		for _, id := range rootOrder {
			out = append(out, s.info(root, id, snap.NodeID, 0))
		}
		return out, nil
	}

	// The bottom-most frame records where the root workflow is parked.
	parked := snap.Stack[len(snap.Stack)-1].CurrentNodeID
	active, err := s.workflows.Lookup(snap.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}
	activeOrder, err := s.NodeOrder(snap.WorkflowID)
	if err != nil {
		return nil, err
	}
	out := make([]NodeDisplayInfo, 0, len(rootOrder)+len(activeOrder))
	for _, id := range rootOrder {
		out = append(out, s.info(root, id, parked, 0))
		if id != parked {
			continue
		}
		for _, childID := range activeOrder {
			out = append(out, s.info(active, childID, snap.NodeID, 1))
		}
	}
	return out, nil
}

func (s *Synchronizer) info(wf workflow.Workflow, nodeID, currentID string, depth int) NodeDisplayInfo {
	status := NodeUnvisited
	switch {
	case nodeID == currentID:
		status = NodeCurrent
	case s.IsVisited(wf.ID, nodeID):
		status = NodeVisited
	}
	node, _ := wf.Node(nodeID)
	return NodeDisplayInfo{
		ID:          nodeID,
		Description: node.Description,
		Status:      status,
		Depth:       depth,
		WorkflowID:  wf.ID,
	}
}
