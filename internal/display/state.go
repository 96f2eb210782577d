// Package display derives the render-ready view of a session from engine
// snapshots: the merged parent/sub-workflow node list, the visited set, and
// the append-only event log.
package display

import (
	"github.com/kingrea/reflex-coffee/internal/agent"
	"github.com/kingrea/reflex-coffee/internal/workflow"
	"github.com/kingrea/reflex-coffee/internal/workflow/engine"
)

// Mode selects who triggers steps.
type Mode string

const (
	ModeStep Mode = "step"
	ModeAuto Mode = "auto"
)

// ParseMode accepts "step"/"manual" and "auto".
func ParseMode(value string) (Mode, bool) {
	switch value {
	case "step", "manual", "":
		return ModeStep, true
	case "auto":
		return ModeAuto, true
	default:
		return ModeStep, false
	}
}

// NodeStatus is how a node is drawn in the graph panel.
type NodeStatus string

const (
	NodeUnvisited NodeStatus = "unvisited"
	NodeVisited   NodeStatus = "visited"
	NodeCurrent   NodeStatus = "current"
)

// NodeDisplayInfo is one row of the graph panel. Depth is 0 for the root
// workflow and 1 for the spliced active sub-workflow.
type NodeDisplayInfo struct {
	ID          string     `json:"id"`
	Description string     `json:"description,omitempty"`
	Status      NodeStatus `json:"status"`
	Depth       int        `json:"depth"`
	WorkflowID  string     `json:"workflowId"`
}

// State is everything the renderer needs. Engine-derived fields are replaced
// wholesale by Synchronizer.Sync; the session fields (Mode through
// StatusMessage) are owned by the step orchestrator.
type State struct {
	CurrentNodeID     string              `json:"currentNodeId"`
	CurrentWorkflowID string              `json:"currentWorkflowId"`
	Stack             []engine.StackFrame `json:"stack"`
	BlackboardEntries []engine.Entry      `json:"blackboard"`
	ValidEdges        []workflow.Edge     `json:"validEdges"`
	NodeDisplayList   []NodeDisplayInfo   `json:"nodes"`
	VisitedNodes      []string            `json:"visited"`
	Events            []EventLogEntry     `json:"events"`

	Mode           Mode           `json:"mode"`
	Suspended      bool           `json:"suspended"`
	SuspendChoices []agent.Choice `json:"suspendChoices,omitempty"`
	SuspendPrompt  string         `json:"suspendPrompt,omitempty"`
	Completed      bool           `json:"completed"`
	StatusMessage  string         `json:"statusMessage"`
}

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	out := s
	out.Stack = append([]engine.StackFrame(nil), s.Stack...)
	out.BlackboardEntries = append([]engine.Entry(nil), s.BlackboardEntries...)
	out.ValidEdges = append([]workflow.Edge(nil), s.ValidEdges...)
	out.NodeDisplayList = append([]NodeDisplayInfo(nil), s.NodeDisplayList...)
	out.VisitedNodes = append([]string(nil), s.VisitedNodes...)
	out.Events = append([]EventLogEntry(nil), s.Events...)
	out.SuspendChoices = append([]agent.Choice(nil), s.SuspendChoices...)
	return out
}

// LatestBlackboard collapses the entries to the most recent write per key,
// keeping first-write order of keys.
func (s State) LatestBlackboard() []engine.Entry {
	index := map[string]int{}
	var out []engine.Entry
	for _, entry := range s.BlackboardEntries {
		if i, ok := index[entry.Key]; ok {
			out[i] = entry
			continue
		}
		index[entry.Key] = len(out)
		out = append(out, entry)
	}
	return out
}
