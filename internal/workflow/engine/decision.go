package engine

import (
	"context"

	"github.com/kingrea/reflex-coffee/internal/workflow"
)

// DecisionKind enumerates the outcomes an agent may return for a node.
type DecisionKind string

const (
	DecisionSuspend  DecisionKind = "suspend"
	DecisionAdvance  DecisionKind = "advance"
	DecisionComplete DecisionKind = "complete"
)

// Write is a single blackboard assignment requested by a decision.
type Write struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Decision is the agent's verdict for the current node. Edge is only set for
// advance decisions and Reason only for suspend decisions. Writes are applied
// in order before the engine moves.
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Edge   string       `json:"edge,omitempty"`
	Writes []Write      `json:"writes,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// Suspend builds a suspend decision.
func Suspend(reason string) Decision {
	return Decision{Kind: DecisionSuspend, Reason: reason}
}

// Advance builds an advance decision along edgeID.
func Advance(edgeID string, writes ...Write) Decision {
	return Decision{Kind: DecisionAdvance, Edge: edgeID, Writes: writes}
}

// Complete builds a complete decision.
func Complete(writes ...Write) Decision {
	return Decision{Kind: DecisionComplete, Writes: writes}
}

// DecisionContext is everything an agent may look at when resolving a node.
type DecisionContext struct {
	Workflow   workflow.Workflow
	Node       workflow.Node
	ValidEdges []workflow.Edge
	Blackboard BlackboardReader
	Stack      []StackFrame
}

// DecisionAgent resolves one node per engine step.
type DecisionAgent interface {
	Resolve(ctx context.Context, dc DecisionContext) (Decision, error)
}

// AgentFunc adapts a plain function to the DecisionAgent interface.
type AgentFunc func(ctx context.Context, dc DecisionContext) (Decision, error)

// Resolve implements DecisionAgent.
func (f AgentFunc) Resolve(ctx context.Context, dc DecisionContext) (Decision, error) {
	return f(ctx, dc)
}
