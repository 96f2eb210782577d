package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kingrea/reflex-coffee/internal/logging"
	"github.com/kingrea/reflex-coffee/internal/workflow"
)

var (
	// ErrNotInitialized is returned when Step runs before Init.
	ErrNotInitialized = errors.New("workflow engine: not initialized")
	// ErrCompleted is returned when Step runs after the root workflow finished.
	ErrCompleted = errors.New("workflow engine: session already completed")
	// ErrUnknownEdge is returned when an agent advances along an edge that is
	// not among the valid edges of the current node.
	ErrUnknownEdge = errors.New("workflow engine: edge is not valid from current node")
)

// Status reports the coarse engine lifecycle.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
)

// StepStatus describes what a single step did.
type StepStatus string

const (
	StepAdvanced  StepStatus = "advanced"
	StepInvoked   StepStatus = "invoked"
	StepPopped    StepStatus = "popped"
	StepSuspended StepStatus = "suspended"
	StepCompleted StepStatus = "completed"
)

// StepResult summarizes a step. Node and Workflow are the position after it.
type StepResult struct {
	Status   StepStatus `json:"status"`
	Workflow string     `json:"workflow"`
	Node     string     `json:"node"`
	Edge     string     `json:"edge,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

// StackFrame is a suspended parent workflow waiting on a sub-workflow.
type StackFrame struct {
	WorkflowID    string                   `json:"workflowId"`
	CurrentNodeID string                   `json:"currentNodeId"`
	ReturnMap     []workflow.ReturnMapping `json:"returnMap,omitempty"`
}

type frame struct {
	StackFrame
	workflow workflow.Workflow
	scope    *scope
}

// Snapshot is a consistent copy of the engine state after a step.
type Snapshot struct {
	WorkflowID string          `json:"workflowId"`
	NodeID     string          `json:"nodeId"`
	Node       workflow.Node   `json:"node"`
	Stack      []StackFrame    `json:"stack"`
	Blackboard Blackboard      `json:"-"`
	ValidEdges []workflow.Edge `json:"validEdges"`
	Status     Status          `json:"status"`
}

// Engine steps through a registry of workflows.
type Engine struct {
	registry *workflow.Registry
	agent    DecisionAgent
	clock    func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	current workflow.Workflow
	nodeID  string
	scope   *scope
	stack   []frame // oldest first
	resumed bool    // current node's invocation already returned
	status  Status
	started bool

	hmu         sync.RWMutex
	handlers    []subscription
	nextHandler int
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger routes engine diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New wires an engine to the workflow registry and decision agent.
func New(registry *workflow.Registry, agent DecisionAgent, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("workflow engine: workflow registry is required")
	}
	if agent == nil {
		return nil, fmt.Errorf("workflow engine: decision agent is required")
	}
	e := &Engine{
		registry: registry,
		agent:    agent,
		clock:    time.Now,
		logger:   logging.NewNop(),
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Init positions the engine at the entry node of workflowID with an empty
// blackboard and call stack.
func (e *Engine) Init(ctx context.Context, workflowID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wf, err := e.registry.Lookup(workflowID)
	if err != nil {
		return fmt.Errorf("workflow engine: init: %w", err)
	}
	e.mu.Lock()
	e.current = wf
	e.nodeID = wf.Entry
	e.scope = &scope{}
	e.stack = nil
	e.resumed = false
	e.status = StatusRunning
	e.started = true
	events := []Event{e.event(EventNodeEnter, func(ev *Event) { ev.NodeID = wf.Entry })}
	e.mu.Unlock()
	e.logger.Info("engine initialized", "workflow", wf.ID, "entry", wf.Entry)
	e.dispatch(events)
	return nil
}

// Step executes exactly one transition from the current node.
func (e *Engine) Step(ctx context.Context) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	e.mu.Lock()
	result, events, err := e.step(ctx)
	if err != nil {
		events = append(events, e.event(EventError, func(ev *Event) { ev.Err = err; ev.Reason = err.Error() }))
	}
	e.mu.Unlock()
	if err != nil {
		e.logger.Error("engine step failed", "workflow", result.Workflow, "node", result.Node, "error", err)
	} else {
		e.logger.Debug("engine step", "status", result.Status, "workflow", result.Workflow, "node", result.Node)
	}
	e.dispatch(events)
	return result, err
}

func (e *Engine) step(ctx context.Context) (StepResult, []Event, error) {
	if !e.started {
		return StepResult{}, nil, ErrNotInitialized
	}
	here := e.position()
	if e.status == StatusCompleted {
		return here, nil, ErrCompleted
	}
	node, ok := e.current.Node(e.nodeID)
	if !ok {
		return here, nil, fmt.Errorf("workflow engine: node %s missing from %s", e.nodeID, e.current.ID)
	}
	if node.Invokes != nil && !e.resumed {
		return e.invoke(node)
	}

	decision, err := e.agent.Resolve(ctx, DecisionContext{
		Workflow:   e.current,
		Node:       node,
		ValidEdges: e.validEdges(),
		Blackboard: e.scope.view(),
		Stack:      e.publicStack(),
	})
	if err != nil {
		return here, nil, fmt.Errorf("workflow engine: resolve %s: %w", node.ID, err)
	}

	switch decision.Kind {
	case DecisionSuspend:
		e.status = StatusSuspended
		result := here
		result.Status = StepSuspended
		result.Reason = decision.Reason
		return result, []Event{e.event(EventSuspend, func(ev *Event) { ev.Reason = decision.Reason })}, nil
	case DecisionAdvance:
		return e.advance(node, decision)
	case DecisionComplete:
		return e.complete(node, decision)
	default:
		return here, nil, fmt.Errorf("workflow engine: unknown decision kind %q", decision.Kind)
	}
}

func (e *Engine) invoke(node workflow.Node) (StepResult, []Event, error) {
	child, err := e.registry.Lookup(node.Invokes.WorkflowID)
	if err != nil {
		return e.position(), nil, fmt.Errorf("workflow engine: invoke from %s: %w", node.ID, err)
	}
	e.stack = append(e.stack, frame{
		StackFrame: StackFrame{
			WorkflowID:    e.current.ID,
			CurrentNodeID: node.ID,
			ReturnMap:     append([]workflow.ReturnMapping(nil), node.Invokes.ReturnMap...),
		},
		workflow: e.current,
		scope:    e.scope,
	})
	e.scope = &scope{parent: e.scope, depth: len(e.stack)}
	e.current = child
	e.nodeID = child.Entry
	e.resumed = false
	e.status = StatusRunning
	events := []Event{
		e.event(EventWorkflowPush, func(ev *Event) { ev.From = node.ID }),
		e.event(EventNodeEnter, nil),
	}
	result := e.position()
	result.Status = StepInvoked
	return result, events, nil
}

func (e *Engine) advance(node workflow.Node, decision Decision) (StepResult, []Event, error) {
	var edge *workflow.Edge
	for _, candidate := range e.validEdges() {
		if candidate.ID == decision.Edge {
			c := candidate
			edge = &c
			break
		}
	}
	if edge == nil {
		return e.position(), nil, fmt.Errorf("%w: %s at %s", ErrUnknownEdge, decision.Edge, node.ID)
	}
	var events []Event
	if written := e.apply(decision.Writes); len(written) > 0 {
		events = append(events, e.event(EventBlackboardWrite, func(ev *Event) { ev.Entries = written }))
	}
	events = append(events,
		e.event(EventNodeExit, nil),
		e.event(EventEdgeTraverse, func(ev *Event) { ev.EdgeID = edge.ID; ev.From = edge.From; ev.To = edge.To }),
	)
	e.nodeID = edge.To
	e.resumed = false
	e.status = StatusRunning
	events = append(events, e.event(EventNodeEnter, nil))
	result := e.position()
	result.Status = StepAdvanced
	result.Edge = edge.ID
	return result, events, nil
}

func (e *Engine) complete(node workflow.Node, decision Decision) (StepResult, []Event, error) {
	var events []Event
	if written := e.apply(decision.Writes); len(written) > 0 {
		events = append(events, e.event(EventBlackboardWrite, func(ev *Event) { ev.Entries = written }))
	}
	events = append(events, e.event(EventNodeExit, nil))
	if len(e.stack) == 0 {
		e.status = StatusCompleted
		events = append(events, e.event(EventComplete, nil))
		result := e.position()
		result.Status = StepCompleted
		return result, events, nil
	}

	top := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	child := e.scope
	childID := e.current.ID
	e.scope = top.scope
	e.current = top.workflow
	e.nodeID = top.CurrentNodeID
	e.resumed = true
	e.status = StatusRunning
	events = append(events, e.event(EventWorkflowPop, func(ev *Event) { ev.WorkflowID = childID; ev.To = top.CurrentNodeID }))

	var returned []Write
	for _, mapping := range top.ReturnMap {
		if value, ok := child.lookup(mapping.ChildKey); ok {
			returned = append(returned, Write{Key: mapping.ParentKey, Value: value})
		}
	}
	if written := e.apply(returned); len(written) > 0 {
		events = append(events, e.event(EventBlackboardWrite, func(ev *Event) { ev.Entries = written }))
	}
	e.logger.Debug("sub-workflow returned", "child", childID, "parent", e.current.ID, "node", node.ID)
	result := e.position()
	result.Status = StepPopped
	return result, events, nil
}

func (e *Engine) apply(writes []Write) []Entry {
	if len(writes) == 0 {
		return nil
	}
	now := e.clock()
	out := make([]Entry, 0, len(writes))
	for _, w := range writes {
		entry := Entry{
			Key:   w.Key,
			Value: w.Value,
			Source: Source{
				WorkflowID: e.current.ID,
				NodeID:     e.nodeID,
				StackDepth: e.scope.depth,
			},
			Timestamp: now,
		}
		e.scope.entries = append(e.scope.entries, entry)
		out = append(out, entry)
	}
	return out
}

func (e *Engine) validEdges() []workflow.Edge {
	var out []workflow.Edge
	for _, edge := range e.current.OutgoingEdges(e.nodeID) {
		if e.guardAllows(edge.Guard) {
			out = append(out, edge)
		}
	}
	return out
}

func (e *Engine) guardAllows(g *workflow.Guard) bool {
	if g == nil {
		return true
	}
	value, ok := e.scope.lookup(g.Key)
	switch g.Type {
	case workflow.GuardExists:
		return ok
	case workflow.GuardNotExists:
		return !ok
	case workflow.GuardEquals:
		return ok && fmt.Sprint(value) == g.Value
	case workflow.GuardNotEquals:
		return !ok || fmt.Sprint(value) != g.Value
	default:
		return false
	}
}

func (e *Engine) publicStack() []StackFrame {
	out := make([]StackFrame, 0, len(e.stack))
	for i := len(e.stack) - 1; i >= 0; i-- {
		f := e.stack[i].StackFrame
		f.ReturnMap = append([]workflow.ReturnMapping(nil), f.ReturnMap...)
		out = append(out, f)
	}
	return out
}

func (e *Engine) position() StepResult {
	return StepResult{Workflow: e.current.ID, Node: e.nodeID}
}

func (e *Engine) event(t EventType, fill func(*Event)) Event {
	ev := Event{Type: t, WorkflowID: e.current.ID, NodeID: e.nodeID, At: e.clock()}
	if fill != nil {
		fill(&ev)
	}
	return ev
}

// CurrentNode returns the active node.
func (e *Engine) CurrentNode() (workflow.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return workflow.Node{}, false
	}
	return e.current.Node(e.nodeID)
}

// CurrentWorkflow returns the active (innermost) workflow.
func (e *Engine) CurrentWorkflow() workflow.Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Stack returns the call stack, most recent invocation first.
func (e *Engine) Stack() []StackFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.publicStack()
}

// Blackboard returns the active scope chain.
func (e *Engine) Blackboard() Blackboard {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scope == nil {
		return Blackboard{}
	}
	return e.scope.view()
}

// ValidEdges returns the guard-filtered outgoing edges of the current node.
func (e *Engine) ValidEdges() []workflow.Edge {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	return e.validEdges()
}

// Status reports the engine lifecycle state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Snapshot copies the full engine state in one critical section.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{
		WorkflowID: e.current.ID,
		NodeID:     e.nodeID,
		Stack:      e.publicStack(),
		Status:     e.status,
	}
	if !e.started {
		return snap
	}
	snap.Node, _ = e.current.Node(e.nodeID)
	snap.Blackboard = e.scope.view()
	snap.ValidEdges = e.validEdges()
	return snap
}
