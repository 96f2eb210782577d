package engine

import "time"

// EventType names an engine lifecycle event.
type EventType string

const (
	EventNodeEnter       EventType = "node:enter"
	EventNodeExit        EventType = "node:exit"
	EventEdgeTraverse    EventType = "edge:traverse"
	EventWorkflowPush    EventType = "workflow:push"
	EventWorkflowPop     EventType = "workflow:pop"
	EventBlackboardWrite EventType = "blackboard:write"
	EventSuspend         EventType = "engine:suspend"
	EventComplete        EventType = "engine:complete"
	EventError           EventType = "engine:error"
)

// Event is delivered to subscribers after the step that produced it.
// WorkflowID is the workflow the event concerns: the entered child for
// workflow:push and the returning child for workflow:pop.
type Event struct {
	Type       EventType `json:"type"`
	WorkflowID string    `json:"workflowId,omitempty"`
	NodeID     string    `json:"nodeId,omitempty"`
	EdgeID     string    `json:"edgeId,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Entries    []Entry   `json:"entries,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Err        error     `json:"-"`
	At         time.Time `json:"at"`
}

// Handler receives engine events.
type Handler func(Event)

type subscription struct {
	id     int
	filter EventType
	fn     Handler
}

// Subscribe registers a handler for every event type. The returned function
// removes it.
func (e *Engine) Subscribe(fn Handler) func() {
	return e.addHandler("", fn)
}

// On registers a handler for a single event type.
func (e *Engine) On(eventType EventType, fn Handler) func() {
	return e.addHandler(eventType, fn)
}

func (e *Engine) addHandler(filter EventType, fn Handler) func() {
	if fn == nil {
		return func() {}
	}
	e.hmu.Lock()
	defer e.hmu.Unlock()
	e.nextHandler++
	id := e.nextHandler
	e.handlers = append(e.handlers, subscription{id: id, filter: filter, fn: fn})
	return func() {
		e.hmu.Lock()
		defer e.hmu.Unlock()
		for i, sub := range e.handlers {
			if sub.id == id {
				e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
				return
			}
		}
	}
}

// dispatch runs outside the engine lock so handlers may call accessors.
func (e *Engine) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	e.hmu.RLock()
	subs := append([]subscription(nil), e.handlers...)
	e.hmu.RUnlock()
	for _, evt := range events {
		for _, sub := range subs {
			if sub.filter == "" || sub.filter == evt.Type {
				sub.fn(evt)
			}
		}
	}
}
