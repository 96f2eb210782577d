package display

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/reflex-coffee/internal/workflow/engine"
)

// DefaultEventWindow is how many trailing entries the event panel shows.
const DefaultEventWindow = 8

// EventLogEntry is one line of the event log.
type EventLogEntry struct {
	ID        int       `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives every appended entry, e.g. to persist it.
type Sink interface {
	Record(entry EventLogEntry)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(EventLogEntry)

// Record implements Sink.
func (f SinkFunc) Record(entry EventLogEntry) { f(entry) }

// EventLog is an append-only, unbounded list of entries with ids assigned
// from 0 in append order. Only the rendered window is ever trimmed.
type EventLog struct {
	mu      sync.Mutex
	entries []EventLogEntry
	nextID  int
	clock   func() time.Time
	sinks   []Sink
}

// EventLogOption customizes an EventLog.
type EventLogOption func(*EventLog)

// WithEventClock injects a deterministic clock.
func WithEventClock(clock func() time.Time) EventLogOption {
	return func(l *EventLog) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithSink forwards each appended entry to sink.
func WithSink(sink Sink) EventLogOption {
	return func(l *EventLog) {
		if sink != nil {
			l.sinks = append(l.sinks, sink)
		}
	}
}

// NewEventLog returns an empty log.
func NewEventLog(opts ...EventLogOption) *EventLog {
	l := &EventLog{clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records a message of the given type.
func (l *EventLog) Append(eventType, message string) EventLogEntry {
	l.mu.Lock()
	entry := EventLogEntry{
		ID:        l.nextID,
		Type:      eventType,
		Message:   message,
		Timestamp: l.clock(),
	}
	l.nextID++
	l.entries = append(l.entries, entry)
	sinks := l.sinks
	l.mu.Unlock()
	for _, sink := range sinks {
		sink.Record(entry)
	}
	return entry
}

// AppendEngineEvent formats and records an engine event.
func (l *EventLog) AppendEngineEvent(evt engine.Event) EventLogEntry {
	return l.Append(string(evt.Type), Describe(evt))
}

// Entries returns a copy of every entry.
func (l *EventLog) Entries() []EventLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]EventLogEntry(nil), l.entries...)
}

// Visible returns the last n entries, oldest first.
func (l *EventLog) Visible(n int) []EventLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 {
		return nil
	}
	start := len(l.entries) - n
	if start < 0 {
		start = 0
	}
	return append([]EventLogEntry(nil), l.entries[start:]...)
}

// Len reports how many entries were appended.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Describe renders an engine event as a one-line message.
func Describe(evt engine.Event) string {
	switch evt.Type {
	case engine.EventNodeEnter:
		return fmt.Sprintf("%s (%s)", evt.NodeID, evt.WorkflowID)
	case engine.EventNodeExit:
		return evt.NodeID
	case engine.EventEdgeTraverse:
		return fmt.Sprintf("%s → %s", evt.From, evt.To)
	case engine.EventWorkflowPush:
		return "→ " + evt.WorkflowID
	case engine.EventWorkflowPop:
		return "← " + evt.WorkflowID
	case engine.EventBlackboardWrite:
		parts := make([]string, 0, len(evt.Entries))
		for _, entry := range evt.Entries {
			parts = append(parts, fmt.Sprintf("%s=%v", entry.Key, entry.Value))
		}
		return strings.Join(parts, ", ")
	case engine.EventSuspend:
		return evt.Reason
	case engine.EventComplete:
		return "Session finished"
	case engine.EventError:
		if evt.Err != nil {
			return evt.Err.Error()
		}
		return evt.Reason
	default:
		return string(evt.Type)
	}
}
