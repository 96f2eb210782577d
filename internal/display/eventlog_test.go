package display

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/reflex-coffee/internal/workflow/engine"
)

func TestEventLogAssignsMonotonicIDs(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	var recorded []EventLogEntry
	log := NewEventLog(
		WithEventClock(func() time.Time { return now }),
		WithSink(SinkFunc(func(e EventLogEntry) { recorded = append(recorded, e) })),
	)
	for i := 0; i < 12; i++ {
		log.Append("node:enter", "GREET (coffee-order)")
	}
	entries := log.Entries()
	require.Len(t, entries, 12)
	for i, entry := range entries {
		assert.Equal(t, i, entry.ID)
		assert.Equal(t, now, entry.Timestamp)
	}
	assert.Len(t, recorded, 12)

	window := log.Visible(DefaultEventWindow)
	require.Len(t, window, DefaultEventWindow)
	assert.Equal(t, 4, window[0].ID)
	assert.Equal(t, 11, window[len(window)-1].ID)
	assert.Equal(t, 12, log.Len(), "visible window never trims the log")
	assert.Nil(t, log.Visible(0))
}

func TestDescribeEngineEvents(t *testing.T) {
	cases := []struct {
		evt  engine.Event
		want string
	}{
		{engine.Event{Type: engine.EventNodeEnter, WorkflowID: "coffee-order", NodeID: "GREET"}, "GREET (coffee-order)"},
		{engine.Event{Type: engine.EventNodeExit, NodeID: "GREET"}, "GREET"},
		{engine.Event{Type: engine.EventEdgeTraverse, From: "GREET", To: "TAKE_ORDER"}, "GREET → TAKE_ORDER"},
		{engine.Event{Type: engine.EventWorkflowPush, WorkflowID: "make-tea"}, "→ make-tea"},
		{engine.Event{Type: engine.EventWorkflowPop, WorkflowID: "make-tea"}, "← make-tea"},
		{engine.Event{Type: engine.EventBlackboardWrite, Entries: []engine.Entry{
			{Key: "size", Value: "large"}, {Key: "milk_type", Value: "oat"},
		}}, "size=large, milk_type=oat"},
		{engine.Event{Type: engine.EventSuspend, Reason: "What size?"}, "What size?"},
		{engine.Event{Type: engine.EventComplete}, "Session finished"},
		{engine.Event{Type: engine.EventError, Err: errors.New("boom")}, "boom"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Describe(tc.evt), string(tc.evt.Type))
	}
}

func TestAppendEngineEventUsesEventType(t *testing.T) {
	log := NewEventLog()
	entry := log.AppendEngineEvent(engine.Event{Type: engine.EventComplete})
	assert.Equal(t, "engine:complete", entry.Type)
	assert.Equal(t, "Session finished", entry.Message)
}

func TestParseMode(t *testing.T) {
	mode, ok := ParseMode("auto")
	assert.True(t, ok)
	assert.Equal(t, ModeAuto, mode)
	mode, ok = ParseMode("manual")
	assert.True(t, ok)
	assert.Equal(t, ModeStep, mode)
	_, ok = ParseMode("turbo")
	assert.False(t, ok)
}
