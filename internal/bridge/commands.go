// Package bridge runs an optional loopback HTTP server that mirrors the
// keyboard controls of a running session and publishes its display state.
//
// Handlers never touch the session directly. Commands are forwarded into the
// bubbletea program as messages, so all state changes still happen on the
// update loop.
package bridge

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/reflex-coffee/internal/display"
)

// Sink delivers a message into the UI loop. *tea.Program satisfies it.
type Sink interface {
	Send(msg tea.Msg)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(tea.Msg)

// Send implements Sink.
func (f SinkFunc) Send(msg tea.Msg) { f(msg) }

// StepCommand asks for one engine step, like pressing Enter in step mode.
type StepCommand struct{}

// ModeCommand switches the stepping mode. An empty Mode toggles.
type ModeCommand struct {
	Mode display.Mode
}

// ChoiceCommand answers the pending prompt by value or by list index.
type ChoiceCommand struct {
	Value   string
	Index   int
	ByIndex bool
}

// StateBoard holds the most recently published display state.
type StateBoard struct {
	mu    sync.RWMutex
	state display.State
	ok    bool
}

// NewStateBoard returns an empty board.
func NewStateBoard() *StateBoard {
	return &StateBoard{}
}

// Publish replaces the stored state with a copy of state.
func (b *StateBoard) Publish(state display.State) {
	clone := state.Clone()
	b.mu.Lock()
	b.state = clone
	b.ok = true
	b.mu.Unlock()
}

// Latest returns the last published state, if any.
func (b *StateBoard) Latest() (display.State, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state, b.ok
}
