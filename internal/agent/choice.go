package agent

import "sync"

// PendingChoice is the content of a ChoiceSlot.
type PendingChoice struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ChoiceSlot is a single-entry mailbox between the UI and the agent. Offer
// overwrites any unconsumed choice; Take reads and clears in one operation.
// The UI writes from the update loop while the agent reads from the step
// goroutine, hence the mutex.
type ChoiceSlot struct {
	mu      sync.Mutex
	pending PendingChoice
	full    bool
}

// NewChoiceSlot returns an empty slot.
func NewChoiceSlot() *ChoiceSlot {
	return &ChoiceSlot{}
}

// Offer stores a choice, replacing whatever was there.
func (s *ChoiceSlot) Offer(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = PendingChoice{Key: key, Value: value}
	s.full = true
}

// Peek returns the stored choice without consuming it.
func (s *ChoiceSlot) Peek() (PendingChoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, s.full
}

// Take consumes the stored choice if it was written for key. A choice for a
// different key stays in place.
func (s *ChoiceSlot) Take(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full || s.pending.Key != key {
		return "", false
	}
	value := s.pending.Value
	s.pending = PendingChoice{}
	s.full = false
	return value, true
}

// Clear drops any stored choice.
func (s *ChoiceSlot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = PendingChoice{}
	s.full = false
}
