package engine

import (
	"fmt"
	"time"
)

// Source records which node, and at which call-stack depth, produced an entry.
type Source struct {
	WorkflowID string `json:"workflowId"`
	NodeID     string `json:"nodeId"`
	StackDepth int    `json:"stackDepth"`
}

// Entry is one blackboard write.
type Entry struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Source    Source    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// BlackboardReader is the read-only view handed to agents and observers.
type BlackboardReader interface {
	Get(key string) (any, bool)
	Entries() []Entry
}

// Blackboard is an immutable projection of the active scope chain: parent
// entries first, then child entries, each in write order. Later entries
// shadow earlier ones, which gives child scopes precedence over parents.
type Blackboard struct {
	entries []Entry
}

// NewBlackboard builds a reader over the given entries.
func NewBlackboard(entries ...Entry) Blackboard {
	return Blackboard{entries: append([]Entry(nil), entries...)}
}

// Get returns the latest value written for key.
func (b Blackboard) Get(key string) (any, bool) {
	for i := len(b.entries) - 1; i >= 0; i-- {
		if b.entries[i].Key == key {
			return b.entries[i].Value, true
		}
	}
	return nil, false
}

// GetString returns the latest value for key formatted as a string.
func (b Blackboard) GetString(key string) (string, bool) {
	return StringValue(b, key)
}

// Entries returns a copy of the entries in write order.
func (b Blackboard) Entries() []Entry {
	return append([]Entry(nil), b.entries...)
}

// Len reports the number of entries.
func (b Blackboard) Len() int {
	return len(b.entries)
}

// StringValue reads key from any reader and renders it as a string.
func StringValue(r BlackboardReader, key string) (string, bool) {
	if r == nil {
		return "", false
	}
	value, ok := r.Get(key)
	if !ok || value == nil {
		return "", false
	}
	if s, isString := value.(string); isString {
		return s, true
	}
	return fmt.Sprint(value), true
}

// scope holds the writes of one call-stack level.
type scope struct {
	parent  *scope
	depth   int
	entries []Entry
}

func (s *scope) lookup(key string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		for i := len(cur.entries) - 1; i >= 0; i-- {
			if cur.entries[i].Key == key {
				return cur.entries[i].Value, true
			}
		}
	}
	return nil, false
}

func (s *scope) chain() []Entry {
	var levels []*scope
	for cur := s; cur != nil; cur = cur.parent {
		levels = append(levels, cur)
	}
	var out []Entry
	for i := len(levels) - 1; i >= 0; i-- {
		out = append(out, levels[i].entries...)
	}
	return out
}

func (s *scope) view() Blackboard {
	return Blackboard{entries: s.chain()}
}
