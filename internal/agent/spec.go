// Package agent holds the decision logic that tells the engine what to do at
// each coffee-shop node, plus the single-slot mailbox the UI uses to hand a
// human choice to it.
package agent

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DefaultDelay is the auto-advance pause used when a node declares none.
const DefaultDelay = 300 * time.Millisecond

// Choice is one option offered at a suspend node.
type Choice struct {
	Label string `mapstructure:"label" json:"label"`
	Value string `mapstructure:"value" json:"value"`
}

// NodeKind classifies a node spec for resolution.
type NodeKind string

const (
	KindTerminal NodeKind = "terminal"
	KindSuspend  NodeKind = "suspend"
	KindAuto     NodeKind = "auto"
)

// NodeSpec is the typed view of workflow.Node.Spec.
type NodeSpec struct {
	Message     string   `mapstructure:"message"`
	Prompt      string   `mapstructure:"prompt"`
	Suspend     bool     `mapstructure:"suspend"`
	AutoAdvance bool     `mapstructure:"autoAdvance"`
	Terminal    bool     `mapstructure:"terminal"`
	Choices     []Choice `mapstructure:"choices"`
	WriteKey    string   `mapstructure:"writeKey"`
	WriteValue  string   `mapstructure:"writeValue"`
	DelayMillis int      `mapstructure:"delay"`
}

// DecodeSpec converts the loosely typed node spec map into a NodeSpec.
// Unknown keys are ignored.
func DecodeSpec(raw map[string]any) (NodeSpec, error) {
	var spec NodeSpec
	if len(raw) == 0 {
		return spec, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &spec,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return NodeSpec{}, fmt.Errorf("agent: build spec decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return NodeSpec{}, fmt.Errorf("agent: decode node spec: %w", err)
	}
	return spec, nil
}

// Kind reports how the node resolves: terminal wins over suspend, and every
// other node auto-advances.
func (s NodeSpec) Kind() NodeKind {
	switch {
	case s.Terminal:
		return KindTerminal
	case s.Suspend:
		return KindSuspend
	default:
		return KindAuto
	}
}

// endsBranch reports whether a node with edgeCount valid edges is an implicit
// terminal. Only nodes that neither wait for input nor declare autoAdvance
// qualify; an autoAdvance node with nowhere to go is a stall.
func (s NodeSpec) endsBranch(edgeCount int) bool {
	return edgeCount == 0 && !s.Suspend && !s.AutoAdvance
}

// Delay returns the node's auto-advance pause.
func (s NodeSpec) Delay() time.Duration {
	if s.DelayMillis <= 0 {
		return DefaultDelay
	}
	return time.Duration(s.DelayMillis) * time.Millisecond
}

// PromptOr returns the node prompt or fallback when none is set.
func (s NodeSpec) PromptOr(fallback string) string {
	if s.Prompt != "" {
		return s.Prompt
	}
	return fallback
}

// HasChoices reports whether the node offers a selectable list.
func (s NodeSpec) HasChoices() bool {
	return s.Suspend && len(s.Choices) > 0
}
