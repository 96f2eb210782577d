package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/kingrea/reflex-coffee/internal/logging"
	"github.com/kingrea/reflex-coffee/internal/workflow/engine"
)

const (
	reasonAwaitingInput     = "Awaiting input"
	reasonNoEdgesAfterPick  = "No valid edges after choice"
	reasonNoEdgesAvailable  = "No valid edges available"
	defaultDrinkDescription = "drink"
)

// SuspendCause tells apart the suspends that share one Decision shape.
type SuspendCause string

const (
	CauseNone               SuspendCause = ""
	CauseAwaitingInput      SuspendCause = "awaiting-input"
	CauseNoEdgesAfterChoice SuspendCause = "no-edges-after-choice"
	CauseNoValidEdges       SuspendCause = "no-valid-edges"
)

// CoffeeAgent resolves coffee-shop nodes. It has no I/O of its own: the only
// state it touches is the choice slot it was built with.
type CoffeeAgent struct {
	choices *ChoiceSlot
	logger  *slog.Logger

	mu        sync.Mutex
	lastCause SuspendCause
}

// Option customizes a CoffeeAgent.
type Option func(*CoffeeAgent)

// WithLogger routes agent diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *CoffeeAgent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewCoffeeAgent binds an agent to the session's choice slot.
func NewCoffeeAgent(choices *ChoiceSlot, opts ...Option) *CoffeeAgent {
	if choices == nil {
		choices = NewChoiceSlot()
	}
	a := &CoffeeAgent{choices: choices, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Choices exposes the slot the agent consumes from.
func (a *CoffeeAgent) Choices() *ChoiceSlot {
	return a.choices
}

// LastSuspendCause reports why the most recent resolution suspended, or
// CauseNone if it did not.
func (a *CoffeeAgent) LastSuspendCause() SuspendCause {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastCause
}

// Resolve implements engine.DecisionAgent.
func (a *CoffeeAgent) Resolve(ctx context.Context, dc engine.DecisionContext) (engine.Decision, error) {
	if err := ctx.Err(); err != nil {
		return engine.Decision{}, err
	}
	spec, err := DecodeSpec(dc.Node.Spec)
	if err != nil {
		return engine.Decision{}, err
	}

	switch {
	case spec.Terminal, spec.endsBranch(len(dc.ValidEdges)):
		return a.done(a.complete(spec, dc.Blackboard)), nil
	case spec.Suspend:
		return a.resolveSuspend(spec, dc), nil
	default:
		return a.resolveAuto(spec, dc), nil
	}
}

func (a *CoffeeAgent) resolveSuspend(spec NodeSpec, dc engine.DecisionContext) engine.Decision {
	if spec.WriteKey != "" {
		if value, ok := a.choices.Take(spec.WriteKey); ok {
			if len(dc.ValidEdges) == 0 {
				return a.suspend(reasonNoEdgesAfterPick, CauseNoEdgesAfterChoice)
			}
			a.logger.Debug("choice consumed", "node", dc.Node.ID, "key", spec.WriteKey, "value", value)
			return a.done(engine.Advance(dc.ValidEdges[0].ID, engine.Write{Key: spec.WriteKey, Value: value}))
		}
	}
	return a.suspend(spec.PromptOr(reasonAwaitingInput), CauseAwaitingInput)
}

func (a *CoffeeAgent) resolveAuto(spec NodeSpec, dc engine.DecisionContext) engine.Decision {
	var writes []engine.Write
	if spec.WriteKey != "" && spec.WriteValue != "" {
		writes = append(writes, engine.Write{Key: spec.WriteKey, Value: spec.WriteValue})
	}
	if len(dc.ValidEdges) == 0 {
		return a.suspend(reasonNoEdgesAvailable, CauseNoValidEdges)
	}
	return a.done(engine.Advance(dc.ValidEdges[0].ID, writes...))
}

func (a *CoffeeAgent) complete(spec NodeSpec, board engine.BlackboardReader) engine.Decision {
	if spec.WriteKey == "" {
		return engine.Complete()
	}
	return engine.Complete(engine.Write{Key: spec.WriteKey, Value: DescribeDrink(board)})
}

func (a *CoffeeAgent) suspend(reason string, cause SuspendCause) engine.Decision {
	a.mu.Lock()
	a.lastCause = cause
	a.mu.Unlock()
	return engine.Suspend(reason)
}

func (a *CoffeeAgent) done(decision engine.Decision) engine.Decision {
	a.mu.Lock()
	a.lastCause = CauseNone
	a.mu.Unlock()
	return decision
}

// DescribeDrink summarizes the order on the blackboard, e.g.
// "large espresso with oat milk" or "small tea, black".
func DescribeDrink(board engine.BlackboardReader) string {
	drink, ok := engine.StringValue(board, "drink_type")
	if !ok {
		drink = defaultDrinkDescription
	}
	size, _ := engine.StringValue(board, "size")
	milk, _ := engine.StringValue(board, "milk_type")
	var b strings.Builder
	b.WriteString(size)
	b.WriteString(" ")
	b.WriteString(drink)
	if milk != "" && milk != "none" {
		b.WriteString(" with ")
		b.WriteString(milk)
		b.WriteString(" milk")
	} else {
		b.WriteString(", black")
	}
	return strings.TrimSpace(b.String())
}
