// Package session drives a stepping session: it issues engine steps one at a
// time, arms and cancels the auto-advance timer, and turns step outcomes
// into the suspend/resume/completion state the UI renders.
//
// Every method must be called from the bubbletea update loop. Engine steps run
// inside tea.Cmd goroutines and report back through StepDoneMsg; ticks report
// back through AutoStepMsg. Each tick carries the generation that was current
// when it was armed, and any transition that must stop auto-advance bumps the
// generation, so a tick that arrives late is simply dropped.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/reflex-coffee/internal/agent"
	"github.com/kingrea/reflex-coffee/internal/display"
	"github.com/kingrea/reflex-coffee/internal/logging"
	"github.com/kingrea/reflex-coffee/internal/workflow/engine"
)

const (
	// DefaultAutoDelay is the pause before the first auto step after the user
	// switches to auto mode.
	DefaultAutoDelay = 300 * time.Millisecond

	statusReady     = "Press Enter to step"
	statusComplete  = "Order complete!"
	defaultChoosing = "Choose:"
)

// Engine is the part of the workflow engine the orchestrator drives.
type Engine interface {
	Init(ctx context.Context, workflowID string) error
	Step(ctx context.Context) (engine.StepResult, error)
	Snapshot() engine.Snapshot
	Subscribe(fn engine.Handler) func()
}

// Recorder observes session outcomes, e.g. for metrics.
type Recorder interface {
	StepFinished(status engine.StepStatus, elapsed time.Duration)
	StepFailed(elapsed time.Duration)
	ChoiceSubmitted(key string)
	ModeChanged(mode display.Mode)
}

type nopRecorder struct{}

func (nopRecorder) StepFinished(engine.StepStatus, time.Duration) {}
func (nopRecorder) StepFailed(time.Duration)                      {}
func (nopRecorder) ChoiceSubmitted(string)                        {}
func (nopRecorder) ModeChanged(display.Mode)                      {}

// Ticker arms a single-shot timer that delivers msg after d.
type Ticker func(d time.Duration, msg tea.Msg) tea.Cmd

func teaTicker(d time.Duration, msg tea.Msg) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return msg })
}

// StepDoneMsg reports the outcome of one engine step.
type StepDoneMsg struct {
	Result  engine.StepResult
	Err     error
	Elapsed time.Duration
}

// AutoStepMsg fires when an auto-advance timer elapses.
type AutoStepMsg struct {
	Generation int
}

// Orchestrator owns the step loop of one session.
type Orchestrator struct {
	engine   Engine
	choices  *agent.ChoiceSlot
	sync     *display.Synchronizer
	events   *display.EventLog
	logger   *slog.Logger
	recorder Recorder
	ticker   Ticker
	clock    func() time.Time
	ctx      context.Context

	autoDelay time.Duration
	state     display.State
	inFlight  bool
	// spec is the decoded spec of the current node, refreshed with state.
	spec agent.NodeSpec

	generation int
	armed      bool
	armedDelay time.Duration

	pendingMu   sync.Mutex
	pending     []engine.Event
	unsubscribe func()
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger routes session diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithAutoDelay overrides the delay used when auto mode is switched on.
func WithAutoDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.autoDelay = d
		}
	}
}

// WithStartMode selects the initial mode.
func WithStartMode(mode display.Mode) Option {
	return func(o *Orchestrator) {
		o.state.Mode = mode
	}
}

// WithTicker replaces tea.Tick (primarily for tests).
func WithTicker(t Ticker) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.ticker = t
		}
	}
}

// WithClock injects a deterministic clock for step timing.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithContext sets the context passed to engine steps.
func WithContext(ctx context.Context) Option {
	return func(o *Orchestrator) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// New wires an orchestrator and subscribes it to engine events. Call Start
// before handing it to the UI.
func New(eng Engine, choices *agent.ChoiceSlot, syncer *display.Synchronizer, events *display.EventLog, opts ...Option) (*Orchestrator, error) {
	if eng == nil {
		return nil, fmt.Errorf("session: engine is required")
	}
	if choices == nil {
		return nil, fmt.Errorf("session: choice slot is required")
	}
	if syncer == nil {
		return nil, fmt.Errorf("session: display synchronizer is required")
	}
	if events == nil {
		events = display.NewEventLog()
	}
	o := &Orchestrator{
		engine:    eng,
		choices:   choices,
		sync:      syncer,
		events:    events,
		logger:    logging.NewNop(),
		recorder:  nopRecorder{},
		ticker:    teaTicker,
		clock:     time.Now,
		ctx:       context.Background(),
		autoDelay: DefaultAutoDelay,
		state:     display.State{Mode: display.ModeStep},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.unsubscribe = eng.Subscribe(o.collect)
	return o, nil
}

func (o *Orchestrator) collect(evt engine.Event) {
	o.pendingMu.Lock()
	o.pending = append(o.pending, evt)
	o.pendingMu.Unlock()
}

func (o *Orchestrator) drain() {
	o.pendingMu.Lock()
	batch := o.pending
	o.pending = nil
	o.pendingMu.Unlock()
	for _, evt := range batch {
		o.events.AppendEngineEvent(evt)
	}
	o.state.Events = o.events.Entries()
}

// Start positions the engine at the root workflow entry and builds the first
// display state. In auto mode the returned command arms the first tick.
func (o *Orchestrator) Start(workflowID string) (tea.Cmd, error) {
	if err := o.engine.Init(o.ctx, workflowID); err != nil {
		return nil, fmt.Errorf("session: start %s: %w", workflowID, err)
	}
	o.drain()
	o.syncDisplay()
	o.state.StatusMessage = statusReady
	o.logger.Info("session started", "workflow", workflowID, "mode", o.state.Mode)
	if o.state.Mode == display.ModeAuto {
		o.state.StatusMessage = ""
		return o.arm(o.autoDelay), nil
	}
	return nil, nil
}

// Shutdown cancels any pending tick and detaches from the engine.
func (o *Orchestrator) Shutdown() {
	o.disarm()
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
}

// State returns a copy of the current display state.
func (o *Orchestrator) State() display.State {
	return o.state.Clone()
}

// Events exposes the session event log.
func (o *Orchestrator) Events() *display.EventLog {
	return o.events
}

// Mode reports the current stepping mode.
func (o *Orchestrator) Mode() display.Mode {
	return o.state.Mode
}

// InFlight reports whether an engine step is running.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight
}

// Armed reports whether a live auto-advance tick is pending and its delay.
func (o *Orchestrator) Armed() (time.Duration, bool) {
	return o.armedDelay, o.armed
}

// RequestStep starts one engine step unless one is already running or the
// session is complete.
func (o *Orchestrator) RequestStep() tea.Cmd {
	if o.state.Completed || o.inFlight {
		return nil
	}
	o.inFlight = true
	eng := o.engine
	ctx := o.ctx
	clock := o.clock
	return func() tea.Msg {
		started := clock()
		result, err := eng.Step(ctx)
		return StepDoneMsg{Result: result, Err: err, Elapsed: clock().Sub(started)}
	}
}

// ToggleMode flips between step and auto mode. Leaving auto mode cancels the
// pending tick before returning; entering it arms one tick after the default
// delay unless the session is suspended, complete, or mid-step.
func (o *Orchestrator) ToggleMode() tea.Cmd {
	if o.state.Mode == display.ModeAuto {
		o.state.Mode = display.ModeStep
		o.disarm()
		o.recorder.ModeChanged(o.state.Mode)
		o.logger.Debug("mode changed", "mode", o.state.Mode)
		return nil
	}
	o.state.Mode = display.ModeAuto
	o.recorder.ModeChanged(o.state.Mode)
	o.logger.Debug("mode changed", "mode", o.state.Mode)
	if o.state.Suspended || o.state.Completed || o.inFlight {
		return nil
	}
	return o.arm(o.autoDelay)
}

// SubmitChoice hands value to the agent under the current node's writeKey
// and steps immediately, in either mode. It is a no-op unless the session is
// suspended at a node that waits for input and no step is running.
func (o *Orchestrator) SubmitChoice(value string) tea.Cmd {
	if !o.awaitingChoice() {
		o.logger.Debug("choice ignored", "node", o.state.CurrentNodeID, "value", value,
			"suspended", o.state.Suspended, "inFlight", o.inFlight)
		return nil
	}
	key := o.spec.WriteKey
	o.choices.Offer(key, value)
	o.recorder.ChoiceSubmitted(key)
	o.logger.Info("choice submitted", "node", o.state.CurrentNodeID, "key", key, "value", value)
	o.clearSuspend()
	return o.RequestStep()
}

func (o *Orchestrator) awaitingChoice() bool {
	return o.state.Suspended && !o.state.Completed && !o.inFlight &&
		o.spec.Kind() == agent.KindSuspend && o.spec.WriteKey != ""
}

// SubmitChoiceIndex submits the value of the index-th offered choice.
func (o *Orchestrator) SubmitChoiceIndex(index int) tea.Cmd {
	if index < 0 || index >= len(o.state.SuspendChoices) {
		return nil
	}
	return o.SubmitChoice(o.state.SuspendChoices[index].Value)
}

// Update consumes the orchestrator's own messages. The boolean reports
// whether msg was one of them.
func (o *Orchestrator) Update(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case StepDoneMsg:
		return o.handleStepDone(msg), true
	case AutoStepMsg:
		return o.handleAutoStep(msg), true
	default:
		return nil, false
	}
}

func (o *Orchestrator) handleAutoStep(msg AutoStepMsg) tea.Cmd {
	if msg.Generation != o.generation || !o.armed {
		return nil
	}
	o.armed = false
	if o.state.Mode != display.ModeAuto || o.state.Suspended || o.state.Completed {
		return nil
	}
	return o.RequestStep()
}

func (o *Orchestrator) handleStepDone(msg StepDoneMsg) tea.Cmd {
	o.inFlight = false
	o.drain()
	o.syncDisplay()

	if msg.Err != nil {
		o.state.StatusMessage = fmt.Sprintf("Error: %v", msg.Err)
		o.recorder.StepFailed(msg.Elapsed)
		o.logger.Error("step failed", "workflow", o.state.CurrentWorkflowID, "node", o.state.CurrentNodeID, "error", msg.Err)
		return nil
	}
	o.recorder.StepFinished(msg.Result.Status, msg.Elapsed)

	switch msg.Result.Status {
	case engine.StepCompleted:
		o.disarm()
		o.state.Completed = true
		o.clearSuspend()
		o.state.StatusMessage = statusComplete
		o.logger.Info("session complete", "workflow", msg.Result.Workflow)
		return nil
	case engine.StepSuspended:
		o.disarm()
		o.state.Suspended = true
		spec := o.spec
		if spec.HasChoices() {
			o.state.SuspendChoices = append([]agent.Choice(nil), spec.Choices...)
			o.state.SuspendPrompt = spec.PromptOr(defaultChoosing)
			o.state.StatusMessage = ""
		} else {
			o.state.SuspendChoices = nil
			o.state.SuspendPrompt = ""
			o.state.StatusMessage = msg.Result.Reason
		}
		return nil
	default:
		o.clearSuspend()
		o.state.StatusMessage = o.spec.Message
		if o.state.Mode == display.ModeAuto {
			return o.arm(o.spec.Delay())
		}
		return nil
	}
}

func (o *Orchestrator) clearSuspend() {
	o.state.Suspended = false
	o.state.SuspendChoices = nil
	o.state.SuspendPrompt = ""
}

// syncDisplay rebuilds the display state and caches the current node spec.
// It runs only when no step is in flight, so the engine lock is uncontended.
func (o *Orchestrator) syncDisplay() {
	snap := o.engine.Snapshot()
	if err := o.sync.Sync(&o.state, snap); err != nil {
		o.logger.Warn("display sync failed", "error", err)
	}
	spec, err := agent.DecodeSpec(snap.Node.Spec)
	if err != nil {
		o.logger.Warn("decode node spec", "node", snap.NodeID, "error", err)
	}
	o.spec = spec
}

// arm replaces any pending tick with a new one.
func (o *Orchestrator) arm(delay time.Duration) tea.Cmd {
	o.generation++
	o.armed = true
	o.armedDelay = delay
	return o.ticker(delay, AutoStepMsg{Generation: o.generation})
}

func (o *Orchestrator) disarm() {
	o.generation++
	o.armed = false
	o.armedDelay = 0
}
