package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/reflex-coffee/internal/agent"
	"github.com/kingrea/reflex-coffee/internal/bridge"
	"github.com/kingrea/reflex-coffee/internal/display"
	"github.com/kingrea/reflex-coffee/internal/session"
	"github.com/kingrea/reflex-coffee/internal/workflow"
	"github.com/kingrea/reflex-coffee/internal/workflow/engine"
)

func TestInitRendersStartState(t *testing.T) {
	app := startTestApp(t)
	view := app.View()
	for _, want := range []string{
		"☕ reflex-coffee",
		"v0.1.0",
		"◉ GREET ← current",
		"○ TAKE_ORDER",
		"(empty)",
		"[0] coffee-order → GREET ← active",
		"node:enter GREET (coffee-order)",
		"Press Enter to step",
	} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected view to contain %q\n%s", want, view)
		}
	}
}

func TestEnterStepsAndChoiceCursorClamps(t *testing.T) {
	app := startTestApp(t)
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	state := app.session.State()
	if !state.Suspended || state.CurrentNodeID != "TAKE_ORDER" {
		t.Fatalf("expected suspension at TAKE_ORDER, got %+v", state.CurrentNodeID)
	}
	view := app.View()
	if !strings.Contains(view, "What drink would you like?") || !strings.Contains(view, "❯ Espresso") {
		t.Fatalf("expected prompt with first choice highlighted\n%s", view)
	}

	for i := 0; i < 3; i++ {
		app = press(t, app, tea.KeyMsg{Type: tea.KeyDown})
	}
	if app.cursor != 2 {
		t.Fatalf("expected cursor clamped at 2, got %d", app.cursor)
	}
	app = press(t, app, tea.KeyMsg{Type: tea.KeyUp})
	if !strings.Contains(app.View(), "❯ Drip Coffee") {
		t.Fatalf("expected Drip Coffee highlighted\n%s", app.View())
	}

	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	state = app.session.State()
	if state.CurrentNodeID != "CHOOSE_SIZE" || state.Suspended {
		t.Fatalf("expected advance to CHOOSE_SIZE, got %s suspended=%v", state.CurrentNodeID, state.Suspended)
	}
	if app.cursor != 0 {
		t.Fatalf("expected cursor reset after selection, got %d", app.cursor)
	}
	if !strings.Contains(app.View(), "drink_type: drip") {
		t.Fatalf("expected blackboard to show the choice\n%s", app.View())
	}
}

func TestSubWorkflowRendering(t *testing.T) {
	app := startTestApp(t)
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	for _, value := range []string{"tea", "small", "oat"} {
		app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
		app = send(t, app, bridge.ChoiceCommand{Value: value})
	}
	if got := app.session.State().CurrentNodeID; got != "PREP_TEA" {
		t.Fatalf("expected PREP_TEA, got %s", got)
	}
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})

	view := app.View()
	for _, want := range []string{
		"◉ PREP_TEA ← current",
		"├ ● BOIL",
		"├ ◉ STEEP ← current",
		"├ ○ TEA_DONE",
		"[1] make-tea → STEEP ← active",
		"[0] coffee-order → PREP_TEA",
		"boil_status: done ← [child]",
		"workflow:push → make-tea",
	} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected view to contain %q\n%s", want, view)
		}
	}
}

func TestAutoModeWithBridgeRunsToCompletion(t *testing.T) {
	board := bridge.NewStateBoard()
	app := startTestApp(t, WithStateBoard(board))
	app = press(t, app, tea.KeyMsg{Type: tea.KeyTab})
	state := app.session.State()
	if state.Mode != display.ModeAuto || !state.Suspended || state.CurrentNodeID != "TAKE_ORDER" {
		t.Fatalf("expected auto mode to stop at TAKE_ORDER, got %s mode=%s", state.CurrentNodeID, state.Mode)
	}
	if app.animating {
		t.Fatalf("spinner must stop while waiting for a choice")
	}

	app = send(t, app, bridge.StepCommand{})
	if got := app.session.State().CurrentNodeID; got != "TAKE_ORDER" {
		t.Fatalf("bridge step must be ignored while choosing, moved to %s", got)
	}
	app = send(t, app, bridge.ChoiceCommand{Index: 1, ByIndex: true})
	app = send(t, app, bridge.ChoiceCommand{Value: "large"})
	app = send(t, app, bridge.ChoiceCommand{Value: "whole"})

	state = app.session.State()
	if !state.Completed {
		t.Fatalf("expected auto mode to finish the order, stuck at %s", state.CurrentNodeID)
	}
	if !strings.Contains(app.View(), "✨ Order complete! Press Q to quit.") {
		t.Fatalf("expected completion banner\n%s", app.View())
	}
	published, ok := board.Latest()
	if !ok || !published.Completed {
		t.Fatalf("expected completed state on the board")
	}
	result, _ := engine.StringValue(engine.NewBlackboard(published.BlackboardEntries...), "drink_result")
	if result != "large drip with whole milk" {
		t.Fatalf("unexpected drink result %q", result)
	}
}

func TestBridgeModeCommand(t *testing.T) {
	app := startTestApp(t)
	app = send(t, app, bridge.ModeCommand{Mode: display.ModeStep})
	if app.session.Mode() != display.ModeStep {
		t.Fatalf("setting the current mode must be a no-op")
	}
	app = send(t, app, bridge.ModeCommand{})
	if app.session.Mode() != display.ModeAuto {
		t.Fatalf("empty mode must toggle")
	}
}

func TestQuitShutsDown(t *testing.T) {
	app := startTestApp(t)
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	if app.View() != "" {
		t.Fatalf("expected empty view after quit")
	}
}

func TestStartFailureQuits(t *testing.T) {
	app := newTestApp(t, "no-such-workflow")
	cmd := app.Init()
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	if app.Err() == nil {
		t.Fatalf("expected start error")
	}
	if !strings.Contains(app.View(), "Error:") {
		t.Fatalf("expected error view\n%s", app.View())
	}
}

func newTestApp(t *testing.T, rootID string, opts ...AppOption) *App {
	t.Helper()
	DisableColor()
	registry, err := workflow.LoadRegistry("")
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	slot := agent.NewChoiceSlot()
	eng, err := engine.New(registry, agent.NewCoffeeAgent(slot))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	immediate := func(_ time.Duration, msg tea.Msg) tea.Cmd {
		return func() tea.Msg { return msg }
	}
	orch, err := session.New(eng, slot, display.NewSynchronizer(registry, workflow.RootWorkflowID), display.NewEventLog(),
		session.WithTicker(immediate))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return NewApp(orch, rootID, opts...)
}

func startTestApp(t *testing.T, opts ...AppOption) *App {
	t.Helper()
	app := newTestApp(t, workflow.RootWorkflowID, opts...)
	return runCommands(t, app, app.Init())
}

func press(t *testing.T, app *App, msg tea.KeyMsg) *App {
	t.Helper()
	return send(t, app, msg)
}

func send(t *testing.T, app *App, msg tea.Msg) *App {
	t.Helper()
	model, cmd := app.Update(msg)
	return runCommands(t, model, cmd)
}

// runCommands drains cmd and everything it produces, breadth first, feeding
// each message back through Update.
func runCommands(t *testing.T, model tea.Model, cmd tea.Cmd) *App {
	t.Helper()
	app, ok := model.(*App)
	if !ok {
		t.Fatalf("unexpected model type: %T", model)
	}
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 500 {
			t.Fatalf("command queue did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		msg := next()
		if msg == nil {
			continue
		}
		if batch, ok := msg.(tea.BatchMsg); ok {
			queue = append(queue, batch...)
			continue
		}
		nextModel, nextCmd := app.Update(msg)
		app, ok = nextModel.(*App)
		if !ok {
			t.Fatalf("unexpected model type: %T", nextModel)
		}
		queue = append(queue, nextCmd)
	}
	return app
}
