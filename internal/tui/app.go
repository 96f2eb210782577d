// internal/tui/app.go
//
// This is the main TUI (Terminal User Interface) for reflex-coffee.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The session orchestrator owns every state transition. The App only maps
// keys and bridge commands onto orchestrator calls and renders the result.

package tui

import (
	"log/slog"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/kingrea/reflex-coffee/internal/bridge"
	"github.com/kingrea/reflex-coffee/internal/display"
	"github.com/kingrea/reflex-coffee/internal/logging"
	"github.com/kingrea/reflex-coffee/internal/session"
)

const defaultWidth = 100

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithStateBoard publishes the display state after every update so the
// control bridge can serve it.
func WithStateBoard(board *bridge.StateBoard) AppOption {
	return func(a *App) {
		a.board = board
	}
}

// WithLogger routes UI diagnostics to logger.
func WithLogger(logger *slog.Logger) AppOption {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithEventWindow sets how many event log lines are shown.
func WithEventWindow(n int) AppOption {
	return func(a *App) {
		if n > 0 {
			a.eventWindow = n
		}
	}
}

// DisableColor forces the ASCII profile for every lipgloss style.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	session     *session.Orchestrator
	rootID      string
	board       *bridge.StateBoard
	logger      *slog.Logger
	eventWindow int

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	// cursor is the highlighted choice while a prompt is open
	cursor    int
	animating bool
	err       error
	quitting  bool

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// NewApp creates an App that will start orch at rootWorkflowID.
func NewApp(orch *session.Orchestrator, rootWorkflowID string, opts ...AppOption) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = currentStyle
	app := &App{
		session:     orch,
		rootID:      rootWorkflowID,
		logger:      logging.NewNop(),
		eventWindow: display.DefaultEventWindow,
		keys:        defaultKeyMap(),
		help:        help.New(),
		spinner:     sp,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Err reports a session start failure.
func (a *App) Err() error {
	return a.err
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	cmd, err := a.session.Start(a.rootID)
	if err != nil {
		a.err = err
		a.logger.Error("session start failed", "workflow", a.rootID, "error", err)
		return tea.Quit
	}
	return a.afterUpdate(cmd)
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, ok := a.session.Update(msg); ok {
		if !choosing(a.session.State()) {
			a.cursor = 0
		}
		return a, a.afterUpdate(cmd)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		return a, nil

	case spinner.TickMsg:
		if !a.animating {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		return a, a.afterUpdate(a.handleKey(msg))

	case bridge.StepCommand:
		state := a.session.State()
		if state.Mode == display.ModeStep && !choosing(state) {
			return a, a.afterUpdate(a.session.RequestStep())
		}
		return a, nil

	case bridge.ModeCommand:
		if msg.Mode != "" && msg.Mode == a.session.Mode() {
			return a, nil
		}
		return a, a.afterUpdate(a.session.ToggleMode())

	case bridge.ChoiceCommand:
		a.cursor = 0
		if msg.ByIndex {
			return a, a.afterUpdate(a.session.SubmitChoiceIndex(msg.Index))
		}
		return a, a.afterUpdate(a.session.SubmitChoice(msg.Value))
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	if a.err != nil {
		return tea.Quit
	}
	state := a.session.State()
	a.keys.sync(choosing(state), state.Mode == display.ModeStep, state.Completed)

	switch {
	case key.Matches(msg, a.keys.Quit):
		a.quitting = true
		a.session.Shutdown()
		a.logger.Info("session closed", "completed", state.Completed)
		return tea.Quit
	case key.Matches(msg, a.keys.Up):
		a.cursor = clamp(a.cursor-1, len(state.SuspendChoices))
	case key.Matches(msg, a.keys.Down):
		a.cursor = clamp(a.cursor+1, len(state.SuspendChoices))
	case key.Matches(msg, a.keys.Select):
		index := clamp(a.cursor, len(state.SuspendChoices))
		a.cursor = 0
		return a.session.SubmitChoiceIndex(index)
	case key.Matches(msg, a.keys.Step):
		return a.session.RequestStep()
	case key.Matches(msg, a.keys.Toggle):
		return a.session.ToggleMode()
	}
	return nil
}

// afterUpdate publishes the new state and starts or stops the spinner.
func (a *App) afterUpdate(cmd tea.Cmd) tea.Cmd {
	state := a.session.State()
	a.keys.sync(choosing(state), state.Mode == display.ModeStep, state.Completed)
	if a.board != nil {
		a.board.Publish(state)
	}
	stepping := state.Mode == display.ModeAuto && !state.Suspended && !state.Completed
	switch {
	case stepping && !a.animating:
		a.animating = true
		return tea.Batch(cmd, a.spinner.Tick)
	case !stepping:
		a.animating = false
	}
	return cmd
}

// View renders the whole screen.
func (a *App) View() string {
	if a.quitting {
		return ""
	}
	width := a.width
	if width <= 0 {
		width = defaultWidth
	}
	if a.err != nil {
		return frameBox.Width(width - 2).Render(renderHeader(width-2) + "\n\n" +
			eventStyles["engine:error"].Render("Error: "+a.err.Error()) + "\n" +
			dimStyle.Render("Press any key to exit."))
	}
	state := a.session.State()
	inner := width - 2
	half := inner / 2

	graph := panelBox.Width(half - 2).Render(renderGraph(state.NodeDisplayList))
	right := lipgloss.JoinVertical(lipgloss.Left,
		panelBox.Width(inner-half-2).Render(renderBlackboard(state)),
		panelBox.Width(inner-half-2).Render(renderStack(state)),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, graph, right)
	events := panelBox.Width(inner - 2).Render(renderEvents(state.Events, a.eventWindow))
	input := panelBox.Width(inner - 2).Render(a.renderInput(state))

	return frameBox.Width(inner).Render(lipgloss.JoinVertical(lipgloss.Left,
		renderHeader(inner),
		body,
		events,
		input,
	))
}
