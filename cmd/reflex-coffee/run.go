package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/reflex-coffee/internal/agent"
	"github.com/kingrea/reflex-coffee/internal/bridge"
	"github.com/kingrea/reflex-coffee/internal/display"
	"github.com/kingrea/reflex-coffee/internal/journal"
	"github.com/kingrea/reflex-coffee/internal/logging"
	"github.com/kingrea/reflex-coffee/internal/metrics"
	"github.com/kingrea/reflex-coffee/internal/session"
	"github.com/kingrea/reflex-coffee/internal/tui"
	"github.com/kingrea/reflex-coffee/internal/workflow"
	"github.com/kingrea/reflex-coffee/internal/workflow/engine"
)

const bridgeShutdownTimeout = 5 * time.Second

type runOptions struct {
	auto      bool
	delay     time.Duration
	noJournal bool
	bridge    bool
}

func bindRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().BoolVar(&opts.auto, "auto", false, "Start in auto mode")
	cmd.Flags().DurationVar(&opts.delay, "delay", 0, "Delay before the first auto step (overrides config)")
	cmd.Flags().BoolVar(&opts.noJournal, "no-journal", false, "Do not record the session in the journal")
	cmd.Flags().BoolVar(&opts.bridge, "bridge", false, "Serve the HTTP control bridge (overrides config)")
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the interactive session (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, opts)
		},
	}
	bindRunFlags(cmd, opts)
	return cmd
}

func runSession(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel())
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	logger, closer, err := logging.New(cfg.LogsDir(), level)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	defer closer.Close()

	registry, err := workflow.LoadRegistry(cfg.WorkflowsDir())
	if err != nil {
		return exitError(exitValidation, "load workflows: %v", err)
	}
	if _, err := registry.Lookup(cfg.RootWorkflow()); err != nil {
		return exitError(exitNotFound, "%v", err)
	}

	slot := agent.NewChoiceSlot()
	eng, err := engine.New(registry, agent.NewCoffeeAgent(slot, agent.WithLogger(logger)), engine.WithLogger(logger))
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}

	var eventOpts []display.EventLogOption
	if cfg.JournalEnabled() && !opts.noJournal {
		store, err := journal.Open(cfg.JournalPath())
		if err != nil {
			return exitError(exitRuntime, "%v", err)
		}
		defer store.Close()
		recorder := journal.NewRecorder(store, logger)
		logger = logger.With("session", recorder.SessionID())
		eventOpts = append(eventOpts, display.WithSink(recorder))
	}

	mode, _ := display.ParseMode(cfg.StartMode())
	if opts.auto {
		mode = display.ModeAuto
	}
	delay := cfg.AutoDelay()
	if cmd.Flags().Changed("delay") {
		if opts.delay < 0 {
			return exitError(exitValidation, "--delay must not be negative")
		}
		delay = opts.delay
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.New()
	orch, err := session.New(eng, slot,
		display.NewSynchronizer(registry, cfg.RootWorkflow()),
		display.NewEventLog(eventOpts...),
		session.WithLogger(logger),
		session.WithRecorder(rec),
		session.WithStartMode(mode),
		session.WithAutoDelay(delay),
		session.WithContext(ctx),
	)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}

	if noColor(cmd) {
		tui.DisableColor()
	}
	board := bridge.NewStateBoard()
	app := tui.NewApp(orch, cfg.RootWorkflow(),
		tui.WithStateBoard(board),
		tui.WithEventWindow(cfg.EventWindow()),
		tui.WithLogger(logger),
	)
	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	settings, err := bridge.SettingsFromConfig(cfg)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	if cmd.Flags().Changed("bridge") {
		settings.Enabled = opts.bridge
	}
	if settings.Enabled {
		server := bridge.NewServer(settings, program, board,
			bridge.WithMetrics(rec.Handler()),
			bridge.WithLogger(logger),
		)
		if err := server.Start(ctx); err != nil {
			return exitError(exitRuntime, "%v", err)
		}
		defer shutdownBridge(server, logger)
	}

	logger.Info("session starting", "workflow", cfg.RootWorkflow(), "mode", mode, "project", cfg.ProjectDir)
	if _, err := program.Run(); err != nil && !interrupted(ctx, err) {
		return exitError(exitRuntime, "run tui: %v", err)
	}
	if err := app.Err(); err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	return nil
}

func interrupted(ctx context.Context, err error) bool {
	return errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil
}

func shutdownBridge(server *bridge.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), bridgeShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("bridge shutdown failed", "error", err)
	}
}
