package main

import (
	"github.com/spf13/cobra"

	"github.com/kingrea/reflex-coffee/internal/journal"
	"github.com/kingrea/reflex-coffee/internal/report"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [session]",
		Short: "List journaled sessions, or print the events of one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if len(args) == 0 {
		sessions, err := store.Sessions(ctx)
		if err != nil {
			return exitError(exitRuntime, "%v", err)
		}
		return printMarkdown(cmd.OutOrStdout(), report.Sessions(sessions), noColor(cmd))
	}

	records, err := store.List(ctx, args[0])
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	if len(records) == 0 {
		return exitError(exitNotFound, "session %q not found", args[0])
	}
	return printMarkdown(cmd.OutOrStdout(), report.Events(args[0], records), noColor(cmd))
}
