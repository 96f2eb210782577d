package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/reflex-coffee/internal/report"
	"github.com/kingrea/reflex-coffee/internal/workflow"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph [workflow]",
		Short: "Describe a workflow (or all of them) as rendered markdown",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGraph,
	}
}

func runGraph(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	registry, err := workflow.LoadRegistry(cfg.WorkflowsDir())
	if err != nil {
		return exitError(exitValidation, "load workflows: %v", err)
	}

	ids := registry.IDs()
	if len(args) == 1 {
		ids = []string{args[0]}
	}
	docs := make([]string, 0, len(ids))
	for _, id := range ids {
		wf, err := registry.Lookup(id)
		if err != nil {
			return exitError(exitNotFound, "%v", err)
		}
		docs = append(docs, report.Workflow(wf))
	}
	return printMarkdown(cmd.OutOrStdout(), strings.Join(docs, "\n---\n\n"), noColor(cmd))
}

func printMarkdown(w io.Writer, markdown string, plain bool) error {
	out, err := report.Render(markdown, plain)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	_, err = fmt.Fprint(w, out)
	return err
}
