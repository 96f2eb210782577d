package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/reflex-coffee/internal/workflow"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate the bundled workflows plus the definitions in dir",
		Long: "Loads every workflow YAML file in dir (or the configured workflows.dir) on top of " +
			"the bundled coffee workflows and checks node, edge, guard and invoke references.",
		Args: cobra.MaximumNArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	var dir string
	if len(args) == 1 {
		dir = args[0]
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir = cfg.WorkflowsDir()
	}

	registry, err := workflow.LoadRegistry(dir)
	if err != nil {
		return exitError(exitValidation, "validation failed: %v", err)
	}

	out := cmd.OutOrStdout()
	for _, id := range registry.IDs() {
		wf, err := registry.Lookup(id)
		if err != nil {
			return exitError(exitRuntime, "%v", err)
		}
		fmt.Fprintf(out, "OK: %s (%d nodes, %d edges)\n", wf.ID, len(wf.Nodes), len(wf.Edges))
	}
	return nil
}
