// Command reflex-coffee steps a hierarchical coffee-shop workflow in the
// terminal, one engine transition per key press or on an auto timer.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/reflex-coffee/internal/config"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}
	rootCmd := &cobra.Command{
		Use:   "reflex-coffee",
		Short: "Step through a coffee order workflow",
		Long: "reflex-coffee runs a stack-based workflow engine in a terminal UI. " +
			"Press Enter to step, Tab to toggle auto mode, and pick choices when the barista asks.",
		Args: cobra.NoArgs,
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, opts)
		},
	}
	rootCmd.PersistentFlags().String("dir", ".", "Project directory holding .reflex/")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	bindRunFlags(rootCmd, opts)

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("reflex-coffee version %s\n", version))

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newHistoryCmd())
	return rootCmd
}

// loadConfig resolves --dir, creates .reflex/ when missing and reads its
// config.yaml.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, _ := cmd.Flags().GetString("dir")
	projectDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, exitError(exitRuntime, "resolve project dir: %v", err)
	}
	if err := config.InitReflexDir(projectDir); err != nil {
		return nil, exitError(exitRuntime, "init %s: %v", config.ReflexDir, err)
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, exitError(exitValidation, "%v", err)
	}
	return cfg, nil
}

func noColor(cmd *cobra.Command) bool {
	plain, _ := cmd.Flags().GetBool("no-color")
	return plain
}
