package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/reflex-coffee/internal/config"
	"github.com/kingrea/reflex-coffee/internal/display"
	"github.com/kingrea/reflex-coffee/internal/journal"
)

// executeCommand runs a fresh root command with args and captures stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected *ExitError, got %T: %v", err, err)
	assert.Equal(t, code, exitErr.Code, exitErr.Message)
}

func TestValidateBundledWorkflows(t *testing.T) {
	dir := t.TempDir()
	out, err := executeCommand(t, "validate", "--dir", dir)
	require.NoError(t, err)
	for _, id := range []string{"coffee-order", "make-drip", "make-espresso", "make-tea"} {
		assert.Contains(t, out, "OK: "+id)
	}
	assert.FileExists(t, filepath.Join(dir, config.ReflexDir, "config.yaml"))
}

func TestValidateReportsBrokenDefinitions(t *testing.T) {
	defs := t.TempDir()
	doc := []byte(`
id: broken
entry: A
nodes:
  A: { invokes: { workflowId: ghost } }
`)
	require.NoError(t, os.WriteFile(filepath.Join(defs, "broken.yaml"), doc, 0o644))

	_, err := executeCommand(t, "validate", defs)
	requireExitCode(t, err, exitValidation)
}

func TestInvalidProjectConfigIsAValidationError(t *testing.T) {
	dir := t.TempDir()
	reflexDir := filepath.Join(dir, config.ReflexDir)
	require.NoError(t, os.MkdirAll(reflexDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(reflexDir, "config.yaml"),
		[]byte("session:\n  start_mode: sideways\n"), 0o644))

	_, err := executeCommand(t, "graph", "--dir", dir)
	requireExitCode(t, err, exitValidation)
}

func TestGraphRendersOneWorkflow(t *testing.T) {
	out, err := executeCommand(t, "graph", "make-tea", "--dir", t.TempDir(), "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "BOIL")
	assert.Contains(t, out, "STEEP")
	assert.NotContains(t, out, "TAKE_ORDER")
}

func TestGraphUnknownWorkflow(t *testing.T) {
	_, err := executeCommand(t, "graph", "cold-brew", "--dir", t.TempDir(), "--no-color")
	requireExitCode(t, err, exitNotFound)
}

func TestHistoryListsAndPrintsSessions(t *testing.T) {
	dir := t.TempDir()
	out, err := executeCommand(t, "history", "--dir", dir, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions recorded.")

	store, err := journal.Open(filepath.Join(dir, config.ReflexDir, "journal.db"))
	require.NoError(t, err)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "s1", display.EventLogEntry{ID: 0, Type: "node:enter", Message: "GREET (coffee-order)", Timestamp: base}))
	require.NoError(t, store.Append(ctx, "s1", display.EventLogEntry{ID: 1, Type: "engine:complete", Message: "done", Timestamp: base.Add(time.Minute)}))
	require.NoError(t, store.Close())

	out, err = executeCommand(t, "history", "--dir", dir, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "s1")

	out, err = executeCommand(t, "history", "s1", "--dir", dir, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "node:enter")
	assert.Contains(t, out, "engine:complete")

	_, err = executeCommand(t, "history", "missing", "--dir", dir, "--no-color")
	requireExitCode(t, err, exitNotFound)
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"run", "validate", "graph", "history"} {
		assert.True(t, names[want], "missing %s subcommand", want)
	}
	for _, cmd := range []*cobra.Command{root, findCommand(t, root, "run")} {
		for _, flag := range []string{"auto", "delay", "no-journal", "bridge"} {
			assert.NotNil(t, cmd.Flags().Lookup(flag), "%s lacks --%s", cmd.Name(), flag)
		}
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("dir"))
	assert.NotNil(t, root.PersistentFlags().Lookup("no-color"))
}

func findCommand(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	cmd, _, err := root.Find([]string{name})
	require.NoError(t, err)
	return cmd
}
