// Package report renders workflow definitions and journaled sessions as
// markdown for the graph and history commands.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/kingrea/reflex-coffee/internal/agent"
	"github.com/kingrea/reflex-coffee/internal/display"
	"github.com/kingrea/reflex-coffee/internal/journal"
	"github.com/kingrea/reflex-coffee/internal/workflow"
)

// DefaultWrap is the word-wrap width for rendered output.
const DefaultWrap = 100

// Workflow describes wf as markdown: header, nodes in display order, edges.
func Workflow(wf workflow.Workflow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", wf.Title())
	if desc := strings.TrimSpace(wf.Description); desc != "" {
		fmt.Fprintf(&b, "%s\n\n", desc)
	}
	fmt.Fprintf(&b, "- **ID:** `%s`\n- **Entry:** `%s`\n\n", wf.ID, wf.Entry)

	b.WriteString("## Nodes\n\n")
	b.WriteString("| Node | Kind | Description | Invokes |\n|---|---|---|---|\n")
	for _, id := range display.BreadthFirst(wf) {
		node, _ := wf.Node(id)
		kind := "?"
		if spec, err := agent.DecodeSpec(node.Spec); err == nil {
			kind = string(spec.Kind())
		}
		invokes := ""
		if node.Invokes != nil {
			invokes = "`" + node.Invokes.WorkflowID + "`"
			for _, m := range node.Invokes.ReturnMap {
				invokes += fmt.Sprintf(" (%s ← %s)", m.ParentKey, m.ChildKey)
			}
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", id, kind, cell(node.Description), invokes)
	}

	if len(wf.Edges) > 0 {
		b.WriteString("\n## Edges\n\n")
		b.WriteString("| Edge | From | To | Event | Guard |\n|---|---|---|---|---|\n")
		for _, edge := range wf.Edges {
			fmt.Fprintf(&b, "| `%s` | `%s` | `%s` | %s | %s |\n", edge.ID, edge.From, edge.To, cell(edge.Event), guard(edge.Guard))
		}
	}
	return b.String()
}

// Sessions lists journaled sessions.
func Sessions(sessions []journal.Session) string {
	var b strings.Builder
	b.WriteString("# Sessions\n\n")
	if len(sessions) == 0 {
		b.WriteString("_No sessions recorded._\n")
		return b.String()
	}
	b.WriteString("| Session | Started | Duration | Events |\n|---|---|---|---|\n")
	for _, s := range sessions {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %d |\n",
			s.ID, s.Started.Local().Format(time.DateTime), s.Ended.Sub(s.Started).Round(time.Millisecond), s.Events)
	}
	return b.String()
}

// Events prints the event log of one session.
func Events(sessionID string, records []journal.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session `%s`\n\n", sessionID)
	if len(records) == 0 {
		b.WriteString("_No events recorded._\n")
		return b.String()
	}
	b.WriteString("| # | Time | Event | Detail |\n|---|---|---|---|\n")
	for _, r := range records {
		fmt.Fprintf(&b, "| %d | %s | `%s` | %s |\n", r.Seq, r.Time.Local().Format("15:04:05.000"), r.Type, cell(r.Message))
	}
	return b.String()
}

// Render turns markdown into terminal output. plain selects a style without
// colors, for --no-color and non-terminal output.
func Render(markdown string, plain bool) (string, error) {
	style := glamour.WithAutoStyle()
	if plain {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(DefaultWrap))
	if err != nil {
		return "", fmt.Errorf("report: renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("report: render: %w", err)
	}
	return out, nil
}

func guard(g *workflow.Guard) string {
	if g == nil {
		return ""
	}
	switch g.Type {
	case workflow.GuardExists, workflow.GuardNotExists:
		return fmt.Sprintf("%s `%s`", g.Type, g.Key)
	default:
		return fmt.Sprintf("`%s` %s `%v`", g.Key, g.Type, g.Value)
	}
}

func cell(value string) string {
	return strings.ReplaceAll(strings.TrimSpace(value), "|", `\|`)
}
