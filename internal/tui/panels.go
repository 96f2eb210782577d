package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/reflex-coffee/internal/display"
)

const (
	appTitle   = "☕ reflex-coffee"
	appVersion = "v0.1.0"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	panelHeadStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	panelBox       = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	frameBox       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444"))

	currentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	visitedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	unvisitedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
	keyStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#4FD1C5"))
	childStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#D53F8C"))
	promptStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	completeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#68D391"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))

	eventStyles = map[string]lipgloss.Style{
		"node:enter":       lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		"node:exit":        lipgloss.NewStyle().Foreground(lipgloss.Color("#777777")),
		"edge:traverse":    lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")),
		"workflow:push":    lipgloss.NewStyle().Foreground(lipgloss.Color("#D53F8C")),
		"workflow:pop":     lipgloss.NewStyle().Foreground(lipgloss.Color("#D53F8C")),
		"blackboard:write": lipgloss.NewStyle().Foreground(lipgloss.Color("#4FD1C5")),
		"engine:complete":  lipgloss.NewStyle().Foreground(lipgloss.Color("#68D391")).Bold(true),
		"engine:suspend":   lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")),
		"engine:error":     lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
	defaultEventStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
)

func statusIcon(status display.NodeStatus) (string, lipgloss.Style) {
	switch status {
	case display.NodeCurrent:
		return "◉", currentStyle
	case display.NodeVisited:
		return "●", visitedStyle
	default:
		return "○", unvisitedStyle
	}
}

func renderHeader(width int) string {
	left := titleStyle.Render(appTitle)
	right := dimStyle.Render(appVersion)
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return " " + left + strings.Repeat(" ", gap) + right
}

func renderGraph(nodes []display.NodeDisplayInfo) string {
	lines := []string{panelHeadStyle.Render("Workflow Graph"), ""}
	for _, node := range nodes {
		icon, style := statusIcon(node.Status)
		indent := ""
		if node.Depth > 0 {
			indent = "  ├ "
		}
		line := style.Render(fmt.Sprintf("%s%s %s", indent, icon, node.ID))
		if node.Status == display.NodeCurrent {
			line += dimStyle.Render(" ← current")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderBlackboard(state display.State) string {
	lines := []string{panelHeadStyle.Render("Blackboard"), ""}
	entries := state.LatestBlackboard()
	if len(entries) == 0 {
		lines = append(lines, dimStyle.Render("(empty)"))
		return strings.Join(lines, "\n")
	}
	for _, entry := range entries {
		line := keyStyle.Render(entry.Key) + ": " + fmt.Sprint(entry.Value)
		if entry.Source.StackDepth > 0 {
			line += childStyle.Render(" ← [child]")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderStack(state display.State) string {
	lines := []string{panelHeadStyle.Render("Stack"), ""}
	if state.CurrentWorkflowID == "" {
		lines = append(lines, dimStyle.Render("(no active workflow)"))
		return strings.Join(lines, "\n")
	}
	depth := len(state.Stack)
	active := currentStyle.Render(fmt.Sprintf("[%d] %s → %s", depth, state.CurrentWorkflowID, state.CurrentNodeID))
	lines = append(lines, active+dimStyle.Render(" ← active"))
	for i, frame := range state.Stack {
		lines = append(lines, unvisitedStyle.Render(fmt.Sprintf("[%d] %s → %s", depth-1-i, frame.WorkflowID, frame.CurrentNodeID)))
	}
	return strings.Join(lines, "\n")
}

func renderEvents(events []display.EventLogEntry, window int) string {
	lines := []string{panelHeadStyle.Render("Events")}
	if len(events) == 0 {
		lines = append(lines, dimStyle.Render("(no events yet)"))
		return strings.Join(lines, "\n")
	}
	if window > 0 && len(events) > window {
		events = events[len(events)-window:]
	}
	for _, evt := range events {
		style, ok := eventStyles[evt.Type]
		if !ok {
			style = defaultEventStyle
		}
		lines = append(lines, style.Render(evt.Type)+" "+dimStyle.Render(evt.Message))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderInput(state display.State) string {
	if state.Completed {
		return completeStyle.Render("✨ Order complete! Press Q to quit.")
	}
	var lines []string
	if choosing(state) {
		prompt := state.SuspendPrompt
		if prompt == "" {
			prompt = "Choose:"
		}
		lines = append(lines, promptStyle.Render(prompt))
		cursor := clamp(a.cursor, len(state.SuspendChoices))
		for i, choice := range state.SuspendChoices {
			if i == cursor {
				lines = append(lines, currentStyle.Render("❯ "+choice.Label))
			} else {
				lines = append(lines, "  "+choice.Label)
			}
		}
	} else if state.Mode == display.ModeAuto && !state.Suspended {
		lines = append(lines, a.spinner.View()+" Auto-stepping...")
	} else {
		lines = append(lines, fmt.Sprintf("Mode: %s", state.Mode))
	}
	lines = append(lines, a.help.View(a.keys))
	if !choosing(state) && state.StatusMessage != "" {
		lines = append(lines, statusStyle.Render(state.StatusMessage))
	}
	return strings.Join(lines, "\n")
}

func choosing(state display.State) bool {
	return state.Suspended && len(state.SuspendChoices) > 0
}

func clamp(index, n int) int {
	if n == 0 || index < 0 {
		return 0
	}
	if index >= n {
		return n - 1
	}
	return index
}
