package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.AdaptiveColor{Light: "#5a41f5", Dark: "#8f7cff"}
	subtle = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	danger = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF6B5E"}

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	keyStyle   = lipgloss.NewStyle().Foreground(subtle).Width(20)
	valueStyle = lipgloss.NewStyle()
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(danger)
)

type Row struct {
	Key   string
	Value string
}

// Table renders rows as an aligned key/value box under title. Empty values
// are skipped.
func Table(title string, rows []Row) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r.Value) == "" {
			continue
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, keyStyle.Render(r.Key), valueStyle.Render(r.Value)))
	}
	body := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), strings.Join(lines, "\n"))
	return boxStyle.Render(body)
}

func Error(msg string) string {
	return errorStyle.Render("✗ " + msg)
}
