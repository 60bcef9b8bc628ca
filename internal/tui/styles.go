package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/jaegis/internal/diagnostics"
	"github.com/kingrea/jaegis/internal/progress"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).MarginBottom(1)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	selectStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
)

// StatusStyle picks the label style for a workflow status.
func StatusStyle(s progress.Status) lipgloss.Style {
	switch s {
	case progress.StatusCompleted, progress.StatusHandedOff:
		return doneStyle
	case progress.StatusFailed:
		return errorStyle
	case progress.StatusStopped:
		return warnStyle
	case progress.StatusRunning:
		return titleStyle
	default:
		return pendingStyle
	}
}

// SeverityStyle picks the label style for an issue severity.
func SeverityStyle(s diagnostics.Severity) lipgloss.Style {
	switch s {
	case diagnostics.SeverityCritical:
		return errorStyle
	case diagnostics.SeverityWarning:
		return warnStyle
	default:
		return detailStyle
	}
}
