// Package tui renders live batch-run progress with bubbletea.
package tui

import "github.com/charmbracelet/lipgloss"

// Semantic colors, shared with the exporter's terminal preview.
var (
	colorSuccess = lipgloss.Color("#8BC34A")
	colorError   = lipgloss.Color("#e53935")
	colorWarn    = lipgloss.Color("#FFC107")
	colorInfo    = lipgloss.Color("#2196F3")
	colorMuted   = lipgloss.Color("#7a8699")
)

// Styles holds the lipgloss styles used by the progress view.
type Styles struct {
	Title      lipgloss.Style
	Idle       lipgloss.Style
	Processing lipgloss.Style
	Success    lipgloss.Style
	Error      lipgloss.Style
	Paused     lipgloss.Style
	Help       lipgloss.Style
	Source     lipgloss.Style
}

// DefaultStyles returns the standard progress view styling.
func DefaultStyles() Styles {
	return Styles{
		Title:      lipgloss.NewStyle().Bold(true),
		Idle:       lipgloss.NewStyle().Foreground(colorMuted),
		Processing: lipgloss.NewStyle().Foreground(colorInfo),
		Success:    lipgloss.NewStyle().Foreground(colorSuccess),
		Error:      lipgloss.NewStyle().Foreground(colorError),
		Paused:     lipgloss.NewStyle().Foreground(colorWarn).Bold(true),
		Help:       lipgloss.NewStyle().Foreground(colorMuted),
		Source:     lipgloss.NewStyle(),
	}
}
