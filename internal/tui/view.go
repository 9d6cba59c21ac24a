package tui

import (
	"fmt"
	"strings"

	"promptforge/internal/batch"
)

const maxSourcePreview = 48

// View renders the queue with one status line per item.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("batch run"))
	if m.control.Paused() {
		b.WriteString("  ")
		b.WriteString(m.styles.Paused.Render("[paused]"))
	}
	b.WriteString("\n\n")

	for _, item := range m.queue.Items() {
		b.WriteString(m.renderItem(item))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.finished {
		b.WriteString(m.styles.Help.Render("run finished, press q to exit"))
	} else {
		b.WriteString(m.styles.Help.Render("p pause · r resume · s stop"))
	}
	b.WriteString("\n")

	return b.String()
}

func (m Model) renderItem(item batch.WorkItem) string {
	var marker, status string
	switch item.Status {
	case batch.StatusProcessing:
		marker = m.spinner.View()
		status = m.styles.Processing.Render(fmt.Sprintf("round %d, %d output(s)", item.RoundsCompleted+1, len(item.Outputs)))
	case batch.StatusSuccess:
		marker = m.styles.Success.Render("✓")
		status = m.styles.Success.Render(fmt.Sprintf("%d output(s)", len(item.Outputs)))
	case batch.StatusError:
		marker = m.styles.Error.Render("✗")
		status = m.styles.Error.Render(item.Error)
	default:
		marker = m.styles.Idle.Render("·")
		status = m.styles.Idle.Render("waiting")
	}

	return fmt.Sprintf("  %s %s  %s", marker, m.styles.Source.Render(sourcePreview(item.SourceText)), status)
}

// sourcePreview truncates source text to one short line.
func sourcePreview(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > maxSourcePreview {
		return string(runes[:maxSourcePreview-1]) + "…"
	}
	return s
}
