package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"promptforge/internal/batch"
	"promptforge/internal/logging"
)

// eventMsg wraps one orchestrator progress event.
type eventMsg batch.Event

// runDoneMsg reports run completion with its error, if any.
type runDoneMsg struct{ err error }

// Model is the bubbletea model for a live batch run. It observes the
// queue and the orchestrator's event stream; the run itself is driven by
// the command layer.
type Model struct {
	queue   *batch.Queue
	control *batch.Control
	events  <-chan batch.Event
	done    <-chan error
	stop    context.CancelFunc

	spinner spinner.Model
	styles  Styles

	width    int
	started  int
	finished bool
	runErr   error
}

// New creates a progress model. done must yield exactly one value when
// the run ends; stop cancels the run context.
func New(queue *batch.Queue, orch *batch.Orchestrator, done <-chan error, stop context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		queue:   queue,
		control: orch.Control(),
		events:  orch.Events(),
		done:    done,
		stop:    stop,
		spinner: sp,
		styles:  DefaultStyles(),
	}
}

// Init starts the spinner and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.wait())
}

// wait blocks on the next progress event or run completion.
func (m Model) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-m.events:
			return eventMsg(ev)
		case err := <-m.done:
			return runDoneMsg{err: err}
		}
	}
}

// Update handles key presses, spinner ticks, and run progress.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "p":
			if !m.finished {
				logging.TUI("pause requested")
				m.control.Pause()
			}
			return m, nil
		case "r":
			if !m.finished {
				logging.TUI("resume requested")
				m.control.Resume()
			}
			return m, nil
		case "s", "ctrl+c", "q":
			if m.finished {
				return m, tea.Quit
			}
			logging.TUI("stop requested")
			// A paused run must be released to observe the stop.
			m.stop()
			m.control.Resume()
			return m, nil
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		if msg.Type == batch.EventRunStarted {
			m.started = msg.Total
		}
		return m, m.wait()

	case runDoneMsg:
		m.finished = true
		m.runErr = msg.err
		return m, tea.Quit
	}

	return m, nil
}

// Err returns the run error after the program exits.
func (m Model) Err() error {
	return m.runErr
}
