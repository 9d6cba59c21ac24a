// Package batch holds the work queue and the orchestrator that drives
// queued items through generation rounds.
package batch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a WorkItem.
type Status int

const (
	// StatusIdle - created or re-queued, not yet processed.
	StatusIdle Status = iota
	// StatusProcessing - currently owned by a run.
	StatusProcessing
	// StatusSuccess - the last run produced at least one output.
	StatusSuccess
	// StatusError - the last run failed or produced nothing.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusProcessing:
		return "processing"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ResultUnit is one generated variation belonging to a WorkItem.
type ResultUnit struct {
	// Primary and Secondary are the two renderings parsed from one model
	// response; Secondary is empty when parsing found no counterpart.
	Primary   string
	Secondary string
	CreatedAt time.Time
}

// Overrides optionally shadow global run configuration for one item.
// Zero values mean "use the run configuration".
type Overrides struct {
	Instruction     string
	OutputsPerRound int
	Rounds          int
}

// WorkItem is a single unit of work submitted by the user.
type WorkItem struct {
	// ID is assigned at creation and immutable.
	ID string
	// SourceText is the user-supplied input; mutated only by explicit
	// user edit.
	SourceText string

	Status Status
	// Outputs is append-only during a run; reset only by an explicit
	// regenerate.
	Outputs []ResultUnit
	// RoundsCompleted counts successfully applied generation rounds.
	RoundsCompleted int
	// Error holds the last failure message; cleared when status leaves
	// StatusError.
	Error string

	Overrides Overrides

	CreatedAt time.Time
}

// NewWorkItem creates an Idle item for the given source text.
func NewWorkItem(sourceText string) WorkItem {
	return WorkItem{
		ID:         uuid.NewString(),
		SourceText: sourceText,
		Status:     StatusIdle,
		CreatedAt:  time.Now(),
	}
}

// Clone returns a deep copy; Outputs are never shared between copies.
func (w WorkItem) Clone() WorkItem {
	c := w
	if w.Outputs != nil {
		c.Outputs = make([]ResultUnit, len(w.Outputs))
		copy(c.Outputs, w.Outputs)
	}
	return c
}

// EffectiveInstruction returns the item override when set, else fallback.
func (w WorkItem) EffectiveInstruction(fallback string) string {
	if w.Overrides.Instruction != "" {
		return w.Overrides.Instruction
	}
	return fallback
}

// EffectiveOutputsPerRound returns the item override when set, else fallback.
func (w WorkItem) EffectiveOutputsPerRound(fallback int) int {
	if w.Overrides.OutputsPerRound > 0 {
		return w.Overrides.OutputsPerRound
	}
	return fallback
}

// EffectiveRounds returns the item override when set, else fallback.
func (w WorkItem) EffectiveRounds(fallback int) int {
	if w.Overrides.Rounds > 0 {
		return w.Overrides.Rounds
	}
	return fallback
}
