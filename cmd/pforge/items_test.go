package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"promptforge/internal/batch"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestMergeOverrides(t *testing.T) {
	existing := batch.Overrides{Instruction: "old", OutputsPerRound: 2, Rounds: 3}

	// Absent flags keep the stored overrides.
	got := mergeOverrides(existing, nil, nil, nil)
	assert.Equal(t, existing, got)

	// Each flag changes only its own field.
	got = mergeOverrides(existing, strPtr("new"), nil, nil)
	assert.Equal(t, batch.Overrides{Instruction: "new", OutputsPerRound: 2, Rounds: 3}, got)

	got = mergeOverrides(existing, nil, intPtr(5), nil)
	assert.Equal(t, batch.Overrides{Instruction: "old", OutputsPerRound: 2, Rounds: 5}, got)

	got = mergeOverrides(existing, nil, nil, intPtr(7))
	assert.Equal(t, batch.Overrides{Instruction: "old", OutputsPerRound: 7, Rounds: 3}, got)

	// Explicit zero/empty clears the override back to run defaults.
	got = mergeOverrides(existing, strPtr(""), intPtr(0), intPtr(0))
	assert.Equal(t, batch.Overrides{}, got)
}
