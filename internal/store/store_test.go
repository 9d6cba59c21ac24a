package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptforge/internal/batch"
	"promptforge/internal/preset"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)

	items := []batch.WorkItem{
		{
			ID:         "a",
			SourceText: "first item",
			Status:     batch.StatusSuccess,
			Outputs: []batch.ResultUnit{
				{Primary: "out one", Secondary: "翻译一"},
				{Primary: "out two"},
			},
			RoundsCompleted: 2,
			CreatedAt:       time.Now().Truncate(time.Second),
		},
		{
			ID:         "b",
			SourceText: "second item",
			Status:     batch.StatusError,
			Error:      "quota exhausted",
			Overrides:  batch.Overrides{Instruction: "custom", OutputsPerRound: 3, Rounds: 5},
		},
	}
	require.NoError(t, s.SaveSnapshot("default", items))

	got, err := s.LoadSnapshot("default")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, batch.StatusSuccess, got[0].Status)
	assert.Equal(t, 2, got[0].RoundsCompleted)
	require.Len(t, got[0].Outputs, 2)
	assert.Equal(t, "out one", got[0].Outputs[0].Primary)
	assert.Equal(t, "翻译一", got[0].Outputs[0].Secondary)

	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, batch.StatusError, got[1].Status)
	assert.Equal(t, "quota exhausted", got[1].Error)
	assert.Equal(t, batch.Overrides{Instruction: "custom", OutputsPerRound: 3, Rounds: 5}, got[1].Overrides)
}

func TestSnapshotReplacesPrevious(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveSnapshot("default", []batch.WorkItem{
		{ID: "a", SourceText: "one", Outputs: []batch.ResultUnit{{Primary: "old"}}},
		{ID: "b", SourceText: "two"},
	}))
	require.NoError(t, s.SaveSnapshot("default", []batch.WorkItem{
		{ID: "c", SourceText: "three"},
	}))

	got, err := s.LoadSnapshot("default")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
	assert.Empty(t, got[0].Outputs, "orphaned result units must not survive a replace")
}

func TestSnapshotScopesAreIsolated(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveSnapshot("one", []batch.WorkItem{{ID: "a", SourceText: "x"}}))
	require.NoError(t, s.SaveSnapshot("two", []batch.WorkItem{{ID: "b", SourceText: "y"}}))

	one, err := s.LoadSnapshot("one")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "a", one[0].ID)

	empty, err := s.LoadSnapshot("ghost")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPresetCRUD(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SavePreset(preset.Preset{Name: "punchy", Instruction: "make it punchy", Rounds: 2}))
	require.NoError(t, s.SavePreset(preset.Preset{Name: "bilingual", Instruction: "rewrite", Translation: true}))

	got, err := s.LoadPresets()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bilingual", got[0].Name, "presets load in name order")
	assert.True(t, got[0].Translation)
	assert.Equal(t, 2, got[1].Rounds)

	// Upsert replaces by name.
	require.NoError(t, s.SavePreset(preset.Preset{Name: "punchy", Instruction: "punchier"}))
	got, err = s.LoadPresets()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "punchier", got[1].Instruction)

	existed, err := s.DeletePreset("punchy")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = s.DeletePreset("punchy")
	require.NoError(t, err)
	assert.False(t, existed)
}
