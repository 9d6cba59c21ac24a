package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptforge/internal/format"
)

func TestParseResponseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want format.ResponseFormat
	}{
		{"labeled", format.LabeledPair},
		{"", format.LabeledPair},
		{"  Labeled ", format.LabeledPair},
		{"plain", format.PlainTranslationPair},
		{"classification", format.ClassificationOnly},
	}
	for _, tt := range tests {
		got, err := parseResponseFormat(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}

	_, err := parseResponseFormat("indexed")
	assert.Error(t, err, "indexed is selected via --grouped, not --format")
	_, err = parseResponseFormat("nonsense")
	assert.Error(t, err)
}
