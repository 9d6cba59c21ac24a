// Package format defines the wire convention shared by prompt construction
// and response parsing. The delimiter and label literals live in exactly one
// place: a Descriptor consumed by both sides. A builder/parser mismatch is a
// correctness bug, so neither side hardcodes its own copy.
package format

import (
	"fmt"
	"regexp"
)

// ResponseFormat selects how a model response is interpreted.
// Mode differences are data, not duplicated control flow.
type ResponseFormat int

const (
	// LabeledPair expects "Primary: ...\nSecondary: ..." per segment.
	LabeledPair ResponseFormat = iota
	// PlainTranslationPair expects "primary|||secondary" per segment.
	PlainTranslationPair
	// ClassificationOnly expects a bare label per segment, no secondary.
	ClassificationOnly
	// IndexedBatch expects "[n] content" lines routed back by queue position.
	IndexedBatch
)

func (f ResponseFormat) String() string {
	switch f {
	case LabeledPair:
		return "labeled_pair"
	case PlainTranslationPair:
		return "plain_translation_pair"
	case ClassificationOnly:
		return "classification_only"
	case IndexedBatch:
		return "indexed_batch"
	default:
		return fmt.Sprintf("unknown(%d)", f)
	}
}

// Descriptor holds the format literals shared between BuildPrompt and the
// parsers. Construct via NewDescriptor so the derived regexes stay in sync
// with the literals.
type Descriptor struct {
	// Delimiter separates variations in a multi-variation response.
	Delimiter string
	// PrimaryLabel/SecondaryLabel name the two segments of a labeled pair.
	PrimaryLabel   string
	SecondaryLabel string
	// SubSeparator splits primary from secondary inside one segment or
	// indexed line.
	SubSeparator string
	// Format selects the parse strategy.
	Format ResponseFormat

	labeledRe *regexp.Regexp
	parenRe   *regexp.Regexp
}

// indexedLineRe matches the "[n] content" batch convention, 1-based.
var indexedLineRe = regexp.MustCompile(`^\[(\d+)\]\s*(.+)$`)

// NewDescriptor builds a Descriptor and compiles its derived regexes.
func NewDescriptor(delimiter, primaryLabel, secondaryLabel, subSeparator string, f ResponseFormat) Descriptor {
	d := Descriptor{
		Delimiter:      delimiter,
		PrimaryLabel:   primaryLabel,
		SecondaryLabel: secondaryLabel,
		SubSeparator:   subSeparator,
		Format:         f,
	}
	// "Primary: ... [\nSecondary: ...]" with both ASCII and full-width
	// colons. Lazy primary stops at the first secondary label line.
	d.labeledRe = regexp.MustCompile(
		`(?is)^\s*` + regexp.QuoteMeta(primaryLabel) + `\s*[:：]\s*(.*?)\s*` +
			`(?:\n\s*` + regexp.QuoteMeta(secondaryLabel) + `\s*[:：]\s*(.*?))?\s*$`)
	// "text (secondary)" fallback, ASCII and full-width parentheses.
	d.parenRe = regexp.MustCompile(`(?s)^(.*\S)\s*[(（]([^()（）]+)[)）]\s*$`)
	return d
}

// Default returns the stock convention used across the workbench.
func Default() Descriptor {
	return NewDescriptor("###SPLIT###", "English", "Chinese", "|||", LabeledPair)
}

// WithFormat returns a copy of d interpreting responses as f.
func (d Descriptor) WithFormat(f ResponseFormat) Descriptor {
	d.Format = f
	return d
}
