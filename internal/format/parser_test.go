package format

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseResponseLabeledRoundTrip(t *testing.T) {
	d := Default()
	raw := "English: A\nChinese: 甲###SPLIT###English: B\nChinese: 乙"

	got := ParseResponse(raw, d)
	want := []Pair{
		{Primary: "A", Secondary: "甲"},
		{Primary: "B", Secondary: "乙"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseResponse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseResponseSegmentConventions(t *testing.T) {
	d := Default()

	tests := []struct {
		name string
		raw  string
		want []Pair
	}{
		{
			name: "LabeledCaseInsensitive",
			raw:  "english: hello\nchinese: 你好",
			want: []Pair{{Primary: "hello", Secondary: "你好"}},
		},
		{
			name: "LabeledFullWidthColon",
			raw:  "English： hello\nChinese： 你好",
			want: []Pair{{Primary: "hello", Secondary: "你好"}},
		},
		{
			name: "LabeledPrimaryOnly",
			raw:  "English: solo line",
			want: []Pair{{Primary: "solo line"}},
		},
		{
			name: "ParentheticalFallback",
			raw:  "Hello (你好)",
			want: []Pair{{Primary: "Hello", Secondary: "你好"}},
		},
		{
			name: "FullWidthParenthesesFallback",
			raw:  "Hello（你好）",
			want: []Pair{{Primary: "Hello", Secondary: "你好"}},
		},
		{
			name: "NoConventionDegradesToRaw",
			raw:  "just some text with no structure",
			want: []Pair{{Primary: "just some text with no structure"}},
		},
		{
			name: "EmptySegmentsDiscarded",
			raw:  "###SPLIT###  ###SPLIT###English: kept",
			want: []Pair{{Primary: "kept"}},
		},
		{
			name: "MultilinePrimaryStopsAtSecondaryLabel",
			raw:  "English: first line\nsecond line\nChinese: 翻译",
			want: []Pair{{Primary: "first line\nsecond line", Secondary: "翻译"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseResponse(tt.raw, d)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseResponse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseResponseEmptyInput(t *testing.T) {
	if got := ParseResponse("   \n  ", Default()); got != nil {
		t.Errorf("expected nil for blank input, got %v", got)
	}
}

func TestParseResponsePlainTranslationPair(t *testing.T) {
	d := Default().WithFormat(PlainTranslationPair)
	raw := "fast car|||快车###SPLIT###slow boat"

	got := ParseResponse(raw, d)
	want := []Pair{
		{Primary: "fast car", Secondary: "快车"},
		{Primary: "slow boat"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseResponseClassificationOnly(t *testing.T) {
	d := Default().WithFormat(ClassificationOnly)
	raw := "positive\nbecause the tone is upbeat###SPLIT###negative"

	got := ParseResponse(raw, d)
	want := []Pair{{Primary: "positive"}, {Primary: "negative"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseIndexedRouting(t *testing.T) {
	d := Default()
	raw := "[1] first result|||第一\nnoise line without index\n[3] third result\n[9] out of range\n[2] second result"

	got := ParseIndexed(raw, d, 3)

	want := []*Pair{
		{Primary: "first result", Secondary: "第一"},
		{Primary: "second result"},
		{Primary: "third result"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseIndexed mismatch (-want +got):\n%s", diff)
	}
}

func TestParseIndexedMissingSlotStaysNil(t *testing.T) {
	got := ParseIndexed("[2] only the second", Default(), 3)
	if got[0] != nil || got[2] != nil {
		t.Errorf("unmatched slots should be nil, got %v", got)
	}
	if got[1] == nil || got[1].Primary != "only the second" {
		t.Errorf("slot 2 not routed, got %v", got[1])
	}
}

func TestParseIndexedZeroItems(t *testing.T) {
	if got := ParseIndexed("[1] anything", Default(), 0); len(got) != 0 {
		t.Errorf("expected empty slice, got %v", got)
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	d := Default()
	a := BuildPrompt(d, "base", "instr", 3, true)
	b := BuildPrompt(d, "base", "instr", 3, true)
	if a != b {
		t.Error("BuildPrompt is not deterministic")
	}
}

func TestBuildPromptNamesFormatLiterals(t *testing.T) {
	d := Default()

	p := BuildPrompt(d, "some text", "make it punchy", 4, true)
	for _, want := range []string{d.Delimiter, d.PrimaryLabel + ":", d.SecondaryLabel + ":", "4", "make it punchy", "some text"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestBuildPromptTranslationDisabledForbidsSecondary(t *testing.T) {
	d := Default()
	p := BuildPrompt(d, "text", "", 2, false)
	if !strings.Contains(p, "Do not include any "+d.SecondaryLabel) {
		t.Errorf("prompt should forbid the secondary language:\n%s", p)
	}
}

func TestBuildPromptClampsCount(t *testing.T) {
	p := BuildPrompt(Default(), "text", "", 0, false)
	if !strings.Contains(p, "exactly 1 variation") {
		t.Errorf("count should clamp to 1:\n%s", p)
	}
}

func TestBuildIndexedPromptRoundTripsWithParser(t *testing.T) {
	d := Default()
	texts := []string{"first", "second"}
	p := BuildIndexedPrompt(d, texts, "shorten", true)

	for _, want := range []string{"[1] first", "[2] second", d.SubSeparator} {
		if !strings.Contains(p, want) {
			t.Errorf("indexed prompt missing %q:\n%s", want, p)
		}
	}

	// A response in the requested shape routes cleanly back.
	resp := "[1] shorter first|||更短\n[2] shorter second"
	got := ParseIndexed(resp, d, len(texts))
	if got[0] == nil || got[1] == nil {
		t.Fatalf("response did not route: %v", got)
	}
	if got[0].Secondary != "更短" {
		t.Errorf("sub-separator not honored: %+v", got[0])
	}
}
