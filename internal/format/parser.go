package format

import (
	"strings"

	"promptforge/internal/logging"
)

// Pair is one parsed variation: a primary rendering and an optional
// secondary one (translation or alternate form).
type Pair struct {
	Primary   string
	Secondary string
}

// ParseResponse splits a raw model response into pairs using the
// descriptor's convention. It never fails: malformed input degrades to
// "primary = raw segment, secondary = empty" rather than aborting a batch.
func ParseResponse(raw string, d Descriptor) []Pair {
	segments := splitSegments(raw, d.Delimiter)
	if len(segments) == 0 {
		return nil
	}

	pairs := make([]Pair, 0, len(segments))
	for _, seg := range segments {
		pairs = append(pairs, parseSegment(seg, d))
	}
	logging.ParserDebug("parsed %d segment(s) as %s", len(pairs), d.Format)
	return pairs
}

func splitSegments(raw, delimiter string) []string {
	var out []string
	for _, seg := range strings.Split(raw, delimiter) {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// parseSegment extracts a primary/secondary pair from one segment,
// first-match-wins: labeled convention, then sub-separator, then
// parenthetical, then the whole segment as primary.
func parseSegment(seg string, d Descriptor) Pair {
	switch d.Format {
	case ClassificationOnly:
		// First line only; a chatty model sometimes appends rationale.
		line := seg
		if i := strings.IndexByte(seg, '\n'); i >= 0 {
			line = seg[:i]
		}
		return Pair{Primary: strings.TrimSpace(line)}

	case PlainTranslationPair:
		if primary, secondary, ok := strings.Cut(seg, d.SubSeparator); ok {
			return Pair{Primary: strings.TrimSpace(primary), Secondary: strings.TrimSpace(secondary)}
		}
		return Pair{Primary: seg}
	}

	// LabeledPair (and anything else): labeled regex first.
	if m := d.labeledRe.FindStringSubmatch(seg); m != nil {
		return Pair{Primary: strings.TrimSpace(m[1]), Secondary: strings.TrimSpace(m[2])}
	}

	// Fallback: "text (secondary)" convention, ASCII or full-width.
	if m := d.parenRe.FindStringSubmatch(seg); m != nil {
		return Pair{Primary: strings.TrimSpace(m[1]), Secondary: strings.TrimSpace(m[2])}
	}

	logging.ParserDebug("segment matched no convention, using raw text (len=%d)", len(seg))
	return Pair{Primary: seg}
}

// ParseIndexed parses the "[n] content" line-oriented batch convention and
// routes each numbered line to queue position n-1. Lines that do not match
// the pattern, or whose index is out of [1, n], are dropped. The returned
// slice has length n; positions with no matching line hold a nil entry.
//
// The drop is deliberate lossy recovery: a grouped response with a garbled
// line should not poison the items that parsed cleanly.
func ParseIndexed(raw string, d Descriptor, n int) []*Pair {
	out := make([]*Pair, n)
	if n <= 0 {
		return out
	}

	matched, dropped := 0, 0
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := indexedLineRe.FindStringSubmatch(line)
		if m == nil {
			dropped++
			continue
		}
		idx := parseIndex(m[1])
		if idx < 1 || idx > n {
			dropped++
			continue
		}
		content := strings.TrimSpace(m[2])
		pair := Pair{Primary: content}
		if primary, secondary, ok := strings.Cut(content, d.SubSeparator); ok {
			pair = Pair{Primary: strings.TrimSpace(primary), Secondary: strings.TrimSpace(secondary)}
		}
		out[idx-1] = &pair
		matched++
	}

	if dropped > 0 {
		logging.ParserWarn("indexed parse dropped %d line(s), kept %d of %d slots", dropped, matched, n)
	}
	return out
}

// parseIndex converts a digit-only string; the regex guarantees digits, so
// overflow to negative is the only failure mode and maps out of range.
func parseIndex(s string) int {
	idx := 0
	for _, r := range s {
		idx = idx*10 + int(r-'0')
		if idx > 1<<20 {
			return -1
		}
	}
	return idx
}
