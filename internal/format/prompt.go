package format

import (
	"fmt"
	"strings"
)

// BuildPrompt constructs the generation prompt for one work item.
// Deterministic, no side effects: the same inputs always produce the same
// prompt. The format directives name the exact literals the parsers split on.
func BuildPrompt(d Descriptor, baseText, instruction string, count int, translation bool) string {
	if count < 1 {
		count = 1
	}

	var b strings.Builder
	b.WriteString("You are a copywriting assistant. Produce rewritten variations of the source text below.\n\n")

	if inst := strings.TrimSpace(instruction); inst != "" {
		b.WriteString("Rewriting instruction: ")
		b.WriteString(inst)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Produce exactly %d variation(s). Separate each variation from the next with the literal token %s on its own. Do not number the variations and do not add commentary.\n",
		count, d.Delimiter)

	switch d.Format {
	case LabeledPair:
		if translation {
			fmt.Fprintf(&b, "Each variation must contain two labeled lines, in this order:\n%s: <the variation>\n%s: <its translation>\n",
				d.PrimaryLabel, d.SecondaryLabel)
		} else {
			fmt.Fprintf(&b, "Write every variation in %s only. Do not include any %s text and do not use the %s label.\n",
				d.PrimaryLabel, d.SecondaryLabel, d.SecondaryLabel)
		}
	case PlainTranslationPair:
		if translation {
			fmt.Fprintf(&b, "Each variation must be a single line of the form: <variation>%s<translation>.\n", d.SubSeparator)
		} else {
			fmt.Fprintf(&b, "Each variation must be a single line with no %s separator and no translation.\n", d.SubSeparator)
		}
	case ClassificationOnly:
		b.WriteString("For each variation output only the classification label, nothing else.\n")
	}

	b.WriteString("\nSource text:\n")
	b.WriteString(baseText)
	return b.String()
}

// BuildIndexedPrompt constructs one grouped prompt covering several work
// items. The response is expected line-oriented: "[n] content" with n the
// 1-based position in texts, content optionally split by the sub-separator.
func BuildIndexedPrompt(d Descriptor, texts []string, instruction string, translation bool) string {
	var b strings.Builder
	b.WriteString("You are a copywriting assistant. Rewrite each numbered source text below.\n\n")

	if inst := strings.TrimSpace(instruction); inst != "" {
		b.WriteString("Rewriting instruction: ")
		b.WriteString(inst)
		b.WriteString("\n\n")
	}

	b.WriteString("Answer with one line per input, of the form [n] result")
	if translation {
		fmt.Fprintf(&b, "%s<translation>", d.SubSeparator)
	}
	b.WriteString(", where n is the input number. Keep the numbering of the inputs. No commentary.\n\nInputs:\n")

	for i, text := range texts {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.ReplaceAll(text, "\n", " "))
	}
	return b.String()
}
