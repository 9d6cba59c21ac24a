// Package generation wraps the text generation API consumed by the batch
// orchestrator. The orchestrator only sees the Client interface; the Gemini
// implementation and the retry-on-empty policy live here.
package generation

import "context"

// Part is one element of a generation request: text, or an inline image.
// Exactly one of Text and Inline is set.
type Part struct {
	Text   string
	Inline *InlineData
}

// InlineData carries inline binary content (typically an image).
type InlineData struct {
	MIMEType string
	Data     []byte
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds an inline image part.
func ImagePart(mimeType string, data []byte) Part {
	return Part{Inline: &InlineData{MIMEType: mimeType, Data: data}}
}

// Request is one generation call.
type Request struct {
	// Model overrides the client's configured model when non-empty.
	Model             string
	SystemInstruction string
	Parts             []Part
}

// Client is the minimal interface the orchestrator uses to call a
// generation API.
type Client interface {
	// Generate returns the generated text, or an error on transport,
	// auth or quota problems. An empty string with a nil error is a
	// valid outcome (content filtering, rate shaping) and is handled
	// by RetryOnEmpty, not here.
	Generate(ctx context.Context, req Request) (string, error)
	// Model returns the default model name.
	Model() string
}
