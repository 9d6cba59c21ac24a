package generation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"promptforge/internal/logging"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	RequestGap time.Duration
	// MaxRetries bounds transport-level retries (429s, transient
	// transport failures). Empty-but-successful responses are not
	// retried here; that is RetryOnEmpty's job.
	MaxRetries int
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:     apiKey,
		Model:      "gemini-2.5-flash",
		Timeout:    2 * time.Minute,
		RequestGap: 100 * time.Millisecond,
		MaxRetries: 3,
	}
}

// GeminiClient implements Client for the Google Gemini API.
type GeminiClient struct {
	client *genai.Client
	config GeminiConfig

	mu          sync.Mutex
	lastRequest time.Time
}

var _ Client = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini client with default config.
func NewGeminiClient(apiKey string) (*GeminiClient, error) {
	return NewGeminiClientWithConfig(DefaultGeminiConfig(apiKey))
}

// NewGeminiClientWithConfig creates a Gemini client with custom config.
func NewGeminiClientWithConfig(config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if strings.TrimSpace(config.Model) == "" {
		config.Model = "gemini-2.5-flash"
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client, config: config}, nil
}

// Model returns the configured default model.
func (c *GeminiClient) Model() string {
	return c.config.Model
}

// Generate sends one generation request and returns the response text.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = c.config.Model
	}

	startTime := time.Now()
	logging.APIDebug("[Gemini] Generate: model=%s system_len=%d parts=%d",
		model, len(req.SystemInstruction), len(req.Parts))

	if len(req.Parts) == 0 {
		return "", fmt.Errorf("request has no parts")
	}

	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Inline != nil {
			parts = append(parts, genai.NewPartFromBytes(p.Inline.Data, p.Inline.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(1.0)),
	}
	if strings.TrimSpace(req.SystemInstruction) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	// Retry loop for rate limits and transient transport failures
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		c.applyRequestGap()

		resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			if !isRetryable(err) {
				logging.APIError("[Gemini] Generate: failed after %v: %v", time.Since(startTime), err)
				return "", fmt.Errorf("generation request failed: %w", err)
			}
			logging.APIWarn("[Gemini] Generate: transient failure (attempt %d/%d): %v",
				attempt+1, c.config.MaxRetries+1, err)
			continue
		}

		text := strings.TrimSpace(resp.Text())
		logging.API("[Gemini] Generate: completed in %v response_len=%d",
			time.Since(startTime), len(text))
		return text, nil
	}

	logging.APIError("[Gemini] Generate: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// applyRequestGap enforces the minimum gap between outbound requests.
func (c *GeminiClient) applyRequestGap() {
	gap := c.config.RequestGap
	if gap <= 0 {
		return
	}
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < gap {
		time.Sleep(gap - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}

// isRetryable reports whether a generation error is worth another attempt.
// Quota and transient availability errors are; auth and bad-request are not.
func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "resource_exhausted", "unavailable", "503", "overloaded", "deadline exceeded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
