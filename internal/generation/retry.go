package generation

import (
	"context"
	"time"

	"promptforge/internal/logging"
)

// backoffCap bounds the empty-retry delay growth.
const backoffCap = 30 * time.Second

// RetryOnEmpty invokes call and, when the result satisfies isEmpty, retries
// with growing backoff (initialDelay * 1.5^attempt, capped) until the retry
// budget is spent. The last result is returned either way.
//
// Errors from call propagate immediately without retry: only well-formed but
// empty responses are retried. The upstream API can return an empty
// completion under content filtering or rate shaping, and blind retry with
// backoff recovers most of those without masking genuine failures.
func RetryOnEmpty(ctx context.Context, call func(context.Context) (string, error), isEmpty func(string) bool, maxRetries int, initialDelay time.Duration) (string, error) {
	result, err := call(ctx)
	if err != nil {
		return "", err
	}

	delay := initialDelay
	for attempt := 0; attempt < maxRetries && isEmpty(result); attempt++ {
		logging.APIWarn("empty response, retrying in %v (attempt %d/%d)", delay, attempt+1, maxRetries)

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}

		result, err = call(ctx)
		if err != nil {
			return "", err
		}

		delay = delay * 3 / 2
		if delay > backoffCap {
			delay = backoffCap
		}
	}

	if isEmpty(result) {
		logging.APIWarn("empty response after %d retries, giving up", maxRetries)
	}
	return result, nil
}

// IsBlank is the stock emptiness check: no non-whitespace content.
func IsBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
