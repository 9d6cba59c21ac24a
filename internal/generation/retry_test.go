package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryOnEmptyRecovers(t *testing.T) {
	calls := 0
	call := func(ctx context.Context) (string, error) {
		calls++
		if calls <= 3 {
			return "", nil
		}
		return "finally", nil
	}

	result, err := RetryOnEmpty(context.Background(), call, IsBlank, 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "finally", result)
	assert.Equal(t, 4, calls)
}

func TestRetryOnEmptyExhaustsBudget(t *testing.T) {
	calls := 0
	call := func(ctx context.Context) (string, error) {
		calls++
		return "   ", nil
	}

	result, err := RetryOnEmpty(context.Background(), call, IsBlank, 3, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, IsBlank(result), "last (empty) result is returned")
	assert.Equal(t, 4, calls, "initial call plus maxRetries")
}

func TestRetryOnEmptyNoRetryWhenNonEmpty(t *testing.T) {
	calls := 0
	call := func(ctx context.Context) (string, error) {
		calls++
		return "immediate", nil
	}

	result, err := RetryOnEmpty(context.Background(), call, IsBlank, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "immediate", result)
	assert.Equal(t, 1, calls)
}

func TestRetryOnEmptyErrorsPropagateImmediately(t *testing.T) {
	boom := errors.New("quota exceeded")
	calls := 0
	call := func(ctx context.Context) (string, error) {
		calls++
		return "", boom
	}

	_, err := RetryOnEmpty(context.Background(), call, IsBlank, 3, time.Millisecond)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "errors are not retried here")
}

func TestRetryOnEmptyHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	call := func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", nil
	}

	_, err := RetryOnEmpty(ctx, call, IsBlank, 3, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsBlank(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"   \n\t ", true},
		{"x", false},
		{"  x  ", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsBlank(tt.in), "IsBlank(%q)", tt.in)
	}
}
