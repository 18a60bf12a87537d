package utils_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robalyx/spamguard/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTemporary = errors.New("temporary error")
	errFatal     = errors.New("invalid token")
)

func testRetryOptions() utils.RetryOptions {
	return utils.RetryOptions{
		MaxElapsedTime:  time.Second,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		MaxRetries:      3,
	}
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		failures      int
		fatal         bool
		expectedCalls int
		expectedErr   error
	}{
		{
			name:          "succeeds first try",
			expectedCalls: 1,
		},
		{
			name:          "succeeds after retries",
			failures:      2,
			expectedCalls: 3,
		},
		{
			name:          "fails all retries",
			failures:      10,
			expectedCalls: 4, // Initial + 3 retries
			expectedErr:   errTemporary,
		},
		{
			name:          "permanent error stops immediately",
			failures:      10,
			fatal:         true,
			expectedCalls: 1,
			expectedErr:   errFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			result, err := utils.WithRetry(t.Context(), func() (string, error) {
				calls++
				if calls <= tt.failures {
					if tt.fatal {
						return "", utils.Permanent(errFatal)
					}
					return "", errTemporary
				}
				return "ok", nil
			}, testRetryOptions())

			assert.Equal(t, tt.expectedCalls, calls)

			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "ok", result)
		})
	}
}

func TestWithRetryContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	calls := 0

	opts := utils.RetryOptions{
		MaxElapsedTime:  time.Second,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
		MaxRetries:      5,
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := utils.WithRetry(ctx, func() (struct{}, error) {
		calls++
		return struct{}{}, errTemporary
	}, opts)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 5)
}
