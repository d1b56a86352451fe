package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func recordingSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func TestRetryUsesLinearBackoff(t *testing.T) {
	var waits []time.Duration
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, Sleep: recordingSleep(&waits)}

	calls := 0
	_, err := RetryWithResult(context.Background(), cfg, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", errBoom
	}, nil)

	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.ErrorIs(t, err, errBoom)
}

func TestRetryReturnsFirstSuccess(t *testing.T) {
	var waits []time.Duration
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: recordingSleep(&waits)}

	result, err := RetryWithResult(context.Background(), cfg, func(ctx context.Context, attempt int) (int, error) {
		if attempt < 2 {
			return 0, errBoom
		}
		return attempt, nil
	}, nil)

	require.NoError(t, err)
	require.Equal(t, 2, result)
	require.Len(t, waits, 1)
}

func TestRetryStopsOnlyOnOpenBreakerOrCancellation(t *testing.T) {
	cases := map[string]struct {
		err   error
		calls int
	}{
		"permanent":    {NewPermanentError(errBoom, 400), 3},
		"validation":   {&ConfigValidationError{Key: "k", Problems: []string{"bad"}}, 3},
		"circuit open": {&CircuitOpenError{Name: "x"}, 1},
		"cancelled":    {context.Canceled, 1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			calls := 0
			_, err := RetryWithResult(context.Background(), RetryConfig{MaxAttempts: 3}, func(ctx context.Context, attempt int) (struct{}, error) {
				calls++
				return struct{}{}, tc.err
			}, nil)
			require.Equal(t, tc.calls, calls)
			require.ErrorIs(t, err, tc.err)

			var exhausted *RetryExhaustedError
			require.Equal(t, tc.calls == 3, errors.As(err, &exhausted))
		})
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryWithResult(ctx, DefaultRetryConfig(), func(ctx context.Context, attempt int) (int, error) {
		t.Fatal("fn must not run on a cancelled context")
		return 0, nil
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClassification(t *testing.T) {
	require.True(t, IsTransient(NewTransientError(errBoom, 503)))
	require.True(t, IsPermanent(NewPermanentError(errBoom, 401)))
	require.True(t, IsTransient(context.DeadlineExceeded))
	require.False(t, IsTransient(errors.New("plain")))
	require.Equal(t, ErrorTypeDegraded, GetErrorType(&CircuitOpenError{Name: "x"}))
	require.Equal(t, ErrorTypeTransient, GetErrorType(errors.New("dial tcp: connection refused")))
	require.Equal(t, "permanent", GetErrorType(NewPermanentError(errBoom, 404)).String())
	require.Equal(t, "degraded", ErrorTypeDegraded.String())
}
