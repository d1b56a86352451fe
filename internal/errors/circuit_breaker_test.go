package errors

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("video:runway:gen3", CircuitBreakerConfig{Now: clock.Now})

	for i := 0; i < 4; i++ {
		require.NoError(t, cb.Allow())
		cb.Mark(errBoom)
		require.Equal(t, StateClosed, cb.State())
	}

	require.NoError(t, cb.Allow())
	cb.Mark(errBoom)
	require.Equal(t, StateOpen, cb.State())
	require.Equal(t, 5, cb.Metrics().FailureCount)
}

func TestCircuitBreakerShortCircuitsUntilTimeout(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("audio:polly:neural", CircuitBreakerConfig{Now: clock.Now})
	for i := 0; i < 5; i++ {
		cb.Mark(errBoom)
	}

	clock.Advance(59 * time.Second)
	err := cb.Allow()
	require.Error(t, err)
	require.True(t, IsCircuitOpen(err))
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Second)
	require.NoError(t, cb.Allow())
	require.Equal(t, StateHalfOpen, cb.State())

	// Only one trial is admitted while half-open.
	require.True(t, IsCircuitOpen(cb.Allow()))

	cb.Mark(nil)
	require.Equal(t, StateClosed, cb.State())
	require.Equal(t, 0, cb.Metrics().FailureCount)
}

func TestCircuitBreakerFailedTrialReopensAndRestartsTimer(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("content:anthropic:claude", CircuitBreakerConfig{Now: clock.Now})
	for i := 0; i < 5; i++ {
		cb.Mark(errBoom)
	}

	clock.Advance(time.Minute)
	require.NoError(t, cb.Allow())
	cb.Mark(errBoom)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(30 * time.Second)
	require.Error(t, cb.Allow())

	clock.Advance(30 * time.Second)
	require.NoError(t, cb.Allow())
}

func TestCircuitBreakerSuccessResetsClosedCount(t *testing.T) {
	cb := NewCircuitBreaker("x", DefaultCircuitBreakerConfig())
	cb.Mark(errBoom)
	cb.Mark(errBoom)
	cb.Mark(nil)
	require.Equal(t, 0, cb.Metrics().FailureCount)
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerCheckDoesNotClaimTrial(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("x", CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Second, Now: clock.Now})
	cb.Mark(errBoom)
	require.Equal(t, StateOpen, cb.Check())

	clock.Advance(time.Second)
	require.Equal(t, StateHalfOpen, cb.Check())
	require.NoError(t, cb.Allow())
}

func TestCircuitBreakerSetLimitsAndHook(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	cb := NewCircuitBreaker("x", CircuitBreakerConfig{
		OnStateChange: func(name string, from, to CircuitState) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})
	cb.SetLimits(2, 0)
	cb.Mark(errBoom)
	cb.Mark(errBoom)

	require.Equal(t, StateOpen, cb.State())
	require.Equal(t, 60*time.Second, cb.Metrics().Timeout)
	require.Equal(t, []string{"closed->open"}, transitions)

	cb.Reset()
	require.Equal(t, StateClosed, cb.State())
	require.Equal(t, []string{"closed->open", "open->closed"}, transitions)
}

func TestCircuitBreakerManagerReusesBreakers(t *testing.T) {
	m := NewCircuitBreakerManager(DefaultCircuitBreakerConfig())
	a := m.Get("video:luma:dream")
	b := m.Get("video:luma:dream")
	require.Same(t, a, b)

	_, ok := m.Lookup("audio:polly:neural")
	require.False(t, ok)

	m.Get("audio:polly:neural")
	metrics := m.GetMetrics()
	require.Len(t, metrics, 2)
	require.Equal(t, "audio:polly:neural", metrics[0].Name)
}
