package aiservice

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPerformanceTrackerDerivedStats(t *testing.T) {
	tracker := NewPerformanceTracker()
	key := "audio:polly:neural"

	for _, ms := range []int{100, 200, 300, 400} {
		tracker.RecordSuccess(key, time.Duration(ms)*time.Millisecond)
	}
	tracker.RecordFailure(key, errors.New("throttled"))

	m, ok := tracker.Get(key)
	require.True(t, ok)
	require.EqualValues(t, 5, m.TotalCalls)
	require.EqualValues(t, 4, m.SuccessfulCalls)
	require.Equal(t, 0.8, m.SuccessRate)
	require.Equal(t, time.Second, m.TotalDurationSuccessful)
	require.Equal(t, 250*time.Millisecond, m.AverageLatency)
	require.Equal(t, 200*time.Millisecond, m.P50)
	require.Equal(t, 300*time.Millisecond, m.P95)
	require.Equal(t, "throttled", m.LastError)
	require.Equal(t, "audio", m.Category)
	require.Equal(t, "neural", m.Model)
}

func TestPerformanceTrackerSnapshotSorted(t *testing.T) {
	tracker := NewPerformanceTracker()
	tracker.RecordFailure("video:runway:gen3a_turbo", nil)
	tracker.RecordSuccess("content:anthropic:claude", time.Millisecond)
	tracker.RecordSuccess("content:bedrock:anthropic.claude-3-haiku-20240307-v1:0", time.Millisecond)

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 3)
	require.Equal(t, "content:anthropic:claude", snapshot[0].Key)
	require.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", snapshot[1].Model)
	require.Equal(t, 0.0, snapshot[2].SuccessRate)
	require.Zero(t, snapshot[2].AverageLatency)

	_, ok := tracker.Get("audio:polly:neural")
	require.False(t, ok)
}

func TestPerformanceTrackerWindowKeepsRecentLatencies(t *testing.T) {
	tracker := NewPerformanceTracker()
	key := "video:luma:ray-2"
	for i := 0; i < latencyWindowSize; i++ {
		tracker.RecordSuccess(key, time.Second)
	}
	for i := 0; i < latencyWindowSize; i++ {
		tracker.RecordSuccess(key, 2*time.Second)
	}

	m, _ := tracker.Get(key)
	require.Equal(t, 2*time.Second, m.P50)
	require.Equal(t, 1500*time.Millisecond, m.AverageLatency)
}
