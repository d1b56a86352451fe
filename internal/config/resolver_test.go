package config

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	reelerrors "reelpipe/internal/errors"
	"reelpipe/internal/logging"
)

type mapStore struct {
	source Source
	mu     sync.Mutex
	values map[string]Value
	err    error
	calls  atomic.Int32
}

func newMapStore(source Source, values map[string]Value) *mapStore {
	return &mapStore{source: source, values: values}
}

func (s *mapStore) Source() Source {
	return s.source
}

func (s *mapStore) Lookup(_ context.Context, key string) (Value, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Null(), s.err
	}
	v, ok := s.values[key]
	if !ok {
		return Null(), reelerrors.ErrConfigNotFound
	}
	return v, nil
}

func (s *mapStore) set(key string, v Value) {
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
}

type namespaceStore struct {
	*mapStore
	prefixes map[string]map[string]Value
}

func (s *namespaceStore) LookupPrefix(_ context.Context, prefix string) (map[string]Value, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.prefixes[prefix], nil
}

type recordedLookup struct {
	source string
	cached bool
}

type fakeRecorder struct {
	mu      sync.Mutex
	lookups []recordedLookup
}

func (r *fakeRecorder) RecordConfigLookup(_ context.Context, source string, cached bool) {
	r.mu.Lock()
	r.lookups = append(r.lookups, recordedLookup{source: source, cached: cached})
	r.mu.Unlock()
}

const videoKey = "ai.models.video.primary"

func TestResolverHonorsPrecedence(t *testing.T) {
	defaults := newMapStore(SourceDefault, map[string]Value{videoKey: String("default")})
	env := newMapStore(SourceEnvironment, map[string]Value{videoKey: String("env")})
	params := newMapStore(SourceParameterStore, map[string]Value{videoKey: String("param")})

	r := NewResolver([]ValueStore{defaults, env, params}, WithLogger(logging.Nop()))

	v, source := r.Get(context.Background(), videoKey, Null())
	require.Equal(t, "param", v.String())
	require.Equal(t, SourceParameterStore, source)

	require.NoError(t, r.SetRuntimeOverride(videoKey, String("override")))
	v, source = r.Get(context.Background(), videoKey, Null())
	require.Equal(t, "override", v.String())
	require.Equal(t, SourceRuntimeOverride, source)
}

func TestResolverCachesWithinTTL(t *testing.T) {
	clock := newFakeClock()
	params := newMapStore(SourceParameterStore, map[string]Value{videoKey: String("runway")})
	r := NewResolver([]ValueStore{params}, WithClock(clock.Now), WithCacheTTL(5*time.Minute), WithLogger(logging.Nop()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, _ := r.Get(ctx, videoKey, Null())
		require.Equal(t, "runway", v.String())
	}
	require.EqualValues(t, 1, params.calls.Load())

	params.set(videoKey, String("luma"))
	clock.Advance(4 * time.Minute)
	v, _ := r.Get(ctx, videoKey, Null())
	require.Equal(t, "runway", v.String())

	clock.Advance(time.Minute)
	v, _ = r.Get(ctx, videoKey, Null())
	require.Equal(t, "luma", v.String())
	require.EqualValues(t, 2, params.calls.Load())
}

func TestResolverPerCallTTLAndSkipCache(t *testing.T) {
	clock := newFakeClock()
	params := newMapStore(SourceParameterStore, map[string]Value{videoKey: String("runway")})
	r := NewResolver([]ValueStore{params}, WithClock(clock.Now), WithLogger(logging.Nop()))
	ctx := context.Background()

	r.Get(ctx, videoKey, Null(), WithTTL(time.Second))
	clock.Advance(2 * time.Second)
	r.Get(ctx, videoKey, Null())
	require.EqualValues(t, 2, params.calls.Load())

	r.Get(ctx, videoKey, Null(), SkipCache())
	require.EqualValues(t, 3, params.calls.Load())
}

func TestResolverReturnsCallerDefaultWhenMissing(t *testing.T) {
	recorder := &fakeRecorder{}
	params := newMapStore(SourceParameterStore, map[string]Value{})
	r := NewResolver([]ValueStore{params}, WithLookupRecorder(recorder), WithLogger(logging.Nop()))

	v, source := r.Get(context.Background(), "ai.models.music.primary", String("fallback"))
	require.Equal(t, "fallback", v.String())
	require.Equal(t, SourceNone, source)

	v, source = r.Get(context.Background(), "ai.models.music.primary", Number(4))
	n, ok := v.AsNumber()
	require.True(t, ok)
	require.Equal(t, float64(4), n)
	require.Equal(t, SourceNone, source)
	require.EqualValues(t, 1, params.calls.Load())
	require.Equal(t, []recordedLookup{{source: "none"}, {source: "none", cached: true}}, recorder.lookups)
}

func TestResolverMissCacheClearedByOverride(t *testing.T) {
	params := newMapStore(SourceParameterStore, map[string]Value{})
	r := NewResolver([]ValueStore{params}, WithLogger(logging.Nop()))
	ctx := context.Background()
	key := "ai.resilience.video.runway.failureThreshold"

	for i := 0; i < 10; i++ {
		require.Equal(t, 5, r.GetInt(ctx, key, 5))
	}
	require.EqualValues(t, 1, params.calls.Load())

	require.NoError(t, r.SetRuntimeOverride(key, Number(2)))
	require.Equal(t, 2, r.GetInt(ctx, key, 5))

	r.ClearRuntimeOverride(key)
	require.Equal(t, 5, r.GetInt(ctx, key, 5))
	require.EqualValues(t, 2, params.calls.Load())
}

func TestResolverFailsOpenPastUnavailableSource(t *testing.T) {
	params := newMapStore(SourceParameterStore, nil)
	params.err = errors.New("connection reset")
	defaults := newMapStore(SourceDefault, map[string]Value{"ai.retry.maxRetries": Number(3)})
	r := NewResolver([]ValueStore{params, defaults}, WithLogger(logging.Nop()))

	require.Equal(t, 3, r.GetInt(context.Background(), "ai.retry.maxRetries", 1))
}

func TestResolverClearRestoresUnderlyingValue(t *testing.T) {
	params := newMapStore(SourceParameterStore, map[string]Value{videoKey: String("runway")})
	r := NewResolver([]ValueStore{params}, WithLogger(logging.Nop()))
	ctx := context.Background()

	r.Get(ctx, videoKey, Null())
	require.NoError(t, r.SetRuntimeOverride(videoKey, String("luma")))
	v, _ := r.Get(ctx, videoKey, Null())
	require.Equal(t, "luma", v.String())
	require.Equal(t, []string{videoKey}, r.RuntimeOverrides("ai.models"))

	r.ClearRuntimeOverride(videoKey)
	v, source := r.Get(ctx, videoKey, Null())
	require.Equal(t, "runway", v.String())
	require.Equal(t, SourceParameterStore, source)
	require.Empty(t, r.RuntimeOverrides(""))
}

func TestResolverListenersSurviveFailures(t *testing.T) {
	r := NewResolver(nil, WithLogger(logging.Nop()))

	var received []Change
	r.AddChangeListener(videoKey, ListenerFunc(func(Change) error { panic("boom") }))
	r.AddChangeListener(videoKey, ListenerFunc(func(Change) error { return errors.New("nope") }))
	sub := r.AddChangeListener(videoKey, ListenerFunc(func(c Change) error {
		received = append(received, c)
		return nil
	}))
	r.AddChangeListener("other.key", ListenerFunc(func(Change) error {
		t.Fatal("listener for another key must not fire")
		return nil
	}))

	require.NoError(t, r.SetRuntimeOverride(videoKey, String("luma")))
	r.ClearRuntimeOverride(videoKey)

	require.Len(t, received, 2)
	require.Equal(t, "luma", received[0].Value.String())
	require.False(t, received[0].Cleared)
	require.True(t, received[1].Cleared)
	require.True(t, received[1].Value.IsNull())
	require.Equal(t, "luma", received[1].Previous.String())

	r.RemoveChangeListener(sub)
	require.NoError(t, r.SetRuntimeOverride(videoKey, String("runway")))
	require.Len(t, received, 2)
}

func TestResolverRejectsInvalidOverride(t *testing.T) {
	params := newMapStore(SourceParameterStore, map[string]Value{"ai.models.audio.engine": String("neural")})
	r := NewResolver([]ValueStore{params}, WithLogger(logging.Nop()))
	notified := false
	r.AddChangeListener("ai.models.audio.engine", ListenerFunc(func(Change) error {
		notified = true
		return nil
	}))

	err := r.SetRuntimeOverride("ai.models.audio.engine", String("turbo"),
		WithSchema(Schema{Type: KindString, Enum: []Value{String("neural"), String("standard")}}))
	var validation *reelerrors.ConfigValidationError
	require.True(t, errors.As(err, &validation))
	require.False(t, notified)

	v, source := r.Get(context.Background(), "ai.models.audio.engine", Null())
	require.Equal(t, "neural", v.String())
	require.Equal(t, SourceParameterStore, source)

	require.Error(t, r.SetRuntimeOverride("  ", String("x")))
}

func TestResolverWatchDeliversChanges(t *testing.T) {
	r := NewResolver(nil, WithLogger(logging.Nop()))
	changes, stop := r.Watch(videoKey, 4)

	require.NoError(t, r.SetRuntimeOverride(videoKey, String("luma")))
	select {
	case c := <-changes:
		require.Equal(t, "luma", c.Value.String())
	case <-time.After(time.Second):
		t.Fatal("expected change")
	}

	stop()
	stop()
	require.NoError(t, r.SetRuntimeOverride(videoKey, String("runway")))
	require.Empty(t, changes)
}

func TestResolverGetNamespace(t *testing.T) {
	ns := &namespaceStore{
		mapStore: newMapStore(SourceParameterStore, map[string]Value{}),
		prefixes: map[string]map[string]Value{
			"ai.models": {"video.primary": String("runway")},
		},
	}
	r := NewResolver([]ValueStore{newMapStore(SourceDefault, map[string]Value{}), ns}, WithLogger(logging.Nop()))

	values, err := r.GetNamespace(context.Background(), "ai.models")
	require.NoError(t, err)
	require.Equal(t, "runway", values["video.primary"].String())

	ns.err = errors.New("denied")
	values, err = r.GetNamespace(context.Background(), "ai.models")
	var unavailable *reelerrors.SourceUnavailableError
	require.True(t, errors.As(err, &unavailable))
	require.Empty(t, values)

	empty := NewResolver(nil, WithLogger(logging.Nop()))
	values, err = empty.GetNamespace(context.Background(), "ai.models")
	require.NoError(t, err)
	require.Empty(t, values)
}

func TestResolverTypedHelpers(t *testing.T) {
	defaults := newMapStore(SourceDefault, map[string]Value{
		"ai.health.intervalSeconds": Number(300),
		"feature.enabled":           Bool(true),
		"ai.models.audio.engine":    String("neural"),
	})
	r := NewResolver([]ValueStore{defaults}, WithLogger(logging.Nop()))
	ctx := context.Background()

	require.Equal(t, 5*time.Minute, r.GetDuration(ctx, "ai.health.intervalSeconds", time.Minute, time.Second))
	require.Equal(t, 10*time.Second, r.GetDuration(ctx, "ai.health.probeTimeoutSeconds", 10*time.Second, time.Second))
	require.True(t, r.GetBool(ctx, "feature.enabled", false))
	require.Equal(t, "neural", r.GetString(ctx, "ai.models.audio.engine", ""))
	require.Equal(t, 7.0, r.GetNumber(ctx, "ai.models.audio.engine", 7))
}

func TestResolverInvalidateForcesRequery(t *testing.T) {
	params := newMapStore(SourceParameterStore, map[string]Value{videoKey: String("runway")})
	r := NewResolver([]ValueStore{params}, WithLogger(logging.Nop()))
	ctx := context.Background()

	r.Get(ctx, videoKey, Null())
	r.Invalidate(videoKey)
	r.Get(ctx, videoKey, Null())
	r.InvalidateAll()
	r.Get(ctx, videoKey, Null())
	require.EqualValues(t, 3, params.calls.Load())
}
