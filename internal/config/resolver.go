package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	reelerrors "reelpipe/internal/errors"
	"reelpipe/internal/logging"
)

// LookupRecorder receives one event per resolution.
type LookupRecorder interface {
	RecordConfigLookup(ctx context.Context, source string, cached bool)
}

// Resolver resolves keys through the source precedence chain with caching,
// runtime overrides and change notification.
type Resolver struct {
	runtime   *RuntimeStore
	stores    []ValueStore
	cache     *Cache
	listeners *listenerRegistry
	group     singleflight.Group
	logger    logging.Logger
	recorder  LookupRecorder
	now       func() time.Time
	ttl       time.Duration

	// generation is bumped by every invalidation so that an in-flight
	// resolution never caches a value read before an override mutation.
	generation atomic.Uint64
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithCacheTTL sets the default cache TTL (default 5m).
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock injects the time source used for cache validity.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger logging.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logging.OrNop(logger)
	}
}

// WithLookupRecorder reports every resolution to recorder.
func WithLookupRecorder(recorder LookupRecorder) ResolverOption {
	return func(r *Resolver) {
		r.recorder = recorder
	}
}

// WithRuntimeStore shares an existing override store.
func WithRuntimeStore(store *RuntimeStore) ResolverOption {
	return func(r *Resolver) {
		if store != nil {
			r.runtime = store
		}
	}
}

// NewResolver builds a resolver over stores. Stores are ordered by their
// Source precedence; a RuntimeStore in the list replaces the built-in one.
func NewResolver(stores []ValueStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		runtime: NewRuntimeStore(),
		logger:  logging.NewComponentLogger("config-resolver"),
		now:     time.Now,
		ttl:     5 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}

	ordered := make([]ValueStore, 0, len(stores))
	for _, s := range stores {
		if s == nil {
			continue
		}
		if rt, ok := s.(*RuntimeStore); ok {
			r.runtime = rt
			continue
		}
		ordered = append(ordered, s)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Source() < ordered[j].Source() })
	r.stores = ordered

	r.cache = NewCache(r.ttl, r.now)
	r.listeners = newListenerRegistry(r.logger)
	return r
}

// GetOption customizes a single Get.
type GetOption func(*getOptions)

type getOptions struct {
	ttl       time.Duration
	skipCache bool
}

// WithTTL caches this resolution for ttl instead of the default.
func WithTTL(ttl time.Duration) GetOption {
	return func(o *getOptions) { o.ttl = ttl }
}

// SkipCache forces a walk of the source chain. The result is still cached.
func SkipCache() GetOption {
	return func(o *getOptions) { o.skipCache = true }
}

type resolution struct {
	value  Value
	source Source
	found  bool
}

// Get resolves key. When no source has it, def is returned with SourceNone
// and the miss is cached like a hit.
func (r *Resolver) Get(ctx context.Context, key string, def Value, opts ...GetOption) (Value, Source) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !o.skipCache {
		if entry, ok := r.cache.Get(key); ok {
			r.record(ctx, entry.Source, true)
			if entry.Source == SourceNone {
				return def, SourceNone
			}
			return entry.Value, entry.Source
		}
	}

	flightKey := key
	if o.skipCache {
		flightKey = "!" + key
	}
	res, _, _ := r.group.Do(flightKey, func() (any, error) {
		return r.resolve(ctx, key, o.ttl), nil
	})
	resolved := res.(resolution)
	if !resolved.found {
		r.logger.Debug("No source has %s, using caller default", key)
		r.record(ctx, SourceNone, false)
		return def, SourceNone
	}
	r.record(ctx, resolved.source, false)
	return resolved.value, resolved.source
}

func (r *Resolver) resolve(ctx context.Context, key string, ttl time.Duration) resolution {
	gen := r.generation.Load()

	chain := make([]ValueStore, 0, len(r.stores)+1)
	chain = append(chain, r.runtime)
	chain = append(chain, r.stores...)

	for _, store := range chain {
		v, err := store.Lookup(ctx, key)
		if err != nil {
			if !errors.Is(err, reelerrors.ErrConfigNotFound) {
				unavailable := &reelerrors.SourceUnavailableError{Source: store.Source().String(), Key: key, Err: err}
				r.logger.Warn("%v", unavailable)
			}
			continue
		}
		if r.generation.Load() == gen {
			r.cache.Set(key, v, store.Source(), ttl)
		}
		return resolution{value: v, source: store.Source(), found: true}
	}
	// Misses are cached like hits.
	if r.generation.Load() == gen {
		r.cache.Set(key, Null(), SourceNone, ttl)
	}
	return resolution{}
}

func (r *Resolver) record(ctx context.Context, source Source, cached bool) {
	if r.recorder != nil {
		r.recorder.RecordConfigLookup(ctx, source.String(), cached)
	}
}

// GetString resolves key and renders it as a string.
func (r *Resolver) GetString(ctx context.Context, key, def string) string {
	v, source := r.Get(ctx, key, String(def))
	if source == SourceNone || v.IsNull() {
		return def
	}
	return v.String()
}

// GetNumber resolves key as a number, falling back to def on absence or a
// non-numeric value.
func (r *Resolver) GetNumber(ctx context.Context, key string, def float64) float64 {
	v, _ := r.Get(ctx, key, Number(def))
	if n, ok := v.AsNumber(); ok {
		return n
	}
	r.logger.Warn("Config %s is %s, expected number; using %v", key, v.Kind(), def)
	return def
}

// GetBool resolves key as a bool.
func (r *Resolver) GetBool(ctx context.Context, key string, def bool) bool {
	v, _ := r.Get(ctx, key, Bool(def))
	if b, ok := v.AsBool(); ok {
		return b
	}
	return def
}

// OverrideOption customizes SetRuntimeOverride.
type OverrideOption func(*overrideOptions)

type overrideOptions struct {
	schema *Schema
}

// WithSchema validates the override before it is stored.
func WithSchema(schema Schema) OverrideOption {
	return func(o *overrideOptions) { o.schema = &schema }
}

// SetRuntimeOverride stores value as the highest-precedence source for key,
// invalidates its cache entry and notifies listeners synchronously. A
// schema violation returns *errors.ConfigValidationError and changes nothing.
func (r *Resolver) SetRuntimeOverride(key string, value Value, opts ...OverrideOption) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &reelerrors.ConfigValidationError{Key: key, Problems: []string{"key is required"}}
	}
	var o overrideOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.schema != nil {
		if err := o.schema.Validate(key, value); err != nil {
			return err
		}
	}

	prev, _ := r.runtime.Set(key, value)
	r.Invalidate(key)
	r.logger.Info("Runtime override set for %s", key)
	r.listeners.notify(Change{Key: key, Value: value, Previous: prev})
	return nil
}

// ClearRuntimeOverride removes the override for key and notifies listeners
// with a null value.
func (r *Resolver) ClearRuntimeOverride(key string) {
	prev, existed := r.runtime.Delete(key)
	r.Invalidate(key)
	if existed {
		r.logger.Info("Runtime override cleared for %s", key)
	}
	r.listeners.notify(Change{Key: key, Value: Null(), Previous: prev, Cleared: true})
}

// RuntimeOverrides lists the overridden keys under prefix.
func (r *Resolver) RuntimeOverrides(prefix string) []string {
	keys := r.runtime.Keys(prefix)
	sort.Strings(keys)
	return keys
}

// AddChangeListener registers l for override changes on key.
func (r *Resolver) AddChangeListener(key string, l Listener) Subscription {
	return r.listeners.add(key, l)
}

// RemoveChangeListener unregisters a listener.
func (r *Resolver) RemoveChangeListener(sub Subscription) {
	sub.Unsubscribe()
}

// Watch returns a channel of changes for key. Changes are dropped when the
// buffer is full. Call the returned function to stop watching.
func (r *Resolver) Watch(key string, buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Change, buffer)
	done := make(chan struct{})
	sub := r.AddChangeListener(key, ListenerFunc(func(change Change) error {
		select {
		case <-done:
		case ch <- change:
		default:
			return fmt.Errorf("watch buffer full, dropped change for %s", key)
		}
		return nil
	}))

	var stopped atomic.Bool
	stop := func() {
		if stopped.CompareAndSwap(false, true) {
			sub.Unsubscribe()
			close(done)
		}
	}
	return ch, stop
}

// GetNamespace bulk-reads every key under prefix from the hierarchical
// store, bypassing the per-key cache. Keys are dotted suffixes relative to
// prefix.
func (r *Resolver) GetNamespace(ctx context.Context, prefix string) (map[string]Value, error) {
	for _, store := range r.stores {
		ns, ok := store.(NamespaceStore)
		if !ok {
			continue
		}
		values, err := ns.LookupPrefix(ctx, prefix)
		if err != nil {
			return map[string]Value{}, &reelerrors.SourceUnavailableError{Source: store.Source().String(), Key: prefix, Err: err}
		}
		return values, nil
	}
	return map[string]Value{}, nil
}

// Invalidate drops the cached resolution for key.
func (r *Resolver) Invalidate(key string) {
	r.generation.Add(1)
	r.cache.Invalidate(key)
}

// forgetter is implemented by stores that keep their own document cache.
type forgetter interface {
	Forget()
}

// InvalidateAll drops every cached resolution, including documents cached
// inside stores.
func (r *Resolver) InvalidateAll() {
	r.generation.Add(1)
	r.cache.InvalidateAll()
	for _, store := range r.stores {
		if f, ok := store.(forgetter); ok {
			f.Forget()
		}
	}
}

// Cache exposes the resolution cache, mainly for lifecycle management.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// GetInt resolves key as a number truncated to int.
func (r *Resolver) GetInt(ctx context.Context, key string, def int) int {
	return int(r.GetNumber(ctx, key, float64(def)))
}

// GetDuration resolves a numeric key expressed in unit.
func (r *Resolver) GetDuration(ctx context.Context, key string, def, unit time.Duration) time.Duration {
	if unit <= 0 {
		unit = time.Second
	}
	n := r.GetNumber(ctx, key, float64(def)/float64(unit))
	return time.Duration(n * float64(unit))
}
