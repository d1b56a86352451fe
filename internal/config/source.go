package config

import (
	"context"
	"strings"
	"sync"

	reelerrors "reelpipe/internal/errors"
)

// Source identifies where a resolved value came from.
type Source int

// Sources in precedence order, highest first.
const (
	SourceRuntimeOverride Source = iota
	SourceParameterStore
	SourceSecretStore
	SourceObjectStorage
	SourceEnvironment
	SourceDefault
	// SourceNone marks the caller-supplied fallback when no source had the key.
	SourceNone
)

func (s Source) String() string {
	switch s {
	case SourceRuntimeOverride:
		return "runtime_override"
	case SourceParameterStore:
		return "parameter_store"
	case SourceSecretStore:
		return "secret_store"
	case SourceObjectStorage:
		return "object_storage"
	case SourceEnvironment:
		return "environment"
	case SourceDefault:
		return "default"
	default:
		return "none"
	}
}

// ValueStore is one configuration source. Lookup returns
// errors.ErrConfigNotFound when the store has no entry for key; any other
// error means the store itself is unavailable.
type ValueStore interface {
	Source() Source
	Lookup(ctx context.Context, key string) (Value, error)
}

// NamespaceStore is a hierarchical store that can list every key under a prefix.
type NamespaceStore interface {
	ValueStore
	LookupPrefix(ctx context.Context, prefix string) (map[string]Value, error)
}

// RuntimeStore holds programmatic overrides.
type RuntimeStore struct {
	mu     sync.RWMutex
	values map[string]Value
}

// NewRuntimeStore returns an empty override store.
func NewRuntimeStore() *RuntimeStore {
	return &RuntimeStore{values: make(map[string]Value)}
}

func (s *RuntimeStore) Source() Source {
	return SourceRuntimeOverride
}

func (s *RuntimeStore) Lookup(_ context.Context, key string) (Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return Null(), reelerrors.ErrConfigNotFound
}

// Set stores an override and returns the previous one, if any.
func (s *RuntimeStore) Set(key string, value Value) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.values[key]
	s.values[key] = value
	return prev, ok
}

// Delete removes an override and returns it, if any.
func (s *RuntimeStore) Delete(key string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.values[key]
	delete(s.values, key)
	return prev, ok
}

// Keys lists overridden keys, optionally restricted to a dotted prefix.
func (s *RuntimeStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		if prefix == "" || k == prefix || strings.HasPrefix(k, prefix+".") {
			keys = append(keys, k)
		}
	}
	return keys
}
