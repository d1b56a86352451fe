package config

import (
	"fmt"
	"sync"

	"reelpipe/internal/logging"
)

// Change describes a runtime override mutation. Value is null when the
// override was cleared.
type Change struct {
	Key      string `json:"key"`
	Value    Value  `json:"value"`
	Previous Value  `json:"previous"`
	Cleared  bool   `json:"cleared"`
}

// Listener observes override changes for one key.
type Listener interface {
	OnConfigChange(change Change) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(change Change) error

func (f ListenerFunc) OnConfigChange(change Change) error {
	return f(change)
}

// Subscription identifies one registered listener.
type Subscription struct {
	key      string
	id       uint64
	registry *listenerRegistry
}

// Key returns the watched configuration key.
func (s Subscription) Key() string {
	return s.key
}

// Unsubscribe removes the listener. It is safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.registry != nil {
		s.registry.remove(s)
	}
}

type listenerRegistry struct {
	mu        sync.RWMutex
	listeners map[string]map[uint64]Listener
	nextID    uint64
	logger    logging.Logger
}

func newListenerRegistry(logger logging.Logger) *listenerRegistry {
	return &listenerRegistry{
		listeners: make(map[string]map[uint64]Listener),
		logger:    logging.OrNop(logger),
	}
}

func (r *listenerRegistry) add(key string, l Listener) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	if r.listeners[key] == nil {
		r.listeners[key] = make(map[uint64]Listener)
	}
	r.listeners[key][r.nextID] = l
	return Subscription{key: key, id: r.nextID, registry: r}
}

func (r *listenerRegistry) remove(s Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID := r.listeners[s.key]
	delete(byID, s.id)
	if len(byID) == 0 {
		delete(r.listeners, s.key)
	}
}

func (r *listenerRegistry) count(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[key])
}

// notify delivers change to every listener for its key. Failures are
// logged and never stop delivery.
func (r *listenerRegistry) notify(change Change) {
	r.mu.RLock()
	targets := make([]Listener, 0, len(r.listeners[change.Key]))
	for _, l := range r.listeners[change.Key] {
		targets = append(targets, l)
	}
	r.mu.RUnlock()

	for _, l := range targets {
		if err := r.deliver(l, change); err != nil {
			r.logger.Warn("Config listener for %s failed: %v", change.Key, err)
		}
	}
}

func (r *listenerRegistry) deliver(l Listener, change Change) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener panic: %v", rec)
		}
	}()
	return l.OnConfigChange(change)
}
