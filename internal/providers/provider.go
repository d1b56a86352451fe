package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Category is a generation capability served by a fallback chain.
type Category string

const (
	CategoryContent Category = "content"
	CategoryVideo   Category = "video"
	CategoryAudio   Category = "audio"
)

// Categories lists every known category.
func Categories() []Category {
	return []Category{CategoryContent, CategoryVideo, CategoryAudio}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryContent, CategoryVideo, CategoryAudio:
		return c, nil
	default:
		return "", fmt.Errorf("unknown service category %q", s)
	}
}

// ErrUnknownProvider is returned when no provider is registered under a name.
var ErrUnknownProvider = errors.New("unknown provider")

// Request is one opaque generation call. Params are merged into the
// vendor payload verbatim.
type Request struct {
	Category Category       `json:"category"`
	Model    string         `json:"model"`
	Endpoint string         `json:"endpoint,omitempty"`
	Region   string         `json:"region,omitempty"`
	Prompt   string         `json:"prompt,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	// Probe asks for the cheapest call that proves the provider is reachable.
	Probe bool `json:"probe,omitempty"`
}

// Response is the provider's reply. Body holds decoded JSON; Raw holds the
// bytes as received, which for audio engines is the synthesized stream.
type Response struct {
	Provider    string         `json:"provider"`
	Model       string         `json:"model"`
	StatusCode  int            `json:"status_code"`
	ContentType string         `json:"content_type,omitempty"`
	Body        map[string]any `json:"body,omitempty"`
	Raw         []byte         `json:"-"`
}

// Valid reports whether the response is structurally usable.
func (r Response) Valid() bool {
	if r.Body != nil {
		return true
	}
	if len(r.Raw) == 0 {
		return false
	}
	if strings.Contains(r.ContentType, "json") {
		var v any
		return json.Unmarshal(r.Raw, &v) == nil
	}
	return true
}

// ModelProvider is one generation backend.
type ModelProvider interface {
	Name() string
	Invoke(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to ModelProvider.
type Func struct {
	ProviderName string
	Fn           func(ctx context.Context, req Request) (Response, error)
}

func (f Func) Name() string {
	return f.ProviderName
}

func (f Func) Invoke(ctx context.Context, req Request) (Response, error) {
	if f.Fn == nil {
		return Response{}, fmt.Errorf("provider %s has no implementation", f.ProviderName)
	}
	return f.Fn(ctx, req)
}

// ProbeRequest returns the minimal health-check request for category.
func ProbeRequest(category Category, model string) Request {
	req := Request{Category: category, Model: model, Probe: true}
	switch category {
	case CategoryContent:
		req.Prompt = "ping"
		req.Params = map[string]any{"max_tokens": 1}
	case CategoryAudio:
		req.Prompt = "ok"
	case CategoryVideo:
		req.Prompt = "health check"
	}
	return req
}

// Registry maps provider names to implementations.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ModelProvider
}

// NewRegistry returns a registry holding the given providers.
func NewRegistry(providers ...ModelProvider) *Registry {
	r := &Registry{providers: make(map[string]ModelProvider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces p under its name.
func (r *Registry) Register(p ModelProvider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(p.Name())] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (ModelProvider, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
