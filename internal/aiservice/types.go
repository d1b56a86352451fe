package aiservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reelpipe/internal/config"
	"reelpipe/internal/providers"
)

// ModelConfig is one provider/model choice in a fallback chain.
type ModelConfig struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Endpoint string         `json:"endpoint,omitempty"`
	Region   string         `json:"region,omitempty"`
	Tunables map[string]any `json:"tunables,omitempty"`
}

// Key identifies the breaker and performance counters for cfg in category.
func (c ModelConfig) Key(category providers.Category) string {
	return string(category) + ":" + c.Provider + ":" + c.Model
}

// Request builds a provider request from cfg, overlaying params on the
// configured tunables.
func (c ModelConfig) Request(category providers.Category, prompt string, params map[string]any) providers.Request {
	merged := make(map[string]any, len(c.Tunables)+len(params))
	for k, v := range c.Tunables {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return providers.Request{
		Category: category,
		Model:    c.Model,
		Endpoint: c.Endpoint,
		Region:   c.Region,
		Prompt:   prompt,
		Params:   merged,
	}
}

func (c ModelConfig) clone() ModelConfig {
	if c.Tunables != nil {
		tunables := make(map[string]any, len(c.Tunables))
		for k, v := range c.Tunables {
			tunables[k] = v
		}
		c.Tunables = tunables
	}
	return c
}

// ServiceConfiguration is the fallback chain for a category.
type ServiceConfiguration struct {
	Primary   ModelConfig  `json:"primary"`
	Fallback  *ModelConfig `json:"fallback,omitempty"`
	Emergency *ModelConfig `json:"emergency,omitempty"`
}

// Tier names a position in the fallback chain.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierFallback  Tier = "fallback"
	TierEmergency Tier = "emergency"
)

type tierConfig struct {
	tier Tier
	cfg  ModelConfig
}

func (s ServiceConfiguration) chain() []tierConfig {
	out := []tierConfig{{tier: TierPrimary, cfg: s.Primary}}
	if s.Fallback != nil {
		out = append(out, tierConfig{tier: TierFallback, cfg: *s.Fallback})
	}
	if s.Emergency != nil {
		out = append(out, tierConfig{tier: TierEmergency, cfg: *s.Emergency})
	}
	return out
}

// ErrNoModelConfig reports a category with no ai.models entry.
var ErrNoModelConfig = errors.New("no model configuration")

// LoadServiceConfiguration reads ai.models.<category> through the resolver.
// Each call returns fresh copies.
func LoadServiceConfiguration(ctx context.Context, resolver *config.Resolver, category providers.Category) (ServiceConfiguration, error) {
	key := "ai.models." + string(category)
	v, source := resolver.Get(ctx, key, config.Null())
	if source == config.SourceNone || v.IsNull() {
		return ServiceConfiguration{}, fmt.Errorf("%w at %s", ErrNoModelConfig, key)
	}
	var out ServiceConfiguration
	if err := v.Decode(&out); err != nil {
		return ServiceConfiguration{}, fmt.Errorf("decode %s from %s: %w", key, source, err)
	}
	if out.Primary.Provider == "" {
		return ServiceConfiguration{}, fmt.Errorf("%s has no primary provider", key)
	}
	return out, nil
}

// Requirements narrows a selection.
type Requirements struct {
	// ExcludeProviders skips tiers whose provider is listed.
	ExcludeProviders []string `json:"exclude_providers,omitempty"`
}

func (r Requirements) excludes(provider string) bool {
	for _, p := range r.ExcludeProviders {
		if p == provider {
			return true
		}
	}
	return false
}

// Selection is the outcome of SelectModel.
type Selection struct {
	DecisionID string             `json:"decision_id"`
	Category   providers.Category `json:"category"`
	Tier       Tier               `json:"tier"`
	Config     ModelConfig        `json:"config"`
	// Degraded is set when no tier was healthy and the primary was returned anyway.
	Degraded   bool                    `json:"degraded"`
	SelectedAt time.Time               `json:"selected_at"`
	Provider   providers.ModelProvider `json:"-"`
}
