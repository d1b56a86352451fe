package cost

import (
	"context"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"reelpipe/internal/config"
	"reelpipe/internal/logging"
	"reelpipe/internal/providers"
)

// Rate units.
const (
	UnitPerMillionTokens = "per-million-tokens"
	UnitPerMinute        = "per-minute"
	UnitPerMillionChars  = "per-million-chars"
)

const (
	defaultRateKey = "default"
	// Narration pace used to size audio when no text is supplied.
	charsPerSecond = 18.75
	minAudioChars  = 150
)

// ErrRateNotFound is returned when neither the provider nor the default rate exists.
var ErrRateNotFound = errors.New("cost rate not found")

// Rate is one price entry from cost.rates.<service>.
type Rate struct {
	Service      providers.Category `json:"service"`
	Provider     string             `json:"provider"`
	Unit         string             `json:"unit"`
	PricePerUnit float64            `json:"price_per_unit"`
	// Fallback is set when the provider had no entry and the default applied.
	Fallback bool `json:"fallback"`
}

// Usage describes what a generation consumed or is expected to consume.
// Provider selects the content or video rate; Engine selects the audio rate.
type Usage struct {
	Provider        string  `json:"provider,omitempty"`
	Engine          string  `json:"engine,omitempty"`
	Tokens          int64   `json:"tokens,omitempty"`
	Prompt          string  `json:"prompt,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Characters      int64   `json:"characters,omitempty"`
	Text            string  `json:"text,omitempty"`
}

// Details explains how an estimate was computed.
type Details struct {
	Rate     Rate    `json:"rate"`
	Quantity float64 `json:"quantity"`
	Basis    string  `json:"basis"`
}

// Estimate is the cost of one service component, rounded to 4 decimals.
type Estimate struct {
	Service       providers.Category `json:"service"`
	EstimatedCost float64            `json:"estimated_cost"`
	Details       Details            `json:"details"`
}

// GenerationUsage groups the components of one end-to-end generation.
type GenerationUsage struct {
	Content *Usage `json:"content,omitempty"`
	Video   *Usage `json:"video,omitempty"`
	Audio   *Usage `json:"audio,omitempty"`
}

// GenerationEstimate is the sum of its components, rounded to 2 decimals.
type GenerationEstimate struct {
	Components []Estimate `json:"components"`
	Total      float64    `json:"total"`
}

// Recorder receives every computed estimate.
type Recorder interface {
	RecordEstimatedCost(ctx context.Context, service, provider string, cost float64)
}

// Estimator prices usage against the rate tables served by the resolver.
type Estimator struct {
	resolver *config.Resolver
	counter  TokenCounter
	recorder Recorder
	logger   logging.Logger
}

// Option customizes an Estimator.
type Option func(*Estimator)

// WithTokenCounter replaces the tiktoken counter.
func WithTokenCounter(counter TokenCounter) Option {
	return func(e *Estimator) {
		if counter != nil {
			e.counter = counter
		}
	}
}

// WithRecorder reports estimates to r.
func WithRecorder(r Recorder) Option {
	return func(e *Estimator) { e.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Estimator) { e.logger = logging.OrNop(logger) }
}

// NewEstimator builds an estimator over resolver.
func NewEstimator(resolver *config.Resolver, opts ...Option) *Estimator {
	e := &Estimator{
		resolver: resolver,
		counter:  &TiktokenCounter{},
		logger:   logging.NewComponentLogger("cost"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func defaultUnit(service providers.Category) string {
	switch service {
	case providers.CategoryVideo:
		return UnitPerMinute
	case providers.CategoryAudio:
		return UnitPerMillionChars
	default:
		return UnitPerMillionTokens
	}
}

// Rate returns the rate for provider in service, falling back to the
// table's default entry.
func (e *Estimator) Rate(ctx context.Context, service providers.Category, provider string) (Rate, error) {
	key := "cost.rates." + string(service)
	table, source := e.resolver.Get(ctx, key, config.Null())
	if source == config.SourceNone || table.Kind() != config.KindObject {
		return Rate{}, fmt.Errorf("%w: %s has no rate table", ErrRateNotFound, key)
	}

	entry, ok := table.Lookup(provider)
	fallback := false
	if !ok || provider == "" {
		entry, ok = table.Lookup(defaultRateKey)
		fallback = true
	}
	if !ok {
		return Rate{}, fmt.Errorf("%w: %s[%s]", ErrRateNotFound, key, provider)
	}

	rate := Rate{Service: service, Provider: provider, Unit: defaultUnit(service), Fallback: fallback}
	switch entry.Kind() {
	case config.KindNumber:
		rate.PricePerUnit, _ = entry.AsNumber()
	case config.KindString:
		n, ok := config.Parse(entry.String()).AsNumber()
		if !ok {
			return Rate{}, fmt.Errorf("%s[%s]: %q is not a price", key, provider, entry.String())
		}
		rate.PricePerUnit = n
	case config.KindObject:
		var obj struct {
			PricePerUnit *float64 `json:"pricePerUnit"`
			Unit         string   `json:"unit"`
		}
		if err := entry.Decode(&obj); err != nil || obj.PricePerUnit == nil {
			return Rate{}, fmt.Errorf("%s[%s]: rate object needs pricePerUnit", key, provider)
		}
		rate.PricePerUnit = *obj.PricePerUnit
		if obj.Unit != "" {
			rate.Unit = obj.Unit
		}
	default:
		return Rate{}, fmt.Errorf("%s[%s]: unsupported rate of kind %s", key, provider, entry.Kind())
	}
	if rate.PricePerUnit < 0 {
		return Rate{}, fmt.Errorf("%s[%s]: negative price %v", key, provider, rate.PricePerUnit)
	}
	if fallback {
		e.logger.Debug("No %s rate for %q, using default", service, provider)
	}
	return rate, nil
}

// Estimate prices one service component.
func (e *Estimator) Estimate(ctx context.Context, service providers.Category, usage Usage) (Estimate, error) {
	var (
		rateKey  string
		quantity float64
		basis    string
	)
	switch service {
	case providers.CategoryContent:
		rateKey = usage.Provider
		tokens := usage.Tokens
		basis = "tokens"
		if tokens <= 0 && usage.Prompt != "" {
			tokens = int64(e.counter.CountTokens(usage.Prompt))
			basis = "counted tokens"
		}
		quantity = float64(tokens) / 1e6
	case providers.CategoryVideo:
		rateKey = usage.Provider
		quantity = usage.DurationSeconds / 60
		basis = "minutes"
	case providers.CategoryAudio:
		rateKey = usage.Engine
		if rateKey == "" {
			rateKey = usage.Provider
		}
		chars, how := audioChars(usage)
		quantity = chars / 1e6
		basis = how
	default:
		return Estimate{}, fmt.Errorf("unknown service category %q", service)
	}
	if quantity < 0 {
		return Estimate{}, fmt.Errorf("%s usage must not be negative", service)
	}

	rate, err := e.Rate(ctx, service, rateKey)
	if err != nil {
		return Estimate{}, err
	}

	out := Estimate{
		Service:       service,
		EstimatedCost: roundTo(quantity*rate.PricePerUnit, 4),
		Details:       Details{Rate: rate, Quantity: quantity, Basis: basis},
	}
	if e.recorder != nil {
		e.recorder.RecordEstimatedCost(ctx, string(service), rateKey, out.EstimatedCost)
	}
	return out, nil
}

// audioChars sizes narration. A duration-derived count stays fractional.
func audioChars(u Usage) (float64, string) {
	if u.Characters > 0 {
		return float64(u.Characters), "characters"
	}
	if u.Text != "" {
		return float64(utf8.RuneCountInString(u.Text)), "text characters"
	}
	return math.Max(minAudioChars, u.DurationSeconds*charsPerSecond), "duration-derived characters"
}

// EstimateGeneration prices every supplied component and totals them.
func (e *Estimator) EstimateGeneration(ctx context.Context, usage GenerationUsage) (GenerationEstimate, error) {
	var out GenerationEstimate
	components := []struct {
		service providers.Category
		usage   *Usage
	}{
		{providers.CategoryContent, usage.Content},
		{providers.CategoryVideo, usage.Video},
		{providers.CategoryAudio, usage.Audio},
	}
	sum := 0.0
	for _, c := range components {
		if c.usage == nil {
			continue
		}
		est, err := e.Estimate(ctx, c.service, *c.usage)
		if err != nil {
			return GenerationEstimate{}, fmt.Errorf("estimate %s: %w", c.service, err)
		}
		out.Components = append(out.Components, est)
		sum += est.EstimatedCost
	}
	out.Total = roundTo(sum, 2)
	return out, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
