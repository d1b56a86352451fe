package observability

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete observability configuration
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level    string `yaml:"level"`  // debug, info, warn, error
	Format   string `yaml:"format"` // json, text
	FilePath string `yaml:"file_path"`
}

// DefaultConfig returns the default observability configuration
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
			ServiceName:    "reelpipe",
			ServiceVersion: "1.0.0",
		},
	}
}

// LoadConfig reads the `observability:` block of a YAML file and merges it
// over the defaults. A missing file yields the defaults.
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig struct {
		Observability Config `yaml:"observability"`
	}
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}

	return merge(config, fileConfig.Observability), nil
}

// merge overlays the non-zero fields of override on base. The metrics and
// tracing Enabled flags are always taken from override.
func merge(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}
	if override.Logging.FilePath != "" {
		base.Logging.FilePath = override.Logging.FilePath
	}

	base.Metrics.Enabled = override.Metrics.Enabled
	if override.Metrics.PrometheusPort > 0 {
		base.Metrics.PrometheusPort = override.Metrics.PrometheusPort
	}

	base.Tracing.Enabled = override.Tracing.Enabled
	if override.Tracing.Exporter != "" {
		base.Tracing.Exporter = override.Tracing.Exporter
	}
	if override.Tracing.OTLPEndpoint != "" {
		base.Tracing.OTLPEndpoint = override.Tracing.OTLPEndpoint
	}
	if override.Tracing.ZipkinEndpoint != "" {
		base.Tracing.ZipkinEndpoint = override.Tracing.ZipkinEndpoint
	}
	// sample_rate 0 cannot be expressed here; disable tracing instead.
	if override.Tracing.SampleRate > 0 && override.Tracing.SampleRate <= 1.0 {
		base.Tracing.SampleRate = override.Tracing.SampleRate
	}
	if override.Tracing.ServiceName != "" {
		base.Tracing.ServiceName = override.Tracing.ServiceName
	}
	if override.Tracing.ServiceVersion != "" {
		base.Tracing.ServiceVersion = override.Tracing.ServiceVersion
	}
	return base
}
