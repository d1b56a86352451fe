package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Bootstrap is the process-level configuration needed before the resolver
// exists: where the sources live and how the process logs and serves.
type Bootstrap struct {
	App               string        `mapstructure:"app"`
	Environment       string        `mapstructure:"environment"`
	Region            string        `mapstructure:"region"`
	ConfigBucket      string        `mapstructure:"config_bucket"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	DocumentTTL       time.Duration `mapstructure:"document_ttl"`
	DefaultsFile      string        `mapstructure:"defaults_file"`
	DisableAWS        bool          `mapstructure:"disable_aws"`
	AdminAddr         string        `mapstructure:"admin_addr"`
	ObservabilityFile string        `mapstructure:"observability_file"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	LogFile           string        `mapstructure:"log_file"`
}

// DefaultBootstrap returns the built-in bootstrap settings.
func DefaultBootstrap() Bootstrap {
	return Bootstrap{
		App:         "reelpipe",
		Environment: "dev",
		Region:      "us-east-1",
		CacheTTL:    5 * time.Minute,
		DocumentTTL: time.Minute,
		AdminAddr:   ":8090",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// LoadBootstrap reads bootstrap settings from an optional file and from
// REELPIPE_* environment variables, e.g. "config_bucket" becomes
// REELPIPE_CONFIG_BUCKET. An empty path searches for reelpipe.yaml in the
// working directory.
func LoadBootstrap(path string) (Bootstrap, error) {
	cfg := DefaultBootstrap()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("reelpipe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("REELPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read bootstrap config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode bootstrap config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports missing required settings.
func (b Bootstrap) Validate() error {
	var missing []string
	if strings.TrimSpace(b.App) == "" {
		missing = append(missing, "app")
	}
	if strings.TrimSpace(b.Environment) == "" {
		missing = append(missing, "environment")
	}
	if len(missing) > 0 {
		return fmt.Errorf("bootstrap config missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Keys returns the key mapping for this application and environment.
func (b Bootstrap) Keys() KeyMapper {
	return KeyMapper{App: b.App, Environment: b.Environment}
}

// bindEnvs registers every field of cfg so Unmarshal sees env-only values.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
