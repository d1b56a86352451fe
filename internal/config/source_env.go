package config

import (
	"context"
	"strings"

	"github.com/spf13/viper"

	reelerrors "reelpipe/internal/errors"
)

// EnvironmentStore reads keys from process environment variables named by
// EnvVarName.
type EnvironmentStore struct {
	v *viper.Viper
}

// NewEnvironmentStore binds viper's automatic env lookup to the key mapping.
func NewEnvironmentStore() *EnvironmentStore {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &EnvironmentStore{v: v}
}

func (s *EnvironmentStore) Source() Source {
	return SourceEnvironment
}

func (s *EnvironmentStore) Lookup(_ context.Context, key string) (Value, error) {
	raw := s.v.GetString(key)
	if raw == "" {
		return Null(), reelerrors.ErrConfigNotFound
	}
	return Parse(raw), nil
}
