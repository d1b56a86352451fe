package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	reelerrors "reelpipe/internal/errors"
)

//go:embed defaults.yaml
var builtinDefaults []byte

// DefaultStore serves the static defaults shipped with the binary, optionally
// overlaid by a local YAML file.
type DefaultStore struct {
	root Value
}

// NewDefaultStore loads the embedded defaults and merges extraFile over them
// when it is non-empty.
func NewDefaultStore(extraFile string) (*DefaultStore, error) {
	base, err := decodeDefaults(builtinDefaults)
	if err != nil {
		return nil, fmt.Errorf("embedded defaults: %w", err)
	}
	if path := strings.TrimSpace(extraFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read defaults file: %w", err)
		}
		extra, err := decodeDefaults(data)
		if err != nil {
			return nil, fmt.Errorf("defaults file %s: %w", path, err)
		}
		base = mergeMaps(base, extra)
	}
	return &DefaultStore{root: FromAny(base)}, nil
}

// NewDefaultStoreFromMap builds a store over an in-memory tree.
func NewDefaultStoreFromMap(tree map[string]any) *DefaultStore {
	return &DefaultStore{root: FromAny(tree)}
}

func (s *DefaultStore) Source() Source {
	return SourceDefault
}

func (s *DefaultStore) Lookup(_ context.Context, key string) (Value, error) {
	v, ok := s.root.Lookup(strings.Split(key, ".")...)
	if !ok || v.IsNull() {
		return Null(), reelerrors.ErrConfigNotFound
	}
	return v, nil
}

func decodeDefaults(data []byte) (map[string]any, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}

func mergeMaps(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		if nested, ok := v.(map[string]any); ok {
			if existing, ok := out[k].(map[string]any); ok {
				out[k] = mergeMaps(existing, nested)
				continue
			}
		}
		out[k] = v
	}
	return out
}
