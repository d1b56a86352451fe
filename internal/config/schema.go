package config

import (
	"fmt"
	"strings"

	reelerrors "reelpipe/internal/errors"
)

// Schema constrains a runtime override.
type Schema struct {
	Type     Kind    // KindNull accepts any type
	Required bool    // rejects null and blank strings
	Enum     []Value // when non-empty the value must equal one member
}

// Validate returns a *errors.ConfigValidationError listing every violation.
func (s Schema) Validate(key string, v Value) error {
	var problems []string

	blank := v.IsNull()
	if str, ok := v.AsString(); ok && strings.TrimSpace(str) == "" {
		blank = true
	}
	if s.Required && blank {
		problems = append(problems, "value is required")
	}
	if s.Type != KindNull && !v.IsNull() && v.Kind() != s.Type {
		problems = append(problems, fmt.Sprintf("expected %s, got %s", s.Type, v.Kind()))
	}
	if len(s.Enum) > 0 && !v.IsNull() {
		allowed := false
		names := make([]string, 0, len(s.Enum))
		for _, option := range s.Enum {
			names = append(names, option.String())
			if option.Equal(v) {
				allowed = true
			}
		}
		if !allowed {
			problems = append(problems, fmt.Sprintf("%q is not one of [%s]", v.String(), strings.Join(names, ", ")))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &reelerrors.ConfigValidationError{Key: key, Problems: problems}
}
