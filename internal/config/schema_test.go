package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	reelerrors "reelpipe/internal/errors"
)

func TestSchemaValidate(t *testing.T) {
	schema := Schema{
		Type:     KindString,
		Required: true,
		Enum:     []Value{String("neural"), String("standard")},
	}

	require.NoError(t, schema.Validate("ai.models.audio.engine", String("neural")))

	err := schema.Validate("ai.models.audio.engine", String("turbo"))
	var validation *reelerrors.ConfigValidationError
	require.True(t, errors.As(err, &validation))
	require.Equal(t, "ai.models.audio.engine", validation.Key)
	require.Len(t, validation.Problems, 1)

	err = schema.Validate("ai.models.audio.engine", Number(3))
	require.True(t, errors.As(err, &validation))
	require.Len(t, validation.Problems, 2)

	err = schema.Validate("ai.models.audio.engine", String("  "))
	require.True(t, errors.As(err, &validation))
	require.Contains(t, validation.Problems, "value is required")
}

func TestSchemaAnyTypeAcceptsEverything(t *testing.T) {
	require.NoError(t, Schema{}.Validate("k", Null()))
	require.NoError(t, Schema{}.Validate("k", Parse(`{"a":1}`)))
}
