package config

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseClassifiesRawStrings(t *testing.T) {
	cases := []struct {
		raw  string
		kind Kind
		want any
	}{
		{raw: `{"provider":"runway"}`, kind: KindObject, want: map[string]any{"provider": "runway"}},
		{raw: `["a","b"]`, kind: KindObject, want: []any{"a", "b"}},
		{raw: "true", kind: KindBool, want: true},
		{raw: "false", kind: KindBool, want: false},
		{raw: "42", kind: KindNumber, want: float64(42)},
		{raw: "-0.25", kind: KindNumber, want: -0.25},
		{raw: "1e3", kind: KindString, want: "1e3"},
		{raw: "{not json}", kind: KindString, want: "{not json}"},
		{raw: "gen3a_turbo", kind: KindString, want: "gen3a_turbo"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			v := Parse(tc.raw)
			require.Equal(t, tc.kind, v.Kind())
			require.Equal(t, tc.want, v.Interface())
		})
	}
}

func TestFromAnyNormalizesYAMLNumbers(t *testing.T) {
	var tree map[string]any
	require.NoError(t, yaml.Unmarshal([]byte("rates:\n  runway: 3\n  luma: 1.92\n"), &tree))

	v := FromAny(tree)
	require.Equal(t, KindObject, v.Kind())

	runway, ok := v.Lookup("rates", "runway")
	require.True(t, ok)
	n, ok := runway.AsNumber()
	require.True(t, ok)
	require.Equal(t, 3.0, n)

	_, ok = v.Lookup("rates", "pika")
	require.False(t, ok)
}

func TestValueEqualAndDecode(t *testing.T) {
	a := Parse(`{"provider":"luma","model":"ray-2"}`)
	b := Object(map[string]any{"model": "ray-2", "provider": "luma"})
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(String(a.String())))
	require.True(t, Number(3).Equal(Number(3)))

	var target struct {
		Provider string `json:"provider"`
		Model    string `json:"model"`
	}
	require.NoError(t, a.Decode(&target))
	require.Equal(t, "luma", target.Provider)
	require.Equal(t, "ray-2", target.Model)
}

func TestValueJSONRoundTripKeepsKind(t *testing.T) {
	data, err := Number(0.8).MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "0.8", string(data))

	var v Value
	require.NoError(t, v.UnmarshalJSON([]byte(`"neural"`)))
	require.Equal(t, KindString, v.Kind())
	require.Equal(t, "neural", v.String())
}
