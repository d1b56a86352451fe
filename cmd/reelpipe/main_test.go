package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"reelpipe/internal/config"
	"reelpipe/internal/di"
	reelerrors "reelpipe/internal/errors"
	"reelpipe/internal/providers"
)

func run(t *testing.T, opts []di.Option, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	cmd := newRootCmd(opts...)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--no-aws"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigGetReportsSource(t *testing.T) {
	out, err := run(t, nil, "config", "get", "ai.models.audio.primary.provider", "-o", "json")
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Equal(t, "polly", payload["value"])
	require.Equal(t, "default", payload["source"])
}

func TestConfigGetMissingKey(t *testing.T) {
	_, err := run(t, nil, "config", "get", "no.such.key")
	require.ErrorContains(t, err, "no.such.key is not configured")

	out, err := run(t, nil, "config", "get", "no.such.key", "--default", "42", "-o", "json")
	require.NoError(t, err)
	require.Contains(t, out, `"source": "none"`)
}

func TestEstimateUsesDefaultRates(t *testing.T) {
	out, err := run(t, nil, "estimate", "--video-provider", "runway", "--video-seconds", "10", "-o", "json")
	require.NoError(t, err)

	var payload struct {
		Total float64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.InDelta(t, 0.5, payload.Total, 1e-9)

	_, err = run(t, nil, "estimate")
	require.ErrorContains(t, err, "nothing to estimate")
}

func TestSelectStrictExitsOnDegraded(t *testing.T) {
	tree := map[string]any{
		"ai": map[string]any{
			"models": map[string]any{
				"video": map[string]any{
					"primary": map[string]any{"provider": "runway", "model": "gen3a_turbo"},
				},
			},
		},
	}
	down := providers.Func{
		ProviderName: "runway",
		Fn: func(context.Context, providers.Request) (providers.Response, error) {
			return providers.Response{}, reelerrors.NewPermanentError(errors.New("unauthorized"), http.StatusUnauthorized)
		},
	}
	opts := []di.Option{di.WithStores(config.NewDefaultStoreFromMap(tree)), di.WithProviders(down)}

	out, err := run(t, opts, "select", "video", "-o", "json")
	require.NoError(t, err)
	require.Contains(t, out, `"degraded": true`)

	_, err = run(t, opts, "select", "video", "--strict")
	var exitErr *ExitCodeError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)

	_, err = run(t, opts, "select", "hologram")
	require.ErrorContains(t, err, "unknown service category")
}
