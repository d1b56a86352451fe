package aiservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reelpipe/internal/config"
	reelerrors "reelpipe/internal/errors"
	"reelpipe/internal/logging"
	"reelpipe/internal/providers"
)

func TestSelectorPrefersHealthyPrimary(t *testing.T) {
	h := newHarness(t)

	sel, err := h.selector.SelectModel(context.Background(), providers.CategoryVideo, Requirements{})
	require.NoError(t, err)
	require.Equal(t, TierPrimary, sel.Tier)
	require.False(t, sel.Degraded)
	require.Equal(t, "runway", sel.Config.Provider)
	require.Equal(t, float64(5), sel.Config.Tunables["duration"])
	require.Equal(t, "runway", sel.Provider.Name())
	require.NotEmpty(t, sel.DecisionID)
	require.Equal(t, h.clock.Now(), sel.SelectedAt)
	require.Equal(t, 0, h.luma.callCount())
}

func TestSelectorFallsBackInOrder(t *testing.T) {
	h := newHarness(t)
	h.runway.fail(errUnavailable)

	sel, err := h.selector.SelectModel(context.Background(), providers.CategoryVideo, Requirements{})
	require.NoError(t, err)
	require.Equal(t, TierFallback, sel.Tier)
	require.Equal(t, "luma", sel.Provider.Name())

	h.luma.fail(errUnavailable)
	h.clock.Advance(5 * time.Minute)
	sel, err = h.selector.SelectModel(context.Background(), providers.CategoryVideo, Requirements{})
	require.NoError(t, err)
	require.Equal(t, TierEmergency, sel.Tier)
	require.Equal(t, "us-east-1", sel.Config.Region)
}

func TestSelectorAllUnhealthyReturnsDegradedPrimary(t *testing.T) {
	h := newHarness(t)
	h.runway.fail(errUnavailable)
	h.luma.fail(errUnavailable)
	h.bedrock.fail(errUnavailable)

	for i := 0; i < 2; i++ {
		sel, err := h.selector.SelectModel(context.Background(), providers.CategoryVideo, Requirements{})
		require.NoError(t, err)
		require.True(t, sel.Degraded)
		require.Equal(t, TierPrimary, sel.Tier)
		require.Equal(t, "runway", sel.Config.Provider)
		require.Equal(t, "runway", sel.Provider.Name())
	}
	require.Equal(t, []string{"video:runway", "video:runway"}, h.metrics.degraded)
	require.Equal(t, 1, h.runway.callCount())
	require.Equal(t, 1, h.luma.callCount())
	require.Equal(t, 1, h.bedrock.callCount())
}

func TestSelectorHonorsExcludedProviders(t *testing.T) {
	h := newHarness(t)

	sel, err := h.selector.SelectModel(context.Background(), providers.CategoryVideo, Requirements{ExcludeProviders: []string{"runway"}})
	require.NoError(t, err)
	require.Equal(t, TierFallback, sel.Tier)
	require.Equal(t, 0, h.runway.callCount())
}

func TestSelectorReturnsFreshCopies(t *testing.T) {
	h := newHarness(t)

	first, err := h.selector.SelectModel(context.Background(), providers.CategoryVideo, Requirements{})
	require.NoError(t, err)
	first.Config.Tunables["duration"] = 99

	second, err := h.selector.SelectModel(context.Background(), providers.CategoryVideo, Requirements{})
	require.NoError(t, err)
	require.Equal(t, float64(5), second.Config.Tunables["duration"])
	require.NotEqual(t, first.DecisionID, second.DecisionID)
}

func TestSelectorFollowsRuntimeOverride(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.resolver.SetRuntimeOverride("ai.models.video", config.Parse(
		`{"primary":{"provider":"luma","model":"ray-2"}}`)))

	sel, err := h.selector.SelectModel(context.Background(), providers.CategoryVideo, Requirements{})
	require.NoError(t, err)
	require.Equal(t, "luma", sel.Config.Provider)
}

func TestSelectorMissingCategoryConfig(t *testing.T) {
	h := newHarness(t)
	_, err := h.selector.SelectModel(context.Background(), providers.CategoryAudio, Requirements{})
	require.ErrorIs(t, err, ErrNoModelConfig)
	require.ErrorContains(t, err, "ai.models.audio")

	empty := NewSelector(config.NewResolver(nil, config.WithLogger(logging.Nop())), h.monitor, h.registry)
	_, err = empty.SelectModel(context.Background(), providers.CategoryVideo, Requirements{})
	require.Error(t, err)
}

func openBreaker(t *testing.T, h *harness, cfg ModelConfig) {
	t.Helper()
	breaker := h.invoker.Breakers().For(context.Background(), providers.CategoryVideo, cfg)
	for i := 0; i < 5; i++ {
		breaker.Mark(errUnavailable)
	}
	require.Equal(t, reelerrors.StateOpen, breaker.State())
}

func TestSelectorSkipsPrimaryWithOpenBreaker(t *testing.T) {
	h := newHarness(t)
	openBreaker(t, h, runwayCfg)

	sel, err := h.selector.SelectModel(context.Background(), providers.CategoryVideo, Requirements{})
	require.NoError(t, err)
	require.Equal(t, TierFallback, sel.Tier)
	require.Equal(t, "luma", sel.Config.Provider)
	require.False(t, sel.Degraded)
	require.Equal(t, 0, h.runway.callCount())
}

func TestSelectorDegradedWhenEveryBreakerOpen(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.resolver.SetRuntimeOverride("ai.models.video", config.Parse(
		`{"primary":{"provider":"runway","model":"gen3a_turbo"},"fallback":{"provider":"luma","model":"ray-2"}}`)))
	openBreaker(t, h, runwayCfg)
	openBreaker(t, h, lumaCfg)

	sel, err := h.selector.SelectModel(context.Background(), providers.CategoryVideo, Requirements{})
	require.NoError(t, err)
	require.True(t, sel.Degraded)
	require.Equal(t, TierPrimary, sel.Tier)
	require.Equal(t, "runway", sel.Config.Provider)
	require.Equal(t, 0, h.runway.callCount())
	require.Equal(t, 0, h.luma.callCount())
	require.Equal(t, 0, h.bedrock.callCount())
}
