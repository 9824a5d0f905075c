package budget

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macfox/costcalc/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "costcalc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewEngine(s.DB())
}

func TestCheckEstimateOverLimit(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.SetBudget(ctx, "Anthropic", 1.00, "daily"))
	require.NoError(t, engine.AddPlannedSpend(ctx, "anthropic", 80))

	exceeded, err := engine.CheckEstimate(ctx, "Anthropic", 30, 0)
	require.NoError(t, err)
	require.NotNil(t, exceeded)
	assert.Equal(t, "anthropic", exceeded.Provider)
	assert.False(t, exceeded.WarningOnly)
	assert.Equal(t, int64(80), exceeded.PlannedSpend)
	assert.Equal(t, int64(30), exceeded.EstimateCents)

	within, err := engine.CheckEstimate(ctx, "anthropic", 20, 0)
	require.NoError(t, err)
	assert.Nil(t, within, "an estimate landing exactly on the limit passes")
}

func TestCheckEstimateWarning(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, engine.SetBudget(ctx, "openai", 10.00, "monthly"))

	res, err := engine.CheckEstimate(ctx, "openai", 850, 80)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.WarningOnly)
	assert.InDelta(t, 85.0, res.ProjectedUsage, 0.1)

	res, err = engine.CheckEstimate(ctx, "openai", 100, 80)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestGlobalBudgetAccruesFromProviders(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, engine.SetBudget(ctx, Global, 5.00, "monthly"))
	require.NoError(t, engine.AddPlannedSpend(ctx, "google", 450))

	exceeded, err := engine.CheckEstimate(ctx, "mistral ai", 100, 0)
	require.NoError(t, err)
	require.NotNil(t, exceeded)
	assert.Equal(t, Global, exceeded.Provider)

	budgets, err := engine.Status(ctx)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, int64(450), budgets[0].PlannedSpendCents)
	assert.InDelta(t, 90.0, budgets[0].UsedPercent(), 0.1)
}

func TestResetExpired(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return day }

	require.NoError(t, engine.SetBudget(ctx, "openai", 1.00, "daily"))
	require.NoError(t, engine.AddPlannedSpend(ctx, "openai", 99))

	engine.now = func() time.Time { return day.Add(24 * time.Hour) }
	budgets, err := engine.Status(ctx)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, int64(0), budgets[0].PlannedSpendCents)

	wantStart := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	assert.True(t, budgets[0].PeriodStart.Equal(wantStart), "period start = %s", budgets[0].PeriodStart)
	assert.True(t, budgets[0].ResetsAt().Equal(wantStart.Add(24*time.Hour)), "ResetsAt() = %s", budgets[0].ResetsAt())
}

func TestSetBudgetValidation(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	assert.Error(t, engine.SetBudget(ctx, "", 1, "daily"), "empty provider")
	assert.Error(t, engine.SetBudget(ctx, "openai", 1, "weekly"), "invalid period")
	assert.Error(t, engine.SetBudget(ctx, "openai", -1, "daily"), "negative amount")
	assert.Error(t, engine.SetBudget(ctx, "openai", math.NaN(), "daily"), "NaN amount")
	assert.Error(t, engine.SetBudget(ctx, "openai", math.Inf(1), "daily"), "infinite amount")
	assert.Error(t, engine.SetBudget(ctx, "openai", 1e18, "daily"), "cents overflow")

	budgets, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, budgets)
}

func TestSetBudgetRoundsToCents(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, engine.SetBudget(ctx, "openai", 12.346, "daily"))

	budgets, err := engine.Status(ctx)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, int64(1235), budgets[0].LimitCents)
}

func TestClearBudget(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, engine.SetBudget(ctx, "openai", 1, "daily"))
	require.NoError(t, engine.ClearBudget(ctx, "OpenAI"))

	budgets, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, budgets)
}
