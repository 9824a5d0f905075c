package calculator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macfox/costcalc/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.ModelPrice{
		{ID: "sonnet", Name: "Sonnet", Provider: "Anthropic", InputCostPerMillion: 3, OutputCostPerMillion: 15, Notes: "balanced"},
		{ID: "mini", Name: "Mini", Provider: "OpenAI", InputCostPerMillion: 0.15, OutputCostPerMillion: 0.60},
		{ID: "broken", Name: "Broken", Provider: "Test", InputCostPerMillion: -10, OutputCostPerMillion: -10, Notes: "negative rates"},
	})
	require.NoError(t, err)
	return cat
}

func TestCostExample(t *testing.T) {
	cat := testCatalog(t)
	model, ok := SelectModel(cat, "sonnet")
	require.True(t, ok)

	cost := Cost(1_000_000, 500_000, model, ok, 2)
	assert.InDelta(t, 21.00, cost, 1e-9)
	assert.Equal(t, int64(2100), Cents(cost))
}

func TestCostFormula(t *testing.T) {
	cat := testCatalog(t)
	tests := []struct {
		name     string
		model    string
		in, out  int64
		requests int64
	}{
		{name: "zero tokens", model: "sonnet", in: 0, out: 0, requests: 1},
		{name: "input only", model: "mini", in: 123_456, out: 0, requests: 3},
		{name: "output only", model: "sonnet", in: 0, out: 7_777, requests: 1},
		{name: "many requests", model: "mini", in: 2_000, out: 800, requests: 10_000},
		{name: "negative rates floored", model: "broken", in: 1_000_000, out: 1_000_000, requests: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, ok := cat.Lookup(tt.model)
			require.True(t, ok)
			perRequest := (float64(tt.in)/1e6)*model.InputCostPerMillion + (float64(tt.out)/1e6)*model.OutputCostPerMillion
			want := math.Max(0, perRequest*float64(tt.requests))
			assert.InDelta(t, want, Cost(tt.in, tt.out, model, ok, tt.requests), 1e-9)
		})
	}
}

func TestCostZeroCases(t *testing.T) {
	cat := testCatalog(t)
	model, ok := cat.Lookup("sonnet")
	require.True(t, ok)

	assert.Zero(t, Cost(1_000_000, 1_000_000, model, ok, 0))
	assert.Zero(t, Cost(1_000_000, 1_000_000, model, ok, -3))
	assert.Zero(t, Cost(1_000_000, 1_000_000, catalog.ModelPrice{}, false, 5))
	assert.Zero(t, Cost(-5_000_000, 0, model, ok, 1))
}

func TestEstimateBreakdown(t *testing.T) {
	model, ok := testCatalog(t).Lookup("sonnet")
	require.True(t, ok)
	b := Estimate(1_000_000, 500_000, model, ok, 2)
	assert.InDelta(t, 3.00, b.Input, 1e-9)
	assert.InDelta(t, 7.50, b.Output, 1e-9)
	assert.InDelta(t, 10.50, b.PerRequest, 1e-9)
	assert.InDelta(t, 21.00, b.Total, 1e-9)
}

func TestNotes(t *testing.T) {
	cat := testCatalog(t)
	model, ok := cat.Lookup("sonnet")
	notes, has := Notes(model, ok)
	assert.True(t, has)
	assert.Equal(t, "balanced", notes)

	model, ok = cat.Lookup("mini")
	_, has = Notes(model, ok)
	assert.False(t, has)

	_, has = Notes(catalog.ModelPrice{}, false)
	assert.False(t, has)
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(0), Cents(0))
	assert.Equal(t, int64(0), Cents(-1))
	assert.Equal(t, int64(1250), Cents(12.5))
	assert.Equal(t, int64(1), Cents(0.005))
}

func TestDefaultState(t *testing.T) {
	st := DefaultState(testCatalog(t))
	assert.Equal(t, State{SelectedModelID: "sonnet", Requests: 1}, st)

	empty, err := catalog.New(nil)
	require.NoError(t, err)
	assert.Equal(t, State{Requests: 1}, DefaultState(empty))

	calc := New(empty)
	_, ok := calc.SelectedModel()
	assert.False(t, ok)
	assert.Zero(t, calc.Cost())
}

func TestCalculatorDefaults(t *testing.T) {
	calc := New(testCatalog(t))
	model, ok := calc.SelectedModel()
	require.True(t, ok)
	assert.Equal(t, "sonnet", model.ID)
	assert.Zero(t, calc.Cost())
	notes, has := calc.Notes()
	assert.True(t, has)
	assert.Equal(t, "balanced", notes)
}

func TestCalculatorRecomputesOnEveryInput(t *testing.T) {
	calc := New(testCatalog(t))
	calc.SetInputTokens(1_000_000)
	assert.InDelta(t, 3.00, calc.Cost(), 1e-9)
	calc.SetOutputTokens(500_000)
	assert.InDelta(t, 10.50, calc.Cost(), 1e-9)
	calc.SetRequests(2)
	assert.InDelta(t, 21.00, calc.Cost(), 1e-9)
	calc.SetRequests(0)
	assert.Zero(t, calc.Cost())
}

func TestCalculatorUnknownModel(t *testing.T) {
	calc := New(testCatalog(t))
	calc.Apply(State{InputTokens: 1_000_000, OutputTokens: 1_000_000, SelectedModelID: "nonexistent", Requests: 3})

	_, ok := calc.SelectedModel()
	assert.False(t, ok)
	assert.Zero(t, calc.Cost())
	_, has := calc.Notes()
	assert.False(t, has)
}

func TestCalculatorModelSwitchIsConsistent(t *testing.T) {
	calc := New(testCatalog(t))
	calc.Apply(State{InputTokens: 1_000_000, OutputTokens: 1_000_000, SelectedModelID: "sonnet", Requests: 1})

	var seen []Snapshot
	unsubscribe := calc.Subscribe(func(s Snapshot) { seen = append(seen, s) })
	defer unsubscribe()

	calc.SetSelectedModelID("mini")
	require.Len(t, seen, 1)
	snap := seen[0]
	model, ok := snap.SelectedModel()
	require.True(t, ok)
	assert.Equal(t, "mini", model.ID)
	assert.InDelta(t, 0.75, snap.Cost, 1e-9)
	assert.False(t, snap.HasNotes)
	assert.Equal(t, snap, calc.Snapshot())

	calc.SetSelectedModelID("broken")
	require.Len(t, seen, 2)
	assert.Equal(t, "negative rates", seen[1].Notes)
	assert.Zero(t, seen[1].Cost)
}

func TestSelectedModelIdempotent(t *testing.T) {
	calc := New(testCatalog(t))
	first, ok := calc.SelectedModel()
	require.True(t, ok)
	calc.SetSelectedModelID(first.ID)
	second, ok := calc.SelectedModel()
	require.True(t, ok)
	assert.Equal(t, first.ID, second.ID)
}

func TestSubscribeNotifiesOncePerChange(t *testing.T) {
	calc := New(testCatalog(t))
	calls := 0
	unsubscribe := calc.Subscribe(func(Snapshot) { calls++ })

	calc.SetInputTokens(10)
	calc.SetInputTokens(10)
	calc.Apply(State{InputTokens: 20, OutputTokens: 30, SelectedModelID: "mini", Requests: 4})
	assert.Equal(t, 2, calls)

	unsubscribe()
	calc.SetInputTokens(99)
	assert.Equal(t, 2, calls)
}

func TestSubscriberCanReadCalculator(t *testing.T) {
	calc := New(testCatalog(t))
	var observed float64
	calc.Subscribe(func(s Snapshot) {
		observed = calc.Cost()
		assert.Equal(t, s.Cost, observed)
	})
	calc.SetInputTokens(2_000_000)
	assert.InDelta(t, 6.00, observed, 1e-9)
}
