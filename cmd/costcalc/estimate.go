package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/macfox/costcalc/internal/budget"
	"github.com/macfox/costcalc/internal/calculator"
	"github.com/macfox/costcalc/internal/catalog"
	"github.com/macfox/costcalc/internal/store"
	"github.com/macfox/costcalc/internal/usage"
)

type saveResult struct {
	Estimate store.Estimate
	Budget   *budget.Exceeded
}

// saveSnapshot records snap in history and accrues it as planned spend.
// A budget overrun is reported in the result, not as an error.
func saveSnapshot(ctx context.Context, s *store.Store, engine *budget.Engine, snap calculator.Snapshot, label string, warnPercent int) (*saveResult, error) {
	model, ok := snap.SelectedModel()
	if !ok {
		if snap.State.SelectedModelID == "" {
			return nil, errors.New("no model selected")
		}
		return nil, fmt.Errorf("unknown model %q", snap.State.SelectedModelID)
	}
	cents := calculator.Cents(snap.Cost)

	exceeded, err := engine.CheckEstimate(ctx, model.Provider, cents, warnPercent)
	if err != nil {
		return nil, err
	}
	saved, err := s.SaveEstimate(ctx, store.Estimate{
		ModelID:      model.ID,
		Provider:     model.Provider,
		InputTokens:  snap.State.InputTokens,
		OutputTokens: snap.State.OutputTokens,
		Requests:     snap.State.Requests,
		CostUSD:      snap.Cost,
		CostCents:    cents,
		Label:        strings.TrimSpace(label),
	})
	if err != nil {
		return nil, err
	}
	if err := engine.AddPlannedSpend(ctx, model.Provider, cents); err != nil {
		return nil, err
	}
	return &saveResult{Estimate: saved, Budget: exceeded}, nil
}

func describeBudget(ex *budget.Exceeded) string {
	if ex == nil {
		return ""
	}
	kind := "over budget"
	if ex.WarningOnly {
		kind = "budget warning"
	}
	return fmt.Sprintf("%s: %s at %.0f%% ($%.2f planned + $%.2f of $%.2f, resets %s)",
		kind,
		ex.Provider,
		ex.ProjectedUsage,
		float64(ex.PlannedSpend)/100.0,
		float64(ex.EstimateCents)/100.0,
		float64(ex.BudgetLimit)/100.0,
		ex.ResetsAt.Format("2006-01-02"),
	)
}

// validateBudgetProvider accepts "global" or a provider present in cat.
func validateBudgetProvider(cat *catalog.Catalog, raw string) (string, error) {
	provider := strings.ToLower(strings.TrimSpace(raw))
	if provider == "" {
		return "", errors.New("provider is required")
	}
	if provider == budget.Global {
		return provider, nil
	}
	for _, p := range cat.Providers() {
		if strings.EqualFold(p, provider) {
			return provider, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q (known: %s, %s)", raw, strings.Join(cat.Providers(), ", "), budget.Global)
}

// applyRecordedUsage fills token counts from a recorded response. The
// response's model replaces the selection only when pickModel is set and
// the catalog knows it.
func applyRecordedUsage(rt *app, st *calculator.State, path string, pickModel bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	u, err := usage.Parse(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	st.InputTokens = u.PromptTokens()
	st.OutputTokens = u.OutputTokens
	if pickModel && u.Model != "" {
		if _, ok := rt.catalog.Lookup(u.Model); ok {
			st.SelectedModelID = u.Model
		} else {
			rt.logger.Debug("recorded model not in catalog", "model", u.Model)
		}
	}
	return nil
}
