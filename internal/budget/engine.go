package budget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Global is the budget every provider's planned spend also counts against.
const Global = "global"

type Budget struct {
	Provider          string    `json:"provider"`
	LimitCents        int64     `json:"limit_cents"`
	Period            string    `json:"period"`
	PlannedSpendCents int64     `json:"planned_spend_cents"`
	PeriodStart       time.Time `json:"period_start"`
	Enabled           bool      `json:"enabled"`
}

func (b Budget) ResetsAt() time.Time {
	return nextReset(b.PeriodStart, b.Period)
}

// UsedPercent is planned spend as a percentage of the limit.
func (b Budget) UsedPercent() float64 {
	if b.LimitCents <= 0 {
		if b.PlannedSpendCents > 0 {
			return 100
		}
		return 0
	}
	return float64(b.PlannedSpendCents) * 100.0 / float64(b.LimitCents)
}

// Exceeded describes a budget an estimate would overrun.
type Exceeded struct {
	Provider       string    `json:"provider"`
	BudgetLimit    int64     `json:"limit_cents"`
	PlannedSpend   int64     `json:"planned_spend_cents"`
	EstimateCents  int64     `json:"estimate_cents"`
	ResetsAt       time.Time `json:"resets_at"`
	WarningOnly    bool      `json:"warning_only"`
	ProjectedUsage float64   `json:"projected_percent"`
}

type Engine struct {
	db  *sql.DB
	now func() time.Time
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db, now: time.Now}
}

func normalizePeriod(period string) (string, error) {
	period = strings.ToLower(strings.TrimSpace(period))
	if period != "daily" && period != "monthly" {
		return "", fmt.Errorf("invalid period %q (expected daily or monthly)", period)
	}
	return period, nil
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func periodStart(now time.Time, period string) time.Time {
	now = now.UTC()
	switch period {
	case "daily":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case "monthly":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return now
	}
}

func nextReset(start time.Time, period string) time.Time {
	start = start.UTC()
	switch period {
	case "daily":
		return start.Add(24 * time.Hour)
	case "monthly":
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}

func (e *Engine) SetBudget(ctx context.Context, provider string, amountUSD float64, period string) error {
	provider = normalizeProvider(provider)
	if provider == "" {
		return errors.New("provider is required")
	}
	period, err := normalizePeriod(period)
	if err != nil {
		return err
	}
	if math.IsNaN(amountUSD) || math.IsInf(amountUSD, 0) {
		return fmt.Errorf("invalid amount %v", amountUSD)
	}
	if amountUSD < 0 {
		return errors.New("amount must be >= 0")
	}
	cents := math.Round(amountUSD * 100)
	if cents >= float64(math.MaxInt64) {
		return fmt.Errorf("amount %v is out of range", amountUSD)
	}
	limitCents := int64(cents)
	start := periodStart(e.now(), period)
	_, err = e.db.ExecContext(ctx, `
INSERT INTO budgets(provider, limit_cents, period, planned_spend_cents, period_start, enabled)
VALUES(?, ?, ?, 0, ?, 1)
ON CONFLICT(provider) DO UPDATE SET
    limit_cents = excluded.limit_cents,
    period = excluded.period,
    enabled = 1,
    period_start = CASE
        WHEN budgets.period = excluded.period THEN budgets.period_start
        ELSE excluded.period_start
    END
`, provider, limitCents, period, start.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set budget: %w", err)
	}
	return nil
}

func (e *Engine) ClearBudget(ctx context.Context, provider string) error {
	_, err := e.db.ExecContext(ctx, `DELETE FROM budgets WHERE provider = ?`, normalizeProvider(provider))
	if err != nil {
		return fmt.Errorf("clear budget: %w", err)
	}
	return nil
}

func (e *Engine) Status(ctx context.Context) ([]Budget, error) {
	if err := e.ResetExpired(ctx); err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx, `SELECT provider, limit_cents, period, planned_spend_cents, period_start, enabled FROM budgets ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()
	out := []Budget{}
	for rows.Next() {
		var b Budget
		var periodStartStr string
		if err := rows.Scan(&b.Provider, &b.LimitCents, &b.Period, &b.PlannedSpendCents, &periodStartStr, &b.Enabled); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339, periodStartStr); err == nil {
			b.PeriodStart = parsed
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (e *Engine) ResetExpired(ctx context.Context) error {
	rows, err := e.db.QueryContext(ctx, `SELECT provider, period, period_start FROM budgets WHERE enabled = 1`)
	if err != nil {
		return fmt.Errorf("query budgets for reset: %w", err)
	}
	defer rows.Close()
	type rowData struct {
		provider string
		start    time.Time
	}
	pending := []rowData{}
	now := e.now().UTC()
	for rows.Next() {
		var provider, period, startStr string
		if err := rows.Scan(&provider, &period, &startStr); err != nil {
			return fmt.Errorf("scan budget reset row: %w", err)
		}
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			start = periodStart(now, period)
		}
		if !now.Before(nextReset(start, period)) {
			pending = append(pending, rowData{provider: provider, start: periodStart(now, period)})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, entry := range pending {
		if _, err := e.db.ExecContext(ctx, `UPDATE budgets SET planned_spend_cents = 0, period_start = ? WHERE provider = ?`, entry.start.Format(time.RFC3339), entry.provider); err != nil {
			return fmt.Errorf("reset budget %s: %w", entry.provider, err)
		}
	}
	return nil
}

// CheckEstimate reports the first budget (provider, then global) that
// estimateCents would push past its limit. With warnPercent > 0 it also
// reports, as a warning, a budget the estimate would push past that share.
func (e *Engine) CheckEstimate(ctx context.Context, provider string, estimateCents int64, warnPercent int) (*Exceeded, error) {
	if err := e.ResetExpired(ctx); err != nil {
		return nil, err
	}
	var warning *Exceeded
	for _, candidate := range []string{normalizeProvider(provider), Global} {
		exceeded, err := e.checkSingle(ctx, candidate, estimateCents, warnPercent)
		if err != nil {
			return nil, err
		}
		if exceeded == nil {
			continue
		}
		if !exceeded.WarningOnly {
			return exceeded, nil
		}
		if warning == nil {
			warning = exceeded
		}
	}
	return warning, nil
}

func (e *Engine) checkSingle(ctx context.Context, provider string, estimateCents int64, warnPercent int) (*Exceeded, error) {
	row := e.db.QueryRowContext(ctx, `SELECT limit_cents, planned_spend_cents, period, period_start, enabled FROM budgets WHERE provider = ?`, provider)
	var limitCents, planned int64
	var period, startStr string
	var enabled bool
	if err := row.Scan(&limitCents, &planned, &period, &startStr, &enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query budget %s: %w", provider, err)
	}
	if !enabled {
		return nil, nil
	}
	projected := planned + estimateCents
	percent := 100.0
	if limitCents > 0 {
		percent = float64(projected) * 100.0 / float64(limitCents)
	}
	over := projected > limitCents
	warn := warnPercent > 0 && percent >= float64(warnPercent)
	if !over && !warn {
		return nil, nil
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		start = periodStart(e.now(), period)
	}
	return &Exceeded{
		Provider:       provider,
		BudgetLimit:    limitCents,
		PlannedSpend:   planned,
		EstimateCents:  estimateCents,
		ResetsAt:       nextReset(start, period),
		WarningOnly:    !over,
		ProjectedUsage: percent,
	}, nil
}

// AddPlannedSpend accrues cents to the provider's budget and the global one.
func (e *Engine) AddPlannedSpend(ctx context.Context, provider string, cents int64) error {
	if cents <= 0 {
		return nil
	}
	if err := e.ResetExpired(ctx); err != nil {
		return err
	}
	targets := []string{normalizeProvider(provider)}
	if targets[0] != Global {
		targets = append(targets, Global)
	}
	for _, target := range targets {
		if _, err := e.db.ExecContext(ctx, `UPDATE budgets SET planned_spend_cents = planned_spend_cents + ? WHERE provider = ? AND enabled = 1`, cents, target); err != nil {
			return fmt.Errorf("add planned spend to %s: %w", target, err)
		}
	}
	return nil
}
