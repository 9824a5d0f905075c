package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

var ErrNotFound = errors.New("not found")

type Estimate struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	ModelID      string    `json:"model_id"`
	Provider     string    `json:"provider"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Requests     int64     `json:"requests"`
	CostUSD      float64   `json:"cost_usd"`
	CostCents    int64     `json:"cost_cents"`
	Label        string    `json:"label,omitempty"`
}

type QueryFilter struct {
	Limit    int
	Provider string
	Model    string
	Since    time.Time
}

type StatsFilter struct {
	Since time.Time
	By    string
}

type StatsRow struct {
	Group         string  `json:"group"`
	EstimateCount int     `json:"estimate_count"`
	InputTokens   int64   `json:"input_tokens"`
	OutputTokens  int64   `json:"output_tokens"`
	CostUSD       float64 `json:"cost_usd"`
	CostCents     int64   `json:"cost_cents"`
}

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	s := &Store{db: db}
	if err := s.Init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := os.Chmod(dbPath, 0o600); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set db perms: %w", err)
	}
	return s, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS preferences (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS estimates (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL,
    model_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    requests INTEGER NOT NULL DEFAULT 1,
    cost_usd REAL NOT NULL DEFAULT 0,
    cost_cents INTEGER NOT NULL DEFAULT 0,
    label TEXT
);
CREATE INDEX IF NOT EXISTS idx_estimates_created_at ON estimates(created_at);
CREATE INDEX IF NOT EXISTS idx_estimates_provider ON estimates(provider);
CREATE INDEX IF NOT EXISTS idx_estimates_model ON estimates(model_id);

CREATE TABLE IF NOT EXISTS budgets (
    provider TEXT PRIMARY KEY,
    limit_cents INTEGER NOT NULL,
    period TEXT NOT NULL,
    planned_spend_cents INTEGER DEFAULT 0,
    period_start DATETIME NOT NULL,
    enabled BOOLEAN DEFAULT TRUE
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query preference %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO preferences(key, value, updated_at) VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// SaveEstimate stores e, assigning an id and timestamp when they are unset.
func (s *Store) SaveEstimate(ctx context.Context, e Estimate) (Estimate, error) {
	if strings.TrimSpace(e.ModelID) == "" {
		return Estimate{}, errors.New("estimate model is required")
	}
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO estimates (
    id, created_at, model_id, provider,
    input_tokens, output_tokens, requests,
    cost_usd, cost_cents, label
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.CreatedAt.Format(time.RFC3339),
		e.ModelID,
		e.Provider,
		e.InputTokens,
		e.OutputTokens,
		e.Requests,
		e.CostUSD,
		e.CostCents,
		e.Label,
	)
	if err != nil {
		return Estimate{}, fmt.Errorf("insert estimate: %w", err)
	}
	return e, nil
}

func (s *Store) GetEstimate(ctx context.Context, id string) (Estimate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, created_at, model_id, provider,
       input_tokens, output_tokens, requests, cost_usd, cost_cents, COALESCE(label, '')
FROM estimates WHERE id = ?`, id)
	e, err := scanEstimate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Estimate{}, fmt.Errorf("estimate %s: %w", id, ErrNotFound)
	}
	return e, err
}

func (s *Store) ListEstimates(ctx context.Context, filter QueryFilter) ([]Estimate, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	where := []string{"1=1"}
	args := make([]any, 0, 4)
	if filter.Provider != "" {
		where = append(where, "LOWER(provider) = LOWER(?)")
		args = append(args, filter.Provider)
	}
	if filter.Model != "" {
		where = append(where, "model_id = ?")
		args = append(args, filter.Model)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	args = append(args, filter.Limit)
	query := `SELECT id, created_at, model_id, provider,
       input_tokens, output_tokens, requests, cost_usd, cost_cents, COALESCE(label, '')
FROM estimates
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query estimates: %w", err)
	}
	defer rows.Close()
	out := []Estimate{}
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context, filter StatsFilter) ([]StatsRow, error) {
	groupExpr := "provider"
	switch strings.ToLower(filter.By) {
	case "model":
		groupExpr = "model_id"
	case "day":
		groupExpr = "substr(created_at, 1, 10)"
	case "", "provider":
		groupExpr = "provider"
	default:
		return nil, fmt.Errorf("invalid stats grouping %q (expected provider, model or day)", filter.By)
	}
	where := "1=1"
	args := []any{}
	if !filter.Since.IsZero() {
		where = "created_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	query := `SELECT ` + groupExpr + ` as grp,
       COUNT(*) as estimate_count,
       COALESCE(SUM(input_tokens), 0),
       COALESCE(SUM(output_tokens), 0),
       COALESCE(SUM(cost_usd), 0),
       COALESCE(SUM(cost_cents), 0)
FROM estimates WHERE ` + where + `
GROUP BY grp ORDER BY estimate_count DESC, grp`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()
	result := []StatsRow{}
	for rows.Next() {
		var row StatsRow
		if err := rows.Scan(&row.Group, &row.EstimateCount, &row.InputTokens, &row.OutputTokens, &row.CostUSD, &row.CostCents); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *Store) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx, `DELETE FROM estimates WHERE created_at < ?`, cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("delete old estimates: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanEstimate(scanner interface{ Scan(dest ...any) error }) (Estimate, error) {
	var e Estimate
	var createdAt string
	if err := scanner.Scan(
		&e.ID,
		&createdAt,
		&e.ModelID,
		&e.Provider,
		&e.InputTokens,
		&e.OutputTokens,
		&e.Requests,
		&e.CostUSD,
		&e.CostCents,
		&e.Label,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Estimate{}, err
		}
		return Estimate{}, fmt.Errorf("scan estimate row: %w", err)
	}
	if parsed, err := time.Parse(time.RFC3339, createdAt); err == nil {
		e.CreatedAt = parsed
	}
	return e, nil
}
