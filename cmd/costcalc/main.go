package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/macfox/costcalc/internal/budget"
	"github.com/macfox/costcalc/internal/calculator"
	"github.com/macfox/costcalc/internal/catalog"
	"github.com/macfox/costcalc/internal/config"
	"github.com/macfox/costcalc/internal/store"
	"github.com/macfox/costcalc/internal/theme"
	"github.com/macfox/costcalc/internal/tui"
)

var (
	configPath string
	outputJSON bool
	logLevel   string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "costcalc",
		Short:         "Estimate AI model costs from token counts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config file")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newEstimateCommand())
	rootCmd.AddCommand(newModelsCommand())
	rootCmd.AddCommand(newModelCommand())
	rootCmd.AddCommand(newThemeCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newStatsCommand())
	rootCmd.AddCommand(newBudgetCommand())
	rootCmd.AddCommand(newUICommand())
	return rootCmd
}

// app bundles what every command needs after config is loaded.
type app struct {
	cfg     config.Config
	catalog *catalog.Catalog
	logger  *slog.Logger
}

func loadRuntime() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	levelName := cfg.Log.Level
	if logLevel != "" {
		levelName = logLevel
	}
	level, err := config.ParseLogLevel(levelName)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cat := catalog.Default()
	if cfg.Catalog.Path != "" {
		cat, err = catalog.LoadFile(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded external catalog", "path", cfg.Catalog.Path, "models", cat.Len())
	}
	return &app{cfg: cfg, catalog: cat, logger: logger}, nil
}

func (r *app) openStore(ctx context.Context) (*store.Store, error) {
	s, err := store.Open(r.cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	if n, err := s.DeleteOlderThan(ctx, r.cfg.Storage.RetentionDays); err != nil {
		r.logger.Warn("failed to clean old estimates", "error", err)
	} else if n > 0 {
		r.logger.Debug("removed old estimates", "count", n)
	}
	return s, nil
}

// initialState applies configured defaults on top of the catalog default.
func (r *app) initialState() calculator.State {
	st := calculator.DefaultState(r.catalog)
	if r.cfg.Calculator.DefaultModel != "" {
		st.SelectedModelID = r.cfg.Calculator.DefaultModel
	}
	st.Requests = r.cfg.Calculator.DefaultRequests
	return st
}

func newEstimateCommand() *cobra.Command {
	var modelID, input, output, label, fromResponse string
	var requests int64
	var save bool
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the cost of a workload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			st := rt.initialState()
			if cmd.Flags().Changed("model") {
				st.SelectedModelID = modelID
			}
			if fromResponse != "" {
				if err := applyRecordedUsage(rt, &st, fromResponse, !cmd.Flags().Changed("model")); err != nil {
					return err
				}
			}
			if fromResponse == "" || cmd.Flags().Changed("input") {
				if st.InputTokens, err = calculator.ParseCount(input); err != nil {
					return fmt.Errorf("parse --input: %w", err)
				}
			}
			if fromResponse == "" || cmd.Flags().Changed("output") {
				if st.OutputTokens, err = calculator.ParseCount(output); err != nil {
					return fmt.Errorf("parse --output: %w", err)
				}
			}
			if cmd.Flags().Changed("requests") {
				st.Requests = requests
			}
			calc := calculator.NewWithState(rt.catalog, st)
			snap := calc.Snapshot()
			if _, ok := snap.SelectedModel(); !ok {
				rt.logger.Warn("model not found in catalog, cost is zero", "model", st.SelectedModelID)
			}

			var result *saveResult
			if save {
				ctx := context.Background()
				s, err := rt.openStore(ctx)
				if err != nil {
					return err
				}
				defer s.Close()
				result, err = saveSnapshot(ctx, s, budget.NewEngine(s.DB()), snap, label, rt.cfg.Notifications.BudgetWarningPercent)
				if err != nil {
					return err
				}
			}
			if outputJSON {
				payload := map[string]any{"estimate": snap}
				if result != nil {
					payload["saved"] = result.Estimate
					if result.Budget != nil {
						payload["budget"] = result.Budget
					}
				}
				return printJSON(payload)
			}
			printSnapshot(snap)
			if result != nil {
				fmt.Printf("saved estimate %s\n", result.Estimate.ID)
				if result.Budget != nil {
					fmt.Println(describeBudget(result.Budget))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "model id (see `costcalc models`)")
	cmd.Flags().StringVarP(&input, "input", "i", "0", "input tokens per request (e.g. 1500, 128k, 1.5m)")
	cmd.Flags().StringVarP(&output, "output", "o", "0", "output tokens per request")
	cmd.Flags().Int64VarP(&requests, "requests", "n", 1, "number of requests")
	cmd.Flags().BoolVar(&save, "save", false, "save the estimate to history and count it against budgets")
	cmd.Flags().StringVar(&label, "label", "", "label stored with a saved estimate")
	cmd.Flags().StringVar(&fromResponse, "from-response", "", "read token counts (and model) from a recorded API response or SSE stream")
	return cmd
}

func printSnapshot(snap calculator.Snapshot) {
	st := snap.State
	model, ok := snap.SelectedModel()
	if !ok {
		fmt.Printf("model %q not found\n", st.SelectedModelID)
		fmt.Printf("cost=%s\n", calculator.FormatUSD(snap.Cost))
		return
	}
	fmt.Printf("%s (%s) in=$%.3f/1M out=$%.3f/1M\n", model.Name, model.Provider, model.InputCostPerMillion, model.OutputCostPerMillion)
	fmt.Printf("in=%s out=%s requests=%d\n", calculator.FormatTokenCount(st.InputTokens), calculator.FormatTokenCount(st.OutputTokens), st.Requests)
	br := snap.Breakdown
	fmt.Printf("input=%s output=%s per_request=%s\n", calculator.FormatUSD(br.Input), calculator.FormatUSD(br.Output), calculator.FormatUSD(br.PerRequest))
	fmt.Printf("cost=%s\n", calculator.FormatUSD(snap.Cost))
	if snap.HasNotes {
		fmt.Printf("notes: %s\n", snap.Notes)
	}
}

func newModelsCommand() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List catalog models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			models := rt.catalog.ByProvider(provider)
			if outputJSON {
				return printJSON(models)
			}
			if len(models) == 0 {
				fmt.Println("no models found")
				return nil
			}
			for _, m := range models {
				fmt.Printf("%-24s %-12s in=$%.3f out=$%.3f ctx=%s\n", m.ID, m.Provider, m.InputCostPerMillion, m.OutputCostPerMillion, formatContext(m.ContextWindow))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "filter by provider")
	return cmd
}

func newModelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "model <id>",
		Short: "Show one catalog model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			m, ok := rt.catalog.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown model %q", args[0])
			}
			if outputJSON {
				return printJSON(m)
			}
			fmt.Printf("%s (%s) by %s\n", m.Name, m.ID, m.Provider)
			fmt.Printf("input=$%.3f/1M output=$%.3f/1M context=%s\n", m.InputCostPerMillion, m.OutputCostPerMillion, formatContext(m.ContextWindow))
			if len(m.Capabilities) > 0 {
				fmt.Printf("capabilities: %s\n", m.Capabilities)
			}
			if m.Speed != "" || m.Quality > 0 {
				fmt.Printf("speed=%s quality=%s\n", orDash(string(m.Speed)), formatQuality(m.Quality))
			}
			if m.LastUpdated != "" {
				fmt.Printf("updated: %s\n", m.LastUpdated)
			}
			if m.DocsURL != "" {
				fmt.Printf("docs: %s\n", m.DocsURL)
			}
			if m.Notes != "" {
				fmt.Printf("notes: %s\n", m.Notes)
			}
			return nil
		},
	}
}

func newThemeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "theme [light|dark|toggle]",
		Short: "Show or set the interface theme",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			s, err := store.Open(rt.cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer s.Close()
			state := theme.NewState(s, rt.logger)
			if len(args) == 1 {
				if strings.EqualFold(args[0], "toggle") {
					state.Toggle()
				} else {
					next, err := theme.Parse(args[0])
					if err != nil {
						return err
					}
					if err := state.Set(next); err != nil {
						return err
					}
				}
			}
			if outputJSON {
				return printJSON(map[string]any{"theme": state.Get()})
			}
			fmt.Println(state.Get())
			return nil
		},
	}
}

func newHistoryCommand() *cobra.Command {
	var provider, model, since string
	var limit int
	cmd := &cobra.Command{
		Use:   "history [estimate-id]",
		Short: "Show saved estimates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			ctx := context.Background()
			s, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 1 {
				e, err := s.GetEstimate(ctx, args[0])
				if err != nil {
					return err
				}
				if outputJSON {
					return printJSON(e)
				}
				printEstimate(e)
				return nil
			}

			sinceTime, err := parseWindowStart(since)
			if err != nil {
				return err
			}
			records, err := s.ListEstimates(ctx, store.QueryFilter{Limit: limit, Provider: provider, Model: model, Since: sinceTime})
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("no saved estimates")
				return nil
			}
			for i := len(records) - 1; i >= 0; i-- {
				printEstimate(records[i])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "filter by provider")
	cmd.Flags().StringVar(&model, "model", "", "filter by model")
	cmd.Flags().StringVar(&since, "since", "", "time window (e.g. 1h, 24h, 7d)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of estimates")
	return cmd
}

func printEstimate(e store.Estimate) {
	fmt.Printf("%s %s %s %s in=%d out=%d requests=%d cost=%s",
		e.ID,
		e.CreatedAt.Format(time.RFC3339),
		e.Provider,
		e.ModelID,
		e.InputTokens,
		e.OutputTokens,
		e.Requests,
		calculator.FormatUSD(e.CostUSD),
	)
	if e.Label != "" {
		fmt.Printf(" label=%q", e.Label)
	}
	fmt.Println()
}

func newStatsCommand() *cobra.Command {
	var period, groupBy string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize saved estimates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			ctx := context.Background()
			s, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			since, err := parseStatsPeriod(period)
			if err != nil {
				return err
			}
			rows, err := s.Stats(ctx, store.StatsFilter{Since: since, By: groupBy})
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(rows)
			}
			if len(rows) == 0 {
				fmt.Println("no saved estimates")
				return nil
			}
			for _, row := range rows {
				fmt.Printf("%s estimates=%d in=%d out=%d cost=%s\n", row.Group, row.EstimateCount, row.InputTokens, row.OutputTokens, calculator.FormatUSD(row.CostUSD))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "30d", "time period (today, 7d, 30d, all, or a duration)")
	cmd.Flags().StringVar(&groupBy, "by", "provider", "group by: provider, model, day")
	return cmd
}

func newBudgetCommand() *cobra.Command {
	budgetCmd := &cobra.Command{Use: "budget", Short: "Manage planning budgets"}

	budgetCmd.AddCommand(&cobra.Command{
		Use:   "set <provider|global> <amount_usd> <daily|monthly>",
		Short: "Set a budget limit",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			provider, err := validateBudgetProvider(rt.catalog, args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("parse amount: %w", err)
			}
			period := strings.ToLower(args[2])
			s, err := store.Open(rt.cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := budget.NewEngine(s.DB()).SetBudget(context.Background(), provider, amount, period); err != nil {
				return err
			}
			if outputJSON {
				return printJSON(map[string]any{"provider": provider, "amount": amount, "period": period, "status": "set"})
			}
			fmt.Printf("budget set for %s: $%.2f (%s)\n", provider, amount, period)
			return nil
		},
	})

	budgetCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show budget status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			s, err := store.Open(rt.cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer s.Close()
			rows, err := budget.NewEngine(s.DB()).Status(context.Background())
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(rows)
			}
			if len(rows) == 0 {
				fmt.Println("no budgets configured")
				return nil
			}
			for _, row := range rows {
				fmt.Printf("%s $%.2f / $%.2f (%s) %s reset=%s\n",
					row.Provider,
					float64(row.PlannedSpendCents)/100.0,
					float64(row.LimitCents)/100.0,
					row.Period,
					progressBar(row.UsedPercent()),
					row.ResetsAt().Format(time.RFC3339),
				)
			}
			return nil
		},
	})

	budgetCmd.AddCommand(&cobra.Command{
		Use:   "clear <provider|global>",
		Short: "Clear budget limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			provider := strings.ToLower(strings.TrimSpace(args[0]))
			s, err := store.Open(rt.cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := budget.NewEngine(s.DB()).ClearBudget(context.Background(), provider); err != nil {
				return err
			}
			if outputJSON {
				return printJSON(map[string]any{"provider": provider, "status": "cleared"})
			}
			fmt.Printf("budget cleared for %s\n", provider)
			return nil
		},
	})

	return budgetCmd
}

func newUICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive estimator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("ui requires an interactive terminal")
			}
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			ctx := context.Background()
			s, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			calc := calculator.NewWithState(rt.catalog, rt.initialState())
			engine := budget.NewEngine(s.DB())
			save := func(snap calculator.Snapshot) (string, error) {
				result, err := saveSnapshot(ctx, s, engine, snap, "", rt.cfg.Notifications.BudgetWarningPercent)
				if err != nil {
					return "", err
				}
				status := "saved estimate " + result.Estimate.ID
				if result.Budget != nil {
					status += "; " + describeBudget(result.Budget)
				}
				return status, nil
			}
			model := tui.New(calc, theme.NewState(s, rt.logger), save)
			if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
				return fmt.Errorf("run ui: %w", err)
			}
			return nil
		},
	}
}

func formatContext(tokens int) string {
	if tokens <= 0 {
		return "-"
	}
	return calculator.FormatTokenCount(int64(tokens))
}

func formatQuality(q int) string {
	if q <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%d/5", q)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func progressBar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int((pct + 9.99) / 10.0)
	if filled > 10 {
		filled = 10
	}
	return strings.Repeat("#", filled) + strings.Repeat(".", 10-filled)
}

func parseWindowStart(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseDuration(raw)
	if err == nil {
		return time.Now().UTC().Add(-d), nil
	}
	if strings.HasSuffix(raw, "d") {
		n, convErr := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if convErr != nil {
			return time.Time{}, fmt.Errorf("parse --since %q", raw)
		}
		return time.Now().UTC().Add(-time.Duration(n) * 24 * time.Hour), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since format %q", raw)
}

func parseStatsPeriod(raw string) (time.Time, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	now := time.Now().UTC()
	switch raw {
	case "all":
		return time.Time{}, nil
	case "", "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	default:
		if d, err := time.ParseDuration(raw); err == nil {
			return now.Add(-d), nil
		}
		if strings.HasSuffix(raw, "d") {
			n, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid --period %q", raw)
			}
			return now.Add(-time.Duration(n) * 24 * time.Hour), nil
		}
		return time.Time{}, fmt.Errorf("invalid --period %q", raw)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
