// Package analytics turns stored budgets and ledger rows into the dashboard
// data model: month series, category rollups, trends, forecast, burn-down
// and anomaly insights. Every invocation builds fresh maps from freshly
// loaded rows; nothing is cached or mutated across calls.
package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"envelopes/internal/core"
	"envelopes/internal/log"
)

// Loader is the persistence boundary. Implementations must return a
// consistent snapshot; the engine performs no retries of its own.
type Loader interface {
	// BudgetMonthBounds returns the earliest and latest budget months, with
	// ok=false when no budgets exist.
	BudgetMonthBounds(ctx context.Context) (earliest, latest core.MonthKey, ok bool, err error)
	// TransactionBounds returns the earliest and latest transaction dates,
	// with ok=false when the ledger is empty.
	TransactionBounds(ctx context.Context) (earliest, latest time.Time, ok bool, err error)
	Categories(ctx context.Context) ([]core.Category, error)
	BudgetsInRange(ctx context.Context, from, to core.MonthKey) ([]core.Budget, error)
	// TransactionsInRange returns EXPENSE and INCOME rows with occurredOn in
	// the half-open interval [from, to), splits included.
	TransactionsInRange(ctx context.Context, from, to time.Time) ([]core.Transaction, error)
}

// Dashboard is the single aggregate handed to the presentation layer.
type Dashboard struct {
	AsOf               time.Time                                      `json:"asOf"`
	Months             []MonthDescriptor                              `json:"months"`
	MonthlySeries      []MonthSeries                                  `json:"monthlySeries"`
	CategoryPlanActual CategoryPlanActual                             `json:"categoryPlanActual"`
	CategoryShare      []CategoryShareEntry                           `json:"categoryShare"`
	CategoryHistory    map[core.MonthKey][]CategoryPlanActualEntry    `json:"categoryHistory"`
	CategoryTrends     []CategoryTrendEntry                           `json:"categoryTrends"`
	Forecast           Forecast                                       `json:"forecast"`
	BurnDown           BurnDown                                       `json:"burnDown"`
	TopVendors         []VendorSummary                                `json:"topVendors"`
	TopTransactions    []TransactionSummary                           `json:"topTransactions"`
	SavingsProgress    []GoalProgress                                 `json:"savingsProgress"`
	DebtProgress       []GoalProgress                                 `json:"debtProgress"`
	Anomalies          []AnomalyInsight                               `json:"anomalies"`
	Summary            Summary                                        `json:"summary"`
	Config             Thresholds                                     `json:"config"`
}

// Engine computes dashboards. Safe for concurrent use: all state is
// per-invocation.
type Engine struct {
	loader Loader
	cfg    Thresholds
	loc    *time.Location
	logger *log.Logger
}

// NewEngine creates an engine over the given loader. A nil location means
// time.Local; months are calendar months in that location.
func NewEngine(loader Loader, cfg Thresholds, loc *time.Location, logger *log.Logger) *Engine {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentAnalytics)
	}
	return &Engine{loader: loader, cfg: cfg, loc: loc, logger: logger}
}

// BuildDashboard runs the full pipeline as of the given instant. The four
// bounding reads run concurrently, then budgets and transactions for the
// resolved range are fetched concurrently; everything after is a pure
// synchronous fold over the loaded rows.
func (e *Engine) BuildDashboard(ctx context.Context, asOf time.Time) (*Dashboard, error) {
	started := time.Now()
	asOf = asOf.In(e.loc)
	current := core.MonthKeyOf(asOf)

	var (
		earliestBudget, latestBudget core.MonthKey
		earliestTx, latestTx         time.Time
		haveTx                       bool
		categories                   []core.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		earliestBudget, latestBudget, _, err = e.loader.BudgetMonthBounds(gctx)
		if err != nil {
			return fmt.Errorf("budget month bounds: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		earliestTx, latestTx, haveTx, err = e.loader.TransactionBounds(gctx)
		if err != nil {
			return fmt.Errorf("transaction bounds: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		categories, err = e.loader.Categories(gctx)
		if err != nil {
			return fmt.Errorf("load categories: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var earliestTxKey, latestTxKey core.MonthKey
	if haveTx {
		earliestTxKey = core.MonthKeyOf(earliestTx.In(e.loc))
		latestTxKey = core.MonthKeyOf(latestTx.In(e.loc))
	}
	months := resolveMonthRange(current, earliestBudget, latestBudget,
		earliestTxKey, latestTxKey, e.cfg.ForecastLookaheadMonths, e.cfg.MaxMonthGuard)
	if len(months) == 0 {
		months = []core.MonthKey{current}
	}
	rangeStart := months[0]
	rangeEnd := months[len(months)-1]

	var (
		budgets []core.Budget
		txs     []core.Transaction
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		budgets, err = e.loader.BudgetsInRange(gctx, rangeStart, rangeEnd)
		if err != nil {
			return fmt.Errorf("load budgets %s..%s: %w", rangeStart, rangeEnd, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		txs, err = e.loader.TransactionsInRange(gctx, rangeStart.Start(e.loc), rangeEnd.End(e.loc).AddDate(0, 0, 1))
		if err != nil {
			return fmt.Errorf("load transactions %s..%s: %w", rangeStart, rangeEnd, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	catIndex := make(map[string]core.Category, len(categories))
	for _, c := range categories {
		catIndex[c.ID] = c
	}
	sentinel := core.Uncategorized()

	rollups := buildRollups(budgets, txs, catIndex, sentinel)
	series := assembleSeries(months, rollups)
	planActual := planActualOrPlaceholder(rollups, current, e.cfg)
	trends := buildTrends(rollups, months, current, e.cfg)
	forecast := buildForecast(series, current, e.cfg)
	burnDown := buildBurnDown(rollups, current, asOf, e.loc)
	vendors, topTxs := summarizeVendors(txs, current, e.cfg)
	anomalies := detectAnomalies(series, planActual, trends, forecast, current, e.cfg)
	summary := composeSummary(series, planActual, forecast, current)

	history := make(map[core.MonthKey][]CategoryPlanActualEntry)
	for _, k := range months {
		if k.After(current) || k == current {
			continue
		}
		if entries := planActualForMonth(rollups, k, e.cfg); len(entries) > 0 {
			history[k] = entries
		}
	}

	d := &Dashboard{
		AsOf:               asOf,
		Months:             describeMonths(months, current, e.loc, rollups),
		MonthlySeries:      series,
		CategoryPlanActual: planActual,
		CategoryShare:      shareEntries(planActual.Categories),
		CategoryHistory:    history,
		CategoryTrends:     trends,
		Forecast:           forecast,
		BurnDown:           burnDown,
		TopVendors:         vendors,
		TopTransactions:    topTxs,
		SavingsProgress:    goalProgress(planActual.Categories, core.SectionSavings),
		DebtProgress:       goalProgress(planActual.Categories, core.SectionDebt),
		Anomalies:          anomalies,
		Summary:            summary,
		Config:             e.cfg,
	}

	e.logger.DebugContext(ctx, "Dashboard computed",
		log.FieldMonth, string(current),
		"months", len(months),
		"budgets", len(budgets),
		"transactions", len(txs),
		"anomalies", len(anomalies),
		log.FieldDuration, time.Since(started).Milliseconds())
	return d, nil
}
