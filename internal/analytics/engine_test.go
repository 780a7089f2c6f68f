package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"envelopes/internal/core"
)

// fakeLoader serves canned rows and derives bounds from them, mirroring what
// a real store would report.
type fakeLoader struct {
	categories []core.Category
	budgets    []core.Budget
	txs        []core.Transaction

	boundsErr error
	loadErr   error
}

func (f *fakeLoader) BudgetMonthBounds(ctx context.Context) (core.MonthKey, core.MonthKey, bool, error) {
	if f.boundsErr != nil {
		return "", "", false, f.boundsErr
	}
	if len(f.budgets) == 0 {
		return "", "", false, nil
	}
	earliest, latest := f.budgets[0].Month, f.budgets[0].Month
	for _, b := range f.budgets[1:] {
		if b.Month.Before(earliest) {
			earliest = b.Month
		}
		if b.Month.After(latest) {
			latest = b.Month
		}
	}
	return earliest, latest, true, nil
}

func (f *fakeLoader) TransactionBounds(ctx context.Context) (time.Time, time.Time, bool, error) {
	if f.boundsErr != nil {
		return time.Time{}, time.Time{}, false, f.boundsErr
	}
	if len(f.txs) == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	earliest, latest := f.txs[0].OccurredOn, f.txs[0].OccurredOn
	for _, t := range f.txs[1:] {
		if t.OccurredOn.Before(earliest) {
			earliest = t.OccurredOn
		}
		if t.OccurredOn.After(latest) {
			latest = t.OccurredOn
		}
	}
	return earliest, latest, true, nil
}

func (f *fakeLoader) Categories(ctx context.Context) ([]core.Category, error) {
	return f.categories, nil
}

func (f *fakeLoader) BudgetsInRange(ctx context.Context, from, to core.MonthKey) ([]core.Budget, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var out []core.Budget
	for _, b := range f.budgets {
		if !b.Month.Before(from) && !b.Month.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeLoader) TransactionsInRange(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var out []core.Transaction
	for _, t := range f.txs {
		if !t.OccurredOn.Before(from) && t.OccurredOn.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func catList() []core.Category {
	idx := testCategories()
	out := make([]core.Category, 0, len(idx))
	for _, c := range idx {
		out = append(out, c)
	}
	return out
}

func TestBuildDashboardEmptyStore(t *testing.T) {
	engine := NewEngine(&fakeLoader{}, DefaultThresholds(), time.UTC, nil)
	asOf := time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)

	d, err := engine.BuildDashboard(context.Background(), asOf)
	if err != nil {
		t.Fatalf("BuildDashboard: %v", err)
	}

	wantMonths := 1 + DefaultThresholds().ForecastLookaheadMonths
	if len(d.Months) != wantMonths {
		t.Errorf("months = %d, want %d", len(d.Months), wantMonths)
	}
	if d.Months[0].MonthKey != "2026-09" || !d.Months[0].IsCurrent {
		t.Errorf("first month = %+v", d.Months[0])
	}

	if len(d.CategoryPlanActual.Categories) != 1 || !d.CategoryPlanActual.Categories[0].Placeholder {
		t.Errorf("plan-actual must hold exactly the placeholder: %+v", d.CategoryPlanActual.Categories)
	}
	if len(d.CategoryShare) != 0 {
		t.Errorf("share view must be empty: %+v", d.CategoryShare)
	}
	if len(d.Anomalies) != 0 {
		t.Errorf("an empty store produces no anomalies: %+v", d.Anomalies)
	}
	if len(d.CategoryTrends) != 0 {
		t.Errorf("no trends expected: %+v", d.CategoryTrends)
	}
	if len(d.CategoryHistory) != 0 {
		t.Errorf("no history expected: %+v", d.CategoryHistory)
	}
	if d.BurnDown.MonthKey != "2026-09" || d.BurnDown.PlannedTotal != nil {
		t.Errorf("burn-down = %+v", d.BurnDown)
	}
	if d.Summary.MonthKey != "2026-09" {
		t.Errorf("summary month = %s", d.Summary.MonthKey)
	}
	if d.Config != DefaultThresholds() {
		t.Error("dashboard must echo the applied thresholds")
	}
}

func TestBuildDashboardReconciliation(t *testing.T) {
	sep := core.MonthKey("2026-09")
	loader := &fakeLoader{
		categories: catList(),
		budgets: []core.Budget{{
			Month:       sep,
			Allocations: []core.Allocation{alloc("groceries", core.SectionExpenses, 50000, 45000)},
			Incomes:     []core.Income{{Source: "Salary", Amount: money(300000)}},
		}},
		txs: []core.Transaction{
			expenseTx("t1", day(sep, 3), 30000, "groceries"),
			expenseTx("t2", day(sep, 12), 18000, "groceries"),
		},
	}
	engine := NewEngine(loader, DefaultThresholds(), time.UTC, nil)
	asOf := time.Date(2026, 9, 15, 8, 0, 0, 0, time.UTC)

	d, err := engine.BuildDashboard(context.Background(), asOf)
	if err != nil {
		t.Fatalf("BuildDashboard: %v", err)
	}

	var entry *CategoryPlanActualEntry
	for i := range d.CategoryPlanActual.Categories {
		if d.CategoryPlanActual.Categories[i].CategoryID == "groceries" {
			entry = &d.CategoryPlanActual.Categories[i]
		}
	}
	if entry == nil {
		t.Fatal("groceries entry missing")
	}
	if entry.Actual != 480 {
		t.Errorf("actual = %v, want 480 (transactions outran the budget-tracked 450)", entry.Actual)
	}
	if entry.Planned == nil || *entry.Planned != 500 {
		t.Errorf("planned = %v", entry.Planned)
	}
	if entry.OverThreshold || entry.UnderThreshold {
		t.Error("a 4% miss is inside the threshold")
	}

	if len(d.Anomalies) != 0 {
		t.Errorf("no anomalies expected: %+v", d.Anomalies)
	}
}

func TestBuildDashboardSpendingShiftAnomaly(t *testing.T) {
	aug, sep := core.MonthKey("2026-08"), core.MonthKey("2026-09")
	loader := &fakeLoader{
		categories: catList(),
		txs: []core.Transaction{
			expenseTx("t1", day(aug, 5), 100000, "groceries"),
			expenseTx("t2", day(sep, 5), 140000, "groceries"),
		},
	}
	engine := NewEngine(loader, DefaultThresholds(), time.UTC, nil)
	asOf := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)

	d, err := engine.BuildDashboard(context.Background(), asOf)
	if err != nil {
		t.Fatalf("BuildDashboard: %v", err)
	}

	var shift *AnomalyInsight
	for i := range d.Anomalies {
		if d.Anomalies[i].ID == "spending-shift-2026-09" {
			shift = &d.Anomalies[i]
		}
	}
	if shift == nil {
		t.Fatalf("spending shift anomaly missing: %+v", d.Anomalies)
	}
	if shift.Severity != SeverityCritical {
		t.Errorf("severity = %s, a 40%% jump is critical", shift.Severity)
	}
	if shift.Delta != 400 {
		t.Errorf("delta = %v", shift.Delta)
	}
}

func TestBuildDashboardHistory(t *testing.T) {
	jul, aug, sep := core.MonthKey("2026-07"), core.MonthKey("2026-08"), core.MonthKey("2026-09")
	loader := &fakeLoader{
		categories: catList(),
		txs: []core.Transaction{
			expenseTx("t1", day(jul, 5), 40000, "groceries"),
			expenseTx("t2", day(aug, 5), 42000, "groceries"),
			expenseTx("t3", day(sep, 5), 41000, "groceries"),
		},
	}
	engine := NewEngine(loader, DefaultThresholds(), time.UTC, nil)
	asOf := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)

	d, err := engine.BuildDashboard(context.Background(), asOf)
	if err != nil {
		t.Fatalf("BuildDashboard: %v", err)
	}

	if len(d.CategoryHistory) != 2 {
		t.Fatalf("history months = %d, want 2 (past months only)", len(d.CategoryHistory))
	}
	if _, ok := d.CategoryHistory[sep]; ok {
		t.Error("the current month never appears in history")
	}
	if entries := d.CategoryHistory[jul]; len(entries) != 1 || entries[0].Actual != 400 {
		t.Errorf("july history = %+v", entries)
	}
}

func TestBuildDashboardLoaderErrors(t *testing.T) {
	boom := errors.New("boom")
	asOf := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)

	t.Run("bounds phase", func(t *testing.T) {
		engine := NewEngine(&fakeLoader{boundsErr: boom}, DefaultThresholds(), time.UTC, nil)
		if _, err := engine.BuildDashboard(context.Background(), asOf); !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped boom", err)
		}
	})

	t.Run("load phase", func(t *testing.T) {
		engine := NewEngine(&fakeLoader{loadErr: boom}, DefaultThresholds(), time.UTC, nil)
		if _, err := engine.BuildDashboard(context.Background(), asOf); !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped boom", err)
		}
	})
}

func TestBuildDashboardTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	engine := NewEngine(&fakeLoader{}, DefaultThresholds(), loc, nil)

	// 2026-10-01 02:00 UTC is still September 30 in New York.
	asOf := time.Date(2026, 10, 1, 2, 0, 0, 0, time.UTC)
	d, err := engine.BuildDashboard(context.Background(), asOf)
	if err != nil {
		t.Fatalf("BuildDashboard: %v", err)
	}
	if d.Summary.MonthKey != "2026-09" {
		t.Errorf("current month = %s, want 2026-09 in the configured location", d.Summary.MonthKey)
	}
}
