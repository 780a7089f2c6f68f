package analytics

import (
	"strings"
	"testing"

	"envelopes/internal/core"
)

func TestDetectAnomaliesSpendingShift(t *testing.T) {
	current := core.MonthKey("2026-09")
	series := []MonthSeries{
		{MonthKey: "2026-08", Label: "Aug 2026", ActualExpense: 1000},
		{MonthKey: "2026-09", Label: "Sep 2026", ActualExpense: 1400},
	}

	out := detectAnomalies(series, CategoryPlanActual{MonthKey: current}, nil, Forecast{}, current, DefaultThresholds())
	if len(out) != 1 {
		t.Fatalf("got %d anomalies: %+v", len(out), out)
	}
	a := out[0]
	if a.ID != "spending-shift-2026-09" || a.Type != AnomalySpending {
		t.Errorf("anomaly = %+v", a)
	}
	if a.Delta != 400 {
		t.Errorf("delta = %v", a.Delta)
	}
	if a.Percent == nil || *a.Percent != 0.4 {
		t.Errorf("percent = %v", a.Percent)
	}
	// A 40% move sits exactly on the critical cut-off.
	if a.Severity != SeverityCritical {
		t.Errorf("severity = %s, want critical", a.Severity)
	}
}

func TestDetectAnomaliesShiftFloor(t *testing.T) {
	current := core.MonthKey("2026-09")
	// 50% move but only 90 in absolute terms: below the noise floor.
	series := []MonthSeries{
		{MonthKey: "2026-08", Label: "Aug 2026", ActualExpense: 180},
		{MonthKey: "2026-09", Label: "Sep 2026", ActualExpense: 270},
	}
	out := detectAnomalies(series, CategoryPlanActual{MonthKey: current}, nil, Forecast{}, current, DefaultThresholds())
	if len(out) != 0 {
		t.Errorf("small absolute shifts must be suppressed, got %+v", out)
	}
}

func TestDetectAnomaliesIncomeShift(t *testing.T) {
	current := core.MonthKey("2026-09")
	series := []MonthSeries{
		{MonthKey: "2026-08", Label: "Aug 2026", ActualIncome: 3000},
		{MonthKey: "2026-09", Label: "Sep 2026", ActualIncome: 2100},
	}
	out := detectAnomalies(series, CategoryPlanActual{MonthKey: current}, nil, Forecast{}, current, DefaultThresholds())
	if len(out) != 1 {
		t.Fatalf("got %d anomalies: %+v", len(out), out)
	}
	a := out[0]
	if a.Type != AnomalyIncome || a.ID != "income-shift-2026-09" {
		t.Errorf("anomaly = %+v", a)
	}
	if a.Percent == nil || *a.Percent != -0.3 {
		t.Errorf("percent = %v, want -0.3", a.Percent)
	}
	if a.Severity != SeverityWarning {
		t.Errorf("severity = %s, a 30%% drop is a warning, not critical", a.Severity)
	}
}

func TestDetectAnomaliesPlanBreach(t *testing.T) {
	current := core.MonthKey("2026-09")
	tests := []struct {
		name     string
		actual   float64
		count    int
		severity AnomalySeverity
	}{
		{"inside threshold", 1100, 0, ""},      // +10%
		{"warning", 1200, 1, SeverityWarning},  // +20%
		{"critical", 1350, 1, SeverityCritical}, // +35%
		{"under plan", 800, 1, SeverityWarning}, // -20%
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variance := round2(tt.actual - 1000)
			series := []MonthSeries{{
				MonthKey:        current,
				Label:           current.Label(),
				PlannedExpense:  fptr(1000),
				ActualExpense:   tt.actual,
				ExpenseVariance: &variance,
			}}
			out := detectAnomalies(series, CategoryPlanActual{MonthKey: current}, nil, Forecast{}, current, DefaultThresholds())
			if len(out) != tt.count {
				t.Fatalf("got %d anomalies: %+v", len(out), out)
			}
			if tt.count == 0 {
				return
			}
			a := out[0]
			if a.ID != "plan-2026-09" || a.Type != AnomalyPlan {
				t.Errorf("anomaly = %+v", a)
			}
			if a.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", a.Severity, tt.severity)
			}
			wantDir := "over"
			if variance < 0 {
				wantDir = "under"
			}
			if !strings.Contains(a.Message, wantDir) {
				t.Errorf("message %q should mention %q", a.Message, wantDir)
			}
		})
	}
}

func TestDetectAnomaliesCategoryBreach(t *testing.T) {
	current := core.MonthKey("2026-09")
	pa := CategoryPlanActual{
		MonthKey: current,
		Categories: []CategoryPlanActualEntry{
			{CategoryID: "groceries", Name: "Groceries", Variance: fptr(175), VariancePercent: fptr(0.35), OverThreshold: true},
			{CategoryID: "rent", Name: "Rent", Variance: fptr(60), VariancePercent: fptr(0.15), OverThreshold: true},
			{CategoryID: "fun", Name: "Fun", Variance: fptr(5), VariancePercent: fptr(0.05)},
			{CategoryID: PlaceholderCategoryID, Placeholder: true},
		},
	}
	out := detectAnomalies(nil, pa, nil, Forecast{}, current, DefaultThresholds())
	if len(out) != 2 {
		t.Fatalf("got %d anomalies: %+v", len(out), out)
	}
	if out[0].ID != "category-groceries-2026-09" || out[0].Severity != SeverityCritical {
		t.Errorf("groceries anomaly = %+v", out[0])
	}
	if out[1].ID != "category-rent-2026-09" || out[1].Severity != SeverityWarning {
		t.Errorf("rent anomaly = %+v", out[1])
	}
}

func TestDetectAnomaliesTrendAndForecast(t *testing.T) {
	current := core.MonthKey("2026-09")
	trends := []CategoryTrendEntry{
		{
			CategoryID: "groceries",
			Name:       "Groceries",
			Points: []CategoryTrendPoint{
				{MonthKey: "2026-08", Actual: 400},
				{MonthKey: "2026-09", Actual: 520, Change: fptr(120), PercentChange: fptr(0.3), Flagged: true},
			},
			Flagged: true,
		},
		{
			CategoryID: "rent",
			Name:       "Rent",
			Points: []CategoryTrendPoint{
				{MonthKey: "2026-08", Actual: 1200},
				{MonthKey: "2026-09", Actual: 1200, Change: fptr(0)},
			},
		},
	}
	forecast := Forecast{Points: []ForecastPoint{
		{MonthKey: "2026-10", Label: "Oct 2026", Net: -75, AtRisk: true},
		{MonthKey: "2026-11", Label: "Nov 2026", Net: 10},
	}}

	out := detectAnomalies(nil, CategoryPlanActual{MonthKey: current}, trends, forecast, current, DefaultThresholds())
	if len(out) != 2 {
		t.Fatalf("got %d anomalies: %+v", len(out), out)
	}

	tr := out[0]
	if tr.ID != "trend-groceries-2026-09" {
		t.Errorf("trend anomaly = %+v", tr)
	}
	// Percent-only flag without a z-score breach stays informational.
	if tr.Severity != SeverityInfo {
		t.Errorf("trend severity = %s, want info", tr.Severity)
	}
	if tr.Delta != 120 {
		t.Errorf("trend delta = %v", tr.Delta)
	}

	fc := out[1]
	if fc.ID != "forecast-2026-10" || fc.Type != AnomalyForecast || fc.Severity != SeverityWarning {
		t.Errorf("forecast anomaly = %+v", fc)
	}
	if fc.Delta != -75 {
		t.Errorf("forecast delta = %v", fc.Delta)
	}
}

func TestDetectAnomaliesDeterministic(t *testing.T) {
	current := core.MonthKey("2026-09")
	series := []MonthSeries{
		{MonthKey: "2026-08", Label: "Aug 2026", ActualExpense: 1000, ActualIncome: 3000},
		{
			MonthKey:        "2026-09",
			Label:           "Sep 2026",
			ActualExpense:   1400,
			ActualIncome:    2100,
			PlannedExpense:  fptr(1000),
			ExpenseVariance: fptr(400),
		},
	}
	pa := CategoryPlanActual{MonthKey: current, Categories: []CategoryPlanActualEntry{
		{CategoryID: "groceries", Name: "Groceries", Variance: fptr(175), VariancePercent: fptr(0.35)},
	}}

	first := detectAnomalies(series, pa, nil, Forecast{}, current, DefaultThresholds())
	second := detectAnomalies(series, pa, nil, Forecast{}, current, DefaultThresholds())
	if len(first) != len(second) {
		t.Fatalf("runs disagree: %d vs %d", len(first), len(second))
	}
	seen := make(map[string]bool, len(first))
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("order differs at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
		if seen[first[i].ID] {
			t.Errorf("duplicate id %s", first[i].ID)
		}
		seen[first[i].ID] = true
	}
	// Fixed rule order: plan breach first, then the shift pair.
	if first[0].Type != AnomalyPlan || first[1].Type != AnomalySpending || first[2].Type != AnomalyIncome {
		t.Errorf("rule order = %s, %s, %s", first[0].Type, first[1].Type, first[2].Type)
	}
}
