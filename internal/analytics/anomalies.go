package analytics

import (
	"fmt"
	"math"

	"envelopes/internal/core"
)

type AnomalyType string

const (
	AnomalySpending AnomalyType = "spending"
	AnomalyIncome   AnomalyType = "income"
	AnomalyPlan     AnomalyType = "plan"
	AnomalyCategory AnomalyType = "category"
	AnomalyForecast AnomalyType = "forecast"
)

type AnomalySeverity string

const (
	SeverityInfo     AnomalySeverity = "info"
	SeverityWarning  AnomalySeverity = "warning"
	SeverityCritical AnomalySeverity = "critical"
)

// AnomalyInsight is one detected deviation. Ids are deterministic and
// unique within a dashboard so UIs can key on them.
type AnomalyInsight struct {
	ID       string          `json:"id"`
	Type     AnomalyType     `json:"type"`
	Severity AnomalySeverity `json:"severity"`
	MonthKey core.MonthKey   `json:"monthKey"`
	Label    string          `json:"label"`
	Delta    float64         `json:"delta"`
	Percent  *float64        `json:"percent"`
	Message  string          `json:"message"`
}

// Escalation and shift thresholds of the anomaly scan. The base variance
// ratio comes from Thresholds; these are fixed severity cut-offs.
const (
	criticalVarianceRatio = 0.30 // plan/category variance turns critical here
	shiftAbsoluteFloor    = 100  // month-over-month shifts below this are noise
	expenseShiftPercent   = 0.20
	incomeShiftPercent    = 0.25
	criticalShiftPercent  = 0.40
)

// detectAnomalies runs the stateless rule scan over the already-computed
// structures, in a fixed order so ids and ordering are stable between calls.
func detectAnomalies(
	series []MonthSeries,
	planActual CategoryPlanActual,
	trends []CategoryTrendEntry,
	forecast Forecast,
	current core.MonthKey,
	cfg Thresholds,
) []AnomalyInsight {
	var out []AnomalyInsight
	idx := seriesByMonth(series)

	// 1. Current month vs plan (expense).
	if s, ok := idx[current]; ok && s.PlannedExpense != nil && *s.PlannedExpense > 0 && s.ExpenseVariance != nil {
		ratio := math.Abs(*s.ExpenseVariance) / *s.PlannedExpense
		if ratio >= cfg.CategoryVarianceThreshold {
			severity := SeverityWarning
			if ratio >= criticalVarianceRatio {
				severity = SeverityCritical
			}
			pct := round4(*s.ExpenseVariance / *s.PlannedExpense)
			direction := "over"
			if *s.ExpenseVariance < 0 {
				direction = "under"
			}
			out = append(out, AnomalyInsight{
				ID:       fmt.Sprintf("plan-%s", current),
				Type:     AnomalyPlan,
				Severity: severity,
				MonthKey: current,
				Label:    current.Label(),
				Delta:    *s.ExpenseVariance,
				Percent:  &pct,
				Message: fmt.Sprintf("Spending is %.0f%% %s plan for %s",
					math.Abs(pct)*100, direction, current.LongLabel()),
			})
		}
	}

	// 2. Month-over-month shifts between consecutive realized months.
	var realized []MonthSeries
	for _, s := range series {
		if !s.MonthKey.After(current) {
			realized = append(realized, s)
		}
	}
	for i := 1; i < len(realized); i++ {
		prev, cur := realized[i-1], realized[i]

		if delta := round2(cur.ActualExpense - prev.ActualExpense); math.Abs(delta) >= shiftAbsoluteFloor && math.Abs(prev.ActualExpense) >= 0.01 {
			pct := round4(delta / prev.ActualExpense)
			if math.Abs(pct) >= expenseShiftPercent {
				out = append(out, AnomalyInsight{
					ID:       fmt.Sprintf("spending-shift-%s", cur.MonthKey),
					Type:     AnomalySpending,
					Severity: shiftSeverity(pct),
					MonthKey: cur.MonthKey,
					Label:    cur.Label,
					Delta:    delta,
					Percent:  &pct,
					Message: fmt.Sprintf("Spending moved %.0f%% from %s to %s",
						pct*100, prev.MonthKey.Label(), cur.MonthKey.Label()),
				})
			}
		}

		if delta := round2(cur.ActualIncome - prev.ActualIncome); math.Abs(delta) >= shiftAbsoluteFloor && math.Abs(prev.ActualIncome) >= 0.01 {
			pct := round4(delta / prev.ActualIncome)
			if math.Abs(pct) >= incomeShiftPercent {
				out = append(out, AnomalyInsight{
					ID:       fmt.Sprintf("income-shift-%s", cur.MonthKey),
					Type:     AnomalyIncome,
					Severity: shiftSeverity(pct),
					MonthKey: cur.MonthKey,
					Label:    cur.Label,
					Delta:    delta,
					Percent:  &pct,
					Message: fmt.Sprintf("Income moved %.0f%% from %s to %s",
						pct*100, prev.MonthKey.Label(), cur.MonthKey.Label()),
				})
			}
		}
	}

	// 3. Per-category variance breaches for the current month.
	for _, e := range planActual.Categories {
		if e.Placeholder || e.VariancePercent == nil || e.Variance == nil {
			continue
		}
		ratio := math.Abs(*e.VariancePercent)
		if ratio < cfg.CategoryVarianceThreshold {
			continue
		}
		severity := SeverityWarning
		if ratio >= criticalVarianceRatio {
			severity = SeverityCritical
		}
		direction := "over"
		if *e.Variance < 0 {
			direction = "under"
		}
		out = append(out, AnomalyInsight{
			ID:       fmt.Sprintf("category-%s-%s", e.CategoryID, current),
			Type:     AnomalyCategory,
			Severity: severity,
			MonthKey: current,
			Label:    e.Name,
			Delta:    *e.Variance,
			Percent:  e.VariancePercent,
			Message: fmt.Sprintf("%s is %.0f%% %s plan this month",
				e.Name, ratio*100, direction),
		})
	}

	// 4. Category trend flags, latest point only.
	for _, tr := range trends {
		if len(tr.Points) == 0 {
			continue
		}
		latest := tr.Points[len(tr.Points)-1]
		if !latest.Flagged {
			continue
		}
		severity := SeverityInfo
		if latest.ZScore != nil && math.Abs(*latest.ZScore) >= cfg.TrendStdThreshold {
			severity = SeverityWarning
		}
		var delta float64
		if latest.Change != nil {
			delta = *latest.Change
		}
		out = append(out, AnomalyInsight{
			ID:       fmt.Sprintf("trend-%s-%s", tr.CategoryID, latest.MonthKey),
			Type:     AnomalyCategory,
			Severity: severity,
			MonthKey: latest.MonthKey,
			Label:    tr.Name,
			Delta:    delta,
			Percent:  latest.PercentChange,
			Message:  fmt.Sprintf("%s spending shifted unusually in %s", tr.Name, latest.MonthKey.Label()),
		})
	}

	// 5. At-risk forecast months.
	for _, p := range forecast.Points {
		if !p.AtRisk {
			continue
		}
		out = append(out, AnomalyInsight{
			ID:       fmt.Sprintf("forecast-%s", p.MonthKey),
			Type:     AnomalyForecast,
			Severity: SeverityWarning,
			MonthKey: p.MonthKey,
			Label:    p.Label,
			Delta:    p.Net,
			Message:  fmt.Sprintf("Projected net cash flow for %s is negative", p.MonthKey.LongLabel()),
		})
	}

	return out
}

func shiftSeverity(pct float64) AnomalySeverity {
	if math.Abs(pct) >= criticalShiftPercent {
		return SeverityCritical
	}
	return SeverityWarning
}
