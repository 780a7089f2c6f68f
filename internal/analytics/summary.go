package analytics

import (
	"math"

	"envelopes/internal/core"
)

// SummaryComparison relates the current month to the prior realized month.
type SummaryComparison struct {
	MonthKey  core.MonthKey `json:"monthKey"`
	Delta     float64       `json:"delta"`
	Percent   *float64      `json:"percent"`
	Direction string        `json:"direction"` // up, down or flat
}

// Summary is the compact top-level card: current month against plan and
// against the previous month, plus highlighted categories and at-risk
// forecast months. Pure assembly over already-computed structures.
type Summary struct {
	MonthKey              core.MonthKey             `json:"monthKey"`
	PlannedExpense        *float64                  `json:"plannedExpense"`
	ActualExpense         float64                   `json:"actualExpense"`
	ExpenseVariance       *float64                  `json:"expenseVariance"`
	ActualNet             float64                   `json:"actualNet"`
	PreviousMonth         *SummaryComparison        `json:"previousMonth"`
	HighlightedCategories []CategoryPlanActualEntry `json:"highlightedCategories"`
	AtRiskMonths          []core.MonthKey           `json:"atRiskMonths"`
}

const maxHighlightedCategories = 3

func composeSummary(
	series []MonthSeries,
	planActual CategoryPlanActual,
	forecast Forecast,
	current core.MonthKey,
) Summary {
	sum := Summary{MonthKey: current}

	idx := seriesByMonth(series)
	cur, ok := idx[current]
	if ok {
		sum.PlannedExpense = cur.PlannedExpense
		sum.ActualExpense = cur.ActualExpense
		sum.ExpenseVariance = cur.ExpenseVariance
		sum.ActualNet = cur.ActualNet
	}

	// Latest month before the current one, whether or not it saw activity.
	var prev *MonthSeries
	for i := range series {
		s := &series[i]
		if s.MonthKey.Before(current) {
			prev = s
		}
	}
	if ok && prev != nil {
		delta := round2(cur.ActualExpense - prev.ActualExpense)
		cmp := SummaryComparison{MonthKey: prev.MonthKey, Delta: delta}
		if math.Abs(prev.ActualExpense) >= 0.01 {
			cmp.Percent = fptr(round4(delta / prev.ActualExpense))
		}
		switch {
		case delta > 0:
			cmp.Direction = "up"
		case delta < 0:
			cmp.Direction = "down"
		default:
			cmp.Direction = "flat"
		}
		sum.PreviousMonth = &cmp
	}

	for _, e := range planActual.Categories {
		if e.Placeholder || (!e.OverThreshold && !e.UnderThreshold) {
			continue
		}
		sum.HighlightedCategories = append(sum.HighlightedCategories, e)
		if len(sum.HighlightedCategories) == maxHighlightedCategories {
			break
		}
	}

	for _, p := range forecast.Points {
		if p.AtRisk {
			sum.AtRiskMonths = append(sum.AtRiskMonths, p.MonthKey)
		}
	}
	return sum
}
