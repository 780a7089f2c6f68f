package analytics

import "envelopes/internal/core"

// SectionTotals is a per-section planned/actual subtotal inside one month.
// Planned is nil when no category of the section had an allocation.
type SectionTotals struct {
	Planned *float64 `json:"planned"`
	Actual  float64  `json:"actual"`
}

// MonthSeries is one time-series record per analyzed month. Planned fields
// are nil when no budget existed for the month; a nil is never collapsed to
// zero because zero would mean "planned nothing", not "no plan".
type MonthSeries struct {
	MonthKey        core.MonthKey                  `json:"monthKey"`
	Label           string                         `json:"label"`
	PlannedIncome   *float64                       `json:"plannedIncome"`
	PlannedExpense  *float64                       `json:"plannedExpense"`
	PlannedNet      *float64                       `json:"plannedNet"`
	ActualIncome    float64                        `json:"actualIncome"`
	ActualExpense   float64                        `json:"actualExpense"`
	ActualNet       float64                        `json:"actualNet"`
	ExpenseVariance *float64                       `json:"expenseVariance"`
	IncomeVariance  *float64                       `json:"incomeVariance"`
	Sections        map[core.Section]SectionTotals `json:"sections"`
}

// assembleSeries produces one MonthSeries per month anchor. The actual
// expense applies the same reconciliation policy as the category snapshots:
// max of the budget-tracked spent total and the transaction-derived total.
func assembleSeries(months []core.MonthKey, r *rollupSet) []MonthSeries {
	out := make([]MonthSeries, 0, len(months))
	for _, k := range months {
		s := MonthSeries{
			MonthKey:     k,
			Label:        k.Label(),
			ActualIncome: r.txIncome[k],
			Sections:     r.sectionTotalsFor(k),
		}

		s.ActualExpense = r.txExpense[k]
		if spent := r.budgetSpent[k]; spent > s.ActualExpense {
			s.ActualExpense = spent
		}
		s.ActualNet = round2(s.ActualIncome - s.ActualExpense)

		if plannedExpense, hasPlan := r.plannedExpense[k]; hasPlan {
			plannedIncome := r.plannedIncome[k]
			s.PlannedExpense = fptr(plannedExpense)
			s.PlannedIncome = fptr(plannedIncome)
			s.PlannedNet = fptr(round2(plannedIncome - plannedExpense))
			s.ExpenseVariance = fptr(round2(s.ActualExpense - plannedExpense))
			s.IncomeVariance = fptr(round2(s.ActualIncome - plannedIncome))
		}

		out = append(out, s)
	}
	return out
}

// seriesByMonth indexes an assembled series for lookups by later stages.
func seriesByMonth(series []MonthSeries) map[core.MonthKey]*MonthSeries {
	idx := make(map[core.MonthKey]*MonthSeries, len(series))
	for i := range series {
		idx[series[i].MonthKey] = &series[i]
	}
	return idx
}
