package analytics

import (
	"time"

	"envelopes/internal/core"
)

// MonthDescriptor is one calendar month in the analyzed range. Derived on
// every computation, never persisted.
type MonthDescriptor struct {
	MonthKey  core.MonthKey `json:"monthKey"`
	Label     string        `json:"label"`
	LongLabel string        `json:"longLabel"`
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	IsCurrent bool          `json:"isCurrent"`
	IsFuture  bool          `json:"isFuture"`
	HasPlan   bool          `json:"hasPlan"`
	HasActuals bool         `json:"hasActuals"`
}

// resolveMonthRange returns the ordered, gap-free month keys spanning the
// earliest observed activity through the forecast horizon. With no data at
// all the range degenerates to exactly the current month. Generation stops
// at maxGuard months rather than erroring on a runaway range.
func resolveMonthRange(
	current core.MonthKey,
	earliestBudget, latestBudget core.MonthKey,
	earliestTx, latestTx core.MonthKey,
	lookahead, maxGuard int,
) []core.MonthKey {
	start := current
	if earliestBudget != "" && earliestBudget.Before(start) {
		start = earliestBudget
	}
	if earliestTx != "" && earliestTx.Before(start) {
		start = earliestTx
	}

	end := current
	if latestBudget != "" && latestBudget.After(end) {
		end = latestBudget
	}
	if latestTx != "" && latestTx.After(end) {
		end = latestTx
	}
	horizon := current
	for i := 0; i < lookahead; i++ {
		horizon = horizon.Next()
	}
	if horizon.After(end) {
		end = horizon
	}

	var months []core.MonthKey
	for k := start; !k.After(end); k = k.Next() {
		if maxGuard > 0 && len(months) >= maxGuard {
			break
		}
		months = append(months, k)
	}
	return months
}

// describeMonths builds the descriptor list for a resolved range. Plan and
// actuals flags come from the rollup set so they agree with the series.
func describeMonths(months []core.MonthKey, current core.MonthKey, loc *time.Location, r *rollupSet) []MonthDescriptor {
	out := make([]MonthDescriptor, 0, len(months))
	for _, k := range months {
		_, hasPlan := r.plannedExpense[k]
		// Allocation-tracked spending counts as activity even when no ledger
		// rows exist, matching the reconciled series actuals.
		hasActuals := r.txExpense[k] != 0 || r.txIncome[k] != 0 || r.budgetSpent[k] != 0
		out = append(out, MonthDescriptor{
			MonthKey:   k,
			Label:      k.Label(),
			LongLabel:  k.LongLabel(),
			Start:      k.Start(loc),
			End:        k.End(loc),
			IsCurrent:  k == current,
			IsFuture:   k.After(current),
			HasPlan:    hasPlan,
			HasActuals: hasActuals,
		})
	}
	return out
}
