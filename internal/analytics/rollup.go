package analytics

import (
	"sort"

	"envelopes/internal/core"
)

// CategoryMonthSnapshot holds a category's numbers for one month. Planned
// and BudgetActual are nil when no allocation existed that month; the
// transaction actual is always computed independently from ledger rows.
//
// The two actual sources may diverge (a stale "spent" on the allocation vs
// the live transaction sum). Consumers reconcile with EffectiveActual, which
// trusts whichever signal shows more spending, never an average.
type CategoryMonthSnapshot struct {
	Planned           *float64 `json:"planned"`
	BudgetActual      *float64 `json:"budgetActual"`
	TransactionActual float64  `json:"transactionActual"`
}

// EffectiveActual returns max(budgetActual ?? 0, transactionActual).
func (s *CategoryMonthSnapshot) EffectiveActual() float64 {
	actual := s.TransactionActual
	if s.BudgetActual != nil && *s.BudgetActual > actual {
		actual = *s.BudgetActual
	}
	return actual
}

// CategoryRollup is the per-category fold of allocations and ledger rows
// across the analyzed range.
type CategoryRollup struct {
	CategoryID string
	Name       string
	Emoji      string
	Section    core.Section
	Months     map[core.MonthKey]*CategoryMonthSnapshot
}

func (c *CategoryRollup) snapshot(k core.MonthKey) *CategoryMonthSnapshot {
	snap, ok := c.Months[k]
	if !ok {
		snap = &CategoryMonthSnapshot{}
		c.Months[k] = snap
	}
	return snap
}

// rollupSet is the in-memory accumulation the rest of the pipeline reads
// from: category rollups plus month-level totals keyed by month key.
type rollupSet struct {
	categories map[string]*CategoryRollup

	// From budgets.
	plannedExpense map[core.MonthKey]float64 // sum of planned allocations; presence means a plan exists
	plannedIncome  map[core.MonthKey]float64 // sum of budget incomes
	budgetSpent    map[core.MonthKey]float64 // sum of allocation spent amounts

	// From the transaction ledger.
	txExpense map[core.MonthKey]float64
	txIncome  map[core.MonthKey]float64
	txDaily   map[core.MonthKey]map[int]float64 // expense total per day of month
}

func newRollupSet() *rollupSet {
	return &rollupSet{
		categories:     make(map[string]*CategoryRollup),
		plannedExpense: make(map[core.MonthKey]float64),
		plannedIncome:  make(map[core.MonthKey]float64),
		budgetSpent:    make(map[core.MonthKey]float64),
		txExpense:      make(map[core.MonthKey]float64),
		txIncome:       make(map[core.MonthKey]float64),
		txDaily:        make(map[core.MonthKey]map[int]float64),
	}
}

// rollup resolves a category id against known metadata, falling back to the
// uncategorized sentinel so no row is ever dropped for a missing category.
func (r *rollupSet) rollup(id string, cats map[string]core.Category, sentinel core.Category) *CategoryRollup {
	meta, ok := cats[id]
	if !ok || id == "" {
		meta = sentinel
	}
	cr, ok := r.categories[meta.ID]
	if !ok {
		cr = &CategoryRollup{
			CategoryID: meta.ID,
			Name:       meta.Name,
			Emoji:      meta.Emoji,
			Section:    meta.Section,
			Months:     make(map[core.MonthKey]*CategoryMonthSnapshot),
		}
		r.categories[meta.ID] = cr
	}
	return cr
}

// buildRollups folds budgets and transactions into the rollup set.
//
// Allocations use overwrite semantics (one allocation per category per month
// is unique). Income transactions contribute to monthly income totals only,
// never to category rollups. Every accumulation re-rounds to two decimals.
func buildRollups(budgets []core.Budget, txs []core.Transaction, cats map[string]core.Category, sentinel core.Category) *rollupSet {
	r := newRollupSet()

	for _, b := range budgets {
		k := b.Month
		// Presence of a budget means a plan exists even if every number is 0.
		if _, ok := r.plannedExpense[k]; !ok {
			r.plannedExpense[k] = 0
			r.plannedIncome[k] = 0
			r.budgetSpent[k] = 0
		}
		for _, a := range b.Allocations {
			cr := r.rollup(a.CategoryID, cats, sentinel)
			if a.Section.IsValid() {
				cr.Section = a.Section
			}
			snap := cr.snapshot(k)
			snap.Planned = fptr(a.Planned.Amount())
			snap.BudgetActual = fptr(a.Spent.Amount())
			r.plannedExpense[k] = round2(r.plannedExpense[k] + a.Planned.Amount())
			r.budgetSpent[k] = round2(r.budgetSpent[k] + a.Spent.Amount())
		}
		for _, in := range b.Incomes {
			r.plannedIncome[k] = round2(r.plannedIncome[k] + in.Amount.Amount())
		}
	}

	for _, t := range txs {
		k := core.MonthKeyOf(t.OccurredOn)
		amount := t.Amount.Amount()

		if t.Type == core.TypeIncome {
			r.txIncome[k] = round2(r.txIncome[k] + amount)
			continue
		}

		r.txExpense[k] = round2(r.txExpense[k] + amount)
		daily, ok := r.txDaily[k]
		if !ok {
			daily = make(map[int]float64)
			r.txDaily[k] = daily
		}
		day := t.OccurredOn.Day()
		daily[day] = round2(daily[day] + amount)

		if len(t.Splits) > 0 {
			for _, s := range t.Splits {
				cr := r.rollup(s.CategoryID, cats, sentinel)
				snap := cr.snapshot(k)
				snap.TransactionActual = round2(snap.TransactionActual + s.Amount.Amount())
			}
			continue
		}
		cr := r.rollup(t.CategoryID, cats, sentinel)
		snap := cr.snapshot(k)
		snap.TransactionActual = round2(snap.TransactionActual + amount)
	}

	return r
}

// sortedCategoryIDs returns rollup keys in deterministic order. Map
// iteration order is never relied on anywhere downstream.
func (r *rollupSet) sortedCategoryIDs() []string {
	ids := make([]string, 0, len(r.categories))
	for id := range r.categories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sectionTotalsFor derives per-section planned/actual subtotals for one
// month from the category rollups, so section numbers always agree with
// category numbers.
func (r *rollupSet) sectionTotalsFor(k core.MonthKey) map[core.Section]SectionTotals {
	out := make(map[core.Section]SectionTotals, 4)
	for _, id := range r.sortedCategoryIDs() {
		cr := r.categories[id]
		snap, ok := cr.Months[k]
		if !ok {
			continue
		}
		totals := out[cr.Section]
		if snap.Planned != nil {
			if totals.Planned == nil {
				totals.Planned = fptr(0)
			}
			totals.Planned = fptr(round2(*totals.Planned + *snap.Planned))
		}
		totals.Actual = round2(totals.Actual + snap.EffectiveActual())
		out[cr.Section] = totals
	}
	return out
}
