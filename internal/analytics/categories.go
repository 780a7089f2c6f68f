package analytics

import (
	"math"
	"sort"

	"envelopes/internal/core"
)

// PlaceholderCategoryID identifies the single synthetic entry emitted when
// no category has anything to report, so consumers never special-case an
// empty list.
const PlaceholderCategoryID = "placeholder"

// CategoryPlanActualEntry is a category's standing for one month.
// VariancePercent is nil when the plan is absent or near zero; Share is the
// category's fraction of the month's total actual (0 when the total is 0).
type CategoryPlanActualEntry struct {
	CategoryID      string       `json:"categoryId"`
	Name            string       `json:"name"`
	Emoji           string       `json:"emoji"`
	Section         core.Section `json:"section"`
	Planned         *float64     `json:"planned"`
	Actual          float64      `json:"actual"`
	Variance        *float64     `json:"variance"`
	VariancePercent *float64     `json:"variancePercent"`
	Share           float64      `json:"share"`
	OverThreshold   bool         `json:"overThreshold"`
	UnderThreshold  bool         `json:"underThreshold"`
	Placeholder     bool         `json:"placeholder,omitempty"`
}

// CategoryPlanActual is the plan-vs-actual list for one month.
type CategoryPlanActual struct {
	MonthKey   core.MonthKey             `json:"monthKey"`
	Categories []CategoryPlanActualEntry `json:"categories"`
}

// CategoryShareEntry is the share-of-spending view of one category for the
// current month.
type CategoryShareEntry struct {
	CategoryID string       `json:"categoryId"`
	Name       string       `json:"name"`
	Emoji      string       `json:"emoji"`
	Section    core.Section `json:"section"`
	Actual     float64      `json:"actual"`
	Share      float64      `json:"share"`
}

// GoalProgress is the goal view of a savings or debt category for the
// current month. Progress is nil when no meaningful plan exists.
type GoalProgress struct {
	CategoryID string   `json:"categoryId"`
	Name       string   `json:"name"`
	Emoji      string   `json:"emoji"`
	Planned    *float64 `json:"planned"`
	Actual     float64  `json:"actual"`
	Progress   *float64 `json:"progress"`
}

// planActualForMonth builds plan-vs-actual entries for one month. Categories
// with no plan and zero actual are skipped; threshold flags fire at the
// configured variance-percent ratio. The result is sorted by actual
// descending (category id breaks ties) so output order is reproducible.
func planActualForMonth(r *rollupSet, k core.MonthKey, cfg Thresholds) []CategoryPlanActualEntry {
	var total float64
	for _, id := range r.sortedCategoryIDs() {
		if snap, ok := r.categories[id].Months[k]; ok {
			total = round2(total + snap.EffectiveActual())
		}
	}

	var entries []CategoryPlanActualEntry
	for _, id := range r.sortedCategoryIDs() {
		cr := r.categories[id]
		snap, ok := cr.Months[k]
		if !ok {
			continue
		}
		actual := snap.EffectiveActual()
		if snap.Planned == nil && actual == 0 {
			continue // nothing to report
		}

		e := CategoryPlanActualEntry{
			CategoryID: cr.CategoryID,
			Name:       cr.Name,
			Emoji:      cr.Emoji,
			Section:    cr.Section,
			Planned:    snap.Planned,
			Actual:     actual,
		}
		if snap.Planned != nil {
			variance := round2(actual - *snap.Planned)
			e.Variance = &variance
			if math.Abs(*snap.Planned) >= 0.01 {
				pct := round4(variance / *snap.Planned)
				e.VariancePercent = &pct
				e.OverThreshold = pct >= cfg.CategoryVarianceThreshold
				e.UnderThreshold = pct <= -cfg.CategoryVarianceThreshold
			}
		}
		if total > 0 {
			e.Share = round4(actual / total)
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Actual != entries[j].Actual {
			return entries[i].Actual > entries[j].Actual
		}
		return entries[i].CategoryID < entries[j].CategoryID
	})
	return entries
}

// planActualOrPlaceholder wraps planActualForMonth with the guaranteed
// non-empty contract for the current month.
func planActualOrPlaceholder(r *rollupSet, k core.MonthKey, cfg Thresholds) CategoryPlanActual {
	entries := planActualForMonth(r, k, cfg)
	if len(entries) == 0 {
		entries = []CategoryPlanActualEntry{{
			CategoryID:  PlaceholderCategoryID,
			Name:        "Ready for your first category",
			Emoji:       "✨",
			Section:     core.SectionExpenses,
			Placeholder: true,
		}}
	}
	return CategoryPlanActual{MonthKey: k, Categories: entries}
}

// shareEntries projects a plan-actual list down to its share view.
func shareEntries(entries []CategoryPlanActualEntry) []CategoryShareEntry {
	out := make([]CategoryShareEntry, 0, len(entries))
	for _, e := range entries {
		if e.Placeholder {
			continue
		}
		out = append(out, CategoryShareEntry{
			CategoryID: e.CategoryID,
			Name:       e.Name,
			Emoji:      e.Emoji,
			Section:    e.Section,
			Actual:     e.Actual,
			Share:      e.Share,
		})
	}
	return out
}

// goalProgress filters a plan-actual list to one section's goal view.
func goalProgress(entries []CategoryPlanActualEntry, section core.Section) []GoalProgress {
	var out []GoalProgress
	for _, e := range entries {
		if e.Placeholder || e.Section != section {
			continue
		}
		g := GoalProgress{
			CategoryID: e.CategoryID,
			Name:       e.Name,
			Emoji:      e.Emoji,
			Planned:    e.Planned,
			Actual:     e.Actual,
		}
		if e.Planned != nil && math.Abs(*e.Planned) >= 0.01 {
			g.Progress = fptr(round4(e.Actual / *e.Planned))
		}
		out = append(out, g)
	}
	return out
}
