package analytics

import (
	"math"
	"sort"

	"envelopes/internal/core"
)

// CategoryTrendPoint is one month inside a category's trend window. Change,
// PercentChange and ZScore are nil where they cannot be computed (first
// point, near-zero base, zero stddev).
type CategoryTrendPoint struct {
	MonthKey      core.MonthKey `json:"monthKey"`
	Actual        float64       `json:"actual"`
	Change        *float64      `json:"change"`
	PercentChange *float64      `json:"percentChange"`
	ZScore        *float64      `json:"zScore"`
	Flagged       bool          `json:"flagged"`
}

// CategoryTrendEntry is a category's month-over-month movement across the
// trend window. Flagged is true when any point breached a threshold.
type CategoryTrendEntry struct {
	CategoryID string               `json:"categoryId"`
	Name       string               `json:"name"`
	Emoji      string               `json:"emoji"`
	Section    core.Section         `json:"section"`
	Points     []CategoryTrendPoint `json:"points"`
	Flagged    bool                 `json:"flagged"`
}

// trendWindow returns the trailing realized months (strictly-future months
// excluded, current included), at most cfg.TrendWindowMonths long.
func trendWindow(months []core.MonthKey, current core.MonthKey, cfg Thresholds) []core.MonthKey {
	var realized []core.MonthKey
	for _, k := range months {
		if !k.After(current) {
			realized = append(realized, k)
		}
	}
	if len(realized) > cfg.TrendWindowMonths {
		realized = realized[len(realized)-cfg.TrendWindowMonths:]
	}
	return realized
}

// buildTrends computes per-category trend points with z-scores over the
// consecutive deltas in the window. Categories with no activity in the
// window are skipped; the result is flagged-first, then by most recent
// actual descending, capped to keep anomaly volume bounded.
func buildTrends(r *rollupSet, months []core.MonthKey, current core.MonthKey, cfg Thresholds) []CategoryTrendEntry {
	window := trendWindow(months, current, cfg)
	if len(window) == 0 {
		return nil
	}

	var entries []CategoryTrendEntry
	for _, id := range r.sortedCategoryIDs() {
		cr := r.categories[id]

		actuals := make([]float64, len(window))
		active := false
		for i, k := range window {
			if snap, ok := cr.Months[k]; ok {
				actuals[i] = snap.EffectiveActual()
				if actuals[i] != 0 {
					active = true
				}
			}
		}
		if !active {
			continue
		}

		deltas := make([]float64, 0, len(window)-1)
		for i := 1; i < len(actuals); i++ {
			deltas = append(deltas, round2(actuals[i]-actuals[i-1]))
		}
		mean, std := meanStddev(deltas)

		entry := CategoryTrendEntry{
			CategoryID: cr.CategoryID,
			Name:       cr.Name,
			Emoji:      cr.Emoji,
			Section:    cr.Section,
			Points:     make([]CategoryTrendPoint, 0, len(window)),
		}
		for i, k := range window {
			p := CategoryTrendPoint{MonthKey: k, Actual: actuals[i]}
			if i > 0 {
				delta := deltas[i-1]
				p.Change = &delta
				if math.Abs(actuals[i-1]) >= 0.01 {
					p.PercentChange = fptr(round4(delta / actuals[i-1]))
				}
				// A zero stddev (constant deltas) yields no z-score at all.
				if std > 0 {
					p.ZScore = fptr(round4((delta - mean) / std))
				}
				zFlag := p.ZScore != nil && math.Abs(*p.ZScore) >= cfg.TrendStdThreshold
				pctFlag := p.PercentChange != nil && math.Abs(*p.PercentChange) >= cfg.TrendPercentThreshold
				p.Flagged = zFlag || pctFlag
				if p.Flagged {
					entry.Flagged = true
				}
			}
			entry.Points = append(entry.Points, p)
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Flagged != entries[j].Flagged {
			return entries[i].Flagged
		}
		li := entries[i].Points[len(entries[i].Points)-1].Actual
		lj := entries[j].Points[len(entries[j].Points)-1].Actual
		if li != lj {
			return li > lj
		}
		return entries[i].CategoryID < entries[j].CategoryID
	})
	if len(entries) > maxTrendCategories {
		entries = entries[:maxTrendCategories]
	}
	return entries
}

// meanStddev returns the population mean and standard deviation.
func meanStddev(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return mean, math.Sqrt(sum / float64(len(values)))
}
