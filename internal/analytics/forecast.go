package analytics

import (
	"time"

	"envelopes/internal/core"
)

// ForecastPoint is one month of the forward-looking window. Net prefers the
// planned net where a plan exists and falls back to the actual net; AtRisk
// is true when that value is negative. BaselineNet repeats the trailing
// baseline so chart consumers can draw the reference line per point.
type ForecastPoint struct {
	MonthKey       core.MonthKey `json:"monthKey"`
	Label          string        `json:"label"`
	ActualIncome   float64       `json:"actualIncome"`
	ActualExpense  float64       `json:"actualExpense"`
	ActualNet      float64       `json:"actualNet"`
	PlannedIncome  *float64      `json:"plannedIncome"`
	PlannedExpense *float64      `json:"plannedExpense"`
	PlannedNet     *float64      `json:"plannedNet"`
	Net            float64       `json:"net"`
	BaselineNet    float64       `json:"baselineNet"`
	AtRisk         bool          `json:"atRisk"`
}

// Forecast is the cash-flow outlook from the current month through the
// configured lookahead.
type Forecast struct {
	BaselineNet float64         `json:"baselineNet"`
	Points      []ForecastPoint `json:"points"`
}

// buildForecast computes the trailing baseline net and the forecast window.
// The baseline averages actual net over the most recent completed months
// (at most baselineWindowMonths); it is a reference line, not an input to
// the forecast values.
func buildForecast(series []MonthSeries, current core.MonthKey, cfg Thresholds) Forecast {
	var completed []float64
	for _, s := range series {
		if s.MonthKey.Before(current) {
			completed = append(completed, s.ActualNet)
		}
	}
	if len(completed) > baselineWindowMonths {
		completed = completed[len(completed)-baselineWindowMonths:]
	}
	var baseline float64
	if len(completed) > 0 {
		var sum float64
		for _, v := range completed {
			sum += v
		}
		baseline = round2(sum / float64(len(completed)))
	}

	f := Forecast{BaselineNet: baseline}
	horizon := current
	for i := 0; i < cfg.ForecastLookaheadMonths; i++ {
		horizon = horizon.Next()
	}
	for _, s := range series {
		if s.MonthKey.Before(current) || s.MonthKey.After(horizon) {
			continue
		}
		p := ForecastPoint{
			MonthKey:       s.MonthKey,
			Label:          s.Label,
			ActualIncome:   s.ActualIncome,
			ActualExpense:  s.ActualExpense,
			ActualNet:      s.ActualNet,
			PlannedIncome:  s.PlannedIncome,
			PlannedExpense: s.PlannedExpense,
			PlannedNet:     s.PlannedNet,
			BaselineNet:    baseline,
		}
		p.Net = s.ActualNet
		if s.PlannedNet != nil {
			p.Net = *s.PlannedNet
		}
		p.AtRisk = p.Net < 0
		f.Points = append(f.Points, p)
	}
	return f
}

// BurnDownPoint is one day of the current month's cumulative spend-vs-target
// projection. CumulativeTarget and Variance are nil when the month has no
// plan; zero would wrongly read as a fully spent budget.
type BurnDownPoint struct {
	Day              int      `json:"day"`
	DailyActual      float64  `json:"dailyActual"`
	CumulativeActual float64  `json:"cumulativeActual"`
	CumulativeTarget *float64 `json:"cumulativeTarget"`
	Variance         *float64 `json:"variance"`
	IsToday          bool     `json:"isToday"`
	IsOverTarget     bool     `json:"isOverTarget"`
}

// BurnDown is the daily projection for the current month. RemainingBudget
// and DailyAllowance are nil without a plan.
type BurnDown struct {
	MonthKey        core.MonthKey   `json:"monthKey"`
	DaysInMonth     int             `json:"daysInMonth"`
	PlannedTotal    *float64        `json:"plannedTotal"`
	Points          []BurnDownPoint `json:"points"`
	DaysRemaining   int             `json:"daysRemaining"`
	RemainingBudget *float64        `json:"remainingBudget"`
	DailyAllowance  *float64        `json:"dailyAllowance"`
}

// buildBurnDown walks every day of the current month, accumulating daily
// actuals against a linear target when a plan exists. Exactly one point is
// marked as today when asOf falls inside the month.
func buildBurnDown(r *rollupSet, current core.MonthKey, asOf time.Time, loc *time.Location) BurnDown {
	days := current.Days()
	bd := BurnDown{MonthKey: current, DaysInMonth: days}

	var plannedTotal *float64
	if v, ok := r.plannedExpense[current]; ok {
		plannedTotal = fptr(v)
	}
	bd.PlannedTotal = plannedTotal

	today := 0
	if core.MonthKeyOf(asOf.In(loc)) == current {
		today = asOf.In(loc).Day()
	}

	daily := r.txDaily[current]
	var cumulative float64
	var todayCumulative float64
	for day := 1; day <= days; day++ {
		actual := daily[day]
		cumulative = round2(cumulative + actual)
		p := BurnDownPoint{
			Day:              day,
			DailyActual:      actual,
			CumulativeActual: cumulative,
			IsToday:          day == today,
		}
		if plannedTotal != nil {
			target := round2(*plannedTotal / float64(days) * float64(day))
			p.CumulativeTarget = &target
			p.Variance = fptr(round2(cumulative - target))
			p.IsOverTarget = cumulative > target
		}
		if day == today {
			todayCumulative = cumulative
		}
		bd.Points = append(bd.Points, p)
	}

	if today > 0 {
		bd.DaysRemaining = days - today + 1
	}
	if plannedTotal != nil && today > 0 {
		spent := todayCumulative
		remaining := round2(*plannedTotal - spent)
		bd.RemainingBudget = &remaining
		if bd.DaysRemaining > 0 {
			bd.DailyAllowance = fptr(round2(remaining / float64(bd.DaysRemaining)))
		}
	}
	return bd
}
