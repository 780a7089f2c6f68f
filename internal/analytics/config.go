package analytics

// Thresholds collects every tunable used by the dashboard pipeline. Keeping
// them in one value (and echoing it back on the result) lets the UI render
// explanatory copy consistent with what was actually applied, and lets tests
// exercise boundary behavior by varying one knob at a time.
type Thresholds struct {
	// CategoryVarianceThreshold is the |variance|/planned ratio at which a
	// category or month is flagged over/under plan.
	CategoryVarianceThreshold float64 `json:"categoryVarianceThreshold"`
	// TrendStdThreshold is the |z-score| at which a trend point is flagged.
	TrendStdThreshold float64 `json:"trendStdThreshold"`
	// TrendPercentThreshold is the |month-over-month percent change| at
	// which a trend point is flagged.
	TrendPercentThreshold float64 `json:"trendPercentThreshold"`
	// ForecastLookaheadMonths is how far past the current month the range
	// resolver and forecast window extend.
	ForecastLookaheadMonths int `json:"forecastLookaheadMonths"`
	TopVendorLimit          int `json:"topVendorLimit"`
	TopTransactionLimit     int `json:"topTransactionLimit"`
	// TrendWindowMonths bounds the trailing window of realized months used
	// for category trend statistics.
	TrendWindowMonths int `json:"trendWindowMonths"`
	// MaxMonthGuard hard-caps the resolved month range; generation stops
	// there instead of erroring.
	MaxMonthGuard int `json:"maxMonthGuard"`
}

// DefaultThresholds returns the production configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CategoryVarianceThreshold: 0.12,
		TrendStdThreshold:         2,
		TrendPercentThreshold:     0.25,
		ForecastLookaheadMonths:   3,
		TopVendorLimit:            8,
		TopTransactionLimit:       8,
		TrendWindowMonths:         6,
		MaxMonthGuard:             48,
	}
}

// maxTrendCategories bounds how many trend entries reach the anomaly scan.
const maxTrendCategories = 12

// baselineWindowMonths is the trailing window averaged into the forecast
// baseline net.
const baselineWindowMonths = 4
