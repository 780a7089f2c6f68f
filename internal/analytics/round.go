package analytics

import "math"

// round2 keeps money accumulation at two decimal places so floating point
// drift cannot compound across months.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// round4 is used for ratios (variance percent, share, z-scores).
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func fptr(v float64) *float64 { return &v }
