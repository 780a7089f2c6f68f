package analytics

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"envelopes/internal/core"
)

// UnlabeledVendor is the fallback label for expense rows with neither a
// merchant nor a description.
const UnlabeledVendor = "Unlabeled merchant"

// VendorSummary ranks one merchant's expense activity in the current month.
// Href is a deep link into the transaction list the presentation layer
// depends on.
type VendorSummary struct {
	Label   string  `json:"label"`
	Total   float64 `json:"total"`
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Href    string  `json:"href"`
}

// TransactionSummary is one of the month's largest individual transactions.
type TransactionSummary struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Amount     float64   `json:"amount"`
	OccurredOn time.Time `json:"occurredOn"`
	CategoryID string    `json:"categoryId"`
	Href       string    `json:"href"`
}

// vendorLabel normalizes a transaction's merchant identity: merchant name,
// else description, else the unlabeled fallback.
func vendorLabel(t core.Transaction) string {
	if m := strings.TrimSpace(t.Merchant); m != "" {
		return m
	}
	if d := strings.TrimSpace(t.Description); d != "" {
		return d
	}
	return UnlabeledVendor
}

func searchHref(query string) string {
	return "/transactions?search=" + url.QueryEscape(query)
}

// summarizeVendors groups the current month's expense transactions by
// normalized vendor label and returns the top vendors by total alongside
// the top individual transactions by amount.
func summarizeVendors(txs []core.Transaction, current core.MonthKey, cfg Thresholds) ([]VendorSummary, []TransactionSummary) {
	type acc struct {
		total float64
		count int
	}
	byVendor := make(map[string]*acc)
	var monthTxs []core.Transaction

	for _, t := range txs {
		if t.Type != core.TypeExpense || core.MonthKeyOf(t.OccurredOn) != current {
			continue
		}
		monthTxs = append(monthTxs, t)
		label := vendorLabel(t)
		a, ok := byVendor[label]
		if !ok {
			a = &acc{}
			byVendor[label] = a
		}
		a.total = round2(a.total + t.Amount.Amount())
		a.count++
	}

	vendors := make([]VendorSummary, 0, len(byVendor))
	for label, a := range byVendor {
		vendors = append(vendors, VendorSummary{
			Label:   label,
			Total:   a.total,
			Count:   a.count,
			Average: round2(a.total / float64(a.count)),
			Href:    searchHref(label),
		})
	}
	sort.SliceStable(vendors, func(i, j int) bool {
		if vendors[i].Total != vendors[j].Total {
			return vendors[i].Total > vendors[j].Total
		}
		return vendors[i].Label < vendors[j].Label
	})
	if len(vendors) > cfg.TopVendorLimit {
		vendors = vendors[:cfg.TopVendorLimit]
	}

	sort.SliceStable(monthTxs, func(i, j int) bool {
		if monthTxs[i].Amount.Cents != monthTxs[j].Amount.Cents {
			return monthTxs[i].Amount.Cents > monthTxs[j].Amount.Cents
		}
		return monthTxs[i].ID < monthTxs[j].ID
	})
	if len(monthTxs) > cfg.TopTransactionLimit {
		monthTxs = monthTxs[:cfg.TopTransactionLimit]
	}
	top := make([]TransactionSummary, 0, len(monthTxs))
	for _, t := range monthTxs {
		label := vendorLabel(t)
		top = append(top, TransactionSummary{
			ID:         t.ID,
			Label:      label,
			Amount:     t.Amount.Amount(),
			OccurredOn: t.OccurredOn,
			CategoryID: t.CategoryID,
			Href:       searchHref(label),
		})
	}
	return vendors, top
}
