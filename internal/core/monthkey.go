// Package core provides the budgeting domain model shared by storage, the
// analytics engine and the HTTP layer.
package core

import (
	"fmt"
	"time"
)

// MonthKey is a calendar month in canonical "YYYY-MM" form. Keys sort
// lexically in chronological order, which every map-keyed accumulation in
// the analytics engine relies on.
type MonthKey string

// ParseMonthKey validates a "YYYY-MM" string. A malformed key is the one
// input error this package surfaces to callers instead of repairing.
func ParseMonthKey(s string) (MonthKey, error) {
	k := MonthKey(s)
	if err := k.Validate(); err != nil {
		return "", err
	}
	return k, nil
}

func (k MonthKey) Validate() error {
	if len(k) != 7 || k[4] != '-' {
		return fmt.Errorf("%w: month key %q is not YYYY-MM", ErrInvalidDate, string(k))
	}
	for i, r := range k {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: month key %q is not YYYY-MM", ErrInvalidDate, string(k))
		}
	}
	month := int(k[5]-'0')*10 + int(k[6]-'0')
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month key %q has month %d", ErrInvalidDate, string(k), month)
	}
	return nil
}

// MonthKeyOf returns the key of the month containing t, in t's location.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(t.Format("2006-01"))
}

// Start returns local midnight on the first day of the month. The zone
// matters: budget months are calendar months in the household's local time,
// not UTC.
func (k MonthKey) Start(loc *time.Location) time.Time {
	year := int(k[0]-'0')*1000 + int(k[1]-'0')*100 + int(k[2]-'0')*10 + int(k[3]-'0')
	month := time.Month(int(k[5]-'0')*10 + int(k[6]-'0'))
	return time.Date(year, month, 1, 0, 0, 0, 0, loc)
}

// End returns local midnight on the last day of the month.
func (k MonthKey) End(loc *time.Location) time.Time {
	return k.Start(loc).AddDate(0, 1, -1)
}

// Next returns the following calendar month.
func (k MonthKey) Next() MonthKey {
	return MonthKeyOf(k.Start(time.UTC).AddDate(0, 1, 0))
}

// Prev returns the preceding calendar month.
func (k MonthKey) Prev() MonthKey {
	return MonthKeyOf(k.Start(time.UTC).AddDate(0, -1, 0))
}

// Days returns the number of days in the month.
func (k MonthKey) Days() int {
	start := k.Start(time.UTC)
	return start.AddDate(0, 1, -1).Day()
}

// Label returns a short human label such as "Jan 2026".
func (k MonthKey) Label() string {
	return k.Start(time.UTC).Format("Jan 2006")
}

// LongLabel returns a full label such as "January 2026".
func (k MonthKey) LongLabel() string {
	return k.Start(time.UTC).Format("January 2006")
}

func (k MonthKey) Before(other MonthKey) bool { return k < other }
func (k MonthKey) After(other MonthKey) bool  { return k > other }

func (k MonthKey) String() string { return string(k) }
