package core

import (
	"testing"
	"time"
)

func TestParseMonthKey(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"2026-01", false},
		{"2026-12", false},
		{"1999-06", false},
		{"2026-00", true},
		{"2026-13", true},
		{"2026-1", true},
		{"202601", true},
		{"2026/01", true},
		{"abcd-ef", true},
		{"", true},
		{"2026-01-15", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			k, err := ParseMonthKey(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseMonthKey(%q) expected error, got %q", tt.input, k)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseMonthKey(%q) unexpected error: %v", tt.input, err)
			}
			if string(k) != tt.input {
				t.Errorf("ParseMonthKey(%q) = %q", tt.input, k)
			}
		})
	}
}

func TestMonthKeyStartEnd(t *testing.T) {
	loc := time.UTC
	k := MonthKey("2026-02")

	start := k.Start(loc)
	if !start.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, loc)) {
		t.Errorf("Start = %v", start)
	}
	end := k.End(loc)
	if !end.Equal(time.Date(2026, 2, 28, 0, 0, 0, 0, loc)) {
		t.Errorf("End = %v", end)
	}
}

func TestMonthKeyNextPrev(t *testing.T) {
	tests := []struct {
		key  MonthKey
		next MonthKey
		prev MonthKey
	}{
		{"2026-01", "2026-02", "2025-12"},
		{"2026-12", "2027-01", "2026-11"},
		{"2024-02", "2024-03", "2024-01"},
	}

	for _, tt := range tests {
		if got := tt.key.Next(); got != tt.next {
			t.Errorf("%s.Next() = %s, want %s", tt.key, got, tt.next)
		}
		if got := tt.key.Prev(); got != tt.prev {
			t.Errorf("%s.Prev() = %s, want %s", tt.key, got, tt.prev)
		}
	}
}

func TestMonthKeyDays(t *testing.T) {
	tests := []struct {
		key  MonthKey
		days int
	}{
		{"2026-01", 31},
		{"2026-02", 28},
		{"2024-02", 29}, // leap year
		{"2026-04", 30},
	}

	for _, tt := range tests {
		if got := tt.key.Days(); got != tt.days {
			t.Errorf("%s.Days() = %d, want %d", tt.key, got, tt.days)
		}
	}
}

func TestMonthKeyLabels(t *testing.T) {
	k := MonthKey("2026-09")
	if got := k.Label(); got != "Sep 2026" {
		t.Errorf("Label = %q", got)
	}
	if got := k.LongLabel(); got != "September 2026" {
		t.Errorf("LongLabel = %q", got)
	}
}

func TestMonthKeyOrdering(t *testing.T) {
	a, b := MonthKey("2025-12"), MonthKey("2026-01")
	if !a.Before(b) || b.Before(a) {
		t.Error("lexical ordering should match chronological ordering")
	}
	if !b.After(a) {
		t.Error("After should be the inverse of Before")
	}
}

func TestMonthKeyOf(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 2026-02-01 03:00 UTC is still January in New York.
	utc := time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)
	if got := MonthKeyOf(utc.In(loc)); got != "2026-01" {
		t.Errorf("MonthKeyOf in local zone = %s, want 2026-01", got)
	}
	if got := MonthKeyOf(utc); got != "2026-02" {
		t.Errorf("MonthKeyOf in UTC = %s, want 2026-02", got)
	}
}
