package utils

import (
	"time"
)

// NewYorkLocation is the timezone US equity and option markets settle in.
var NewYorkLocation *time.Location

func init() {
	var err error
	NewYorkLocation, err = time.LoadLocation("America/New_York")
	if err != nil {
		NewYorkLocation = time.FixedZone("ET", -5*60*60)
	}
}

// IsTradingDay reports whether t falls on a weekday. Exchange holidays are
// not modelled; price lookups on a holiday fall back to the prior close.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// TradingDays returns every weekday date in [from, to], stepping by step
// trading days. A non-positive step is treated as 1.
func TradingDays(from, to time.Time, step int) []time.Time {
	if step <= 0 {
		step = 1
	}
	var days []time.Time
	n := 0
	for d := startOfDay(from); !d.After(to); d = d.AddDate(0, 0, 1) {
		if !IsTradingDay(d) {
			continue
		}
		if n%step == 0 {
			days = append(days, d)
		}
		n++
	}
	return days
}

// SessionDate maps t to its New York trading date, expressed as UTC midnight.
func SessionDate(t time.Time) time.Time {
	y, m, d := t.In(NewYorkLocation).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
