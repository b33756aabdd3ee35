// Package analytics buckets realized premium into weeks, months and years,
// projects year-end income and values the portfolio over time.
package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"wheel-tracker/internal/positions"
)

// Week is the fixed bucket width of the anchored weekly series.
const Week = 7 * 24 * time.Hour

var daysPerYear = decimal.NewFromInt(365)

// Engine answers period questions over a contribution stream. Weeks are
// counted from the anchor, the timestamp of the first recorded event;
// months and years follow the calendar in loc.
type Engine struct {
	contributions []positions.Contribution
	anchor        time.Time
	hasEvents     bool
	loc           *time.Location
}

// New creates an engine. A zero anchor means no events have been recorded.
func New(contributions []positions.Contribution, anchor time.Time, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		contributions: contributions,
		anchor:        anchor,
		hasEvents:     !anchor.IsZero(),
		loc:           loc,
	}
}

// Summary is the dashboard premium summary.
type Summary struct {
	Week       decimal.Decimal `json:"week"`
	Month      decimal.Decimal `json:"month"`
	YTD        decimal.Decimal `json:"ytd"`
	Projection decimal.Decimal `json:"projection"`
	Total      decimal.Decimal `json:"total"`
	WeekIndex  int             `json:"week_index"`
	AsOf       time.Time       `json:"as_of"`
}

// Anchor returns the start of week 0 and whether any event exists.
func (e *Engine) Anchor() (time.Time, bool) {
	return e.anchor, e.hasEvents
}

// WeekIndex is floor((t - anchor) / 7 days).
func (e *Engine) WeekIndex(t time.Time) int {
	d := t.Sub(e.anchor)
	i := d / Week
	if d%Week < 0 {
		i--
	}
	return int(i)
}

// WeekStart returns the first instant of week index i.
func (e *Engine) WeekStart(i int) time.Time {
	return e.anchor.Add(time.Duration(i) * Week)
}

// sum adds premium whose time falls in [from, to).
func (e *Engine) sum(from, to time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, c := range e.contributions {
		if !c.At.Before(from) && c.At.Before(to) {
			total = total.Add(c.Premium)
		}
	}
	return total
}

// WeeklyPremium sums premium in the anchored week containing now.
func (e *Engine) WeeklyPremium(now time.Time) decimal.Decimal {
	if !e.hasEvents {
		return decimal.Zero
	}
	i := e.WeekIndex(now)
	return e.sum(e.WeekStart(i), e.WeekStart(i+1))
}

// MonthlyPremium sums premium in the calendar month containing now.
func (e *Engine) MonthlyPremium(now time.Time) decimal.Decimal {
	start := monthStart(now.In(e.loc))
	return e.sum(start, start.AddDate(0, 1, 0))
}

// YearToDate sums premium from January 1 of now's year through now.
func (e *Engine) YearToDate(now time.Time) decimal.Decimal {
	return e.sum(yearStart(now.In(e.loc)), now.Add(time.Nanosecond))
}

// Total sums all premium ever realized.
func (e *Engine) Total() decimal.Decimal {
	total := decimal.Zero
	for _, c := range e.contributions {
		total = total.Add(c.Premium)
	}
	return total
}

// Projection extrapolates year-to-date premium to a full 365-day year. It is
// zero when nothing has been recorded or no time has elapsed.
func (e *Engine) Projection(now time.Time) decimal.Decimal {
	if !e.hasEvents {
		return decimal.Zero
	}
	elapsed := now.Sub(yearStart(now.In(e.loc))).Hours() / 24
	if elapsed <= 0 {
		return decimal.Zero
	}
	return e.YearToDate(now).Div(decimal.NewFromFloat(elapsed)).Mul(daysPerYear).Round(2)
}

// Summary collects the headline premium figures as of now.
func (e *Engine) Summary(now time.Time) Summary {
	s := Summary{
		Week:       e.WeeklyPremium(now),
		Month:      e.MonthlyPremium(now),
		YTD:        e.YearToDate(now),
		Projection: e.Projection(now),
		Total:      e.Total(),
		AsOf:       now,
	}
	if e.hasEvents {
		s.WeekIndex = e.WeekIndex(now)
	}
	return s
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func yearStart(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
