package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wheel-tracker/internal/models"
)

// PeriodIncome is the premium realized in one bucket of an income series.
// End is exclusive.
type PeriodIncome struct {
	Label  string          `json:"label"`
	Start  time.Time       `json:"start"`
	End    time.Time       `json:"end"`
	Amount decimal.Decimal `json:"amount"`
}

// IncomeByPeriod buckets premium for the calendar days from through to
// (inclusive) into consecutive periods of the given granularity. Every period
// in range is present, with zero amounts where nothing was realized. The
// first and last buckets are clipped to the range, so the amounts always
// sum to the premium realized inside it.
func (e *Engine) IncomeByPeriod(from, to time.Time, gran models.Granularity) ([]PeriodIncome, error) {
	start := dayStart(from.In(e.loc))
	end := dayStart(to.In(e.loc)).AddDate(0, 0, 1)
	if !start.Before(end) {
		return nil, fmt.Errorf("empty range %s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	var out []PeriodIncome
	switch gran {
	case models.GranularityWeek:
		anchor := e.anchor
		if !e.hasEvents {
			anchor = start
		}
		weeks := &Engine{anchor: anchor, hasEvents: true, loc: e.loc}
		for cur := start; cur.Before(end); {
			i := weeks.WeekIndex(cur)
			next := minTime(weeks.WeekStart(i+1), end)
			out = append(out, PeriodIncome{
				Label:  fmt.Sprintf("Week %d", i+1),
				Start:  cur,
				End:    next,
				Amount: e.sum(cur, next),
			})
			cur = next
		}

	case models.GranularityMonth:
		for cur := start; cur.Before(end); {
			next := minTime(monthStart(cur).AddDate(0, 1, 0), end)
			out = append(out, PeriodIncome{
				Label:  cur.Format("Jan 2006"),
				Start:  cur,
				End:    next,
				Amount: e.sum(cur, next),
			})
			cur = next
		}

	default:
		return nil, fmt.Errorf("unknown granularity %q", gran)
	}
	return out, nil
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// TickerTotal is one row of the positions premium table.
type TickerTotal struct {
	Ticker      string          `json:"ticker"`
	PutPremium  decimal.Decimal `json:"put_premium"`
	CallPremium decimal.Decimal `json:"call_premium"`
	Total       decimal.Decimal `json:"total"`
}

// TickerTotals sums premium per ticker over all time.
func (e *Engine) TickerTotals() []TickerTotal {
	return e.tickerTotals(time.Time{}, time.Time{})
}

// tickerTotals sums premium per ticker in [from, to); zero bounds are open.
// Rows are ordered by total descending, then ticker ascending.
func (e *Engine) tickerTotals(from, to time.Time) []TickerTotal {
	byTicker := make(map[string]*TickerTotal)
	for _, c := range e.contributions {
		if !from.IsZero() && c.At.Before(from) {
			continue
		}
		if !to.IsZero() && !c.At.Before(to) {
			continue
		}
		row, ok := byTicker[c.Ticker]
		if !ok {
			row = &TickerTotal{Ticker: c.Ticker}
			byTicker[c.Ticker] = row
		}
		if c.Side == models.SideCall {
			row.CallPremium = row.CallPremium.Add(c.Premium)
		} else {
			row.PutPremium = row.PutPremium.Add(c.Premium)
		}
		row.Total = row.Total.Add(c.Premium)
	}

	out := make([]TickerTotal, 0, len(byTicker))
	for _, row := range byTicker {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

// Period is a to-date window for top performer reporting.
type Period string

const (
	PeriodMTD Period = "mtd"
	PeriodYTD Period = "ytd"
)

// ParsePeriod parses a top performer window.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodMTD, "month":
		return PeriodMTD, nil
	case PeriodYTD, "year", "":
		return PeriodYTD, nil
	}
	return "", fmt.Errorf("unknown period %q (must be 'mtd' or 'ytd')", s)
}

// DefaultTopLimit is the number of top performers reported when no limit is given.
const DefaultTopLimit = 5

// TopPerformers ranks tickers by premium realized in the period ending now.
func (e *Engine) TopPerformers(period Period, now time.Time, limit int) []TickerTotal {
	local := now.In(e.loc)
	from := yearStart(local)
	if period == PeriodMTD {
		from = monthStart(local)
	}
	rows := e.tickerTotals(from, now.Add(time.Nanosecond))
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
