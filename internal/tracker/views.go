package tracker

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"wheel-tracker/internal/analytics"
	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/models"
	"wheel-tracker/internal/positions"
	"wheel-tracker/internal/ranking"
)

// asOf reports legs the way they stand at now, so an open leg past its
// expiration shows as expired worthless.
func asOf(p positions.Position, now time.Time) positions.Position {
	for i := range p.Legs {
		p.Legs[i].Status = p.Legs[i].StatusAt(now)
	}
	return p
}

// Positions returns every ticker's derived position as of now.
func (t *Tracker) Positions(now time.Time) ([]positions.Position, error) {
	d, err := t.state()
	if err != nil {
		return nil, err
	}
	out := d.book.Positions()
	for i := range out {
		out[i] = asOf(out[i], now)
	}
	return out, nil
}

// Position returns one ticker's derived position as of now.
func (t *Tracker) Position(ticker string, now time.Time) (positions.Position, error) {
	d, err := t.state()
	if err != nil {
		return positions.Position{}, err
	}
	p, ok := d.book.Position(ticker)
	if !ok {
		return positions.Position{}, apperrors.NotFound("position", ticker)
	}
	return asOf(p, now), nil
}

// OpenLegs returns legs still open at now, soonest expiration first.
func (t *Tracker) OpenLegs(now time.Time) ([]positions.Leg, error) {
	d, err := t.state()
	if err != nil {
		return nil, err
	}
	var open []positions.Leg
	for _, leg := range d.book.OpenLegs() {
		if leg.StatusAt(now) == models.LegOpen {
			open = append(open, leg)
		}
	}
	return open, nil
}

// Summary returns the premium summary as of now.
func (t *Tracker) Summary(now time.Time) (analytics.Summary, error) {
	d, err := t.state()
	if err != nil {
		return analytics.Summary{}, err
	}
	return d.engine.Summary(now), nil
}

// IncomeByPeriod returns the gap-free income series for [from, to].
func (t *Tracker) IncomeByPeriod(from, to time.Time, gran models.Granularity) ([]analytics.PeriodIncome, error) {
	d, err := t.state()
	if err != nil {
		return nil, err
	}
	return d.engine.IncomeByPeriod(from, to, gran)
}

// TickerTotals returns all-time premium per ticker.
func (t *Tracker) TickerTotals() ([]analytics.TickerTotal, error) {
	d, err := t.state()
	if err != nil {
		return nil, err
	}
	return d.engine.TickerTotals(), nil
}

// TopPerformers ranks tickers by premium in the to-date period.
func (t *Tracker) TopPerformers(period analytics.Period, now time.Time, limit int) ([]analytics.TickerTotal, error) {
	d, err := t.state()
	if err != nil {
		return nil, err
	}
	return d.engine.TopPerformers(period, now, limit), nil
}

// PortfolioValue values the portfolio on every step-th trading day in [from, to].
func (t *Tracker) PortfolioValue(ctx context.Context, from, to time.Time, step int) ([]analytics.ValuePoint, error) {
	d, err := t.state()
	if err != nil {
		return nil, err
	}
	return analytics.PortfolioValueSeries(ctx, d.events, t.opts.Positions, t.prices, from, to, step)
}

// Rankings compares realized return over [from, to] with the benchmarks.
func (t *Tracker) Rankings(ctx context.Context, from, to time.Time) (ranking.Result, error) {
	d, err := t.state()
	if err != nil {
		return ranking.Result{}, err
	}
	return t.ranker.Rank(ctx, d.events, t.opts.Positions, from, to)
}

// Holding is one priced share position inside a snapshot.
type Holding struct {
	Ticker      string          `json:"ticker"`
	Shares      int64           `json:"shares"`
	Basis       decimal.Decimal `json:"basis"`
	Price       decimal.Decimal `json:"price"`
	MarketValue decimal.Decimal `json:"market_value"`
	Unrealized  decimal.Decimal `json:"unrealized"`
	Available   bool            `json:"available"`
	Reason      string          `json:"reason,omitempty"`
}

// Snapshot is the point-in-time valuation of the portfolio. When any
// holding cannot be priced, Available is false and Value only covers the
// realized premium and the priced holdings.
type Snapshot struct {
	At              time.Time       `json:"at"`
	Holdings        []Holding       `json:"holdings"`
	RealizedPremium decimal.Decimal `json:"realized_premium"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	MarketValue     decimal.Decimal `json:"market_value"`
	Value           decimal.Decimal `json:"value"`
	Available       bool            `json:"available"`
}

// Snapshot values the portfolio as it stood at the given time.
func (t *Tracker) Snapshot(ctx context.Context, at time.Time) (Snapshot, error) {
	d, err := t.state()
	if err != nil {
		return Snapshot{}, err
	}
	book, err := positions.ReplayUntil(d.events, t.opts.Positions, at)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		At:              at,
		RealizedPremium: book.RealizedPremium(),
		RealizedPnL:     book.RealizedPnL(),
		MarketValue:     decimal.Zero,
		Available:       true,
	}
	for _, p := range book.Positions() {
		if p.Shares() == 0 {
			continue
		}
		basis, _ := p.RunningBasis(t.opts.Positions.BasisMode)
		h := Holding{Ticker: p.Ticker, Shares: p.Shares(), Basis: basis}

		price, err := t.prices.PriceOf(ctx, p.Ticker, at)
		if err != nil {
			if ctx.Err() != nil {
				return Snapshot{}, ctx.Err()
			}
			h.Reason = err.Error()
			snap.Available = false
		} else {
			shares := decimal.NewFromInt(h.Shares)
			h.Price = price
			h.MarketValue = price.Mul(shares)
			h.Unrealized = price.Sub(basis).Mul(shares)
			h.Available = true
			snap.MarketValue = snap.MarketValue.Add(h.MarketValue)
		}
		snap.Holdings = append(snap.Holdings, h)
	}
	sort.Slice(snap.Holdings, func(i, j int) bool {
		return snap.Holdings[i].Ticker < snap.Holdings[j].Ticker
	})
	snap.Value = snap.MarketValue.Add(snap.RealizedPremium)
	return snap, nil
}
