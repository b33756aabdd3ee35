package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"wheel-tracker/internal/models"
	"wheel-tracker/internal/positions"
	"wheel-tracker/pkg/utils"
)

// PriceSource prices a ticker on a date.
type PriceSource interface {
	PriceOf(ctx context.Context, ticker string, date time.Time) (decimal.Decimal, error)
}

// ValuePoint is the portfolio valuation at the close of one date. When any
// held ticker could not be priced, Available is false, Value is zero and
// Missing names the unpriced tickers.
type ValuePoint struct {
	Date      time.Time       `json:"date"`
	Value     decimal.Decimal `json:"value"`
	Holdings  decimal.Decimal `json:"holdings"`
	Premium   decimal.Decimal `json:"premium"`
	Available bool            `json:"available"`
	Missing   []string        `json:"missing,omitempty"`
}

// PortfolioValueSeries values the portfolio on every step-th trading day in
// [from, to]: shares held at that day's close times the day's price, plus all
// premium realized by then. Events are applied incrementally as the dates
// advance.
func PortfolioValueSeries(ctx context.Context, events []models.TradeEvent, opts positions.Options,
	prices PriceSource, from, to time.Time, step int) ([]ValuePoint, error) {

	ordered := append([]models.TradeEvent(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Before(ordered[j])
	})

	book := positions.NewBook(opts)
	next := 0
	var series []ValuePoint
	for _, day := range utils.TradingDays(from, to, step) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cutoff := utils.EndOfDay(day)
		for next < len(ordered) && !ordered[next].Timestamp.After(cutoff) {
			if err := book.Apply(ordered[next]); err != nil {
				return nil, err
			}
			next++
		}

		point := ValuePoint{
			Date:      day,
			Premium:   book.RealizedPremium(),
			Holdings:  decimal.Zero,
			Available: true,
		}
		holdings := book.Holdings()
		tickers := make([]string, 0, len(holdings))
		for t := range holdings {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)

		for _, ticker := range tickers {
			price, err := prices.PriceOf(ctx, ticker, day)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				point.Available = false
				point.Missing = append(point.Missing, ticker)
				continue
			}
			point.Holdings = point.Holdings.Add(price.Mul(decimal.NewFromInt(holdings[ticker])))
		}
		if point.Available {
			point.Value = point.Holdings.Add(point.Premium)
		} else {
			point.Holdings = decimal.Zero
		}
		series = append(series, point)
	}
	return series, nil
}
