package tracker

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"wheel-tracker/internal/marketdata"
	"wheel-tracker/internal/models"
	"wheel-tracker/internal/ranking"
)

// demoWeeks is how far back the demo history starts.
const demoWeeks = 16

// DemoEvents returns a sample wheel history ending shortly before now. Ids
// of linked events assume the history is recorded into an empty ledger in
// the returned order.
func DemoEvents(now time.Time) []models.TradeEvent {
	y, m, d := now.UTC().AddDate(0, 0, -7*demoWeeks).Date()
	start := time.Date(y, m, d, 15, 30, 0, 0, time.UTC)
	day := func(n int) time.Time { return start.AddDate(0, 0, n) }
	exp := func(n int) time.Time { return models.DateOf(day(n)) }
	price := func(s string) decimal.NullDecimal {
		return decimal.NewNullDecimal(decimal.RequireFromString(s))
	}
	strike := decimal.RequireFromString

	return []models.TradeEvent{
		{Ticker: "AAPL", Kind: models.KindSellPut, Strike: strike("180"), Expiration: exp(30), Premium: price("2.10"), Contracts: 1, Timestamp: day(0)},
		{Ticker: "MSFT", Kind: models.KindSellPut, Strike: strike("400"), Expiration: exp(29), Premium: price("4.50"), Contracts: 1, Timestamp: day(1)},
		{Ticker: "MSFT", Kind: models.KindClose, ClosePrice: strike("1.20"), Contracts: 1, LinkedTradeID: 2, Timestamp: day(14)},
		{Ticker: "AMD", Kind: models.KindSellPut, Strike: strike("150"), Expiration: exp(45), Premium: price("3.20"), Contracts: 2, Timestamp: day(20)},
		{Ticker: "AAPL", Kind: models.KindPutAssigned, Shares: 100, CostBasisPerShare: strike("180"), Contracts: 1, LinkedTradeID: 1, Timestamp: day(30)},
		{Ticker: "AAPL", Kind: models.KindSellCall, Strike: strike("185"), Expiration: exp(59), Premium: price("1.80"), Contracts: 1, Timestamp: day(31)},
		{Ticker: "AMD", Kind: models.KindRoll, Strike: strike("145"), Expiration: exp(73), Premium: price("0.85"), Contracts: 2, LinkedTradeID: 4, Timestamp: day(44)},
		{Ticker: "AAPL", Kind: models.KindCallAssigned, Shares: 100, CostBasisPerShare: strike("185"), Contracts: 1, LinkedTradeID: 6, Timestamp: day(59)},
		{Ticker: "AAPL", Kind: models.KindSellPut, Strike: strike("175"), Expiration: exp(95), Premium: price("2.40"), Contracts: 1, Timestamp: day(60)},
		{Ticker: "AMD", Kind: models.KindPutAssigned, Shares: 200, CostBasisPerShare: strike("145"), Contracts: 2, LinkedTradeID: 7, Timestamp: day(73)},
		{Ticker: "AMD", Kind: models.KindSellCall, Strike: strike("150"), Expiration: exp(115), Premium: price("2.90"), Contracts: 2, Timestamp: day(75)},
		{Ticker: "NVDA", Kind: models.KindSellPut, Strike: strike("120"), Expiration: exp(118), Premium: price("3.75"), Contracts: 1, Timestamp: day(90)},
		{Ticker: "MSFT", Kind: models.KindSellPut, Strike: strike("410"), Expiration: exp(126), Premium: price("5.10"), Contracts: 1, Timestamp: day(98)},
	}
}

// SeedDemo records the demo history into t when its ledger is empty and
// returns the number of events recorded.
func SeedDemo(ctx context.Context, t *Tracker) (int, error) {
	if t.Len() > 0 {
		return 0, nil
	}
	events := DemoEvents(t.Now())
	for _, ev := range events {
		if _, err := t.Record(ctx, ev); err != nil {
			return 0, err
		}
	}
	t.logger.Info().Int("events", len(events)).Msg("Demo ledger seeded")
	return len(events), nil
}

type demoSeries struct {
	base  float64
	trend float64
	swing float64
}

var demoCurves = map[string]demoSeries{
	"AAPL": {base: 178, trend: 0.08, swing: 0.04},
	"MSFT": {base: 395, trend: 0.10, swing: 0.03},
	"AMD":  {base: 152, trend: -0.05, swing: 0.07},
	"NVDA": {base: 118, trend: 0.25, swing: 0.08},
	"SPY":  {base: 480, trend: 0.09, swing: 0.02},
	"QQQ":  {base: 410, trend: 0.12, swing: 0.03},
	"IWM":  {base: 200, trend: 0.03, swing: 0.04},
	"DIA":  {base: 380, trend: 0.06, swing: 0.02},
}

// DemoPrices builds deterministic weekday closes for the demo tickers and
// benchmarks over the year before now.
func DemoPrices(now time.Time, benchmarks []ranking.Benchmark) *marketdata.StaticProvider {
	p := marketdata.NewStaticProvider()
	first := models.DateOf(now.UTC()).AddDate(-1, 0, -7)
	last := models.DateOf(now.UTC())

	for symbol, curve := range demoCurves {
		p.Set(symbol, curve.points(first, last)...)
	}
	for i, b := range benchmarks {
		if _, ok := demoCurves[b.Symbol]; ok {
			continue
		}
		curve := demoSeries{base: 100, trend: 0.02 * float64(i+1), swing: 0.02}
		p.Set(b.Symbol, curve.points(first, last)...)
	}
	return p
}

func (c demoSeries) points(first, last time.Time) []models.PricePoint {
	var out []models.PricePoint
	for d, i := first, 0; !d.After(last); d, i = d.AddDate(0, 0, 1), i+1 {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		years := float64(i) / 365
		v := c.base * (1 + c.trend*years + c.swing*math.Sin(float64(i)/9))
		out = append(out, models.PricePoint{Date: d, Price: decimal.NewFromFloat(v).Round(2)})
	}
	return out
}
