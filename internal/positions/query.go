package positions

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"wheel-tracker/internal/models"
)

// Options returns the options the book replays with.
func (b *Book) Options() Options {
	return b.opts
}

// Applied is the number of events applied so far.
func (b *Book) Applied() int {
	return b.applied
}

// Position returns the derived position for ticker.
func (b *Book) Position(ticker string) (Position, bool) {
	pos, ok := b.positions[ticker]
	if !ok {
		return Position{}, false
	}
	return pos.snapshot(), true
}

// Positions returns every ticker ever traded, ordered by ticker.
func (b *Book) Positions() []Position {
	tickers := make([]string, 0, len(b.positions))
	for t := range b.positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	out := make([]Position, len(tickers))
	for i, t := range tickers {
		out[i] = b.positions[t].snapshot()
	}
	return out
}

// Leg returns the leg opened by event id.
func (b *Book) Leg(id int64) (Leg, bool) {
	leg, ok := b.legs[id]
	if !ok {
		return Leg{}, false
	}
	return *leg, true
}

// OpenLegs returns every open leg ordered by expiration, then id.
func (b *Book) OpenLegs() []Leg {
	var legs []Leg
	for _, leg := range b.legs {
		if leg.Status == models.LegOpen {
			legs = append(legs, *leg)
		}
	}
	sort.Slice(legs, func(i, j int) bool {
		if !legs[i].Expiration.Equal(legs[j].Expiration) {
			return legs[i].Expiration.Before(legs[j].Expiration)
		}
		return legs[i].ID < legs[j].ID
	})
	return legs
}

// Contributions returns every realized cash effect in event order.
func (b *Book) Contributions() []Contribution {
	return append([]Contribution(nil), b.contributions...)
}

// Holdings maps each ticker with shares held to its share count.
func (b *Book) Holdings() map[string]int64 {
	out := make(map[string]int64)
	for t, pos := range b.positions {
		if pos.lot.Open() {
			out[t] = pos.lot.Shares
		}
	}
	return out
}

// RealizedPremium sums net option premium across all tickers.
func (b *Book) RealizedPremium() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range b.positions {
		total = total.Add(pos.putPremium).Add(pos.callPremium)
	}
	return total
}

// RealizedPnL sums premium and assignment gains across all tickers.
func (b *Book) RealizedPnL() decimal.Decimal {
	total := b.RealizedPremium()
	for _, pos := range b.positions {
		total = total.Add(pos.assignmentPnL)
	}
	return total
}

// DeployedCapital is the strike-basis cost of held shares plus the cash
// securing the puts still open at asOf.
func (b *Book) DeployedCapital(asOf time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range b.positions {
		total = total.Add(pos.lot.Cost())
		for _, leg := range pos.legs {
			total = total.Add(leg.Collateral(asOf))
		}
	}
	return total
}
