package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"wheel-tracker/internal/models"
)

// Property: any trade event saved to SQLite loads back with identical
// decimals, dates, optional fields and links.
func TestProperty_TradeEventRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	tickers := []string{"AAPL", "MSFT", "AMD", "SPY", "TSLA"}
	kindGen := gen.OneConstOf(models.KindSellPut, models.KindSellCall, models.KindPutAssigned,
		models.KindCallAssigned, models.KindClose, models.KindRoll)
	base := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	nextID := int64(0)

	properties.Property("save then load yields the same event", prop.ForAll(
		func(tickerIdx int, kind models.EventKind, cents int64, contracts int, withOptional bool, offset int64) bool {
			ctx := context.Background()
			nextID++

			ev := models.TradeEvent{
				ID:                nextID,
				Ticker:            tickers[tickerIdx%len(tickers)],
				Kind:              kind,
				Strike:            decimal.New(cents, -2),
				ClosePrice:        decimal.New(cents%500, -3),
				Contracts:         contracts,
				Shares:            int64(contracts) * models.SharesPerContract,
				CostBasisPerShare: decimal.New(cents+1, -2),
				Timestamp:         base.Add(time.Duration(offset) * time.Millisecond),
			}
			if withOptional {
				delta := -0.3
				ev.Delta = &delta
				ev.Premium = decimal.NewNullDecimal(decimal.New(cents%1000, -2))
				ev.Expiration = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
				ev.LinkedTradeID = nextID - 1
			}

			if err := store.Save(ctx, ev); err != nil {
				t.Logf("Failed to save event: %v", err)
				return false
			}
			events, err := store.LoadAll(ctx)
			if err != nil {
				t.Logf("Failed to load events: %v", err)
				return false
			}
			got := events[len(events)-1]
			if !eventsEqual(ev, got) {
				t.Logf("Event mismatch: saved=%+v, loaded=%+v", ev, got)
				return false
			}
			return true
		},
		gen.IntRange(0, len(tickers)-1),
		kindGen,
		gen.Int64Range(1, 10000000),
		gen.IntRange(1, 50),
		gen.Bool(),
		gen.Int64Range(0, 365*24*60*60*1000),
	))

	properties.TestingRun(t)
}

func eventsEqual(a, b models.TradeEvent) bool {
	if a.ID != b.ID || a.Ticker != b.Ticker || a.Kind != b.Kind {
		return false
	}
	if a.Contracts != b.Contracts || a.Shares != b.Shares || a.LinkedTradeID != b.LinkedTradeID {
		return false
	}
	if !a.Strike.Equal(b.Strike) || !a.ClosePrice.Equal(b.ClosePrice) || !a.CostBasisPerShare.Equal(b.CostBasisPerShare) {
		return false
	}
	if a.Premium.Valid != b.Premium.Valid || (a.Premium.Valid && !a.Premium.Decimal.Equal(b.Premium.Decimal)) {
		return false
	}
	if (a.Delta == nil) != (b.Delta == nil) || (a.Delta != nil && *a.Delta != *b.Delta) {
		return false
	}
	return a.Expiration.Equal(b.Expiration) && a.Timestamp.Equal(b.Timestamp)
}
