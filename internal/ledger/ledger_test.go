package ledger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/models"
)

var base = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return base }
}

func sale(ticker string, kind models.EventKind) models.TradeEvent {
	return models.TradeEvent{
		Ticker:     ticker,
		Kind:       kind,
		Strike:     decimal.NewFromInt(150),
		Premium:    decimal.NewNullDecimal(decimal.RequireFromString("1.50")),
		Contracts:  1,
		Expiration: base.AddDate(0, 0, 30),
	}
}

type memPersistence struct {
	mu     sync.Mutex
	events []models.TradeEvent
	fail   error
}

func (m *memPersistence) LoadAll(ctx context.Context) ([]models.TradeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TradeEvent(nil), m.events...), nil
}

func (m *memPersistence) Save(ctx context.Context, ev models.TradeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.events = append(m.events, ev)
	return nil
}

func TestAppendAssignsIDsAndTimestamps(t *testing.T) {
	l := New(zerolog.Nop(), WithClock(fixedClock()))
	ctx := context.Background()

	id1, err := l.Append(ctx, sale(" aapl ", models.KindSellPut))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	id2, err := l.Append(ctx, sale("MSFT", models.KindSellPut))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if id1 != 1 || id2 != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", id1, id2)
	}

	ev, err := l.Find(id1)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if ev.Ticker != "AAPL" {
		t.Errorf("Ticker = %q, want AAPL", ev.Ticker)
	}
	if !ev.Timestamp.Equal(base) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, base)
	}
	if l.Version() != 2 {
		t.Errorf("Version() = %d, want 2", l.Version())
	}
}

func TestAppendRejectsInvalidEvents(t *testing.T) {
	l := New(zerolog.Nop(), WithClock(fixedClock()))
	ctx := context.Background()
	if _, err := l.Append(ctx, sale("AAPL", models.KindSellPut)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	noContracts := sale("AAPL", models.KindSellPut)
	noContracts.Contracts = 0

	noPremium := sale("AAPL", models.KindSellCall)
	noPremium.Premium = decimal.NullDecimal{}

	expired := sale("AAPL", models.KindSellPut)
	expired.Expiration = base.AddDate(0, 0, -1)

	danglingClose := models.TradeEvent{Ticker: "AAPL", Kind: models.KindClose, Contracts: 1, LinkedTradeID: 99}
	unlinkedClose := models.TradeEvent{Ticker: "AAPL", Kind: models.KindClose, Contracts: 1}
	otherTicker := models.TradeEvent{Ticker: "MSFT", Kind: models.KindClose, Contracts: 1, LinkedTradeID: 1}

	badDelta := sale("AAPL", models.KindSellPut)
	d := 1.5
	badDelta.Delta = &d

	noShares := models.TradeEvent{Ticker: "AAPL", Kind: models.KindPutAssigned, Contracts: 1,
		CostBasisPerShare: decimal.NewFromInt(150)}

	tests := []struct {
		name string
		ev   models.TradeEvent
	}{
		{"zero contracts", noContracts},
		{"missing premium", noPremium},
		{"expiration before trade date", expired},
		{"close of unknown trade", danglingClose},
		{"close without link", unlinkedClose},
		{"close of another ticker", otherTicker},
		{"delta out of range", badDelta},
		{"assignment without shares", noShares},
		{"empty ticker", models.TradeEvent{Kind: models.KindSellPut, Contracts: 1}},
		{"unknown kind", models.TradeEvent{Ticker: "AAPL", Kind: "BUY", Contracts: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Append(ctx, tt.ev)
			if !errors.Is(err, apperrors.ErrInvalidEvent) {
				t.Errorf("Append() error = %v, want invalid event", err)
			}
			if l.Len() != 1 {
				t.Errorf("Len() = %d, rejected append must leave the ledger unchanged", l.Len())
			}
		})
	}
}

func TestSameDayExpirationUsesNewYorkSession(t *testing.T) {
	l := New(zerolog.Nop(), WithClock(fixedClock()))
	ctx := context.Background()

	// 03:00 UTC on Mar 2 is 22:00 on Mar 1 in New York.
	late := sale("SPY", models.KindSellPut)
	late.Timestamp = time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC)
	late.Expiration = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := l.Append(ctx, late); err != nil {
		t.Errorf("Append(0DTE after the close) error = %v", err)
	}

	nextSession := late
	nextSession.Timestamp = time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)
	if _, err := l.Append(ctx, nextSession); !errors.Is(err, apperrors.ErrInvalidEvent) {
		t.Errorf("Append(expired the session before) error = %v, want invalid event", err)
	}
}

func TestAppendRunsChecks(t *testing.T) {
	l := New(zerolog.Nop(), WithClock(fixedClock()))
	reject := errors.New("rejected by check")

	var seen int
	check := func(candidate models.TradeEvent, history []models.TradeEvent) error {
		seen = len(history)
		if candidate.Ticker == "BAD" {
			return reject
		}
		return nil
	}

	ctx := context.Background()
	if _, err := l.Append(ctx, sale("AAPL", models.KindSellPut), check); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := l.Append(ctx, sale("BAD", models.KindSellPut), check); !errors.Is(err, reject) {
		t.Errorf("Append() error = %v, want check error", err)
	}
	if seen != 1 || l.Len() != 1 {
		t.Errorf("seen = %d, Len() = %d, want 1, 1", seen, l.Len())
	}
}

func TestEventsOrderedByTimestampThenID(t *testing.T) {
	l := New(zerolog.Nop(), WithClock(fixedClock()))
	ctx := context.Background()

	late := sale("AAPL", models.KindSellPut)
	late.Timestamp = base.Add(2 * time.Hour)
	early := sale("MSFT", models.KindSellPut)
	early.Timestamp = base.Add(time.Hour)
	tie := sale("AMD", models.KindSellPut)
	tie.Timestamp = base.Add(time.Hour)

	for _, ev := range []models.TradeEvent{late, early, tie} {
		if _, err := l.Append(ctx, ev); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	var got []string
	for _, ev := range l.All() {
		got = append(got, ev.Ticker)
	}
	if strings.Join(got, ",") != "MSFT,AMD,AAPL" {
		t.Errorf("order = %v, want [MSFT AMD AAPL]", got)
	}
}

func TestPersistenceFailureLeavesLedgerUnchanged(t *testing.T) {
	store := &memPersistence{fail: errors.New("disk full")}
	l := New(zerolog.Nop(), WithClock(fixedClock()), WithPersistence(store))

	if _, err := l.Append(context.Background(), sale("AAPL", models.KindSellPut)); err == nil {
		t.Fatal("Append() should fail when persistence fails")
	}
	if l.Len() != 0 || l.Version() != 0 {
		t.Errorf("Len() = %d, Version() = %d, want 0, 0", l.Len(), l.Version())
	}

	store.fail = nil
	id, err := l.Append(context.Background(), sale("AAPL", models.KindSellPut))
	if err != nil || id != 1 {
		t.Errorf("Append() = %d, %v, want id 1 after recovery", id, err)
	}
}

func TestOpenReloadsPersistedEvents(t *testing.T) {
	store := &memPersistence{}
	ctx := context.Background()

	l := New(zerolog.Nop(), WithClock(fixedClock()), WithPersistence(store))
	for i := 0; i < 3; i++ {
		if _, err := l.Append(ctx, sale("AAPL", models.KindSellPut)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	reopened, err := Open(ctx, zerolog.Nop(), WithPersistence(store))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if reopened.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", reopened.Len())
	}
	id, err := reopened.Append(ctx, sale("AAPL", models.KindSellPut))
	if err != nil || id != 4 {
		t.Errorf("Append() = %d, %v, want id 4", id, err)
	}
}

func TestConcurrentAppendsGetDistinctIDs(t *testing.T) {
	l := New(zerolog.Nop())
	ctx := context.Background()

	const n = 50
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := sale("AAPL", models.KindSellPut)
			ev.Timestamp = base
			id, err := l.Append(ctx, ev)
			if err != nil {
				t.Errorf("Append() error = %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n || l.Len() != n {
		t.Errorf("distinct ids = %d, Len() = %d, want %d", len(seen), l.Len(), n)
	}
}

func TestWriteCSV(t *testing.T) {
	l := New(zerolog.Nop(), WithClock(fixedClock()))
	ctx := context.Background()
	if _, err := l.Append(ctx, sale("AAPL", models.KindSellPut)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := l.Append(ctx, models.TradeEvent{
		Ticker: "AAPL", Kind: models.KindClose, Contracts: 1,
		ClosePrice: decimal.RequireFromString("0.25"), LinkedTradeID: 1,
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	var buf bytes.Buffer
	if err := l.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus 2 rows:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "id,timestamp,ticker,kind,strike") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "2024-03-31") || !strings.Contains(lines[1], "1.5") {
		t.Errorf("sale row = %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], ",1") || !strings.Contains(lines[2], "0.25") {
		t.Errorf("close row = %q", lines[2])
	}
}
