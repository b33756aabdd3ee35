// Package ledger implements the append-only trade event ledger, the single
// source of truth every derived view is recomputed from.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/models"
)

// Persistence durably records ledger events.
type Persistence interface {
	LoadAll(ctx context.Context) ([]models.TradeEvent, error)
	Save(ctx context.Context, event models.TradeEvent) error
}

// Check inspects a fully prepared candidate against the current history
// before it is committed. A non-nil error rejects the append.
type Check func(candidate models.TradeEvent, history []models.TradeEvent) error

// Ledger is an ordered, append-only collection of trade events.
type Ledger struct {
	mu      sync.RWMutex
	events  []models.TradeEvent
	byID    map[int64]models.TradeEvent
	lastID  int64
	version uint64

	persist Persistence
	clock   func() time.Time
	logger  zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used to stamp events without a timestamp.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// WithPersistence makes every append durable through p.
func WithPersistence(p Persistence) Option {
	return func(l *Ledger) {
		l.persist = p
	}
}

// New creates an empty ledger.
func New(logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		byID:   make(map[int64]models.TradeEvent),
		clock:  time.Now,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open creates a ledger and loads every event already held by its
// persistence collaborator.
func Open(ctx context.Context, logger zerolog.Logger, opts ...Option) (*Ledger, error) {
	l := New(logger, opts...)
	if l.persist == nil {
		return l, nil
	}

	events, err := l.persist.LoadAll(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading ledger")
	}
	for _, ev := range events {
		if _, dup := l.byID[ev.ID]; dup {
			return nil, fmt.Errorf("loading ledger: duplicate event id %d", ev.ID)
		}
		l.insert(ev)
	}
	if len(events) > 0 {
		l.version = 1
	}

	l.logger.Debug().Int("events", len(events)).Msg("Ledger loaded")
	return l, nil
}

// Append validates ev, assigns its id, persists it and commits it. The whole
// sequence is atomic: on any failure the ledger is unchanged.
func (l *Ledger) Append(ctx context.Context, ev models.TradeEvent, checks ...Check) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	candidate := Normalize(ev)
	candidate.ID = l.lastID + 1
	if candidate.Timestamp.IsZero() {
		candidate.Timestamp = l.clock().UTC()
	}

	if err := Validate(candidate, l.lookup); err != nil {
		return 0, err
	}
	for _, check := range checks {
		if err := check(candidate, l.events); err != nil {
			return 0, err
		}
	}

	if l.persist != nil {
		if err := l.persist.Save(ctx, candidate); err != nil {
			return 0, apperrors.Wrap(err, "saving event")
		}
	}

	l.insert(candidate)
	l.version++

	l.logger.Debug().
		Int64("event_id", candidate.ID).
		Str("ticker", candidate.Ticker).
		Str("kind", string(candidate.Kind)).
		Msg("Event appended")

	return candidate.ID, nil
}

// insert places ev in timestamp-then-id order. Caller holds the write lock.
func (l *Ledger) insert(ev models.TradeEvent) {
	i := sort.Search(len(l.events), func(i int) bool {
		return ev.Before(l.events[i])
	})
	l.events = append(l.events, models.TradeEvent{})
	copy(l.events[i+1:], l.events[i:])
	l.events[i] = ev

	l.byID[ev.ID] = ev
	if ev.ID > l.lastID {
		l.lastID = ev.ID
	}
}

func (l *Ledger) lookup(id int64) (models.TradeEvent, bool) {
	ev, ok := l.byID[id]
	return ev, ok
}

// All returns every event ordered by timestamp then id.
func (l *Ledger) All() []models.TradeEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.TradeEvent(nil), l.events...)
}

// Snapshot returns the events together with the version they belong to.
func (l *Ledger) Snapshot() ([]models.TradeEvent, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.TradeEvent(nil), l.events...), l.version
}

// Find returns the event with the given id.
func (l *Ledger) Find(id int64) (models.TradeEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ev, ok := l.byID[id]
	if !ok {
		return models.TradeEvent{}, apperrors.NotFound("trade event", id)
	}
	return ev, nil
}

// Len returns the number of recorded events.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Version increases on every successful append.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}
