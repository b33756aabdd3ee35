// Package tracker runs one isolated wheel-tracking data set: a ledger, its
// persistence, and the derived positions and analytics recomputed from it.
package tracker

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wheel-tracker/internal/analytics"
	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/ledger"
	"wheel-tracker/internal/logging"
	"wheel-tracker/internal/marketdata"
	"wheel-tracker/internal/metrics"
	"wheel-tracker/internal/models"
	"wheel-tracker/internal/positions"
	"wheel-tracker/internal/ranking"
	"wheel-tracker/internal/store"
)

// Options configures replay, ranking and calendar semantics.
type Options struct {
	Positions positions.Options
	Ranking   ranking.Config
	Location  *time.Location
	Clock     func() time.Time
}

// DefaultOptions returns strike-basis, net-roll, UTC options.
func DefaultOptions() Options {
	return Options{
		Positions: positions.DefaultOptions(),
		Ranking:   ranking.DefaultConfig(),
		Location:  time.UTC,
		Clock:     time.Now,
	}
}

// Deps are the collaborators of a Tracker.
type Deps struct {
	Store   store.EventStore
	Prices  marketdata.Provider
	Options Options
	Logger  zerolog.Logger
}

// Tracker is one mode's core instance. Appends are serialized by the
// ledger; reads share a cached replay keyed by the ledger version.
type Tracker struct {
	mode   models.Mode
	ledger *ledger.Ledger
	store  store.EventStore
	prices marketdata.Provider
	ranker *ranking.Ranker
	opts   Options
	logger zerolog.Logger

	mu      sync.RWMutex
	derived *derived
}

// derived is the state rebuilt from one ledger version.
type derived struct {
	version uint64
	events  []models.TradeEvent
	book    *positions.Book
	engine  *analytics.Engine
}

// Open loads mode's ledger from deps.Store and verifies it replays cleanly.
func Open(ctx context.Context, mode models.Mode, deps Deps) (*Tracker, error) {
	opts := deps.Options
	def := DefaultOptions()
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	opts.Positions = positions.NewBook(opts.Positions).Options()
	prices := deps.Prices
	if prices == nil {
		prices = marketdata.NoData{}
	}
	logger := logging.WithMode(deps.Logger, mode)

	ledgerOpts := []ledger.Option{ledger.WithClock(opts.Clock)}
	if deps.Store != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithPersistence(deps.Store))
	}
	l, err := ledger.Open(ctx, logger, ledgerOpts...)
	if err != nil {
		return nil, apperrors.Wrapf(err, "opening %s ledger", mode)
	}

	t := &Tracker{
		mode:   mode,
		ledger: l,
		store:  deps.Store,
		prices: prices,
		ranker: ranking.New(opts.Ranking, prices, logger),
		opts:   opts,
		logger: logger,
	}
	if _, err := t.state(); err != nil {
		return nil, apperrors.Wrapf(err, "replaying %s ledger", mode)
	}
	metrics.LedgerSize.WithLabelValues(string(mode)).Set(float64(l.Len()))

	logger.Info().Int("events", l.Len()).Msg("Tracker opened")
	return t, nil
}

// Mode returns the data set this tracker owns.
func (t *Tracker) Mode() models.Mode {
	return t.mode
}

// Options returns the tracker's options.
func (t *Tracker) Options() Options {
	return t.opts
}

// Prices returns the market data collaborator.
func (t *Tracker) Prices() marketdata.Provider {
	return t.prices
}

// Now returns the tracker clock's current time.
func (t *Tracker) Now() time.Time {
	return t.opts.Clock()
}

// Close releases the persistence backend.
func (t *Tracker) Close() error {
	if t.store == nil {
		return nil
	}
	return t.store.Close()
}

// Record appends ev to the ledger. The candidate is replayed together with
// the existing history first; any event the position state machine would
// refuse is rejected and the ledger is left unchanged.
func (t *Tracker) Record(ctx context.Context, ev models.TradeEvent) (models.TradeEvent, error) {
	check := func(candidate models.TradeEvent, history []models.TradeEvent) error {
		_, err := positions.Replay(append(history[:len(history):len(history)], candidate), t.opts.Positions)
		return err
	}

	logger := logging.WithOperation(logging.WithTicker(t.logger, ledger.Normalize(ev).Ticker), "record")

	id, err := t.ledger.Append(ctx, ev, check)
	if err != nil {
		if !apperrors.IsRejection(err) {
			metrics.EventsRejected.WithLabelValues(string(t.mode), "storage").Inc()
			logger.Error().Err(err).Msg("Recording trade failed")
			return models.TradeEvent{}, err
		}
		reason := "invalid"
		if apperrors.Is(err, apperrors.ErrAmbiguousReference) {
			reason = "ambiguous"
		}
		metrics.EventsRejected.WithLabelValues(string(t.mode), reason).Inc()
		logging.LogRejection(logger, ev, err)
		return models.TradeEvent{}, err
	}

	recorded, err := t.ledger.Find(id)
	if err != nil {
		return models.TradeEvent{}, err
	}
	metrics.EventsAppended.WithLabelValues(string(t.mode), string(recorded.Kind)).Inc()
	metrics.LedgerSize.WithLabelValues(string(t.mode)).Set(float64(t.ledger.Len()))
	logging.LogTradeEvent(logger, recorded)
	return recorded, nil
}

// state returns the derived state for the current ledger version,
// rebuilding it when an append has happened since the last build.
func (t *Tracker) state() (*derived, error) {
	t.mu.RLock()
	d := t.derived
	t.mu.RUnlock()
	if d != nil && d.version == t.ledger.Version() {
		return d, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	events, version := t.ledger.Snapshot()
	if t.derived != nil && t.derived.version == version {
		return t.derived, nil
	}

	start := time.Now()
	book, err := positions.Replay(events, t.opts.Positions)
	if err != nil {
		return nil, err
	}
	var anchor time.Time
	if len(events) > 0 {
		anchor = events[0].Timestamp
	}
	t.derived = &derived{
		version: version,
		events:  events,
		book:    book,
		engine:  analytics.New(book.Contributions(), anchor, t.opts.Location),
	}
	metrics.ReplayDuration.WithLabelValues(string(t.mode)).Observe(time.Since(start).Seconds())
	t.logger.Debug().Uint64("version", version).Int("events", len(events)).Msg("Derived state rebuilt")
	return t.derived, nil
}

// Len returns the number of recorded events.
func (t *Tracker) Len() int {
	return t.ledger.Len()
}

// Events returns every event in ledger order.
func (t *Tracker) Events() []models.TradeEvent {
	return t.ledger.All()
}

// Event returns the event with the given id.
func (t *Tracker) Event(id int64) (models.TradeEvent, error) {
	return t.ledger.Find(id)
}

// Rows returns the flat export form of the ledger.
func (t *Tracker) Rows() []ledger.Row {
	return t.ledger.Rows()
}

// WriteCSV writes the ledger as CSV.
func (t *Tracker) WriteCSV(w io.Writer) error {
	return t.ledger.WriteCSV(w)
}
