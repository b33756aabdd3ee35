// Package store provides durable persistence for trade ledgers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheel-tracker/internal/models"
)

// EventStore persists one mode's trade events. Events are only ever
// inserted; there is no update or delete.
type EventStore interface {
	// LoadAll returns every stored event ordered by id.
	LoadAll(ctx context.Context) ([]models.TradeEvent, error)
	// Save durably records a single event.
	Save(ctx context.Context, event models.TradeEvent) error
	// Close releases the underlying resources.
	Close() error
}

// Driver names a storage backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMemory   Driver = "memory"
)

// ParseDriver parses a storage driver name.
func ParseDriver(s string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(s))) {
	case DriverSQLite, "sqlite3", "":
		return DriverSQLite, nil
	case DriverPostgres, "postgresql", "pg":
		return DriverPostgres, nil
	case DriverMemory:
		return DriverMemory, nil
	}
	return "", fmt.Errorf("unknown storage driver %q (must be sqlite, postgres or memory)", s)
}

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	Dir    string
	DSN    string
}

// SQLitePath is the database file used for mode under dir. Each mode has
// its own file.
func SQLitePath(dir string, mode models.Mode) string {
	return filepath.Join(dir, fmt.Sprintf("ledger-%s.db", mode))
}

// Open opens the event store for mode.
func Open(ctx context.Context, cfg Config, mode models.Mode, logger zerolog.Logger) (EventStore, error) {
	logger = logger.With().Str("component", "store").Str("mode", string(mode)).Logger()

	switch cfg.Driver {
	case DriverSQLite, "":
		path := SQLitePath(cfg.Dir, mode)
		logger.Debug().Str("path", path).Msg("Opening SQLite ledger")
		return NewSQLiteStore(path)
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		logger.Debug().Msg("Opening Postgres ledger")
		return NewPostgresStore(ctx, cfg.DSN, mode)
	case DriverMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

const dateLayout = "2006-01-02"

// record is the column form of a TradeEvent shared by the SQL backends.
// Decimals travel as strings so no precision is lost.
type record struct {
	ID                int64
	Ticker            string
	Kind              string
	Strike            string
	Expiration        sql.NullString
	Premium           sql.NullString
	ClosePrice        string
	Contracts         int
	Delta             sql.NullFloat64
	Shares            int64
	CostBasisPerShare string
	LinkedTradeID     sql.NullInt64
	Timestamp         time.Time
}

func toRecord(ev models.TradeEvent) record {
	r := record{
		ID:                ev.ID,
		Ticker:            ev.Ticker,
		Kind:              string(ev.Kind),
		Strike:            ev.Strike.String(),
		ClosePrice:        ev.ClosePrice.String(),
		Contracts:         ev.Contracts,
		Shares:            ev.Shares,
		CostBasisPerShare: ev.CostBasisPerShare.String(),
		Timestamp:         ev.Timestamp.UTC(),
	}
	if ev.HasExpiration() {
		r.Expiration = sql.NullString{String: ev.Expiration.Format(dateLayout), Valid: true}
	}
	if ev.Premium.Valid {
		r.Premium = sql.NullString{String: ev.Premium.Decimal.String(), Valid: true}
	}
	if ev.Delta != nil {
		r.Delta = sql.NullFloat64{Float64: *ev.Delta, Valid: true}
	}
	if ev.HasLink() {
		r.LinkedTradeID = sql.NullInt64{Int64: ev.LinkedTradeID, Valid: true}
	}
	return r
}

func (r record) event() (models.TradeEvent, error) {
	ev := models.TradeEvent{
		ID:        r.ID,
		Ticker:    r.Ticker,
		Kind:      models.EventKind(r.Kind),
		Contracts: r.Contracts,
		Shares:    r.Shares,
		Timestamp: r.Timestamp.UTC(),
	}
	var err error
	if ev.Strike, err = parseDecimal(r.Strike); err != nil {
		return ev, fmt.Errorf("event %d strike: %w", r.ID, err)
	}
	if ev.ClosePrice, err = parseDecimal(r.ClosePrice); err != nil {
		return ev, fmt.Errorf("event %d close price: %w", r.ID, err)
	}
	if ev.CostBasisPerShare, err = parseDecimal(r.CostBasisPerShare); err != nil {
		return ev, fmt.Errorf("event %d cost basis: %w", r.ID, err)
	}
	if r.Premium.Valid {
		p, err := decimal.NewFromString(r.Premium.String)
		if err != nil {
			return ev, fmt.Errorf("event %d premium: %w", r.ID, err)
		}
		ev.Premium = decimal.NewNullDecimal(p)
	}
	if r.Expiration.Valid {
		exp, err := time.Parse(dateLayout, r.Expiration.String)
		if err != nil {
			return ev, fmt.Errorf("event %d expiration: %w", r.ID, err)
		}
		ev.Expiration = exp
	}
	if r.Delta.Valid {
		d := r.Delta.Float64
		ev.Delta = &d
	}
	if r.LinkedTradeID.Valid {
		ev.LinkedTradeID = r.LinkedTradeID.Int64
	}
	return ev, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
