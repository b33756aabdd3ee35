package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/models"
)

// SQLiteStore implements EventStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the ledger database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer keeps inserts serialized.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates the event table.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trade_events (
		id INTEGER PRIMARY KEY,
		ticker TEXT NOT NULL,
		kind TEXT NOT NULL,
		strike TEXT NOT NULL DEFAULT '0',
		expiration TEXT,
		premium TEXT,
		close_price TEXT NOT NULL DEFAULT '0',
		contracts INTEGER NOT NULL,
		delta REAL,
		shares INTEGER NOT NULL DEFAULT 0,
		cost_basis_per_share TEXT NOT NULL DEFAULT '0',
		linked_trade_id INTEGER,
		timestamp DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trade_events_ticker ON trade_events(ticker);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts ev. Saving an id twice fails.
func (s *SQLiteStore) Save(ctx context.Context, ev models.TradeEvent) error {
	r := toRecord(ev)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_events (id, ticker, kind, strike, expiration, premium, close_price, contracts, delta, shares, cost_basis_per_share, linked_trade_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Ticker, r.Kind, r.Strike, r.Expiration, r.Premium, r.ClosePrice, r.Contracts, r.Delta, r.Shares, r.CostBasisPerShare, r.LinkedTradeID, r.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save trade event %d: %w: %w", ev.ID, apperrors.ErrDatabaseError, err)
	}
	return nil
}

// LoadAll returns every stored event ordered by id.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]models.TradeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, kind, strike, expiration, premium, close_price, contracts, delta, shares, cost_basis_per_share, linked_trade_id, timestamp
		FROM trade_events ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade events: %w", err)
	}
	defer rows.Close()

	var events []models.TradeEvent
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.ID, &r.Ticker, &r.Kind, &r.Strike, &r.Expiration, &r.Premium, &r.ClosePrice,
			&r.Contracts, &r.Delta, &r.Shares, &r.CostBasisPerShare, &r.LinkedTradeID, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trade event: %w", err)
		}
		ev, err := r.event()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
