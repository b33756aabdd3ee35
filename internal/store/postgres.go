package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/models"
)

// PostgresStore implements EventStore using PostgreSQL. Every mode shares
// one table, partitioned by the mode column. Monetary values are stored as
// NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
	mode models.Mode
}

// NewPostgresStore connects to dsn and prepares the schema.
func NewPostgresStore(ctx context.Context, dsn string, mode models.Mode) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool, mode: mode}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the event table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trade_events (
			mode TEXT NOT NULL,
			id BIGINT NOT NULL,
			ticker TEXT NOT NULL,
			kind TEXT NOT NULL,
			strike NUMERIC NOT NULL DEFAULT 0,
			expiration DATE,
			premium NUMERIC,
			close_price NUMERIC NOT NULL DEFAULT 0,
			contracts INTEGER NOT NULL,
			delta DOUBLE PRECISION,
			shares BIGINT NOT NULL DEFAULT 0,
			cost_basis_per_share NUMERIC NOT NULL DEFAULT 0,
			linked_trade_id BIGINT,
			ts TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (mode, id)
		)`)
	if err != nil {
		return fmt.Errorf("migrate trade_events: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, ev models.TradeEvent) error {
	r := toRecord(ev)
	var expiration *time.Time
	if ev.HasExpiration() {
		exp := ev.Expiration
		expiration = &exp
	}
	var premium *string
	if r.Premium.Valid {
		premium = &r.Premium.String
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO trade_events (mode, id, ticker, kind, strike, expiration, premium, close_price, contracts, delta, shares, cost_basis_per_share, linked_trade_id, ts)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7::NUMERIC, $8::NUMERIC, $9, $10, $11, $12::NUMERIC, $13, $14)`,
		string(s.mode), r.ID, r.Ticker, r.Kind, r.Strike, expiration, premium, r.ClosePrice,
		r.Contracts, ev.Delta, r.Shares, r.CostBasisPerShare, r.LinkedTradeID, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert trade event %d: %w: %w", ev.ID, apperrors.ErrDatabaseError, err)
	}
	return nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]models.TradeEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ticker, kind, strike::TEXT, to_char(expiration, 'YYYY-MM-DD'), premium::TEXT,
		        close_price::TEXT, contracts, delta, shares, cost_basis_per_share::TEXT, linked_trade_id, ts
		 FROM trade_events WHERE mode = $1 ORDER BY id`, string(s.mode))
	if err != nil {
		return nil, fmt.Errorf("query trade events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TradeEvent, error) {
		var r record
		if err := row.Scan(&r.ID, &r.Ticker, &r.Kind, &r.Strike, &r.Expiration, &r.Premium,
			&r.ClosePrice, &r.Contracts, &r.Delta, &r.Shares, &r.CostBasisPerShare, &r.LinkedTradeID, &r.Timestamp); err != nil {
			return models.TradeEvent{}, err
		}
		return r.event()
	})
	if err != nil {
		return nil, fmt.Errorf("scan trade events: %w", err)
	}
	return events, nil
}
