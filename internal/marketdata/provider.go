// Package marketdata supplies share and index prices to the analytics core,
// from Polygon.io or from an in-memory table.
package marketdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/models"
)

// Provider is the market data collaborator. Both methods return an error
// matching ErrDataUnavailable when the data cannot be supplied.
type Provider interface {
	// PriceOf returns the closing price of ticker on date, or the latest
	// close before it when date was not a trading day.
	PriceOf(ctx context.Context, ticker string, date time.Time) (decimal.Decimal, error)
	// IndexSeries returns daily closes for symbol in [start, end], oldest first.
	IndexSeries(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error)
}

// NoData is a Provider that never has data.
type NoData struct{}

func (NoData) PriceOf(ctx context.Context, ticker string, date time.Time) (decimal.Decimal, error) {
	return decimal.Zero, apperrors.Unavailable("price", ticker, "no market data provider configured")
}

func (NoData) IndexSeries(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	return nil, apperrors.Unavailable("index_series", symbol, "no market data provider configured")
}

// calendarDate maps t to its own calendar date, expressed as UTC midnight.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
