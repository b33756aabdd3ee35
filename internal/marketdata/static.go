package marketdata

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/models"
)

// StaticProvider serves prices from an in-memory table. It backs demo mode
// and tests.
type StaticProvider struct {
	mu     sync.RWMutex
	series map[string][]models.PricePoint
}

// NewStaticProvider creates an empty table.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{series: make(map[string][]models.PricePoint)}
}

// Set replaces the daily closes for ticker.
func (s *StaticProvider) Set(ticker string, points ...models.PricePoint) {
	sorted := make([]models.PricePoint, len(points))
	for i, p := range points {
		sorted[i] = models.PricePoint{Date: calendarDate(p.Date), Price: p.Price}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[strings.ToUpper(ticker)] = sorted
}

// Tickers lists the symbols with prices.
func (s *StaticProvider) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.series))
	for t := range s.series {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// PriceOf returns the latest close on or before date.
func (s *StaticProvider) PriceOf(ctx context.Context, ticker string, date time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	points := s.series[strings.ToUpper(ticker)]
	s.mu.RUnlock()

	day := calendarDate(date)
	i := sort.Search(len(points), func(i int) bool {
		return points[i].Date.After(day)
	})
	if i == 0 {
		return decimal.Zero, apperrors.Unavailable("price", ticker, "no close on or before "+day.Format("2006-01-02"))
	}
	return points[i-1].Price, nil
}

// IndexSeries returns the closes dated within [start, end].
func (s *StaticProvider) IndexSeries(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	s.mu.RLock()
	points := s.series[strings.ToUpper(symbol)]
	s.mu.RUnlock()

	from, to := calendarDate(start), calendarDate(end)
	var out []models.PricePoint
	for _, p := range points {
		if !p.Date.Before(from) && !p.Date.After(to) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, apperrors.Unavailable("index_series", symbol, "no closes in range")
	}
	return out, nil
}
