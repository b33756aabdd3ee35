// Package ranking compares the portfolio's realized return with benchmark
// index returns over the same period.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"wheel-tracker/internal/models"
	"wheel-tracker/internal/positions"
)

// fetchConcurrency bounds the benchmark series fetched at once.
const fetchConcurrency = 4

// UserLabel is the label of the portfolio's own entry.
const UserLabel = "Your Portfolio"

var hundred = decimal.NewFromInt(100)

// CapitalPolicy selects the denominator of the user's return.
type CapitalPolicy string

const (
	// PolicyStartingCapital divides by the configured starting capital.
	PolicyStartingCapital CapitalPolicy = "starting_capital"
	// PolicyDeployed divides by the strike-basis cost of held shares plus
	// collateral on open puts at the end of the period.
	PolicyDeployed CapitalPolicy = "deployed"
)

// ParseCapitalPolicy parses a capital policy name.
func ParseCapitalPolicy(s string) (CapitalPolicy, error) {
	switch CapitalPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyStartingCapital, "starting", "":
		return PolicyStartingCapital, nil
	case PolicyDeployed:
		return PolicyDeployed, nil
	}
	return "", fmt.Errorf("unknown capital policy %q (must be 'starting_capital' or 'deployed')", s)
}

// Benchmark is an index tracked through an ETF symbol.
type Benchmark struct {
	Symbol string `json:"symbol" mapstructure:"symbol"`
	Label  string `json:"label" mapstructure:"label"`
}

// DefaultBenchmarks are the broad US indexes.
var DefaultBenchmarks = []Benchmark{
	{Symbol: "SPY", Label: "S&P 500"},
	{Symbol: "QQQ", Label: "Nasdaq"},
	{Symbol: "IWM", Label: "Russell 2000"},
	{Symbol: "DIA", Label: "Dow Jones"},
}

// DefaultStartingCapital is used when no starting capital is configured.
var DefaultStartingCapital = decimal.NewFromInt(100000)

// SeriesSource supplies daily index prices.
type SeriesSource interface {
	IndexSeries(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error)
}

// Config holds ranking settings.
type Config struct {
	Policy            CapitalPolicy
	StartingCapital   decimal.Decimal
	Benchmarks        []Benchmark
	CoverageTolerance time.Duration
}

// DefaultConfig returns starting-capital ranking against the default benchmarks.
func DefaultConfig() Config {
	return Config{
		Policy:            PolicyStartingCapital,
		StartingCapital:   DefaultStartingCapital,
		Benchmarks:        DefaultBenchmarks,
		CoverageTolerance: 4 * 24 * time.Hour,
	}
}

// Entry is one ranked return.
type Entry struct {
	Label     string          `json:"label"`
	Symbol    string          `json:"symbol,omitempty"`
	ReturnPct decimal.Decimal `json:"return_pct"`
	Available bool            `json:"available"`
	User      bool            `json:"user,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// Result is the ranked comparison for one period.
type Result struct {
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Premium  decimal.Decimal `json:"premium"`
	Capital  decimal.Decimal `json:"capital"`
	Entries  []Entry         `json:"entries"`
	UserRank int             `json:"user_rank"`
}

// Ranker computes rankings against a series source.
type Ranker struct {
	cfg    Config
	series SeriesSource
	logger zerolog.Logger
}

// New creates a ranker. A nil series source leaves every benchmark unavailable.
func New(cfg Config, series SeriesSource, logger zerolog.Logger) *Ranker {
	if cfg.Policy == "" {
		cfg.Policy = PolicyStartingCapital
	}
	if !cfg.StartingCapital.IsPositive() {
		cfg.StartingCapital = DefaultStartingCapital
	}
	if cfg.Benchmarks == nil {
		cfg.Benchmarks = DefaultBenchmarks
	}
	return &Ranker{
		cfg:    cfg,
		series: series,
		logger: logger.With().Str("component", "ranking").Logger(),
	}
}

// Rank computes the user's return over [from, to] and orders it among the
// benchmark returns. Benchmarks without usable data are listed last as
// unavailable.
func (r *Ranker) Rank(ctx context.Context, events []models.TradeEvent, opts positions.Options, from, to time.Time) (Result, error) {
	if to.Before(from) {
		return Result{}, fmt.Errorf("ranking period ends before it starts")
	}

	user, premium, capital, err := r.userEntry(events, opts, from, to)
	if err != nil {
		return Result{}, err
	}
	entries := make([]Entry, 1+len(r.cfg.Benchmarks))
	entries[0] = user

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, b := range r.cfg.Benchmarks {
		i, b := i, b
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries[i+1] = r.benchmarkEntry(gctx, b, from, to)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	Sort(entries)
	res := Result{From: from, To: to, Premium: premium, Capital: capital, Entries: entries}
	for i, e := range entries {
		if e.User {
			res.UserRank = i + 1
		}
	}
	return res, nil
}

func (r *Ranker) userEntry(events []models.TradeEvent, opts positions.Options, from, to time.Time) (Entry, decimal.Decimal, decimal.Decimal, error) {
	book, err := positions.ReplayUntil(events, opts, to)
	if err != nil {
		return Entry{}, decimal.Zero, decimal.Zero, err
	}

	premium := decimal.Zero
	for _, c := range book.Contributions() {
		if !c.At.Before(from) {
			premium = premium.Add(c.Premium)
		}
	}

	capital := r.cfg.StartingCapital
	if r.cfg.Policy == PolicyDeployed {
		if deployed := book.DeployedCapital(to); deployed.IsPositive() {
			capital = deployed
		}
	}

	return Entry{
		Label:     UserLabel,
		ReturnPct: premium.Div(capital).Mul(hundred).Round(4),
		Available: true,
		User:      true,
	}, premium, capital, nil
}

func (r *Ranker) benchmarkEntry(ctx context.Context, b Benchmark, from, to time.Time) Entry {
	entry := Entry{Label: b.Label, Symbol: b.Symbol}
	if r.series == nil {
		entry.Reason = "no market data provider"
		return entry
	}

	points, err := r.series.IndexSeries(ctx, b.Symbol, from, to)
	if err != nil {
		r.logger.Warn().Err(err).Str("symbol", b.Symbol).Msg("Benchmark series unavailable")
		entry.Reason = err.Error()
		return entry
	}
	pct, err := SeriesReturn(points, from, to, r.cfg.CoverageTolerance)
	if err != nil {
		r.logger.Debug().Err(err).Str("symbol", b.Symbol).Msg("Benchmark series incomplete")
		entry.Reason = err.Error()
		return entry
	}
	entry.ReturnPct = pct
	entry.Available = true
	return entry
}

// SeriesReturn is the percentage change from the first to the last point.
// The series must cover [from, to] to within tolerance at both ends.
func SeriesReturn(points []models.PricePoint, from, to time.Time, tolerance time.Duration) (decimal.Decimal, error) {
	if len(points) < 2 {
		return decimal.Zero, fmt.Errorf("need at least two prices, have %d", len(points))
	}
	sorted := append([]models.PricePoint(nil), points...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	first, last := sorted[0], sorted[len(sorted)-1]

	if first.Date.Sub(from) > tolerance {
		return decimal.Zero, fmt.Errorf("series starts %s, after period start", first.Date.Format("2006-01-02"))
	}
	if to.Sub(last.Date) > tolerance {
		return decimal.Zero, fmt.Errorf("series ends %s, before period end", last.Date.Format("2006-01-02"))
	}
	if !first.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive opening price %s", first.Price)
	}
	return last.Price.Sub(first.Price).Div(first.Price).Mul(hundred).Round(4), nil
}

// Sort orders available entries by return descending, then label, with
// unavailable entries last by label.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Available != b.Available {
			return a.Available
		}
		if a.Available {
			if c := a.ReturnPct.Cmp(b.ReturnPct); c != 0 {
				return c > 0
			}
		}
		return a.Label < b.Label
	})
}
