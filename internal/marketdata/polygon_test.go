package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/pkg/utils"
)

func barMillis(y int, m time.Month, d int) int64 {
	return time.Date(y, m, d, 0, 0, 0, 0, utils.NewYorkLocation).UnixMilli()
}

type fakePolygon struct {
	calls     atomic.Int32
	failFirst atomic.Int32
}

func (f *fakePolygon) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if r.URL.Query().Get("apiKey") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"status":"ERROR","error":"bad key"}`)
			return
		}
		if f.failFirst.Load() > 0 {
			f.failFirst.Add(-1)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		switch {
		case strings.HasPrefix(r.URL.Path, "/v2/aggs/ticker/SPY/range/1/day/"):
			fmt.Fprintf(w, `{"status":"OK","results":[{"t":%d,"c":470.5},{"t":%d,"c":472.25},{"t":%d,"c":475}]}`,
				barMillis(2024, 1, 3), barMillis(2024, 1, 4), barMillis(2024, 1, 5))
		case strings.HasPrefix(r.URL.Path, "/v2/aggs/ticker/"):
			fmt.Fprint(w, `{"status":"OK","results":[]}`)
		case r.URL.Path == "/v2/last/trade/AAPL":
			fmt.Fprint(w, `{"status":"OK","results":{"p":191.25,"t":1704470400000000000}}`)
		case r.URL.Path == "/v3/reference/tickers/AAPL":
			fmt.Fprint(w, `{"status":"OK","results":{"ticker":"AAPL","name":"Apple Inc.","market":"stocks","primary_exchange":"XNAS","active":true}}`)
		case r.URL.Path == "/v3/reference/tickers":
			fmt.Fprint(w, `{"status":"OK","results":[{"ticker":"AAPL","name":"Apple Inc."}]}`)
		default:
			t.Logf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestClient(t *testing.T, tier Tier) (*PolygonClient, *fakePolygon) {
	t.Helper()
	fake := &fakePolygon{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	c := NewPolygonClient(PolygonConfig{
		APIKey:   "test-key",
		Tier:     tier,
		BaseURL:  srv.URL,
		CacheTTL: time.Minute,
		Retry: utils.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
			BackoffFactor: 1,
		},
	}, zerolog.Nop())
	c.clock = func() time.Time { return time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC) }
	return c, fake
}

func TestIndexSeries(t *testing.T) {
	c, fake := newTestClient(t, TierFree)
	ctx := context.Background()
	from, to := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	points, err := c.IndexSeries(ctx, "spy", from, to)
	if err != nil {
		t.Fatalf("IndexSeries() error = %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("got %d points, want 3", len(points))
	}
	if !points[0].Date.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first date = %v, want 2024-01-03", points[0].Date)
	}
	if !points[2].Price.Equal(decimal.NewFromInt(475)) {
		t.Errorf("last close = %s, want 475", points[2].Price)
	}

	if _, err := c.IndexSeries(ctx, "SPY", from, to); err != nil {
		t.Fatalf("cached IndexSeries() error = %v", err)
	}
	if got := fake.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (second call cached)", got)
	}
}

func TestPriceOfFallsBackToEarlierClose(t *testing.T) {
	c, _ := newTestClient(t, TierFree)
	// January 6 2024 is a Saturday.
	price, err := c.PriceOf(context.Background(), "SPY", time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("PriceOf() error = %v", err)
	}
	if !price.Equal(decimal.NewFromInt(475)) {
		t.Errorf("PriceOf() = %s, want 475", price)
	}

	_, err = c.PriceOf(context.Background(), "NOPE", time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, apperrors.ErrDataUnavailable) {
		t.Errorf("PriceOf(unknown) error = %v, want data unavailable", err)
	}
}

func TestRetriesRateLimitedResponses(t *testing.T) {
	c, fake := newTestClient(t, TierFree)
	fake.failFirst.Store(2)

	if _, err := c.TickerDetails(context.Background(), "AAPL"); err != nil {
		t.Fatalf("TickerDetails() error = %v", err)
	}
	if got := fake.calls.Load(); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestTierGating(t *testing.T) {
	free, _ := newTestClient(t, TierFree)
	if free.HasFeature(FeatureRealtimeQuotes) || free.HasFeature(FeatureOptionsChain) {
		t.Error("free tier should not include quotes or options")
	}

	// Free tier falls back to the previous close, which the fake has no bars for.
	_, err := free.CurrentPrice(context.Background(), "AAPL")
	if !errors.Is(err, apperrors.ErrDataUnavailable) {
		t.Errorf("CurrentPrice() error = %v, want data unavailable", err)
	}

	advanced, _ := newTestClient(t, TierAdvanced)
	q, err := advanced.CurrentPrice(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("CurrentPrice() error = %v", err)
	}
	if !q.Realtime || !q.Price.Equal(decimal.RequireFromString("191.25")) {
		t.Errorf("quote = %+v, want realtime 191.25", q)
	}

	gated := &PolygonClient{cfg: PolygonConfig{Tier: Tier("unknown")}}
	err = gated.require(FeatureOptionsChain, "AAPL")
	if !errors.Is(err, apperrors.ErrFeatureNotInTier) || !errors.Is(err, apperrors.ErrDataUnavailable) {
		t.Errorf("require() error = %v, want feature-not-in-tier data error", err)
	}
}

func TestMissingAPIKey(t *testing.T) {
	c := NewPolygonClient(PolygonConfig{}, zerolog.Nop())
	ok, msg := c.TestConnection(context.Background())
	if ok || msg != "No API key configured" {
		t.Errorf("TestConnection() = %v, %q", ok, msg)
	}
	_, err := c.IndexSeries(context.Background(), "SPY", time.Now().AddDate(0, -1, 0), time.Now())
	if !errors.Is(err, apperrors.ErrDataUnavailable) {
		t.Errorf("IndexSeries() error = %v, want data unavailable", err)
	}
}

func TestConnectionAndSearch(t *testing.T) {
	c, _ := newTestClient(t, TierFree)
	if ok, msg := c.TestConnection(context.Background()); !ok {
		t.Errorf("TestConnection() = false, %q", msg)
	}
	results, err := c.SearchTickers(context.Background(), "apple", 5)
	if err != nil {
		t.Fatalf("SearchTickers() error = %v", err)
	}
	if len(results) != 1 || results[0].Ticker != "AAPL" {
		t.Errorf("SearchTickers() = %+v", results)
	}
}

func TestParseTier(t *testing.T) {
	tests := map[string]Tier{"": TierFree, "Starter": TierStarter, " business ": TierBusiness}
	for in, want := range tests {
		got, err := ParseTier(in)
		if err != nil || got != want {
			t.Errorf("ParseTier(%q) = %q, %v, want %q", in, got, err, want)
		}
	}
	if _, err := ParseTier("platinum"); err == nil {
		t.Error("expected error for unknown tier")
	}
	if !TierStarter.Has(FeatureDelayedQuotes) || TierAdvanced.Has(FeatureDelayedQuotes) {
		t.Error("delayed quotes belong to the starter tier only")
	}
}
