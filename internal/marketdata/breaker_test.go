package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/pkg/utils"
)

func TestBreakerTransitions(t *testing.T) {
	now := time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC)
	b := newBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if err := b.allow(); err != nil {
			t.Fatalf("call %d refused while closed", i)
		}
		b.record(true)
	}
	if b.State() != BreakerOpen {
		t.Fatalf("state = %s, want open", b.State())
	}
	if err := b.allow(); err == nil {
		t.Fatal("open breaker allowed a call")
	}

	now = now.Add(time.Minute)
	if err := b.allow(); err != nil {
		t.Fatalf("trial call refused after cooldown: %v", err)
	}
	if err := b.allow(); err == nil {
		t.Fatal("second call allowed during trial")
	}
	b.record(true)
	if b.State() != BreakerOpen {
		t.Fatalf("failed trial left state %s, want open", b.State())
	}

	now = now.Add(time.Minute)
	if err := b.allow(); err != nil {
		t.Fatal(err)
	}
	b.record(false)
	if b.State() != BreakerClosed {
		t.Errorf("successful trial left state %s, want closed", b.State())
	}
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 1})
	b.record(upstreamFailure(&statusError{Code: http.StatusNotFound}))
	b.record(upstreamFailure(context.Canceled))
	b.record(upstreamFailure(apperrors.Unavailable("bars", "AAPL", "no data")))
	if b.State() != BreakerClosed {
		t.Errorf("state = %s, want closed", b.State())
	}
	if !upstreamFailure(&statusError{Code: http.StatusBadGateway}) {
		t.Error("5xx should count against the upstream")
	}
}

func TestClientStopsCallingFailingUpstream(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := NewPolygonClient(PolygonConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Retry:   utils.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1},
		Breaker: BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour},
	}, zerolog.Nop())

	ctx := context.Background()
	for _, ticker := range []string{"AAPL", "MSFT"} {
		if _, err := c.TickerDetails(ctx, ticker); err == nil {
			t.Fatalf("TickerDetails(%s) succeeded against a failing upstream", ticker)
		}
	}
	if c.BreakerState() != BreakerOpen {
		t.Fatalf("state = %s, want open", c.BreakerState())
	}

	_, err := c.TickerDetails(ctx, "AMD")
	if !errors.Is(err, apperrors.ErrDataUnavailable) {
		t.Errorf("error = %v, want data unavailable", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}
