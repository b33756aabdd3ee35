package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTradingDays(t *testing.T) {
	// Fri 2024-01-05 through Wed 2024-01-10.
	from := time.Date(2024, 1, 5, 15, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	days := TradingDays(from, to, 1)
	if len(days) != 4 {
		t.Fatalf("TradingDays() = %v, want 4 weekdays", days)
	}
	if days[0].Day() != 5 || days[1].Day() != 8 {
		t.Errorf("weekend not skipped: %v", days)
	}

	every2 := TradingDays(from, to, 2)
	if len(every2) != 2 || every2[1].Day() != 9 {
		t.Errorf("TradingDays(step 2) = %v", every2)
	}

	// 01:30 UTC on the 9th is still the 8th in New York.
	if got := SessionDate(time.Date(2024, 1, 9, 1, 30, 0, 0, time.UTC)); got.Day() != 8 || got.Location() != time.UTC {
		t.Errorf("SessionDate() = %v, want Jan 8 UTC midnight", got)
	}
	if eod := EndOfDay(from); eod.Day() != 5 || eod.Hour() != 23 {
		t.Errorf("EndOfDay() = %v", eod)
	}
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Retry() = %v after %d calls, want success after 3", err, calls)
	}

	permanent := errors.New("permanent")
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }
	calls = 0
	err = Retry(context.Background(), cfg, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Errorf("non-retryable error: %v after %d calls", err, calls)
	}
}

func TestCalculateBackoff(t *testing.T) {
	if got := CalculateBackoff(0, 100*time.Millisecond, time.Second, 2); got != 100*time.Millisecond {
		t.Errorf("attempt 0 = %v", got)
	}
	if got := CalculateBackoff(2, 100*time.Millisecond, time.Second, 2); got != 400*time.Millisecond {
		t.Errorf("attempt 2 = %v", got)
	}
	if got := CalculateBackoff(10, 100*time.Millisecond, time.Second, 2); got != time.Second {
		t.Errorf("attempt 10 = %v, want capped at 1s", got)
	}
}
