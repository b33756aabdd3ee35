package marketdata

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of the upstream circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"    // requests flow normally
	BreakerOpen     BreakerState = "open"      // requests are refused until the cooldown passes
	BreakerHalfOpen BreakerState = "half_open" // one trial request decides
)

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed calls that opens the breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before a trial call.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

var errBreakerOpen = errors.New("upstream disabled after repeated failures")

// breaker refuses calls to an upstream after FailureThreshold consecutive
// failures until Cooldown has passed.
type breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trial    bool
}

func newBreaker(cfg BreakerConfig) *breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &breaker{cfg: cfg, now: time.Now, state: BreakerClosed}
}

// allow reports whether a call may proceed. In the half-open state only one
// trial call is let through at a time.
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return errBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.trial = true
		return nil
	case BreakerHalfOpen:
		if b.trial {
			return errBreakerOpen
		}
		b.trial = true
	}
	return nil
}

// record feeds a call's outcome back. failed is false for errors that say
// nothing about upstream health, such as a bad request or a cancelled context.
func (b *breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	if !failed {
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
