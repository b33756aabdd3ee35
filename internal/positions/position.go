// Package positions derives per-ticker option legs and share holdings by
// replaying the trade ledger through the wheel state machine.
package positions

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wheel-tracker/internal/costbasis"
	"wheel-tracker/internal/models"
	"wheel-tracker/pkg/utils"
)

// RollPremiumMode selects how a Roll event's premium field is read.
type RollPremiumMode string

const (
	// RollNet reads the premium as the net credit (or debit, when negative)
	// of closing the old leg and opening the new one.
	RollNet RollPremiumMode = "net"
	// RollNewLeg reads the premium as the new leg's credit; the debit to
	// close the old leg is taken from close_price.
	RollNewLeg RollPremiumMode = "new_leg"
)

// ParseRollPremiumMode parses a roll premium mode name.
func ParseRollPremiumMode(s string) (RollPremiumMode, error) {
	switch RollPremiumMode(strings.ToLower(strings.TrimSpace(s))) {
	case RollNet, "":
		return RollNet, nil
	case RollNewLeg, "new-leg":
		return RollNewLeg, nil
	}
	return "", fmt.Errorf("unknown roll premium mode %q (must be 'net' or 'new_leg')", s)
}

// Options configures replay semantics.
type Options struct {
	BasisMode   costbasis.Mode
	RollPremium RollPremiumMode
}

// DefaultOptions returns strike-basis, net-roll replay options.
func DefaultOptions() Options {
	return Options{
		BasisMode:   costbasis.ModeStrike,
		RollPremium: RollNet,
	}
}

// Leg is one sold option. Prices are per share. A rolled leg's Premium
// carries the net credit of its whole roll chain.
type Leg struct {
	ID              int64            `json:"id"`
	Ticker          string           `json:"ticker"`
	Side            models.Side      `json:"side"`
	Strike          decimal.Decimal  `json:"strike"`
	Expiration      time.Time        `json:"expiration"`
	Contracts       int              `json:"contracts"`
	OpenedContracts int              `json:"opened_contracts"`
	Premium         decimal.Decimal  `json:"premium"`
	Status          models.LegStatus `json:"status"`
	OpenedAt        time.Time        `json:"opened_at"`
	ResolvedAt      time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy      int64            `json:"resolved_by,omitempty"`
	RolledFrom      int64            `json:"rolled_from,omitempty"`
	Realized        decimal.Decimal  `json:"realized"`
}

// StatusAt reports the leg's state as seen at t: an open leg is expired
// worthless once t falls on a New York session after its expiration date.
func (l Leg) StatusAt(t time.Time) models.LegStatus {
	if l.Status != models.LegOpen || l.Expiration.IsZero() {
		return l.Status
	}
	y, m, d := l.Expiration.Date()
	if utils.SessionDate(t).After(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)) {
		return models.LegExpiredWorthless
	}
	return models.LegOpen
}

// Collateral is the cash reserved at t by an open put, or zero for calls.
func (l Leg) Collateral(t time.Time) decimal.Decimal {
	if l.Side != models.SidePut || l.StatusAt(t) != models.LegOpen {
		return decimal.Zero
	}
	return l.Strike.Mul(decimal.NewFromInt(int64(l.Contracts) * models.SharesPerContract))
}

// Position aggregates one ticker's legs and share holding.
type Position struct {
	Ticker        string          `json:"ticker"`
	Legs          []Leg           `json:"legs"`
	Lot           costbasis.Lot   `json:"-"`
	PutPremium    decimal.Decimal `json:"put_premium"`
	CallPremium   decimal.Decimal `json:"call_premium"`
	AssignmentPnL decimal.Decimal `json:"assignment_pnl"`
	Unlinked      []int64         `json:"unlinked,omitempty"`
	EventCount    int             `json:"event_count"`
	FirstEventAt  time.Time       `json:"first_event_at"`
	LastEventAt   time.Time       `json:"last_event_at"`
}

// Shares is the current share holding.
func (p Position) Shares() int64 {
	return p.Lot.Shares
}

// RunningBasis is the per-share basis under mode, false when no shares are held.
func (p Position) RunningBasis(mode costbasis.Mode) (decimal.Decimal, bool) {
	return p.Lot.RunningBasis(mode)
}

// RealizedPremium is the net option premium realized so far.
func (p Position) RealizedPremium() decimal.Decimal {
	return p.PutPremium.Add(p.CallPremium)
}

// RealizedPnL is realized premium plus assignment gains and losses.
func (p Position) RealizedPnL() decimal.Decimal {
	return p.RealizedPremium().Add(p.AssignmentPnL)
}

// OpenLegs returns the legs still open, optionally restricted to side.
func (p Position) OpenLegs(side models.Side) []Leg {
	var open []Leg
	for _, leg := range p.Legs {
		if leg.Status != models.LegOpen {
			continue
		}
		if side != "" && leg.Side != side {
			continue
		}
		open = append(open, leg)
	}
	return open
}

// Empty reports whether the position has no open legs and no shares.
func (p Position) Empty() bool {
	return !p.Lot.Open() && len(p.OpenLegs("")) == 0
}

// position is the mutable form held by a Book.
type position struct {
	ticker        string
	legs          []*Leg
	lot           costbasis.Lot
	putPremium    decimal.Decimal
	callPremium   decimal.Decimal
	assignmentPnL decimal.Decimal
	unlinked      []int64
	events        int
	first, last   time.Time
}

func (p *position) addPremium(side models.Side, amount decimal.Decimal) {
	if side == models.SideCall {
		p.callPremium = p.callPremium.Add(amount)
	} else {
		p.putPremium = p.putPremium.Add(amount)
	}
}

func (p *position) touch(at time.Time) {
	if p.events == 0 || at.Before(p.first) {
		p.first = at
	}
	if at.After(p.last) {
		p.last = at
	}
	p.events++
}

func (p *position) snapshot() Position {
	legs := make([]Leg, len(p.legs))
	for i, leg := range p.legs {
		legs[i] = *leg
	}
	sort.SliceStable(legs, func(i, j int) bool {
		if !legs[i].OpenedAt.Equal(legs[j].OpenedAt) {
			return legs[i].OpenedAt.Before(legs[j].OpenedAt)
		}
		return legs[i].ID < legs[j].ID
	})
	return Position{
		Ticker:        p.ticker,
		Legs:          legs,
		Lot:           p.lot,
		PutPremium:    p.putPremium,
		CallPremium:   p.callPremium,
		AssignmentPnL: p.assignmentPnL,
		Unlinked:      append([]int64(nil), p.unlinked...),
		EventCount:    p.events,
		FirstEventAt:  p.first,
		LastEventAt:   p.last,
	}
}
