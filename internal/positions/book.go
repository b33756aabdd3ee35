package positions

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/models"
)

// Contribution is one realized cash effect of an event, in event order.
// Premium is option income; AssignmentPnL is the share gain or loss booked
// when a call assignment delivers shares.
type Contribution struct {
	EventID       int64            `json:"event_id"`
	Ticker        string           `json:"ticker"`
	Side          models.Side      `json:"side"`
	Kind          models.EventKind `json:"kind"`
	At            time.Time        `json:"at"`
	Premium       decimal.Decimal  `json:"premium"`
	AssignmentPnL decimal.Decimal  `json:"assignment_pnl"`
}

// Realized is the contribution's total effect on realized P&L.
func (c Contribution) Realized() decimal.Decimal {
	return c.Premium.Add(c.AssignmentPnL)
}

// Book is the derived state of every ticker after applying events in
// ledger order. It is not safe for concurrent mutation.
type Book struct {
	opts          Options
	positions     map[string]*position
	legs          map[int64]*Leg
	contributions []Contribution
	applied       int
	last          models.TradeEvent
}

// NewBook creates an empty book.
func NewBook(opts Options) *Book {
	if opts.BasisMode == "" || opts.RollPremium == "" {
		def := DefaultOptions()
		if opts.BasisMode == "" {
			opts.BasisMode = def.BasisMode
		}
		if opts.RollPremium == "" {
			opts.RollPremium = def.RollPremium
		}
	}
	return &Book{
		opts:      opts,
		positions: make(map[string]*position),
		legs:      make(map[int64]*Leg),
	}
}

// Replay builds a book from events. Events are applied in timestamp-then-id
// order regardless of the order they are passed in.
func Replay(events []models.TradeEvent, opts Options) (*Book, error) {
	b := NewBook(opts)
	for _, ev := range sorted(events) {
		if err := b.Apply(ev); err != nil {
			return nil, fmt.Errorf("replaying event %d: %w", ev.ID, err)
		}
	}
	return b, nil
}

// ReplayUntil builds a book from the events recorded at or before t.
func ReplayUntil(events []models.TradeEvent, opts Options, t time.Time) (*Book, error) {
	b := NewBook(opts)
	for _, ev := range sorted(events) {
		if ev.Timestamp.After(t) {
			break
		}
		if err := b.Apply(ev); err != nil {
			return nil, fmt.Errorf("replaying event %d: %w", ev.ID, err)
		}
	}
	return b, nil
}

func sorted(events []models.TradeEvent) []models.TradeEvent {
	out := append([]models.TradeEvent(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Before(out[j])
	})
	return out
}

// Apply advances the book by one event. On error the book is unchanged.
func (b *Book) Apply(ev models.TradeEvent) error {
	if b.applied > 0 && ev.Before(b.last) {
		return fmt.Errorf("event %d is older than already applied event %d", ev.ID, b.last.ID)
	}

	pos, exists := b.positions[ev.Ticker]
	if !exists {
		pos = &position{ticker: ev.Ticker}
	}

	var err error
	switch ev.Kind {
	case models.KindSellPut, models.KindSellCall:
		err = b.applySale(pos, ev)
	case models.KindClose:
		err = b.applyClose(pos, ev)
	case models.KindRoll:
		err = b.applyRoll(pos, ev)
	case models.KindPutAssigned:
		err = b.applyPutAssignment(pos, ev)
	case models.KindCallAssigned:
		err = b.applyCallAssignment(pos, ev)
	default:
		err = apperrors.NewValidationError("kind", ev.Kind, "unknown event kind")
	}
	if err != nil {
		return err
	}

	pos.touch(ev.Timestamp)
	if !exists {
		b.positions[ev.Ticker] = pos
	}
	b.applied++
	b.last = ev
	return nil
}

func (b *Book) applySale(pos *position, ev models.TradeEvent) error {
	side := ev.Kind.Side()
	credit := ev.PremiumValue().Mul(ev.ContractShares())

	leg := &Leg{
		ID:              ev.ID,
		Ticker:          ev.Ticker,
		Side:            side,
		Strike:          ev.Strike,
		Expiration:      ev.Expiration,
		Contracts:       ev.Contracts,
		OpenedContracts: ev.Contracts,
		Premium:         ev.PremiumValue(),
		Status:          models.LegOpen,
		OpenedAt:        ev.Timestamp,
		Realized:        credit,
	}
	b.openLeg(pos, leg)
	pos.addPremium(side, credit)
	b.contribute(ev, side, credit, decimal.Zero)
	return nil
}

func (b *Book) applyClose(pos *position, ev models.TradeEvent) error {
	leg, err := b.linkedOpenLeg(ev)
	if err != nil {
		return err
	}

	debit := ev.ClosePrice.Mul(ev.ContractShares())
	b.reduceLeg(leg, ev, models.LegClosed)
	leg.Realized = leg.Realized.Sub(debit)
	pos.addPremium(leg.Side, debit.Neg())
	b.contribute(ev, leg.Side, debit.Neg(), decimal.Zero)
	return nil
}

func (b *Book) applyRoll(pos *position, ev models.TradeEvent) error {
	leg, err := b.linkedOpenLeg(ev)
	if err != nil {
		return err
	}

	var net decimal.Decimal
	switch b.opts.RollPremium {
	case RollNewLeg:
		if ev.PremiumValue().IsNegative() {
			return apperrors.NewValidationError("premium", ev.PremiumValue(), "new leg premium must not be negative")
		}
		net = ev.PremiumValue().Sub(ev.ClosePrice)
	default:
		net = ev.PremiumValue()
	}
	newPremium := leg.Premium.Add(net)

	strike := ev.Strike
	if strike.IsZero() {
		strike = leg.Strike
	}
	amount := net.Mul(ev.ContractShares())

	b.reduceLeg(leg, ev, models.LegRolled)
	b.openLeg(pos, &Leg{
		ID:              ev.ID,
		Ticker:          ev.Ticker,
		Side:            leg.Side,
		Strike:          strike,
		Expiration:      ev.Expiration,
		Contracts:       ev.Contracts,
		OpenedContracts: ev.Contracts,
		Premium:         newPremium,
		Status:          models.LegOpen,
		OpenedAt:        ev.Timestamp,
		RolledFrom:      leg.ID,
		Realized:        amount,
	})
	pos.addPremium(leg.Side, amount)
	b.contribute(ev, leg.Side, amount, decimal.Zero)
	return nil
}

func (b *Book) applyPutAssignment(pos *position, ev models.TradeEvent) error {
	leg, err := b.resolveAssignment(pos, ev)
	if err != nil {
		return err
	}

	credit := decimal.Zero
	if leg != nil {
		credit = leg.Premium
		b.reduceLeg(leg, ev, models.LegAssigned)
	} else {
		pos.unlinked = append(pos.unlinked, ev.ID)
	}
	pos.lot = pos.lot.Add(ev.Shares, ev.CostBasisPerShare, credit)
	b.contribute(ev, models.SidePut, decimal.Zero, decimal.Zero)
	return nil
}

func (b *Book) applyCallAssignment(pos *position, ev models.TradeEvent) error {
	leg, err := b.resolveAssignment(pos, ev)
	if err != nil {
		return err
	}
	lot, gain, err := pos.lot.Remove(ev.Shares, ev.CostBasisPerShare)
	if err != nil {
		return err
	}

	if leg != nil {
		b.reduceLeg(leg, ev, models.LegAssigned)
	} else {
		pos.unlinked = append(pos.unlinked, ev.ID)
	}
	pos.lot = lot
	pos.assignmentPnL = pos.assignmentPnL.Add(gain)
	b.contribute(ev, models.SideCall, decimal.Zero, gain)
	return nil
}

// linkedOpenLeg resolves the leg a Close or Roll acts on.
func (b *Book) linkedOpenLeg(ev models.TradeEvent) (*Leg, error) {
	leg, ok := b.legs[ev.LinkedTradeID]
	if !ok {
		return nil, apperrors.NewValidationError("linked_trade_id", ev.LinkedTradeID, "referenced trade did not open an option leg")
	}
	if leg.Ticker != ev.Ticker {
		return nil, apperrors.NewValidationError("linked_trade_id", ev.LinkedTradeID, "referenced leg is for "+leg.Ticker)
	}
	if status := leg.StatusAt(ev.Timestamp); status != models.LegOpen {
		return nil, apperrors.NewValidationError("linked_trade_id", ev.LinkedTradeID,
			fmt.Sprintf("referenced leg is already %s", status))
	}
	if ev.Contracts > leg.Contracts {
		return nil, apperrors.NewValidationError("contracts", ev.Contracts,
			fmt.Sprintf("exceeds the %d open contracts of leg %d", leg.Contracts, leg.ID))
	}
	return leg, nil
}

// resolveAssignment finds the open leg an assignment settles. A nil leg with
// a nil error means the assignment is a standalone share adjustment.
func (b *Book) resolveAssignment(pos *position, ev models.TradeEvent) (*Leg, error) {
	side := ev.Kind.Side()

	var leg *Leg
	if ev.HasLink() {
		linked, ok := b.legs[ev.LinkedTradeID]
		if !ok {
			return nil, apperrors.NewValidationError("linked_trade_id", ev.LinkedTradeID, "referenced trade did not open an option leg")
		}
		if linked.Ticker != ev.Ticker {
			return nil, apperrors.NewValidationError("linked_trade_id", ev.LinkedTradeID, "referenced leg is for "+linked.Ticker)
		}
		if linked.Side != side {
			return nil, apperrors.NewValidationError("linked_trade_id", ev.LinkedTradeID,
				fmt.Sprintf("referenced leg is a %s, not a %s", linked.Side, side))
		}
		if linked.StatusAt(ev.Timestamp) != models.LegOpen {
			return nil, nil
		}
		leg = linked
	} else {
		var candidates []*Leg
		for _, l := range pos.legs {
			if l.Side == side && l.StatusAt(ev.Timestamp) == models.LegOpen {
				candidates = append(candidates, l)
			}
		}
		switch len(candidates) {
		case 0:
			return nil, nil
		case 1:
			leg = candidates[0]
		default:
			ids := make([]int64, len(candidates))
			for i, c := range candidates {
				ids[i] = c.ID
			}
			return nil, apperrors.NewAmbiguousReferenceError(ev.Ticker, string(side), ids)
		}
	}

	if ev.Contracts > leg.Contracts {
		return nil, apperrors.NewValidationError("contracts", ev.Contracts,
			fmt.Sprintf("exceeds the %d open contracts of leg %d", leg.Contracts, leg.ID))
	}
	return leg, nil
}

func (b *Book) openLeg(pos *position, leg *Leg) {
	pos.legs = append(pos.legs, leg)
	b.legs[leg.ID] = leg
}

// reduceLeg consumes ev.Contracts from leg, moving it to terminal once none remain.
func (b *Book) reduceLeg(leg *Leg, ev models.TradeEvent, terminal models.LegStatus) {
	leg.Contracts -= ev.Contracts
	if leg.Contracts == 0 {
		leg.Status = terminal
		leg.ResolvedAt = ev.Timestamp
		leg.ResolvedBy = ev.ID
	}
}

func (b *Book) contribute(ev models.TradeEvent, side models.Side, premium, assignment decimal.Decimal) {
	b.contributions = append(b.contributions, Contribution{
		EventID:       ev.ID,
		Ticker:        ev.Ticker,
		Side:          side,
		Kind:          ev.Kind,
		At:            ev.Timestamp,
		Premium:       premium,
		AssignmentPnL: assignment,
	})
}
