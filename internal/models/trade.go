package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SharesPerContract is the number of shares one option contract controls.
const SharesPerContract = 100

// EventKind represents the kind of a trade event.
type EventKind string

const (
	KindSellPut      EventKind = "SELL_PUT"
	KindSellCall     EventKind = "SELL_CALL"
	KindPutAssigned  EventKind = "PUT_ASSIGNED"
	KindCallAssigned EventKind = "CALL_ASSIGNED"
	KindClose        EventKind = "CLOSE"
	KindRoll         EventKind = "ROLL"
)

// EventKinds lists every kind in declaration order.
var EventKinds = []EventKind{
	KindSellPut, KindSellCall, KindPutAssigned, KindCallAssigned, KindClose, KindRoll,
}

// ParseEventKind accepts the canonical names as well as lower-case and
// dash-separated spellings ("sell-put", "put_assigned").
func ParseEventKind(s string) (EventKind, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, k := range EventKinds {
		if string(k) == norm {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsSale reports whether k sells a new option.
func (k EventKind) IsSale() bool {
	return k == KindSellPut || k == KindSellCall
}

// IsAssignment reports whether k moves shares.
func (k EventKind) IsAssignment() bool {
	return k == KindPutAssigned || k == KindCallAssigned
}

// OpensLeg reports whether an event of this kind opens an option leg.
func (k EventKind) OpensLeg() bool {
	return k.IsSale() || k == KindRoll
}

// Side returns the option side implied by the kind. Close and Roll take
// their side from the leg they reference and return "".
func (k EventKind) Side() Side {
	switch k {
	case KindSellPut, KindPutAssigned:
		return SidePut
	case KindSellCall, KindCallAssigned:
		return SideCall
	}
	return ""
}

// TradeEvent is an immutable ledger record. Prices are per share.
type TradeEvent struct {
	ID                int64               `json:"id"`
	Ticker            string              `json:"ticker"`
	Kind              EventKind           `json:"kind"`
	Strike            decimal.Decimal     `json:"strike"`
	Expiration        time.Time           `json:"expiration"`
	Premium           decimal.NullDecimal `json:"premium"`
	ClosePrice        decimal.Decimal     `json:"close_price"`
	Contracts         int                 `json:"contracts"`
	Delta             *float64            `json:"delta,omitempty"`
	Shares            int64               `json:"shares"`
	CostBasisPerShare decimal.Decimal     `json:"cost_basis_per_share"`
	LinkedTradeID     int64               `json:"linked_trade_id,omitempty"`
	Timestamp         time.Time           `json:"timestamp"`
}

// PremiumValue returns the recorded premium, or zero when none was recorded.
func (e TradeEvent) PremiumValue() decimal.Decimal {
	if e.Premium.Valid {
		return e.Premium.Decimal
	}
	return decimal.Zero
}

// HasExpiration reports whether an expiration date was recorded.
func (e TradeEvent) HasExpiration() bool {
	return !e.Expiration.IsZero()
}

// HasLink reports whether the event references an earlier event.
func (e TradeEvent) HasLink() bool {
	return e.LinkedTradeID > 0
}

// ContractShares is the share quantity controlled by the event's contracts.
func (e TradeEvent) ContractShares() decimal.Decimal {
	return decimal.NewFromInt(int64(e.Contracts) * SharesPerContract)
}

// Before orders events by timestamp, then id.
func (e TradeEvent) Before(other TradeEvent) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	return e.ID < other.ID
}
