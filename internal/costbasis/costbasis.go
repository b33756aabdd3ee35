// Package costbasis tracks the running weighted-average cost of shares as
// they move through assignment cycles.
package costbasis

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "wheel-tracker/internal/errors"
)

// Mode selects which running basis is reported.
type Mode string

const (
	// ModeStrike blends the recorded cost basis per share as-is.
	ModeStrike Mode = "strike"
	// ModePremiumAdjusted subtracts the originating put's per-share premium
	// before blending.
	ModePremiumAdjusted Mode = "premium_adjusted"
)

// ParseMode parses a basis mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStrike, "":
		return ModeStrike, nil
	case ModePremiumAdjusted, "premium-adjusted", "adjusted":
		return ModePremiumAdjusted, nil
	}
	return "", fmt.Errorf("unknown basis mode %q (must be 'strike' or 'premium_adjusted')", s)
}

// Lot is the open share holding of one ticker. The zero value has no
// shares and an undefined basis.
type Lot struct {
	Shares   int64
	Basis    decimal.Decimal
	Adjusted decimal.Decimal
}

// Open reports whether any shares are held.
func (l Lot) Open() bool {
	return l.Shares > 0
}

// Add blends shares bought at price into the lot. credit is the per-share
// premium of the put that delivered them; it only affects the adjusted basis.
func (l Lot) Add(shares int64, price, credit decimal.Decimal) Lot {
	if shares <= 0 {
		return l
	}
	oldQty := decimal.NewFromInt(l.Shares)
	addQty := decimal.NewFromInt(shares)
	total := oldQty.Add(addQty)

	return Lot{
		Shares:   l.Shares + shares,
		Basis:    blend(oldQty, l.Basis, addQty, price, total),
		Adjusted: blend(oldQty, l.Adjusted, addQty, price.Sub(credit), total),
	}
}

func blend(oldQty, oldBasis, addQty, price, total decimal.Decimal) decimal.Decimal {
	return oldQty.Mul(oldBasis).Add(addQty.Mul(price)).Div(total)
}

// Remove takes shares out of the lot at salePrice and returns the remaining
// lot with the gain measured against the strike basis. Removing more shares
// than are held is a validation error. Emptying the lot resets its basis.
func (l Lot) Remove(shares int64, salePrice decimal.Decimal) (Lot, decimal.Decimal, error) {
	if shares > l.Shares {
		return l, decimal.Zero, apperrors.NewValidationError("shares", shares,
			fmt.Sprintf("cannot deliver %d shares, only %d held", shares, l.Shares))
	}
	gain := decimal.NewFromInt(shares).Mul(salePrice.Sub(l.Basis))

	remaining := l.Shares - shares
	if remaining == 0 {
		return Lot{}, gain, nil
	}
	return Lot{Shares: remaining, Basis: l.Basis, Adjusted: l.Adjusted}, gain, nil
}

// RunningBasis returns the per-share basis for mode, and false when no lot
// is open.
func (l Lot) RunningBasis(mode Mode) (decimal.Decimal, bool) {
	if !l.Open() {
		return decimal.Zero, false
	}
	if mode == ModePremiumAdjusted {
		return l.Adjusted, true
	}
	return l.Basis, true
}

// Cost is the strike-basis capital tied up in the lot.
func (l Lot) Cost() decimal.Decimal {
	return decimal.NewFromInt(l.Shares).Mul(l.Basis)
}
