package ledger

import (
	"strings"
	"time"

	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/models"
	"wheel-tracker/pkg/utils"
)

// Normalize canonicalises fields that have a single accepted spelling.
func Normalize(ev models.TradeEvent) models.TradeEvent {
	ev.Ticker = strings.ToUpper(strings.TrimSpace(ev.Ticker))
	if !ev.Timestamp.IsZero() {
		ev.Timestamp = ev.Timestamp.UTC()
	}
	if !ev.Expiration.IsZero() {
		y, m, d := ev.Expiration.Date()
		ev.Expiration = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return ev
}

// Validate applies the field and reference rules every event must satisfy
// before it may enter the ledger. lookup resolves earlier events by id.
func Validate(ev models.TradeEvent, lookup func(int64) (models.TradeEvent, bool)) error {
	if ev.Ticker == "" {
		return apperrors.NewValidationError("ticker", ev.Ticker, "ticker is required")
	}
	if strings.ContainsAny(ev.Ticker, " \t\n") {
		return apperrors.NewValidationError("ticker", ev.Ticker, "ticker must not contain whitespace")
	}
	if !ev.Kind.Valid() {
		return apperrors.NewValidationError("kind", ev.Kind, "unknown event kind")
	}
	if ev.Contracts <= 0 {
		return apperrors.NewValidationError("contracts", ev.Contracts, "contracts must be positive")
	}
	if ev.Delta != nil && (*ev.Delta < -1 || *ev.Delta > 1) {
		return apperrors.NewValidationError("delta", *ev.Delta, "delta must be within [-1, 1]")
	}
	if ev.Strike.IsNegative() || (ev.Kind.IsSale() && !ev.Strike.IsPositive()) {
		return apperrors.NewValidationError("strike", ev.Strike, "strike must be positive")
	}
	if ev.ClosePrice.IsNegative() {
		return apperrors.NewValidationError("close_price", ev.ClosePrice, "close price must not be negative")
	}

	switch {
	case ev.Kind.IsSale():
		if !ev.Premium.Valid {
			return apperrors.NewValidationError("premium", nil, "premium is required")
		}
		if ev.Premium.Decimal.IsNegative() {
			return apperrors.NewValidationError("premium", ev.Premium.Decimal, "premium must not be negative")
		}
		if err := validateExpiration(ev); err != nil {
			return err
		}

	case ev.Kind == models.KindRoll:
		if !ev.Premium.Valid {
			return apperrors.NewValidationError("premium", nil, "roll premium is required")
		}
		if err := validateExpiration(ev); err != nil {
			return err
		}

	case ev.Kind.IsAssignment():
		if ev.Shares <= 0 {
			return apperrors.NewValidationError("shares", ev.Shares, "shares must be positive")
		}
		if !ev.CostBasisPerShare.IsPositive() {
			return apperrors.NewValidationError("cost_basis_per_share", ev.CostBasisPerShare, "cost basis per share must be positive")
		}
	}

	if ev.Kind == models.KindClose || ev.Kind == models.KindRoll {
		if !ev.HasLink() {
			return apperrors.NewValidationError("linked_trade_id", ev.LinkedTradeID, "closing or rolling requires the trade being closed")
		}
	}
	if ev.HasLink() {
		return validateLink(ev, lookup)
	}
	return nil
}

func validateExpiration(ev models.TradeEvent) error {
	if !ev.HasExpiration() {
		return apperrors.NewValidationError("expiration", nil, "expiration is required")
	}
	if models.DateOf(ev.Expiration).Before(utils.SessionDate(ev.Timestamp)) {
		return apperrors.NewValidationError("expiration", ev.Expiration.Format("2006-01-02"), "expiration is before the trade date")
	}
	return nil
}

func validateLink(ev models.TradeEvent, lookup func(int64) (models.TradeEvent, bool)) error {
	target, ok := lookup(ev.LinkedTradeID)
	if !ok {
		return apperrors.NewValidationError("linked_trade_id", ev.LinkedTradeID, "referenced trade does not exist")
	}
	if !target.Kind.OpensLeg() {
		return apperrors.NewValidationError("linked_trade_id", ev.LinkedTradeID, "referenced trade did not open an option leg")
	}
	if target.Ticker != ev.Ticker {
		return apperrors.NewValidationError("linked_trade_id", ev.LinkedTradeID, "referenced trade is for "+target.Ticker)
	}
	return nil
}
