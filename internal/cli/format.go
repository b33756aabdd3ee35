package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"wheel-tracker/internal/models"
	"wheel-tracker/internal/positions"
	"wheel-tracker/pkg/utils"
)

// FormatMoney formats a dollar amount with thousands separators.
func FormatMoney(amount decimal.Decimal) string {
	return utils.FormatDecimal(amount)
}

// FormatPrice formats a per-share price.
func FormatPrice(price decimal.Decimal) string {
	return price.StringFixed(2)
}

// FormatDate formats a calendar date.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(models.DateLayout)
}

// FormatDateTime formats a timestamp in local time.
func FormatDateTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

// FormatContract renders a leg as "AAPL 2024-07-19 180P".
func FormatContract(ticker string, side models.Side, strike decimal.Decimal, expiration time.Time) string {
	suffix := "P"
	if side == models.SideCall {
		suffix = "C"
	}
	return fmt.Sprintf("%s %s %s%s", ticker, FormatDate(expiration), strike.String(), suffix)
}

// FormatLeg renders a leg's contract description.
func FormatLeg(leg positions.Leg) string {
	return FormatContract(leg.Ticker, leg.Side, leg.Strike, leg.Expiration)
}

// DaysToExpiry counts calendar days from now until the leg's expiration.
func DaysToExpiry(leg positions.Leg, now time.Time) int {
	if leg.Expiration.IsZero() {
		return 0
	}
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(models.DateOf(leg.Expiration.UTC()).Sub(today).Hours() / 24)
}

// FormatDelta formats an optional delta.
func FormatDelta(delta *float64) string {
	if delta == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *delta)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
