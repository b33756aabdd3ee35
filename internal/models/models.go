// Package models provides domain models for the wheel tracker.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Mode identifies an isolated data set. Each mode owns its own ledger.
type Mode string

const (
	ModeActive Mode = "active"
	ModeDemo   Mode = "demo"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeActive:
		return ModeActive, nil
	case ModeDemo:
		return ModeDemo, nil
	}
	return "", fmt.Errorf("unknown mode %q (must be 'active' or 'demo')", s)
}

// Side represents the option type of a leg.
type Side string

const (
	SidePut  Side = "PUT"
	SideCall Side = "CALL"
)

// Granularity is the bucket width for income series.
type Granularity string

const (
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity parses a granularity name.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case GranularityWeek, "weekly", "w":
		return GranularityWeek, nil
	case GranularityMonth, "monthly", "m":
		return GranularityMonth, nil
	}
	return "", fmt.Errorf("unknown granularity %q (must be 'week' or 'month')", s)
}

// PricePoint is a dated price observation.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// Quote represents the latest known price for a ticker.
type Quote struct {
	Ticker    string          `json:"ticker"`
	Price     decimal.Decimal `json:"price"`
	Realtime  bool            `json:"realtime"`
	Timestamp time.Time       `json:"timestamp"`
}

// Bar represents daily OHLCV data.
type Bar struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// TickerDetails is reference information about a listed symbol.
type TickerDetails struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Market   string `json:"market"`
	Exchange string `json:"primary_exchange"`
	Active   bool   `json:"active"`
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateLayout is the calendar date format used on the wire and in exports.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}
