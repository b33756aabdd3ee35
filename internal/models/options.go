package models

// LegStatus is the lifecycle state of a sold option leg.
type LegStatus string

const (
	LegOpen             LegStatus = "OPEN"
	LegExpiredWorthless LegStatus = "EXPIRED_WORTHLESS"
	LegAssigned         LegStatus = "ASSIGNED"
	LegClosed           LegStatus = "CLOSED"
	LegRolled           LegStatus = "ROLLED"
)

// Terminal reports whether no further transition is possible.
func (s LegStatus) Terminal() bool {
	return s != LegOpen
}
