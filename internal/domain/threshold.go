package domain

import "github.com/google/uuid"

// Default payout thresholds, in cents.
const (
	DefaultGeneralThresholdCents int64 = 60000
	DefaultRailThresholdCents    int64 = 50000
)

// Thresholds holds the cumulative payout cutoffs that trigger a tax form.
// Rail applies to payouts sent over the higher-risk rail (PayPal) and is lower
// than General.
type Thresholds struct {
	General int64
	Rail    int64
}

// DefaultThresholds returns the production cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{General: DefaultGeneralThresholdCents, Rail: DefaultRailThresholdCents}
}

// RequiresForm reports whether either cumulative total crosses its cutoff.
func (t Thresholds) RequiresForm(railAmount, otherAmount int64) bool {
	return otherAmount >= t.General || railAmount >= t.Rail
}

// PayoutTotals is the per-account aggregation of paid expenses for a year.
type PayoutTotals struct {
	AccountID   uuid.UUID
	RailAmount  int64
	OtherAmount int64
}
