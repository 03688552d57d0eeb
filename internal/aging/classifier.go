// Package aging derives collection-risk reports from the debt ledger.
// Reports are recomputed from ledger state at read time and are never
// the source of truth.
package aging

import (
	"time"

	"github.com/listahan/listahan/internal/ledger"
)

// CollectionStatus is the risk tier derived from tab age.
type CollectionStatus string

const (
	StatusCleared  CollectionStatus = "CLEARED"
	StatusActive   CollectionStatus = "ACTIVE"
	StatusWarning  CollectionStatus = "WARNING"
	StatusCritical CollectionStatus = "CRITICAL"
)

// Bucket boundaries in days. Shared by bucketing and status derivation
// so the policy cannot fork between reports.
const (
	currentMaxDays = 30
	warningMaxDays = 90
	bucket60Max    = 60
)

// Buckets holds outstanding amounts split by aging window.
type Buckets struct {
	Current    float64 `json:"current"`
	Days31to60 float64 `json:"days_31_to_60"`
	Days61to90 float64 `json:"days_61_to_90"`
	Over90Days float64 `json:"over_90_days"`
}

// Total sums all windows.
func (b Buckets) Total() float64 {
	return b.Current + b.Days31to60 + b.Days61to90 + b.Over90Days
}

// AgeDays measures how long the tab has been accumulating. Aging is per
// tab age (openedAt), not per unpaid charge; the whole balance falls in
// exactly one window.
func AgeDays(tab ledger.DebtTab, asOf time.Time) int {
	return int(asOf.Sub(tab.OpenedAt).Hours() / 24)
}

// Status derives the risk tier for a balance of the given age.
func Status(balance float64, ageDays int) CollectionStatus {
	if balance <= ledger.Epsilon {
		return StatusCleared
	}
	switch {
	case ageDays <= currentMaxDays:
		return StatusActive
	case ageDays <= warningMaxDays:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// Classify assigns the tab's full balance to a single window.
func Classify(tab ledger.DebtTab, asOf time.Time) Buckets {
	var b Buckets
	if tab.TotalBalance <= ledger.Epsilon {
		return b
	}
	days := AgeDays(tab, asOf)
	switch {
	case days <= currentMaxDays:
		b.Current = tab.TotalBalance
	case days <= bucket60Max:
		b.Days31to60 = tab.TotalBalance
	case days <= warningMaxDays:
		b.Days61to90 = tab.TotalBalance
	default:
		b.Over90Days = tab.TotalBalance
	}
	return b
}
