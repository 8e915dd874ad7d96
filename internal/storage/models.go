package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is a persisted market observation for one product in one
// region. One row per (product, region, observed_at).
type PriceSample struct {
	Product    string
	Region     string
	Price      decimal.Decimal
	Unit       string
	Currency   string
	Source     string
	Confidence float64
	ObservedAt time.Time
	CreatedAt  time.Time
}

// ModificationRecord is the stored form of a strategy modification,
// carrying the approval trail alongside the proposal itself. Impact keeps
// the economic estimate as raw JSON so schema changes in the estimator do
// not require a migration.
type ModificationRecord struct {
	ID               string
	SessionID        string
	Product          string
	Kind             string
	AdjustmentPct    float64
	Reason           string
	Impact           json.RawMessage
	RequiresApproval bool
	ApprovalStatus   string
	ApprovedBy       *string
	Implemented      bool
	ImplementedAt    *time.Time
	CreatedAt        time.Time
}

// AlertRecord captures an emitted alert for auditing and retention sweeps.
type AlertRecord struct {
	ID             string
	SessionID      string
	Product        string
	Region         string
	Trigger        string
	Priority       string
	Message        string
	Details        json.RawMessage
	RequiresAction bool
	ActionDeadline *time.Time
	Status         string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}
