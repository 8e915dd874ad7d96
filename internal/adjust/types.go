package adjust

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/trend"
)

// TriggerKind names a detected market condition.
type TriggerKind string

const (
	TriggerPriceIncrease   TriggerKind = "price_increase"
	TriggerPriceDecrease   TriggerKind = "price_decrease"
	TriggerVolatilitySpike TriggerKind = "volatility_spike"
	TriggerTrendReversal   TriggerKind = "trend_reversal"
	TriggerThresholdBreach TriggerKind = "threshold_breach"
	TriggerMarketShock     TriggerKind = "market_shock"
)

// Trigger is a pure value describing one fired condition. It is never
// persisted on its own; modifications and alerts reference it.
type Trigger struct {
	Kind         TriggerKind
	Product      market.FertilizerType
	Region       string
	ChangePct    float64
	Volatility   float64
	Direction    trend.Direction
	CurrentPrice decimal.Decimal
	DetectedAt   time.Time
}

// Threshold carries the per-fertilizer-type trigger configuration. Immutable
// once a session starts unless the session is explicitly reconfigured.
type Threshold struct {
	PriceChangePct   float64
	VolatilityPct    float64
	TrendStrengthPct float64
	CheckInterval    time.Duration
	AutoAdjust       bool
	RequiresApproval bool

	// Optional absolute bounds; crossing either raises threshold_breach.
	PriceCeiling *decimal.Decimal
	PriceFloor   *decimal.Decimal
}

// Validate rejects non-positive trigger levels.
func (t Threshold) Validate() error {
	if t.PriceChangePct <= 0 {
		return fmt.Errorf("price change percent must be positive, got %.2f", t.PriceChangePct)
	}
	if t.VolatilityPct <= 0 {
		return fmt.Errorf("volatility threshold must be positive, got %.2f", t.VolatilityPct)
	}
	if t.TrendStrengthPct < 0 {
		return fmt.Errorf("trend strength threshold cannot be negative, got %.2f", t.TrendStrengthPct)
	}
	if t.CheckInterval < 0 {
		return fmt.Errorf("check interval cannot be negative")
	}
	return nil
}

// ModificationKind names the shape of a proposed strategy change.
type ModificationKind string

const (
	ModificationRateReduction  ModificationKind = "rate_reduction"
	ModificationRateIncrease   ModificationKind = "rate_increase"
	ModificationConservative   ModificationKind = "conservative_adjustment"
	ModificationTrendFollowing ModificationKind = "trend_adjustment"
)

// ApprovalStatus tracks human sign-off on a modification.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ImpactAnalysis estimates the economic consequence of a price move for one
// strategy. The model is a documented placeholder: monotonic in the change
// magnitude, sign following the cost direction, confidence within [0,1].
type ImpactAnalysis struct {
	CostImpactPerAcre  decimal.Decimal
	ROIImpactPct       float64
	YieldImpactPct     float64
	BreakEvenImpactPct float64
	Confidence         float64
	Sources            []string
	ComputedAt         time.Time
}

// Modification is a proposed change to a fertilizer application plan.
// Approval fields are mutated only through the approval manager.
type Modification struct {
	ID            string
	SessionID     string
	Product       market.FertilizerType
	Kind          ModificationKind
	AdjustmentPct float64
	Reason        string
	Impact        *ImpactAnalysis

	RequiresApproval bool
	ApprovalStatus   ApprovalStatus
	ApprovedBy       *string

	Implemented   bool
	ImplementedAt *time.Time
	CreatedAt     time.Time
}

// Applicable reports whether the modification may be acted on: either it
// never needed approval or the approval was granted, and it has not lapsed.
func (m *Modification) Applicable() bool {
	if m == nil {
		return false
	}
	if !m.RequiresApproval {
		return m.ApprovalStatus != ApprovalRejected && m.ApprovalStatus != ApprovalExpired
	}
	return m.ApprovalStatus == ApprovalApproved
}
