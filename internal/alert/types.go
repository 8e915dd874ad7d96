package alert

import (
	"time"

	"github.com/shopspring/decimal"

	"fert-price-monitor/internal/adjust"
	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/scoring"
	"fert-price-monitor/internal/trend"
)

// Priority ranks how urgently an alert needs eyes.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Status is the alert lifecycle state.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusExpired      Status = "expired"
)

// Details carries the numbers behind an alert so downstream consumers do
// not have to re-run the analysis.
type Details struct {
	ChangePct      float64
	Volatility     float64
	Direction      trend.Direction
	CurrentPrice   decimal.Decimal
	ModificationID string
	AdjustmentPct  float64
}

// Alert is one adjustment alert produced by the composer. Identity and
// dedup bookkeeping belong to the composer exclusively.
type Alert struct {
	ID        string
	SessionID string
	Product   market.FertilizerType
	Region    string
	Trigger   adjust.TriggerKind
	Priority  Priority
	Message   string
	Details   Details

	RequiresAction bool
	ActionDeadline *time.Time

	Status         Status
	CreatedAt      time.Time
	ExpiresAt      time.Time
	AcknowledgedAt *time.Time
}

// IntelligentAlert is an Alert that passed a category scorer, carrying the
// score as confidence plus the scorer's suggested next steps.
type IntelligentAlert struct {
	Alert

	Category           scoring.Category
	Confidence         float64
	RecommendedActions []string
	Model              string
}

// priorityFor is the static trigger-to-priority table.
func priorityFor(kind adjust.TriggerKind) Priority {
	switch kind {
	case adjust.TriggerMarketShock:
		return PriorityCritical
	case adjust.TriggerVolatilitySpike, adjust.TriggerTrendReversal:
		return PriorityHigh
	case adjust.TriggerPriceIncrease, adjust.TriggerPriceDecrease, adjust.TriggerThresholdBreach:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// categoryFor routes a trigger kind to the scorer family that judges it.
func categoryFor(kind adjust.TriggerKind) scoring.Category {
	switch kind {
	case adjust.TriggerPriceDecrease:
		return scoring.CategoryOpportunity
	case adjust.TriggerPriceIncrease, adjust.TriggerVolatilitySpike, adjust.TriggerMarketShock:
		return scoring.CategoryRisk
	case adjust.TriggerTrendReversal:
		return scoring.CategoryTiming
	default:
		return scoring.CategoryPrediction
	}
}
