package adjust

import (
	"math"
	"time"

	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/trend"
)

const (
	// hardVolatilityCeilingPct is a fixed safety ceiling, deliberately
	// independent of per-type configuration. Preserved verbatim from the
	// production thresholds; no derivation is claimed for the value.
	hardVolatilityCeilingPct = 20.0

	// Market shock levels sit above every regular trigger so ordinary
	// moves never escalate to critical.
	shockChangePct     = 35.0
	shockVolatilityPct = 30.0
)

// Evaluator compares a trend analysis against configured thresholds and
// emits the set of triggers that fire this tick.
type Evaluator struct{}

// NewEvaluator constructs an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate returns zero or more distinct triggers in a fixed order. The
// snapshot is optional; absolute bound checks are skipped without it.
func (e *Evaluator) Evaluate(analysis trend.Analysis, snapshot *market.PriceSnapshot, th Threshold, product market.FertilizerType, region string, now time.Time) []Trigger {
	primaryPct, hasPrimary := analysis.PrimaryTrendPct()

	base := Trigger{
		Product:      product,
		Region:       region,
		ChangePct:    primaryPct,
		Volatility:   analysis.Volatility7,
		Direction:    analysis.Direction,
		CurrentPrice: analysis.CurrentPrice,
		DetectedAt:   now,
	}

	var triggers []Trigger
	emit := func(kind TriggerKind) {
		t := base
		t.Kind = kind
		triggers = append(triggers, t)
	}

	if hasPrimary && th.PriceChangePct > 0 && math.Abs(primaryPct) >= th.PriceChangePct {
		if primaryPct > 0 {
			emit(TriggerPriceIncrease)
		} else {
			emit(TriggerPriceDecrease)
		}
	}

	if analysis.Volatility7 > hardVolatilityCeilingPct ||
		(th.VolatilityPct > 0 && analysis.Volatility7 > th.VolatilityPct) {
		emit(TriggerVolatilitySpike)
	}

	if analysis.Strength == trend.StrengthStrong && analysis.Direction != trend.DirectionStable {
		strongest, ok := analysis.StrongestTrendPct()
		if ok && (th.TrendStrengthPct <= 0 || math.Abs(strongest) >= th.TrendStrengthPct) {
			emit(TriggerTrendReversal)
		}
	}

	if snapshot != nil {
		if th.PriceCeiling != nil && snapshot.PricePerUnit.GreaterThanOrEqual(*th.PriceCeiling) {
			emit(TriggerThresholdBreach)
		} else if th.PriceFloor != nil && snapshot.PricePerUnit.LessThanOrEqual(*th.PriceFloor) {
			emit(TriggerThresholdBreach)
		}
	}

	if (hasPrimary && math.Abs(primaryPct) >= shockChangePct) || analysis.Volatility7 >= shockVolatilityPct {
		emit(TriggerMarketShock)
	}

	return triggers
}
