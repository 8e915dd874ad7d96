package adjust

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"fert-price-monitor/internal/trend"
)

// Planner maps fired triggers to concrete strategy modifications using a
// fixed rule table keyed on trigger kind and estimated ROI impact.
type Planner struct {
	estimator *Estimator
}

// NewPlanner constructs a Planner backed by the given estimator.
func NewPlanner(estimator *Estimator) *Planner {
	if estimator == nil {
		estimator = NewEstimator(EstimatorConfig{})
	}
	return &Planner{estimator: estimator}
}

// Plan decides whether a trigger warrants a strategy modification and, if
// so, returns it with the impact analysis attached. Returns ok=false when
// the trigger is alert-only (threshold breaches and market shocks) or when
// the threshold disables automatic adjustment.
//
// 规则表是固定的：ROI 影响越大，调整幅度越大，且必须人工审批。
func (p *Planner) Plan(sessionID string, trigger Trigger, analysis trend.Analysis, th Threshold, now time.Time) (Modification, bool) {
	if !th.AutoAdjust {
		return Modification{}, false
	}

	impact := p.estimator.Estimate(trigger.Product, trigger.ChangePct, analysis, []string{string(trigger.Kind)})

	var (
		kind          ModificationKind
		adjustmentPct float64
		reason        string
		needsApproval bool
	)

	switch trigger.Kind {
	case TriggerPriceIncrease:
		switch {
		case impact.ROIImpactPct < -10:
			kind = ModificationRateReduction
			adjustmentPct = -15
			needsApproval = true
		case impact.ROIImpactPct < -5:
			kind = ModificationRateReduction
			adjustmentPct = -8
		default:
			return Modification{}, false
		}
		reason = fmt.Sprintf("%s price up %.1f%%, estimated ROI impact %.1f%%", trigger.Product, trigger.ChangePct, impact.ROIImpactPct)

	case TriggerPriceDecrease:
		switch {
		case impact.ROIImpactPct > 10:
			kind = ModificationRateIncrease
			adjustmentPct = 12
			needsApproval = true
		case impact.ROIImpactPct > 5:
			kind = ModificationRateIncrease
			adjustmentPct = 6
		default:
			return Modification{}, false
		}
		reason = fmt.Sprintf("%s price down %.1f%%, estimated ROI impact %+.1f%%", trigger.Product, -trigger.ChangePct, impact.ROIImpactPct)

	case TriggerVolatilitySpike:
		kind = ModificationConservative
		adjustmentPct = -5
		needsApproval = true
		reason = fmt.Sprintf("%s 7d volatility %.1f%% exceeds tolerance, holding back application", trigger.Product, trigger.Volatility)

	case TriggerTrendReversal:
		kind = ModificationTrendFollowing
		needsApproval = true
		strongest, _ := analysis.StrongestTrendPct()
		if strongest > 0 {
			adjustmentPct = -8
			reason = fmt.Sprintf("%s entered a strong upward trend (%.1f%%), pre-emptively reducing rate", trigger.Product, strongest)
		} else {
			adjustmentPct = 8
			reason = fmt.Sprintf("%s entered a strong downward trend (%.1f%%), pre-emptively increasing rate", trigger.Product, strongest)
		}

	default:
		// threshold_breach 和 market_shock 只产生告警，不自动改策略。
		return Modification{}, false
	}

	if th.RequiresApproval {
		needsApproval = true
	}

	mod := Modification{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		Product:          trigger.Product,
		Kind:             kind,
		AdjustmentPct:    adjustmentPct,
		Reason:           reason,
		Impact:           &impact,
		RequiresApproval: needsApproval,
		ApprovalStatus:   ApprovalPending,
		CreatedAt:        now,
	}
	if !needsApproval {
		// Auto-approved on creation; there is no approver to record.
		mod.ApprovalStatus = ApprovalApproved
	}
	return mod, true
}
