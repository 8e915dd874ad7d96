package adjust

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/trend"
)

// EstimatorConfig holds the reference economics of the impact model. Usage
// is assumed constant per acre; the cost base anchors the ROI scaling.
type EstimatorConfig struct {
	UsageRates       map[market.FertilizerType]float64
	DefaultUsageRate float64
	UnitCostFactor   float64
	CostBasePerAcre  float64
}

// DefaultEstimatorConfig mirrors the production reference numbers: 100
// units/acre, 0.5 cost factor, 120 $/acre base. A 30% price change maps to
// a −12.5% ROI impact under these values.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		UsageRates: map[market.FertilizerType]float64{
			market.FertilizerUrea:            100,
			market.FertilizerUAN:             120,
			market.FertilizerDAP:             80,
			market.FertilizerMAP:             80,
			market.FertilizerPotash:          90,
			market.FertilizerAmmoniumSulfate: 70,
		},
		DefaultUsageRate: 100,
		UnitCostFactor:   0.5,
		CostBasePerAcre:  120,
	}
}

// Estimator turns a price change into a cost/ROI impact estimate.
type Estimator struct {
	cfg EstimatorConfig
}

// NewEstimator constructs an Estimator, filling zero config fields from the
// defaults.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	defaults := DefaultEstimatorConfig()
	if cfg.UsageRates == nil {
		cfg.UsageRates = defaults.UsageRates
	}
	if cfg.DefaultUsageRate <= 0 {
		cfg.DefaultUsageRate = defaults.DefaultUsageRate
	}
	if cfg.UnitCostFactor <= 0 {
		cfg.UnitCostFactor = defaults.UnitCostFactor
	}
	if cfg.CostBasePerAcre <= 0 {
		cfg.CostBasePerAcre = defaults.CostBasePerAcre
	}
	return &Estimator{cfg: cfg}
}

// Estimate computes the per-acre impact of a percent price change for one
// product. Positive change percent means costs rise, so ROI impact is
// negative; the relationship is linear and monotonic by construction.
func (e *Estimator) Estimate(product market.FertilizerType, changePct float64, analysis trend.Analysis, sources []string) ImpactAnalysis {
	usage, ok := e.cfg.UsageRates[product]
	if !ok || usage <= 0 {
		usage = e.cfg.DefaultUsageRate
	}

	costImpact := usage * (changePct / 100) * e.cfg.UnitCostFactor
	roiImpact := -costImpact / e.cfg.CostBasePerAcre * 100

	// Yield and break-even scalings are placeholders kept for behavioural
	// compatibility; they carry no agronomic derivation.
	yieldImpact := roiImpact * 0.25
	breakEvenImpact := -roiImpact * 0.6

	confidence := clampConfidence(0.6 + 0.3*analysis.TrendConfidence - analysis.Volatility7/200)

	return ImpactAnalysis{
		CostImpactPerAcre:  decimal.NewFromFloat(costImpact).Round(2),
		ROIImpactPct:       roiImpact,
		YieldImpactPct:     yieldImpact,
		BreakEvenImpactPct: breakEvenImpact,
		Confidence:         confidence,
		Sources:            append([]string(nil), sources...),
		ComputedAt:         time.Now().UTC(),
	}
}

// Combine sums per-product impacts into a tick-level aggregate. Confidence
// takes the weakest member; sources are concatenated without duplicates.
func Combine(impacts []ImpactAnalysis) ImpactAnalysis {
	if len(impacts) == 0 {
		return ImpactAnalysis{Confidence: 0, ComputedAt: time.Now().UTC()}
	}

	total := ImpactAnalysis{
		CostImpactPerAcre: decimal.Zero,
		Confidence:        math.MaxFloat64,
		ComputedAt:        time.Now().UTC(),
	}
	seen := make(map[string]struct{})
	for _, impact := range impacts {
		total.CostImpactPerAcre = total.CostImpactPerAcre.Add(impact.CostImpactPerAcre)
		total.ROIImpactPct += impact.ROIImpactPct
		total.YieldImpactPct += impact.YieldImpactPct
		total.BreakEvenImpactPct += impact.BreakEvenImpactPct
		if impact.Confidence < total.Confidence {
			total.Confidence = impact.Confidence
		}
		for _, src := range impact.Sources {
			if _, dup := seen[src]; dup {
				continue
			}
			seen[src] = struct{}{}
			total.Sources = append(total.Sources, src)
		}
	}
	return total
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
