package scoring

import (
	"fert-price-monitor/internal/trend"
)

// Features is the numeric view of a trend analysis consumed by the
// heuristic scorers. Missing horizons contribute zero rather than nulls so
// every scorer stays total.
type Features struct {
	ChangePct7      float64
	ChangePct30     float64
	Volatility7     float64
	Volatility30    float64
	Strength        trend.Strength
	MovingAvg7      float64
	MovingAvg30     float64
	Momentum        float64
	SeasonalFactor  float64
	TrendConfidence float64
	DataPoints      int
}

// Extract flattens an analysis into scoring features.
func Extract(analysis trend.Analysis) Features {
	f := Features{
		Volatility7:     analysis.Volatility7,
		Volatility30:    analysis.Volatility30,
		Strength:        analysis.Strength,
		MovingAvg7:      analysis.MovingAvg7,
		MovingAvg30:     analysis.MovingAvg30,
		Momentum:        analysis.Momentum,
		SeasonalFactor:  analysis.SeasonalFactor,
		TrendConfidence: analysis.TrendConfidence,
		DataPoints:      analysis.DataPoints,
	}
	if analysis.TrendPct7 != nil {
		f.ChangePct7 = *analysis.TrendPct7
	}
	if analysis.TrendPct30 != nil {
		f.ChangePct30 = *analysis.TrendPct30
	}
	return f
}
