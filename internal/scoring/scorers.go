package scoring

import (
	"math"

	"fert-price-monitor/internal/trend"
)

// Category names an alert family scored by its own heuristic.
type Category string

const (
	CategoryOpportunity Category = "opportunity"
	CategoryRisk        Category = "risk"
	CategoryTiming      Category = "timing"
	CategoryPrediction  Category = "prediction"
)

// ModelInfo is the fixed metadata of one heuristic model. Accuracy and
// false-positive rate are nominal figures carried for reporting; nothing is
// trained here.
type ModelInfo struct {
	Name              string
	Version           string
	Accuracy          float64
	FalsePositiveRate float64
	Threshold         float64
}

// Scorer scores features for one category. A real model can replace any
// variant as long as it keeps this contract.
type Scorer interface {
	Category() Category
	Info() ModelInfo
	Score(f Features) (float64, []string)
}

// Registry returns one scorer per category.
func Registry() map[Category]Scorer {
	return map[Category]Scorer{
		CategoryOpportunity: OpportunityScorer{},
		CategoryRisk:        RiskScorer{},
		CategoryTiming:      TimingScorer{},
		CategoryPrediction:  PredictionScorer{},
	}
}

// OpportunityScorer rates falling-price windows where buying ahead or
// raising application rates pays off.
type OpportunityScorer struct{}

func (OpportunityScorer) Category() Category { return CategoryOpportunity }

func (OpportunityScorer) Info() ModelInfo {
	return ModelInfo{
		Name:              "opportunity-heuristic",
		Version:           "1.2",
		Accuracy:          0.71,
		FalsePositiveRate: 0.19,
		Threshold:         0.60,
	}
}

func (OpportunityScorer) Score(f Features) (float64, []string) {
	var score float64
	if f.ChangePct7 < 0 {
		score += 0.45 * capRatio(-f.ChangePct7, 15)
	}
	if f.Momentum < 0 {
		score += 0.20 * capRatio(-f.Momentum, 5)
	}
	// Below-average seasonal factor means the market is in its cheap part
	// of the year.
	if f.SeasonalFactor > 0 && f.SeasonalFactor < 1 {
		score += 0.15 * capRatio(1-f.SeasonalFactor, 0.1)
	}
	score += 0.20 * f.TrendConfidence
	score = clamp01(score)

	var actions []string
	if score > 0 {
		actions = append(actions, "lock in forward purchases at the current price")
		if f.ChangePct7 < -10 {
			actions = append(actions, "consider raising application rates within agronomic limits")
		}
		actions = append(actions, "compare quotes across suppliers before the window closes")
	}
	return score, actions
}

// RiskScorer rates rising-cost or unstable-market exposure.
type RiskScorer struct{}

func (RiskScorer) Category() Category { return CategoryRisk }

func (RiskScorer) Info() ModelInfo {
	return ModelInfo{
		Name:              "risk-heuristic",
		Version:           "1.4",
		Accuracy:          0.74,
		FalsePositiveRate: 0.16,
		Threshold:         0.65,
	}
}

func (RiskScorer) Score(f Features) (float64, []string) {
	var score float64
	if f.ChangePct7 > 0 {
		score += 0.40 * capRatio(f.ChangePct7, 15)
	}
	score += 0.30 * capRatio(f.Volatility7, 20)
	if f.Momentum > 0 {
		score += 0.15 * capRatio(f.Momentum, 5)
	}
	score += 0.15 * f.TrendConfidence
	score = clamp01(score)

	var actions []string
	if score > 0 {
		actions = append(actions, "review budget exposure for the affected products")
		if f.Volatility7 > 15 {
			actions = append(actions, "defer non-urgent purchases until volatility settles")
		}
		if f.ChangePct7 > 10 {
			actions = append(actions, "evaluate reduced application rates against yield targets")
		}
	}
	return score, actions
}

// TimingScorer rates how decisively the market is turning, for purchase
// re-timing decisions.
type TimingScorer struct{}

func (TimingScorer) Category() Category { return CategoryTiming }

func (TimingScorer) Info() ModelInfo {
	return ModelInfo{
		Name:              "timing-heuristic",
		Version:           "1.1",
		Accuracy:          0.68,
		FalsePositiveRate: 0.22,
		Threshold:         0.55,
	}
}

func (TimingScorer) Score(f Features) (float64, []string) {
	var score float64
	switch f.Strength {
	case trend.StrengthStrong:
		score += 0.40
	case trend.StrengthModerate:
		score += 0.20
	}
	score += 0.25 * capRatio(math.Abs(f.Momentum), 5)
	if f.SeasonalFactor > 0 {
		score += 0.20 * capRatio(math.Abs(f.SeasonalFactor-1), 0.1)
	}
	score += 0.15 * f.TrendConfidence
	score = clamp01(score)

	var actions []string
	if score > 0 {
		if f.ChangePct7 >= 0 {
			actions = append(actions, "advance purchases before the trend extends")
		} else {
			actions = append(actions, "hold purchases while the downtrend develops")
		}
		actions = append(actions, "re-check the seasonal window for the affected products")
	}
	return score, actions
}

// PredictionScorer is the generic fallback blend used when no specialised
// category applies.
type PredictionScorer struct{}

func (PredictionScorer) Category() Category { return CategoryPrediction }

func (PredictionScorer) Info() ModelInfo {
	return ModelInfo{
		Name:              "prediction-heuristic",
		Version:           "1.0",
		Accuracy:          0.64,
		FalsePositiveRate: 0.25,
		Threshold:         0.50,
	}
}

func (PredictionScorer) Score(f Features) (float64, []string) {
	score := 0.50*f.TrendConfidence +
		0.30*capRatio(math.Abs(f.ChangePct7), 10) +
		0.20*(1-capRatio(f.Volatility7, 20))
	score = clamp01(score)

	var actions []string
	if score > 0 {
		actions = append(actions, "monitor the products daily until the signal resolves")
	}
	return score, actions
}

// capRatio maps value/limit into [0,1].
func capRatio(value, limit float64) float64 {
	if limit <= 0 || value <= 0 {
		return 0
	}
	if value >= limit {
		return 1
	}
	return value / limit
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var (
	_ Scorer = OpportunityScorer{}
	_ Scorer = RiskScorer{}
	_ Scorer = TimingScorer{}
	_ Scorer = PredictionScorer{}
)
