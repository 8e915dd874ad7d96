package trend

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fert-price-monitor/internal/market"
)

// Direction classifies where the primary trend is heading.
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
)

// Strength grades how pronounced the primary trend is.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

const (
	// minPoints is the floor below which no analysis is produced.
	minPoints = 3

	directionBandPct  = 2.0
	moderateFloorPct  = 5.0
	strongFloorPct    = 10.0
	maxToleranceDays  = 3
	defaultWindowDays = 90
)

var horizons = []int{7, 30, 90}

// Analysis summarises a price series at one point in time. Direction and
// strength derive from the 7-day change, falling back to 30-day when the
// 7-day horizon cannot be resolved.
type Analysis struct {
	CurrentPrice decimal.Decimal

	Price7dAgo  *decimal.Decimal
	Price30dAgo *decimal.Decimal
	Price90dAgo *decimal.Decimal

	TrendPct7  *float64
	TrendPct30 *float64
	TrendPct90 *float64

	Volatility7  float64
	Volatility30 float64
	Volatility90 float64

	Direction Direction
	Strength  Strength

	MovingAvg7      float64
	MovingAvg30     float64
	Momentum        float64
	SeasonalFactor  float64
	TrendConfidence float64

	DataPoints int
	ComputedAt time.Time
}

// PrimaryTrendPct resolves the percent change driving direction and strength.
func (a Analysis) PrimaryTrendPct() (float64, bool) {
	if a.TrendPct7 != nil {
		return *a.TrendPct7, true
	}
	if a.TrendPct30 != nil {
		return *a.TrendPct30, true
	}
	return 0, false
}

// StrongestTrendPct returns the resolved horizon change with the largest
// magnitude, used when an adjustment should follow the dominant move.
func (a Analysis) StrongestTrendPct() (float64, bool) {
	strongest := 0.0
	found := false
	for _, pct := range []*float64{a.TrendPct7, a.TrendPct30, a.TrendPct90} {
		if pct == nil {
			continue
		}
		if !found || math.Abs(*pct) > math.Abs(strongest) {
			strongest = *pct
			found = true
		}
	}
	return strongest, found
}

// Analyzer computes trend analyses from ordered price history.
type Analyzer struct{}

// NewAnalyzer constructs an Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze evaluates a series as of the given time. ok is false when fewer
// than three usable points exist; callers skip the product rather than fail.
func (an *Analyzer) Analyze(points []market.PricePoint, asOf time.Time) (Analysis, bool) {
	usable := make([]market.PricePoint, 0, len(points))
	for _, pt := range points {
		if pt.Price.IsPositive() {
			usable = append(usable, pt)
		}
	}
	if len(usable) < minPoints {
		return Analysis{}, false
	}

	sort.Slice(usable, func(i, j int) bool { return usable[i].Date.Before(usable[j].Date) })

	current := usable[len(usable)-1].Price

	analysis := Analysis{
		CurrentPrice:   current,
		SeasonalFactor: SeasonalFactor(asOf.Month()),
		DataPoints:     len(usable),
		ComputedAt:     asOf,
	}

	for _, h := range horizons {
		past, found := priceAtHorizon(usable, asOf, h)
		if !found {
			continue
		}
		pct := percentChange(current, past)
		switch h {
		case 7:
			analysis.Price7dAgo = &past
			analysis.TrendPct7 = &pct
		case 30:
			analysis.Price30dAgo = &past
			analysis.TrendPct30 = &pct
		case 90:
			analysis.Price90dAgo = &past
			analysis.TrendPct90 = &pct
		}
	}

	analysis.Volatility7 = windowVolatility(usable, asOf, 7)
	analysis.Volatility30 = windowVolatility(usable, asOf, 30)
	analysis.Volatility90 = windowVolatility(usable, asOf, 90)

	analysis.MovingAvg7 = windowMean(usable, asOf, 7)
	analysis.MovingAvg30 = windowMean(usable, asOf, 30)
	if analysis.MovingAvg30 != 0 {
		analysis.Momentum = (analysis.MovingAvg7 - analysis.MovingAvg30) / analysis.MovingAvg30 * 100
	}

	analysis.Direction, analysis.Strength = classify(analysis)
	analysis.TrendConfidence = confidence(usable, analysis)

	return analysis, true
}

func classify(a Analysis) (Direction, Strength) {
	pct, ok := a.PrimaryTrendPct()
	if !ok {
		return DirectionStable, StrengthWeak
	}

	direction := DirectionStable
	if pct > directionBandPct {
		direction = DirectionUp
	} else if pct < -directionBandPct {
		direction = DirectionDown
	}

	strength := StrengthWeak
	switch magnitude := math.Abs(pct); {
	case magnitude > strongFloorPct:
		strength = StrengthStrong
	case magnitude > moderateFloorPct:
		strength = StrengthModerate
	}

	return direction, strength
}

// priceAtHorizon finds the point closest to asOf−h days. Tolerance is
// min(3, ceil(h/10)) whole days so a daily series still resolves the 7-day
// horizon from its oldest neighbouring point.
func priceAtHorizon(points []market.PricePoint, asOf time.Time, h int) (decimal.Decimal, bool) {
	target := asOf.AddDate(0, 0, -h)

	tolerance := int(math.Ceil(float64(h) / 10))
	if tolerance > maxToleranceDays {
		tolerance = maxToleranceDays
	}
	maxDistance := time.Duration(tolerance) * 24 * time.Hour

	var best decimal.Decimal
	bestDistance := time.Duration(math.MaxInt64)
	for _, pt := range points {
		distance := pt.Date.Sub(target)
		if distance < 0 {
			distance = -distance
		}
		if distance < bestDistance {
			bestDistance = distance
			best = pt.Price
		}
	}

	if bestDistance > maxDistance {
		return decimal.Decimal{}, false
	}
	return best, true
}

// windowVolatility is the sample standard deviation of day-over-day returns
// within the trailing window, expressed as a percentage. A constant series
// yields exactly zero.
func windowVolatility(points []market.PricePoint, asOf time.Time, days int) float64 {
	window := trailingWindow(points, asOf, days)
	if len(window) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		prev := window[i-1].Price
		if !prev.IsPositive() {
			continue
		}
		r := window[i].Price.Sub(prev).Div(prev).InexactFloat64()
		returns = append(returns, r)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	sumSq := 0.0
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	variance := sumSq / float64(len(returns)-1)

	return math.Sqrt(variance) * 100
}

func windowMean(points []market.PricePoint, asOf time.Time, days int) float64 {
	window := trailingWindow(points, asOf, days)
	if len(window) == 0 {
		return 0
	}
	sum := 0.0
	for _, pt := range window {
		sum += pt.Price.InexactFloat64()
	}
	return sum / float64(len(window))
}

func trailingWindow(points []market.PricePoint, asOf time.Time, days int) []market.PricePoint {
	cutoff := asOf.AddDate(0, 0, -days)
	start := 0
	for start < len(points) && points[start].Date.Before(cutoff) {
		start++
	}
	return points[start:]
}

// confidence blends data richness, move continuity, and a volatility penalty
// into [0,1]. Heuristic only; no statistical claim intended.
func confidence(points []market.PricePoint, a Analysis) float64 {
	dataFactor := float64(a.DataPoints) / 30
	if dataFactor > 1 {
		dataFactor = 1
	}

	continuity := 0.5
	if a.Direction != DirectionStable && len(points) > 1 {
		matching := 0
		for i := 1; i < len(points); i++ {
			rising := points[i].Price.GreaterThanOrEqual(points[i-1].Price)
			if (a.Direction == DirectionUp && rising) || (a.Direction == DirectionDown && !rising) {
				matching++
			}
		}
		continuity = float64(matching) / float64(len(points)-1)
	}

	volPenalty := a.Volatility7
	if volPenalty > 20 {
		volPenalty = 20
	}

	score := 0.45*continuity + 0.45*dataFactor + 0.10*(1-volPenalty/20)
	return clamp01(score)
}

func percentChange(current, past decimal.Decimal) float64 {
	if !past.IsPositive() {
		return 0
	}
	return current.Sub(past).Div(past).Mul(decimal.NewFromInt(100)).InexactFloat64()
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
