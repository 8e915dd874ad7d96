package trend

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fert-price-monitor/internal/market"
)

var testAsOf = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func analyze(t *testing.T, prices ...float64) Analysis {
	t.Helper()
	analysis, ok := NewAnalyzer().Analyze(market.DailySeries(testAsOf, prices...), testAsOf)
	if !ok {
		t.Fatalf("expected analysis for %d points", len(prices))
	}
	return analysis
}

func TestAnalyzeInsufficientData(t *testing.T) {
	an := NewAnalyzer()
	if _, ok := an.Analyze(nil, testAsOf); ok {
		t.Fatal("empty series must report insufficient data")
	}
	if _, ok := an.Analyze(market.DailySeries(testAsOf, 100, 101), testAsOf); ok {
		t.Fatal("two points must report insufficient data")
	}
}

func TestAnalyzeSuddenJump(t *testing.T) {
	analysis := analyze(t, 100, 100, 100, 100, 100, 100, 130)

	if analysis.TrendPct7 == nil {
		t.Fatal("7-day horizon should resolve from a daily series")
	}
	if got := *analysis.TrendPct7; math.Abs(got-30) > 1e-9 {
		t.Fatalf("expected 30%% 7-day change, got %.4f", got)
	}
	if analysis.Direction != DirectionUp {
		t.Fatalf("expected up, got %s", analysis.Direction)
	}
	if analysis.Strength != StrengthStrong {
		t.Fatalf("expected strong, got %s", analysis.Strength)
	}
}

func TestDirectionThresholds(t *testing.T) {
	cases := []struct {
		name      string
		last      float64
		direction Direction
		strength  Strength
	}{
		{"flat", 100, DirectionStable, StrengthWeak},
		{"just inside band up", 102, DirectionStable, StrengthWeak},
		{"just outside band up", 102.5, DirectionUp, StrengthWeak},
		{"moderate up", 107, DirectionUp, StrengthModerate},
		{"strong up", 112, DirectionUp, StrengthStrong},
		{"just inside band down", 98, DirectionStable, StrengthWeak},
		{"down", 97, DirectionDown, StrengthWeak},
		{"strong down", 85, DirectionDown, StrengthStrong},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			analysis := analyze(t, 100, 100, 100, 100, 100, 100, tc.last)
			if analysis.Direction != tc.direction {
				t.Fatalf("direction: expected %s, got %s", tc.direction, analysis.Direction)
			}
			if analysis.Strength != tc.strength {
				t.Fatalf("strength: expected %s, got %s", tc.strength, analysis.Strength)
			}
		})
	}
}

func TestVolatilityConstantSeriesIsZero(t *testing.T) {
	analysis := analyze(t, 250, 250, 250, 250, 250, 250, 250, 250)
	if analysis.Volatility7 != 0 || analysis.Volatility30 != 0 || analysis.Volatility90 != 0 {
		t.Fatalf("constant series volatility must be zero, got %.4f/%.4f/%.4f",
			analysis.Volatility7, analysis.Volatility30, analysis.Volatility90)
	}
}

func TestVolatilityNonNegative(t *testing.T) {
	series := [][]float64{
		{100, 103, 98, 105, 97, 110, 92},
		{480, 478, 481, 495, 470, 500, 460, 510},
		{1, 2, 1, 2, 1, 2, 1},
	}
	for _, prices := range series {
		analysis := analyze(t, prices...)
		if analysis.Volatility7 < 0 || analysis.Volatility30 < 0 || analysis.Volatility90 < 0 {
			t.Fatalf("volatility must be non-negative for %v", prices)
		}
	}
}

func TestHorizonNullOutsideTolerance(t *testing.T) {
	// Two old points plus today: the 30/90-day targets have no neighbour
	// within tolerance, and neither does the 7-day target.
	points := []market.PricePoint{
		{Date: testAsOf.AddDate(0, 0, -60), Price: decimal.NewFromInt(100)},
		{Date: testAsOf.AddDate(0, 0, -59), Price: decimal.NewFromInt(101)},
		{Date: testAsOf, Price: decimal.NewFromInt(120)},
	}
	analysis, ok := NewAnalyzer().Analyze(points, testAsOf)
	if !ok {
		t.Fatal("three points should analyze")
	}
	if analysis.TrendPct7 != nil {
		t.Fatal("7-day horizon should be null with a 59-day gap")
	}
	if analysis.TrendPct30 != nil {
		t.Fatal("30-day horizon should be null outside ±3 days")
	}
	if analysis.Direction != DirectionStable || analysis.Strength != StrengthWeak {
		t.Fatalf("unresolved horizons must classify stable/weak, got %s/%s", analysis.Direction, analysis.Strength)
	}
}

func TestMovingAveragesAndMomentum(t *testing.T) {
	// 30 days rising steadily: short MA above long MA, momentum positive.
	prices := make([]float64, 31)
	for i := range prices {
		prices[i] = 300 + float64(i)
	}
	analysis := analyze(t, prices...)

	if analysis.MovingAvg7 <= analysis.MovingAvg30 {
		t.Fatalf("rising series: MA7 (%.2f) should exceed MA30 (%.2f)", analysis.MovingAvg7, analysis.MovingAvg30)
	}
	if analysis.Momentum <= 0 {
		t.Fatalf("rising series momentum should be positive, got %.4f", analysis.Momentum)
	}
}

func TestSeasonalFactorLookup(t *testing.T) {
	if f := SeasonalFactor(time.April); f != 1.12 {
		t.Fatalf("April factor: expected 1.12, got %.2f", f)
	}
	if f := SeasonalFactor(time.July); f != 0.90 {
		t.Fatalf("July factor: expected 0.90, got %.2f", f)
	}
	analysis := analyze(t, 100, 100, 100, 100)
	if analysis.SeasonalFactor != SeasonalFactor(testAsOf.Month()) {
		t.Fatal("analysis should carry the asOf month factor")
	}
}

func TestTrendConfidenceBounds(t *testing.T) {
	for _, prices := range [][]float64{
		{100, 101, 102, 103, 104, 105, 106},
		{100, 90, 110, 80, 120, 70, 130},
		{500, 500, 500, 500},
	} {
		analysis := analyze(t, prices...)
		if analysis.TrendConfidence < 0 || analysis.TrendConfidence > 1 {
			t.Fatalf("confidence %.4f outside [0,1] for %v", analysis.TrendConfidence, prices)
		}
	}
}
