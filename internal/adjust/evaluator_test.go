package adjust

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/trend"
)

var evalAsOf = time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)

func analyze(t *testing.T, prices ...float64) trend.Analysis {
	t.Helper()
	analyzer := trend.NewAnalyzer()
	analysis, ok := analyzer.Analyze(market.DailySeries(evalAsOf, prices...), evalAsOf)
	if !ok {
		t.Fatalf("分析不应失败, 数据点 %d", len(prices))
	}
	return analysis
}

func kinds(triggers []Trigger) map[TriggerKind]bool {
	out := make(map[TriggerKind]bool, len(triggers))
	for _, tr := range triggers {
		out[tr.Kind] = true
	}
	return out
}

func TestEvaluateSuddenIncrease(t *testing.T) {
	analysis := analyze(t, 100, 100, 100, 100, 100, 100, 130)
	th := Threshold{PriceChangePct: 5, VolatilityPct: 15, AutoAdjust: true}

	triggers := NewEvaluator().Evaluate(analysis, nil, th, market.FertilizerUrea, "midwest", evalAsOf)
	got := kinds(triggers)

	if !got[TriggerPriceIncrease] {
		t.Fatalf("30%% 涨幅应触发 price_increase, 实际 %v", triggers)
	}
	if got[TriggerPriceDecrease] {
		t.Fatalf("不应触发 price_decrease")
	}
	// Strong upward direction also counts as a reversal-grade trend.
	if !got[TriggerTrendReversal] {
		t.Fatalf("strong 趋势应触发 trend_reversal, 实际 %v", triggers)
	}
	if got[TriggerVolatilitySpike] {
		t.Fatalf("波动率 %.2f 低于阈值, 不应触发 volatility_spike", analysis.Volatility7)
	}
	if got[TriggerMarketShock] {
		t.Fatalf("30%% 未达 shock 级别, 不应触发 market_shock")
	}

	for _, tr := range triggers {
		if tr.Product != market.FertilizerUrea || tr.Region != "midwest" {
			t.Fatalf("trigger 元数据错误: %+v", tr)
		}
		if tr.ChangePct < 29.9 || tr.ChangePct > 30.1 {
			t.Fatalf("ChangePct 应约为 30, 实际 %.4f", tr.ChangePct)
		}
		if !tr.CurrentPrice.Equal(decimal.NewFromInt(130)) {
			t.Fatalf("trigger 应携带当前价格: %s", tr.CurrentPrice)
		}
	}
}

func TestEvaluateDecrease(t *testing.T) {
	analysis := analyze(t, 100, 100, 100, 100, 100, 100, 85)
	th := Threshold{PriceChangePct: 5, VolatilityPct: 15}

	got := kinds(NewEvaluator().Evaluate(analysis, nil, th, market.FertilizerDAP, "", evalAsOf))
	if !got[TriggerPriceDecrease] {
		t.Fatal("15% 跌幅应触发 price_decrease")
	}
	if got[TriggerPriceIncrease] {
		t.Fatal("下跌时不应触发 price_increase")
	}
}

func TestEvaluateBelowThresholdIsQuiet(t *testing.T) {
	analysis := analyze(t, 100, 100, 100, 100, 100, 100, 103)
	th := Threshold{PriceChangePct: 5, VolatilityPct: 15}

	triggers := NewEvaluator().Evaluate(analysis, nil, th, market.FertilizerUrea, "", evalAsOf)
	if len(triggers) != 0 {
		t.Fatalf("3%% 变化不应触发任何条件, 实际 %v", triggers)
	}
}

func TestEvaluateHardVolatilityCeiling(t *testing.T) {
	// The 20% ceiling applies even when the configured threshold is higher.
	analysis := trend.Analysis{Volatility7: 22, Direction: trend.DirectionStable, Strength: trend.StrengthWeak}
	th := Threshold{PriceChangePct: 5, VolatilityPct: 50}

	got := kinds(NewEvaluator().Evaluate(analysis, nil, th, market.FertilizerUrea, "", evalAsOf))
	if !got[TriggerVolatilitySpike] {
		t.Fatal("超过 20% 硬上限应触发 volatility_spike")
	}
}

func TestEvaluateConfiguredVolatility(t *testing.T) {
	analysis := trend.Analysis{Volatility7: 12, Direction: trend.DirectionStable, Strength: trend.StrengthWeak}
	th := Threshold{PriceChangePct: 5, VolatilityPct: 10}

	got := kinds(NewEvaluator().Evaluate(analysis, nil, th, market.FertilizerUrea, "", evalAsOf))
	if !got[TriggerVolatilitySpike] {
		t.Fatal("超过配置阈值应触发 volatility_spike")
	}
}

func TestEvaluateThresholdBreach(t *testing.T) {
	ceiling := decimal.NewFromInt(600)
	floor := decimal.NewFromInt(300)
	th := Threshold{PriceChangePct: 50, VolatilityPct: 50, PriceCeiling: &ceiling, PriceFloor: &floor}
	analysis := trend.Analysis{Direction: trend.DirectionStable, Strength: trend.StrengthWeak}

	high := &market.PriceSnapshot{PricePerUnit: decimal.NewFromInt(610)}
	got := kinds(NewEvaluator().Evaluate(analysis, high, th, market.FertilizerUrea, "", evalAsOf))
	if !got[TriggerThresholdBreach] {
		t.Fatal("高于上限应触发 threshold_breach")
	}

	low := &market.PriceSnapshot{PricePerUnit: decimal.NewFromInt(290)}
	got = kinds(NewEvaluator().Evaluate(analysis, low, th, market.FertilizerUrea, "", evalAsOf))
	if !got[TriggerThresholdBreach] {
		t.Fatal("低于下限应触发 threshold_breach")
	}

	got = kinds(NewEvaluator().Evaluate(analysis, nil, th, market.FertilizerUrea, "", evalAsOf))
	if got[TriggerThresholdBreach] {
		t.Fatal("无快照时不应检查绝对界限")
	}
}

func TestEvaluateMarketShock(t *testing.T) {
	pct := 40.0
	analysis := trend.Analysis{TrendPct7: &pct, Direction: trend.DirectionUp, Strength: trend.StrengthStrong}
	th := Threshold{PriceChangePct: 5, VolatilityPct: 15}

	got := kinds(NewEvaluator().Evaluate(analysis, nil, th, market.FertilizerPotash, "", evalAsOf))
	if !got[TriggerMarketShock] {
		t.Fatal("40% 变化应触发 market_shock")
	}
	if !got[TriggerPriceIncrease] {
		t.Fatal("market_shock 不吞掉 price_increase")
	}
}

func TestEvaluateDistinctKinds(t *testing.T) {
	analysis := analyze(t, 100, 100, 100, 100, 100, 100, 150)
	th := Threshold{PriceChangePct: 5, VolatilityPct: 15}

	triggers := NewEvaluator().Evaluate(analysis, nil, th, market.FertilizerUrea, "", evalAsOf)
	seen := make(map[TriggerKind]int)
	for _, tr := range triggers {
		seen[tr.Kind]++
	}
	for kind, n := range seen {
		if n > 1 {
			t.Fatalf("同一 tick 内 %s 重复 %d 次", kind, n)
		}
	}
}

func TestThresholdValidate(t *testing.T) {
	valid := Threshold{PriceChangePct: 5, VolatilityPct: 15, CheckInterval: time.Hour}
	if err := valid.Validate(); err != nil {
		t.Fatalf("合法阈值不应报错: %v", err)
	}

	cases := []Threshold{
		{PriceChangePct: 0, VolatilityPct: 15},
		{PriceChangePct: -1, VolatilityPct: 15},
		{PriceChangePct: 5, VolatilityPct: 0},
		{PriceChangePct: 5, VolatilityPct: 15, TrendStrengthPct: -3},
		{PriceChangePct: 5, VolatilityPct: 15, CheckInterval: -time.Minute},
	}
	for i, th := range cases {
		if err := th.Validate(); err == nil {
			t.Fatalf("用例 %d 应校验失败: %+v", i, th)
		}
	}
}
