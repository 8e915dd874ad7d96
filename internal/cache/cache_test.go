package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/trend"
)

func sampleAnalysis() trend.Analysis {
	pct := 12.5
	return trend.Analysis{
		TrendPct7:       &pct,
		Volatility7:     4.2,
		Direction:       trend.DirectionUp,
		Strength:        trend.StrengthStrong,
		TrendConfidence: 0.71,
		DataPoints:      30,
		ComputedAt:      time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, market.FertilizerUrea, "midwest", sampleAnalysis()); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	got, ok, err := c.Get(ctx, market.FertilizerUrea, "midwest")
	if err != nil || !ok {
		t.Fatalf("读取失败: ok=%v err=%v", ok, err)
	}
	if got.TrendPct7 == nil || *got.TrendPct7 != 12.5 {
		t.Fatalf("趋势百分比未还原: %+v", got.TrendPct7)
	}
	if got.Direction != trend.DirectionUp || got.Strength != trend.StrengthStrong {
		t.Fatalf("方向/强度未还原: %s/%s", got.Direction, got.Strength)
	}
	if !got.ComputedAt.Equal(sampleAnalysis().ComputedAt) {
		t.Fatalf("计算时间未还原: %v", got.ComputedAt)
	}
}

func TestMemoryMissIsNotAnError(t *testing.T) {
	c := NewMemory(time.Minute)

	_, ok, err := c.Get(context.Background(), market.FertilizerDAP, "nowhere")
	if err != nil {
		t.Fatalf("未命中不应报错: %v", err)
	}
	if ok {
		t.Fatal("不存在的键不应命中")
	}
}

func TestMemoryEntriesExpire(t *testing.T) {
	c := NewMemory(10 * time.Millisecond)
	ctx := context.Background()

	if err := c.Set(ctx, market.FertilizerUrea, "midwest", sampleAnalysis()); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, market.FertilizerUrea, "midwest"); ok {
		t.Fatal("过期条目不应命中")
	}
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, market.FertilizerUrea, "midwest", sampleAnalysis()); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	if _, ok, _ := c.Get(ctx, market.FertilizerUrea, "south"); ok {
		t.Fatal("不同区域不应共享条目")
	}
	if _, ok, _ := c.Get(ctx, market.FertilizerDAP, "midwest"); ok {
		t.Fatal("不同产品不应共享条目")
	}
}

func TestKeyFormat(t *testing.T) {
	got := Key("fertwatch:trend", market.FertilizerUrea, "midwest")
	want := "fertwatch:trend:urea:midwest"
	if got != want {
		t.Fatalf("键格式错误: %s != %s", got, want)
	}
}

func TestNewWithoutAddrFallsBack(t *testing.T) {
	c := New(Options{Logger: zerolog.Nop()})
	if _, ok := c.(*Memory); !ok {
		t.Fatalf("未配置地址时应返回进程内缓存: %T", c)
	}
}
