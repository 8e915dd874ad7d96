package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fert-price-monitor/internal/market"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("默认配置应可加载: %v", err)
	}

	if cfg.App.Name != "fertwatch" {
		t.Fatalf("默认应用名错误: %s", cfg.App.Name)
	}
	if cfg.Monitor.DefaultInterval != time.Hour {
		t.Fatalf("默认检查间隔应为 1h: %v", cfg.Monitor.DefaultInterval)
	}
	if cfg.Monitor.MinInterval != time.Minute {
		t.Fatalf("最小间隔应为 1m: %v", cfg.Monitor.MinInterval)
	}
	if cfg.Monitor.RecentCheckWindow != 5*time.Minute {
		t.Fatalf("近期检查窗口应为 5m: %v", cfg.Monitor.RecentCheckWindow)
	}
	if cfg.Monitor.HistoryDays != 90 {
		t.Fatalf("历史窗口应为 90 天: %d", cfg.Monitor.HistoryDays)
	}
	if cfg.Thresholds.PriceChangePct != 5.0 || cfg.Thresholds.VolatilityPct != 15.0 {
		t.Fatalf("默认阈值错误: %+v", cfg.Thresholds)
	}
	if !cfg.Thresholds.AutoAdjust {
		t.Fatal("默认应开启自动调整")
	}
	if len(cfg.Alerting.Channels) != 1 || cfg.Alerting.Channels[0] != "log" {
		t.Fatalf("默认渠道应为 log: %v", cfg.Alerting.Channels)
	}
	if cfg.Alerting.Cooldown != time.Hour || cfg.Alerting.TTL != 24*time.Hour {
		t.Fatalf("默认告警生命周期错误: %+v", cfg.Alerting)
	}
	if cfg.Approval.Window != 24*time.Hour {
		t.Fatalf("默认审批窗口应为 24h: %v", cfg.Approval.Window)
	}
	if cfg.Provider.Source != "static" {
		t.Fatalf("默认数据源应为 static: %s", cfg.Provider.Source)
	}
	if cfg.Maintenance.AlertRetention != 72*time.Hour {
		t.Fatalf("默认告警保留期应为 72h: %v", cfg.Maintenance.AlertRetention)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
app:
  name: fertwatch-test
monitor:
  default_interval: 30m
  intelligent: true
thresholds:
  price_change_pct: 3.5
  requires_approval: true
alerting:
  channels:
    - telegram
    - webhook
  telegram:
    enabled: true
    bot_token: token
    chat_id: chat
  webhook:
    enabled: true
    endpoint: https://farm.example.com/hooks/fertwatch
watches:
  - user_id: farmer-1
    region: midwest
    fertilizer_types: [urea, dap]
    field_ids: [field-1, field-2]
    check_interval: 2h
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置文件失败: %v", err)
	}

	if cfg.App.Name != "fertwatch-test" {
		t.Fatalf("应用名未覆盖: %s", cfg.App.Name)
	}
	if cfg.Monitor.DefaultInterval != 30*time.Minute || !cfg.Monitor.Intelligent {
		t.Fatalf("监控配置未覆盖: %+v", cfg.Monitor)
	}
	if cfg.Thresholds.PriceChangePct != 3.5 || !cfg.Thresholds.RequiresApproval {
		t.Fatalf("阈值配置未覆盖: %+v", cfg.Thresholds)
	}

	if len(cfg.Watches) != 1 {
		t.Fatalf("应解析出 1 条监控配置: %d", len(cfg.Watches))
	}
	watch := cfg.Watches[0]
	if watch.UserID != "farmer-1" || watch.CheckInterval != 2*time.Hour {
		t.Fatalf("watch 解析错误: %+v", watch)
	}
	products, err := watch.Products()
	if err != nil {
		t.Fatalf("解析产品失败: %v", err)
	}
	if len(products) != 2 || products[0] != market.FertilizerUrea || products[1] != market.FertilizerDAP {
		t.Fatalf("产品解析错误: %v", products)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FERTWATCH_LOGGING_LEVEL", "debug")
	t.Setenv("FERTWATCH_MONITOR_HISTORY_DAYS", "30")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("环境变量应覆盖日志级别: %s", cfg.Logging.Level)
	}
	if cfg.Monitor.HistoryDays != 30 {
		t.Fatalf("环境变量应覆盖历史窗口: %d", cfg.Monitor.HistoryDays)
	}
}

func TestValidateFailures(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Helper()
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("加载默认配置失败: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero export points", func(c *Config) { c.Export.MaxDataPoints = 0 }},
		{"zero interval", func(c *Config) { c.Monitor.DefaultInterval = 0 }},
		{"zero min interval", func(c *Config) { c.Monitor.MinInterval = 0 }},
		{"short history", func(c *Config) { c.Monitor.HistoryDays = 3 }},
		{"negative threshold", func(c *Config) { c.Thresholds.PriceChangePct = -1 }},
		{"telegram without token", func(c *Config) {
			c.Alerting.Telegram.Enabled = true
			c.Alerting.Telegram.ChatID = "chat"
		}},
		{"webhook without endpoint", func(c *Config) { c.Alerting.Webhook.Enabled = true }},
		{"stream without brokers", func(c *Config) {
			c.Alerting.Stream.Enabled = true
			c.Alerting.Stream.Topic = "alerts"
		}},
		{"watch without user", func(c *Config) {
			c.Watches = []WatchConfig{{Region: "midwest", FertilizerTypes: []string{"urea"}, FieldIDs: []string{"f"}}}
		}},
		{"watch with unknown product", func(c *Config) {
			c.Watches = []WatchConfig{{UserID: "u", Region: "midwest", FertilizerTypes: []string{"plutonium"}, FieldIDs: []string{"f"}}}
		}},
	}

	for _, tc := range cases {
		cfg := base(t)
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: 应校验失败", tc.name)
		}
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := Config{Export: ExportConfig{MaxDataPoints: 500}}
	if got := cfg.ResolveMaxPoints(0); got != 500 {
		t.Fatalf("无覆盖时应取配置值: %d", got)
	}
	if got := cfg.ResolveMaxPoints(42); got != 42 {
		t.Fatalf("CLI 覆盖应生效: %d", got)
	}
}
