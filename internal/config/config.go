package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"fert-price-monitor/internal/adjust"
	"fert-price-monitor/internal/logging"
	"fert-price-monitor/internal/market"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Thresholds  ThresholdsConfig  `mapstructure:"thresholds"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Approval    ApprovalConfig    `mapstructure:"approval"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Export      ExportConfig      `mapstructure:"export"`
	Watches     []WatchConfig     `mapstructure:"watches"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN runs
// the service without persistence.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig covers the shared trend cache. An empty addr selects the
// in-process fallback.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// ProviderConfig selects and tunes the market data source.
type ProviderConfig struct {
	// Source is "usda" for the HTTP feed or "static" for fixture data.
	Source         string        `mapstructure:"source"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MonitorConfig governs session cadence.
type MonitorConfig struct {
	DefaultInterval   time.Duration `mapstructure:"default_interval"`
	MinInterval       time.Duration `mapstructure:"min_interval"`
	RecentCheckWindow time.Duration `mapstructure:"recent_check_window"`
	HistoryDays       int           `mapstructure:"history_days"`
	// Intelligent routes alerts through the score-gated path.
	Intelligent bool `mapstructure:"intelligent"`
}

// ThresholdsConfig is the default per-product trigger configuration.
type ThresholdsConfig struct {
	PriceChangePct   float64 `mapstructure:"price_change_pct"`
	VolatilityPct    float64 `mapstructure:"volatility_pct"`
	TrendStrengthPct float64 `mapstructure:"trend_strength_pct"`
	AutoAdjust       bool    `mapstructure:"auto_adjust"`
	RequiresApproval bool    `mapstructure:"requires_approval"`
}

// Threshold converts the section into the domain type.
func (t ThresholdsConfig) Threshold(interval time.Duration) adjust.Threshold {
	return adjust.Threshold{
		PriceChangePct:   t.PriceChangePct,
		VolatilityPct:    t.VolatilityPct,
		TrendStrengthPct: t.TrendStrengthPct,
		CheckInterval:    interval,
		AutoAdjust:       t.AutoAdjust,
		RequiresApproval: t.RequiresApproval,
	}
}

// AlertingConfig defines alert lifecycle and routing.
type AlertingConfig struct {
	Cooldown time.Duration  `mapstructure:"cooldown"`
	TTL      time.Duration  `mapstructure:"ttl"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Stream   StreamConfig   `mapstructure:"stream"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// WebhookConfig 描述 webhook 告警参数。
type WebhookConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Endpoint       string        `mapstructure:"endpoint"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StreamConfig 描述 kafka 告警发布参数。
type StreamConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ApprovalConfig governs the human review workflow.
type ApprovalConfig struct {
	Window           time.Duration `mapstructure:"window"`
	ReminderLead     time.Duration `mapstructure:"reminder_lead"`
	ReminderInterval time.Duration `mapstructure:"reminder_interval"`
}

// MaintenanceConfig schedules the background sweeps.
type MaintenanceConfig struct {
	AlertSweep     string        `mapstructure:"alert_sweep"`
	ApprovalSweep  string        `mapstructure:"approval_sweep"`
	AlertRetention time.Duration `mapstructure:"alert_retention"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// WatchConfig describes one monitoring session started by `run`.
type WatchConfig struct {
	UserID          string        `mapstructure:"user_id"`
	Region          string        `mapstructure:"region"`
	FertilizerTypes []string      `mapstructure:"fertilizer_types"`
	FieldIDs        []string      `mapstructure:"field_ids"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
}

// Products parses the configured fertilizer type names.
func (w WatchConfig) Products() ([]market.FertilizerType, error) {
	out := make([]market.FertilizerType, 0, len(w.FertilizerTypes))
	for _, raw := range w.FertilizerTypes {
		product, err := market.ParseFertilizerType(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, product)
	}
	return out, nil
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FERTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fertwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.ttl", "1h")
	v.SetDefault("redis.key_prefix", "fertwatch:trend")

	v.SetDefault("provider.source", "static")
	v.SetDefault("provider.request_timeout", "10s")
	v.SetDefault("provider.user_agent", "fertwatch/1.0")

	v.SetDefault("monitor.default_interval", "1h")
	v.SetDefault("monitor.min_interval", "1m")
	v.SetDefault("monitor.recent_check_window", "5m")
	v.SetDefault("monitor.history_days", 90)
	v.SetDefault("monitor.intelligent", false)

	v.SetDefault("thresholds.price_change_pct", 5.0)
	v.SetDefault("thresholds.volatility_pct", 15.0)
	v.SetDefault("thresholds.trend_strength_pct", 0.0)
	v.SetDefault("thresholds.auto_adjust", true)
	v.SetDefault("thresholds.requires_approval", false)

	v.SetDefault("alerting.cooldown", "1h")
	v.SetDefault("alerting.ttl", "24h")
	v.SetDefault("alerting.channels", []string{"log"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.webhook.enabled", false)
	v.SetDefault("alerting.webhook.request_timeout", "10s")
	v.SetDefault("alerting.stream.enabled", false)
	v.SetDefault("alerting.stream.topic", "fertwatch.alerts")

	v.SetDefault("approval.window", "24h")
	v.SetDefault("approval.reminder_lead", "4h")
	v.SetDefault("approval.reminder_interval", "1h")

	v.SetDefault("maintenance.alert_sweep", "0 */5 * * * *")
	v.SetDefault("maintenance.approval_sweep", "30 * * * * *")
	v.SetDefault("maintenance.alert_retention", "72h")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Monitor.DefaultInterval <= 0 {
		return fmt.Errorf("monitor.default_interval must be greater than zero")
	}
	if c.Monitor.MinInterval <= 0 {
		return fmt.Errorf("monitor.min_interval must be greater than zero")
	}
	if c.Monitor.HistoryDays < 7 {
		return fmt.Errorf("monitor.history_days must cover at least one week")
	}
	if err := c.Thresholds.Threshold(c.Monitor.DefaultInterval).Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Webhook.Enabled && c.Alerting.Webhook.Endpoint == "" {
		return fmt.Errorf("alerting.webhook.endpoint 必须配置")
	}
	if c.Alerting.Stream.Enabled {
		if len(c.Alerting.Stream.Brokers) == 0 {
			return fmt.Errorf("alerting.stream.brokers 必须配置")
		}
		if c.Alerting.Stream.Topic == "" {
			return fmt.Errorf("alerting.stream.topic 必须配置")
		}
	}
	for i, w := range c.Watches {
		if w.UserID == "" {
			return fmt.Errorf("watches[%d].user_id is required", i)
		}
		if w.Region == "" {
			return fmt.Errorf("watches[%d].region is required", i)
		}
		if len(w.FertilizerTypes) == 0 {
			return fmt.Errorf("watches[%d].fertilizer_types is required", i)
		}
		if len(w.FieldIDs) == 0 {
			return fmt.Errorf("watches[%d].field_ids is required", i)
		}
		if _, err := w.Products(); err != nil {
			return fmt.Errorf("watches[%d]: %w", i, err)
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
