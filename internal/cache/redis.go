package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/trend"
)

// Options configures cache selection.
type Options struct {
	// Addr is the redis host:port. Empty selects the in-process cache.
	Addr     string
	Password string
	DB       int

	// TTL bounds how long a cached analysis stays readable.
	TTL       time.Duration
	KeyPrefix string

	Logger zerolog.Logger
}

// Redis stores analyses in a shared redis instance so every process sees
// the same view of the market.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// New selects the redis-backed cache when an address is configured and the
// server answers a ping, and falls back to the in-process cache otherwise.
// 缓存只是加速层, redis 掉线不应阻止监控启动。
func New(opts Options) TrendCache {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	logger := opts.Logger.With().Str("component", "trend_cache").Logger()

	if opts.Addr == "" {
		logger.Debug().Msg("redis 未配置, 使用进程内缓存")
		return NewMemory(opts.TTL)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", opts.Addr).Msg("redis 不可达, 回退到进程内缓存")
		return NewMemory(opts.TTL)
	}

	logger.Info().Str("addr", opts.Addr).Msg("趋势缓存已连接 redis")
	return NewRedis(client, opts.TTL, opts.KeyPrefix)
}

// NewRedis wraps an existing redis client.
func NewRedis(client *redis.Client, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{client: client, ttl: ttl, prefix: prefix}
}

func (r *Redis) Set(ctx context.Context, product market.FertilizerType, region string, analysis trend.Analysis) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	if err := r.client.Set(ctx, Key(r.prefix, product, region), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache analysis: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, product market.FertilizerType, region string) (trend.Analysis, bool, error) {
	payload, err := r.client.Get(ctx, Key(r.prefix, product, region)).Bytes()
	if errors.Is(err, redis.Nil) {
		return trend.Analysis{}, false, nil
	}
	if err != nil {
		return trend.Analysis{}, false, fmt.Errorf("read cached analysis: %w", err)
	}

	var analysis trend.Analysis
	if err := json.Unmarshal(payload, &analysis); err != nil {
		return trend.Analysis{}, false, fmt.Errorf("decode analysis: %w", err)
	}
	return analysis, true, nil
}

// Close releases the redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ TrendCache = (*Redis)(nil)
