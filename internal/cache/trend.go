// Package cache keeps the most recent trend analysis per (product, region)
// pair so dashboards and sibling processes can read results without
// recomputing them.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/trend"
)

const (
	defaultTTL       = time.Hour
	defaultKeyPrefix = "fertwatch:trend"
)

// TrendCache reads and writes cached analyses. A miss is (zero, false, nil);
// errors are reserved for backend failures.
type TrendCache interface {
	Set(ctx context.Context, product market.FertilizerType, region string, analysis trend.Analysis) error
	Get(ctx context.Context, product market.FertilizerType, region string) (trend.Analysis, bool, error)
}

// Key builds the cache key for one (product, region) pair.
func Key(prefix string, product market.FertilizerType, region string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, product, region)
}

// Memory is the in-process fallback used when redis is not configured or
// not reachable. Entries expire lazily on read.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memoryItem
}

type memoryItem struct {
	payload []byte
	expires time.Time
}

// NewMemory builds an in-process cache with the given entry TTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Memory{ttl: ttl, items: make(map[string]memoryItem)}
}

func (m *Memory) Set(_ context.Context, product market.FertilizerType, region string, analysis trend.Analysis) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[Key(defaultKeyPrefix, product, region)] = memoryItem{
		payload: payload,
		expires: time.Now().Add(m.ttl),
	}
	return nil
}

func (m *Memory) Get(_ context.Context, product market.FertilizerType, region string) (trend.Analysis, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(defaultKeyPrefix, product, region)
	item, ok := m.items[key]
	if !ok {
		return trend.Analysis{}, false, nil
	}
	if time.Now().After(item.expires) {
		delete(m.items, key)
		return trend.Analysis{}, false, nil
	}

	var analysis trend.Analysis
	if err := json.Unmarshal(item.payload, &analysis); err != nil {
		return trend.Analysis{}, false, fmt.Errorf("decode analysis: %w", err)
	}
	return analysis, true, nil
}

var _ TrendCache = (*Memory)(nil)
