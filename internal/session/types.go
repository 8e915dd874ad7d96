package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fert-price-monitor/internal/adjust"
	"fert-price-monitor/internal/alert"
	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/trend"
)

// ErrNotFound reports an unknown session id.
var ErrNotFound = errors.New("monitoring session not found")

// ValidationError rejects a malformed start request. It is surfaced to the
// caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Status is the session lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusStopped Status = "stopped"
)

// StartRequest describes a new monitoring session.
type StartRequest struct {
	UserID          string
	FertilizerTypes []market.FertilizerType
	FieldIDs        []string
	Region          string
	CheckInterval   time.Duration

	// Thresholds overrides trigger levels per fertilizer type; products
	// without an entry use Default, falling back to the manager's default.
	Thresholds map[market.FertilizerType]adjust.Threshold
	Default    *adjust.Threshold
}

// Session is one live monitoring unit. The manager owns it exclusively;
// counters are mutated under the session's own mutex, never the registry's.
type Session struct {
	ID              string
	UserID          string
	FertilizerTypes []market.FertilizerType
	FieldIDs        []string
	Region          string
	CheckInterval   time.Duration
	CreatedAt       time.Time

	thresholds map[market.FertilizerType]adjust.Threshold

	// tickMu serialises ticks: a tick never starts before the previous
	// one for the same session has finished.
	tickMu sync.Mutex

	mu          sync.Mutex
	status      Status
	lastCheck   time.Time
	checks      int
	adjustments int
	alertsSent  int
	tickErrors  int

	cancel context.CancelFunc
}

func (s *Session) threshold(product market.FertilizerType) adjust.Threshold {
	return s.thresholds[product]
}

// StartResult carries the session id and the initial baseline per product.
type StartResult struct {
	SessionID string
	Baselines map[market.FertilizerType]trend.Analysis
	Warnings  []string
	Elapsed   time.Duration
}

// CheckResult is the outcome of one tick (or a short-circuited echo).
type CheckResult struct {
	SessionID string

	// Skipped is true when a recent check made this call a no-op.
	Skipped bool
	Reason  string

	Analyses          map[market.FertilizerType]trend.Analysis
	Triggers          []adjust.Trigger
	Modifications     []adjust.Modification
	Alerts            []alert.Alert
	IntelligentAlerts []alert.IntelligentAlert
	Warnings          []string
	Elapsed           time.Duration

	// Impact sums the economic estimates of every modification proposed
	// this tick; nil when the tick proposed none.
	Impact *adjust.ImpactAnalysis
}

// StopResult is the final report for a stopped session.
type StopResult struct {
	SessionID       string
	UserID          string
	StartedAt       time.Time
	StoppedAt       time.Time
	Duration        time.Duration
	ChecksPerformed int
	AdjustmentsMade int
	AlertsSent      int
	TickErrors      int
	SuccessRate     float64
	Elapsed         time.Duration
}

// StatusResult is a read-only counter snapshot.
type StatusResult struct {
	SessionID       string
	UserID          string
	Status          Status
	FertilizerTypes []market.FertilizerType
	Region          string
	CheckInterval   time.Duration
	CreatedAt       time.Time
	LastCheck       time.Time
	Uptime          time.Duration
	ChecksPerformed int
	AdjustmentsMade int
	AlertsSent      int
	TickErrors      int
	Elapsed         time.Duration
}

// Repository persists tick artifacts. All calls are best-effort: a nil
// repository or a failing call never aborts a tick.
type Repository interface {
	SaveSample(ctx context.Context, snapshot market.PriceSnapshot) error
	SaveModification(ctx context.Context, mod adjust.Modification) error
	SaveAlert(ctx context.Context, a alert.Alert) error
}

// TrendCache receives fresh analyses for cross-session readers.
type TrendCache interface {
	Set(ctx context.Context, product market.FertilizerType, region string, analysis trend.Analysis) error
}

// Dispatcher fans a finished alert out to delivery channels without
// blocking the tick.
type Dispatcher interface {
	Dispatch(ctx context.Context, a alert.Alert, channels []string)
}
