package alert

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fert-price-monitor/internal/adjust"
	"fert-price-monitor/internal/scoring"
	"fert-price-monitor/internal/trend"
)

var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrAlertExpired  = errors.New("alert expired")
)

const (
	defaultCooldown = time.Hour
	defaultAlertTTL = 24 * time.Hour

	criticalActionWindow = 4 * time.Hour
	highActionWindow     = 12 * time.Hour
	defaultActionWindow  = 24 * time.Hour
)

type dedupKey struct {
	session string
	trigger adjust.TriggerKind
}

// Options configures the alert composer.
type Options struct {
	// Cooldown suppresses a second alert for the same (session, trigger)
	// key inside this window.
	Cooldown time.Duration
	// TTL is how long an unacknowledged alert stays active.
	TTL time.Duration
	// Scorers gate the intelligent variant; defaults to the full registry.
	Scorers map[scoring.Category]scoring.Scorer
	Logger  zerolog.Logger
}

// Composer builds alerts from triggers and owns alert identity, the dedup
// index and the active-alert registry.
type Composer struct {
	mu     sync.Mutex
	recent map[dedupKey]time.Time
	alerts map[string]*Alert

	cooldown time.Duration
	ttl      time.Duration
	scorers  map[scoring.Category]scoring.Scorer
	logger   zerolog.Logger
}

// NewComposer constructs a Composer with defaults for unset options.
func NewComposer(opts Options) *Composer {
	if opts.Cooldown <= 0 {
		opts.Cooldown = defaultCooldown
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultAlertTTL
	}
	if opts.Scorers == nil {
		opts.Scorers = scoring.Registry()
	}
	return &Composer{
		recent:   make(map[dedupKey]time.Time),
		alerts:   make(map[string]*Alert),
		cooldown: opts.Cooldown,
		ttl:      opts.TTL,
		scorers:  opts.Scorers,
		logger:   opts.Logger.With().Str("component", "alert_composer").Logger(),
	}
}

// Compose builds an alert for a trigger, or reports suppressed=false when
// the (session, trigger) key is still in cooldown. The modification is
// optional context.
func (c *Composer) Compose(sessionID string, trigger adjust.Trigger, mod *adjust.Modification, now time.Time) (Alert, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.admitLocked(sessionID, trigger.Kind, now) {
		return Alert{}, false
	}

	a := c.buildLocked(sessionID, trigger, mod, now)
	c.alerts[a.ID] = a
	c.logger.Info().
		Str("alert_id", a.ID).
		Str("session_id", sessionID).
		Str("trigger", string(trigger.Kind)).
		Str("priority", string(a.Priority)).
		Msg("告警已生成")
	return *a, true
}

// ComposeIntelligent additionally runs the category scorer for the trigger
// and only emits when the score clears the category threshold. The score is
// carried as the alert's confidence.
func (c *Composer) ComposeIntelligent(sessionID string, trigger adjust.Trigger, mod *adjust.Modification, analysis trend.Analysis, now time.Time) (IntelligentAlert, bool) {
	category := categoryFor(trigger.Kind)
	scorer, ok := c.scorers[category]
	if !ok {
		return IntelligentAlert{}, false
	}

	score, actions := scorer.Score(scoring.Extract(analysis))
	info := scorer.Info()
	if score < info.Threshold {
		c.logger.Debug().
			Str("session_id", sessionID).
			Str("trigger", string(trigger.Kind)).
			Str("category", string(category)).
			Float64("score", score).
			Float64("threshold", info.Threshold).
			Msg("分数未过线, 不发智能告警")
		return IntelligentAlert{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.admitLocked(sessionID, trigger.Kind, now) {
		return IntelligentAlert{}, false
	}

	a := c.buildLocked(sessionID, trigger, mod, now)
	c.alerts[a.ID] = a

	out := IntelligentAlert{
		Alert:              *a,
		Category:           category,
		Confidence:         score,
		RecommendedActions: actions,
		Model:              fmt.Sprintf("%s/%s", info.Name, info.Version),
	}
	c.logger.Info().
		Str("alert_id", a.ID).
		Str("session_id", sessionID).
		Str("category", string(category)).
		Float64("confidence", score).
		Msg("智能告警已生成")
	return out, true
}

// admitLocked applies the cooldown dedup rule and records the admission.
func (c *Composer) admitLocked(sessionID string, kind adjust.TriggerKind, now time.Time) bool {
	key := dedupKey{session: sessionID, trigger: kind}
	if last, ok := c.recent[key]; ok && now.Sub(last) < c.cooldown {
		c.logger.Debug().
			Str("session_id", sessionID).
			Str("trigger", string(kind)).
			Time("last", last).
			Msg("冷却期内重复触发, 告警被抑制")
		return false
	}
	c.recent[key] = now
	return true
}

func (c *Composer) buildLocked(sessionID string, trigger adjust.Trigger, mod *adjust.Modification, now time.Time) *Alert {
	priority := priorityFor(trigger.Kind)

	a := &Alert{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Product:   trigger.Product,
		Region:    trigger.Region,
		Trigger:   trigger.Kind,
		Priority:  priority,
		Details: Details{
			ChangePct:    trigger.ChangePct,
			Volatility:   trigger.Volatility,
			Direction:    trigger.Direction,
			CurrentPrice: trigger.CurrentPrice,
		},
		Status:    StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	if mod != nil {
		a.Details.ModificationID = mod.ID
		a.Details.AdjustmentPct = mod.AdjustmentPct
		if mod.RequiresApproval {
			a.RequiresAction = true
		}
	}
	if priority == PriorityHigh || priority == PriorityCritical {
		a.RequiresAction = true
	}
	if a.RequiresAction {
		deadline := now.Add(actionWindow(priority))
		a.ActionDeadline = &deadline
	}

	a.Message = renderMessage(trigger, mod, priority)
	return a
}

func actionWindow(priority Priority) time.Duration {
	switch priority {
	case PriorityCritical:
		return criticalActionWindow
	case PriorityHigh:
		return highActionWindow
	default:
		return defaultActionWindow
	}
}

// Acknowledge marks an active alert as seen.
func (c *Composer) Acknowledge(alertID string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.alerts[alertID]
	if !ok {
		return ErrAlertNotFound
	}
	c.expireLocked(a, now)
	if a.Status == StatusExpired {
		return ErrAlertExpired
	}
	if a.Status == StatusAcknowledged {
		return nil
	}
	a.Status = StatusAcknowledged
	acked := now
	a.AcknowledgedAt = &acked
	return nil
}

// Get returns one alert by id, applying lazy expiry.
func (c *Composer) Get(alertID string, now time.Time) (Alert, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.alerts[alertID]
	if !ok {
		return Alert{}, ErrAlertNotFound
	}
	c.expireLocked(a, now)
	return *a, nil
}

// Active lists alerts still active at now, oldest first.
func (c *Composer) Active(now time.Time) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Alert
	for _, a := range c.alerts {
		c.expireLocked(a, now)
		if a.Status == StatusActive {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ExpireStale flips active alerts past their expiry and prunes dedup
// entries older than the cooldown. Returns how many alerts expired.
func (c *Composer) ExpireStale(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := 0
	for _, a := range c.alerts {
		if a.Status == StatusActive && c.expireLocked(a, now) {
			expired++
		}
	}
	for key, last := range c.recent {
		if now.Sub(last) >= c.cooldown {
			delete(c.recent, key)
		}
	}
	return expired
}

func (c *Composer) expireLocked(a *Alert, now time.Time) bool {
	if a.Status != StatusActive || now.Before(a.ExpiresAt) {
		return false
	}
	a.Status = StatusExpired
	return true
}

// renderMessage formats the operator-facing text for one alert.
func renderMessage(trigger adjust.Trigger, mod *adjust.Modification, priority Priority) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Fertilizer %s Alert]\n", strings.ToUpper(string(priority))))
	builder.WriteString(fmt.Sprintf("Product: %s", trigger.Product))
	if trigger.Region != "" {
		builder.WriteString(fmt.Sprintf(" (%s)", trigger.Region))
	}
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Trigger: %s\n", trigger.Kind))
	builder.WriteString(fmt.Sprintf("Detected: %s UTC\n", trigger.DetectedAt.UTC().Format(time.RFC3339)))

	switch trigger.Kind {
	case adjust.TriggerPriceIncrease, adjust.TriggerPriceDecrease, adjust.TriggerMarketShock:
		builder.WriteString(fmt.Sprintf("Change: %+.2f%% over 7d\n", trigger.ChangePct))
	case adjust.TriggerVolatilitySpike:
		builder.WriteString(fmt.Sprintf("Volatility: %.2f%% (7d)\n", trigger.Volatility))
	}
	if trigger.Direction != "" {
		builder.WriteString(fmt.Sprintf("Direction: %s\n", trigger.Direction))
	}

	if mod != nil {
		builder.WriteString(fmt.Sprintf("Proposed: %s %+.1f%%\n", mod.Kind, mod.AdjustmentPct))
		if mod.RequiresApproval {
			builder.WriteString("Approval required before the change is applied.\n")
		}
	}
	return builder.String()
}
