package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fert-price-monitor/internal/adjust"
	"fert-price-monitor/internal/alert"
	"fert-price-monitor/internal/approval"
	"fert-price-monitor/internal/market"
	"fert-price-monitor/internal/trend"
)

const (
	defaultHistoryDays  = 90
	defaultRecentWindow = 5 * time.Minute
	defaultInterval     = time.Hour
	defaultMinInterval  = time.Minute
)

// Options wires the component chain into a Manager. Provider is required;
// repository, cache, approvals and dispatcher are optional and nil-safe.
type Options struct {
	Provider  market.Provider
	Analyzer  *trend.Analyzer
	Evaluator *adjust.Evaluator
	Estimator *adjust.Estimator
	Planner   *adjust.Planner
	Composer  *alert.Composer
	Approvals *approval.Manager

	Repository Repository
	Cache      TrendCache
	Dispatcher Dispatcher
	Channels   []string

	// HistoryDays is the series length fetched per product per tick.
	HistoryDays int
	// RecentCheckWindow is the no-op window for unforced checks.
	RecentCheckWindow time.Duration
	// DefaultInterval applies when a request omits the check interval;
	// MinInterval is the floor any interval is raised to.
	DefaultInterval time.Duration
	MinInterval     time.Duration
	// DefaultThreshold applies to products without an explicit threshold.
	DefaultThreshold adjust.Threshold
	// Intelligent routes alerts through the score-gated composer path.
	Intelligent bool

	Logger zerolog.Logger
}

// Manager owns every monitoring session and its background worker. The
// registry lock guards only map access; ticks run off it.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	provider  market.Provider
	analyzer  *trend.Analyzer
	evaluator *adjust.Evaluator
	estimator *adjust.Estimator
	planner   *adjust.Planner
	composer  *alert.Composer
	approvals *approval.Manager

	repo       Repository
	cache      TrendCache
	dispatcher Dispatcher
	channels   []string

	historyDays  int
	recentWindow time.Duration
	defInterval  time.Duration
	minInterval  time.Duration
	defThreshold adjust.Threshold
	intelligent  bool

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewManager validates the wiring and returns a ready Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("price provider is required")
	}
	if opts.Analyzer == nil {
		opts.Analyzer = trend.NewAnalyzer()
	}
	if opts.Evaluator == nil {
		opts.Evaluator = adjust.NewEvaluator()
	}
	if opts.Estimator == nil {
		opts.Estimator = adjust.NewEstimator(adjust.EstimatorConfig{})
	}
	if opts.Planner == nil {
		opts.Planner = adjust.NewPlanner(opts.Estimator)
	}
	if opts.Composer == nil {
		opts.Composer = alert.NewComposer(alert.Options{Logger: opts.Logger})
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = defaultHistoryDays
	}
	if opts.RecentCheckWindow <= 0 {
		opts.RecentCheckWindow = defaultRecentWindow
	}
	if opts.DefaultInterval <= 0 {
		opts.DefaultInterval = defaultInterval
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = defaultMinInterval
	}
	if opts.DefaultThreshold.PriceChangePct <= 0 {
		opts.DefaultThreshold = adjust.Threshold{
			PriceChangePct: 5,
			VolatilityPct:  15,
			CheckInterval:  opts.DefaultInterval,
			AutoAdjust:     true,
		}
	}
	if len(opts.Channels) == 0 {
		opts.Channels = []string{"log"}
	}

	return &Manager{
		sessions:     make(map[string]*Session),
		provider:     opts.Provider,
		analyzer:     opts.Analyzer,
		evaluator:    opts.Evaluator,
		estimator:    opts.Estimator,
		planner:      opts.Planner,
		composer:     opts.Composer,
		approvals:    opts.Approvals,
		repo:         opts.Repository,
		cache:        opts.Cache,
		dispatcher:   opts.Dispatcher,
		channels:     opts.Channels,
		historyDays:  opts.HistoryDays,
		recentWindow: opts.RecentCheckWindow,
		defInterval:  opts.DefaultInterval,
		minInterval:  opts.MinInterval,
		defThreshold: opts.DefaultThreshold,
		intelligent:  opts.Intelligent,
		logger:       opts.Logger.With().Str("component", "session_manager").Logger(),
	}, nil
}

// Start validates the request, computes the per-product baselines, spawns
// the background worker and registers the session.
func (m *Manager) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	began := time.Now()

	if len(req.FertilizerTypes) == 0 {
		return StartResult{}, &ValidationError{Field: "fertilizer_types", Reason: "at least one fertilizer type is required"}
	}
	if len(req.FieldIDs) == 0 {
		return StartResult{}, &ValidationError{Field: "field_ids", Reason: "at least one field is required"}
	}

	interval := req.CheckInterval
	if interval <= 0 {
		interval = m.defInterval
	}
	if interval < m.minInterval {
		m.logger.Warn().
			Dur("requested", interval).
			Dur("floor", m.minInterval).
			Msg("check interval below floor, raising")
		interval = m.minInterval
	}

	thresholds := make(map[market.FertilizerType]adjust.Threshold, len(req.FertilizerTypes))
	for _, product := range req.FertilizerTypes {
		th, ok := req.Thresholds[product]
		if !ok {
			if req.Default != nil {
				th = *req.Default
			} else {
				th = m.defThreshold
			}
		}
		if th.CheckInterval <= 0 {
			th.CheckInterval = interval
		}
		if err := th.Validate(); err != nil {
			return StartResult{}, &ValidationError{Field: fmt.Sprintf("thresholds[%s]", product), Reason: err.Error()}
		}
		thresholds[product] = th
	}

	// The worker cadence follows the tightest interval configured across
	// the session and its thresholds, still bounded below by the floor.
	for _, th := range thresholds {
		if th.CheckInterval > 0 && th.CheckInterval < interval {
			interval = th.CheckInterval
		}
	}
	if interval < m.minInterval {
		interval = m.minInterval
	}

	now := time.Now().UTC()
	s := &Session{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		FertilizerTypes: append([]market.FertilizerType(nil), req.FertilizerTypes...),
		FieldIDs:        append([]string(nil), req.FieldIDs...),
		Region:          req.Region,
		CheckInterval:   interval,
		CreatedAt:       now,
		thresholds:      thresholds,
		status:          StatusActive,
	}

	result := StartResult{
		SessionID: s.ID,
		Baselines: make(map[market.FertilizerType]trend.Analysis, len(req.FertilizerTypes)),
	}

	// Baseline analysis runs before the session is registered so a failed
	// provider never leaves a half-started worker behind.
	for _, product := range s.FertilizerTypes {
		analysis, warn := m.analyzeProduct(ctx, product, s.Region, now)
		if warn != "" {
			result.Warnings = append(result.Warnings, warn)
			continue
		}
		result.Baselines[product] = analysis
		m.cacheAnalysis(ctx, product, s.Region, analysis)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runWorker(workerCtx, s)

	m.logger.Info().
		Str("session_id", s.ID).
		Str("user_id", s.UserID).
		Int("products", len(s.FertilizerTypes)).
		Dur("interval", s.CheckInterval).
		Msg("monitoring session started")

	result.Elapsed = time.Since(began)
	return result, nil
}

// Check runs one tick for the session, unless an unforced call lands
// within the recent-check window, in which case it returns an echo.
func (m *Manager) Check(ctx context.Context, sessionID string, force bool) (CheckResult, error) {
	began := time.Now()

	s, err := m.lookup(sessionID)
	if err != nil {
		return CheckResult{}, err
	}

	// Serialise with the worker: ticks for one session never overlap.
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := time.Now().UTC()

	s.mu.Lock()
	if !force && !s.lastCheck.IsZero() && now.Sub(s.lastCheck) < m.recentWindow {
		last := s.lastCheck
		s.mu.Unlock()
		return CheckResult{
			SessionID: sessionID,
			Skipped:   true,
			Reason:    fmt.Sprintf("recent check already performed at %s", last.Format(time.RFC3339)),
			Elapsed:   time.Since(began),
		}, nil
	}
	s.mu.Unlock()

	result := m.tick(ctx, s, now)

	s.mu.Lock()
	s.lastCheck = now
	s.checks++
	s.adjustments += len(result.Modifications)
	s.alertsSent += len(result.Alerts) + len(result.IntelligentAlerts)
	if len(result.Warnings) > 0 {
		s.tickErrors++
	}
	s.mu.Unlock()

	result.Elapsed = time.Since(began)
	return result, nil
}

// tick runs the component chain once per product. Per-product failures are
// isolated: one bad product never prevents the others from being processed.
func (m *Manager) tick(ctx context.Context, s *Session, now time.Time) CheckResult {
	result := CheckResult{
		SessionID: s.ID,
		Analyses:  make(map[market.FertilizerType]trend.Analysis, len(s.FertilizerTypes)),
	}

	for _, product := range s.FertilizerTypes {
		analysis, warn := m.analyzeProduct(ctx, product, s.Region, now)
		if warn != "" {
			result.Warnings = append(result.Warnings, warn)
			continue
		}
		result.Analyses[product] = analysis
		m.cacheAnalysis(ctx, product, s.Region, analysis)

		snapshot := m.fetchSnapshot(ctx, product, s.Region)

		th := s.threshold(product)
		triggers := m.evaluator.Evaluate(analysis, snapshot, th, product, s.Region, now)
		result.Triggers = append(result.Triggers, triggers...)

		for _, trigger := range triggers {
			mod, planned := m.planner.Plan(s.ID, trigger, analysis, th, now)
			var modPtr *adjust.Modification
			if planned {
				modPtr = &mod
				if mod.RequiresApproval && m.approvals != nil {
					if _, err := m.approvals.Create(modPtr, "", now); err != nil {
						m.logger.Warn().Err(err).
							Str("session_id", s.ID).
							Str("modification_id", mod.ID).
							Msg("approval workflow not opened")
					}
				}
				if m.repo != nil {
					if err := m.repo.SaveModification(ctx, *modPtr); err != nil {
						m.logger.Warn().Err(err).Str("modification_id", mod.ID).Msg("modification not persisted")
					}
				}
				result.Modifications = append(result.Modifications, *modPtr)
			}

			m.composeAndDispatch(ctx, s, trigger, modPtr, analysis, now, &result)
		}
	}

	if impacts := collectImpacts(result.Modifications); len(impacts) > 0 {
		total := adjust.Combine(impacts)
		result.Impact = &total
	}

	m.logger.Debug().
		Str("session_id", s.ID).
		Int("triggers", len(result.Triggers)).
		Int("modifications", len(result.Modifications)).
		Int("alerts", len(result.Alerts)+len(result.IntelligentAlerts)).
		Int("warnings", len(result.Warnings)).
		Msg("tick finished")
	return result
}

func (m *Manager) composeAndDispatch(ctx context.Context, s *Session, trigger adjust.Trigger, mod *adjust.Modification, analysis trend.Analysis, now time.Time, result *CheckResult) {
	if m.intelligent {
		ia, ok := m.composer.ComposeIntelligent(s.ID, trigger, mod, analysis, now)
		if !ok {
			return
		}
		result.IntelligentAlerts = append(result.IntelligentAlerts, ia)
		m.persistAndDeliver(ctx, ia.Alert)
		return
	}

	a, ok := m.composer.Compose(s.ID, trigger, mod, now)
	if !ok {
		return
	}
	result.Alerts = append(result.Alerts, a)
	m.persistAndDeliver(ctx, a)
}

func (m *Manager) persistAndDeliver(ctx context.Context, a alert.Alert) {
	if m.repo != nil {
		if err := m.repo.SaveAlert(ctx, a); err != nil {
			m.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("alert not persisted")
		}
	}
	if m.dispatcher != nil {
		m.dispatcher.Dispatch(ctx, a, m.channels)
	}
}

// analyzeProduct fetches history and runs the analyzer. A provider failure
// or a short series is reported as a warning, never an error: the product
// is simply skipped this tick.
func (m *Manager) analyzeProduct(ctx context.Context, product market.FertilizerType, region string, now time.Time) (trend.Analysis, string) {
	points, err := m.provider.FetchHistory(ctx, product, region, m.historyDays)
	if err != nil {
		m.logger.Warn().Err(err).
			Str("product", string(product)).
			Str("region", region).
			Msg("price history unavailable, skipping product this tick")
		return trend.Analysis{}, fmt.Sprintf("%s: history unavailable: %v", product, err)
	}

	analysis, ok := m.analyzer.Analyze(points, now)
	if !ok {
		return trend.Analysis{}, fmt.Sprintf("%s: insufficient data points (%d)", product, len(points))
	}
	return analysis, ""
}

func (m *Manager) fetchSnapshot(ctx context.Context, product market.FertilizerType, region string) *market.PriceSnapshot {
	snapshot, err := m.provider.FetchCurrent(ctx, product, region)
	if err != nil {
		// Absolute bound checks are skipped without a snapshot.
		m.logger.Debug().Err(err).Str("product", string(product)).Msg("current price unavailable")
		return nil
	}
	if m.repo != nil {
		if err := m.repo.SaveSample(ctx, snapshot); err != nil {
			m.logger.Warn().Err(err).Str("product", string(product)).Msg("price sample not persisted")
		}
	}
	return &snapshot
}

func (m *Manager) cacheAnalysis(ctx context.Context, product market.FertilizerType, region string, analysis trend.Analysis) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Set(ctx, product, region, analysis); err != nil {
		m.logger.Debug().Err(err).Str("product", string(product)).Msg("trend cache write failed")
	}
}

// Stop cancels the worker, waits for an in-flight tick to finish recording
// its effects, snapshots the counters and removes the session.
func (m *Manager) Stop(ctx context.Context, sessionID string) (StopResult, error) {
	began := time.Now()

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return StopResult{}, fmt.Errorf("stop session %s: %w", sessionID, ErrNotFound)
	}

	s.cancel()

	// An in-flight tick holds tickMu until its side effects are recorded;
	// the final report must not lose them.
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := time.Now().UTC()
	s.mu.Lock()
	s.status = StatusStopped
	report := StopResult{
		SessionID:       s.ID,
		UserID:          s.UserID,
		StartedAt:       s.CreatedAt,
		StoppedAt:       now,
		Duration:        now.Sub(s.CreatedAt),
		ChecksPerformed: s.checks,
		AdjustmentsMade: s.adjustments,
		AlertsSent:      s.alertsSent,
		TickErrors:      s.tickErrors,
	}
	s.mu.Unlock()

	report.SuccessRate = successRate(report.ChecksPerformed, report.TickErrors)

	m.logger.Info().
		Str("session_id", s.ID).
		Int("checks", report.ChecksPerformed).
		Int("adjustments", report.AdjustmentsMade).
		Int("alerts", report.AlertsSent).
		Float64("success_rate", report.SuccessRate).
		Msg("monitoring session stopped")

	report.Elapsed = time.Since(began)
	return report, nil
}

// Status returns a read-only snapshot without side effects.
func (m *Manager) Status(ctx context.Context, sessionID string) (StatusResult, error) {
	began := time.Now()

	s, err := m.lookup(sessionID)
	if err != nil {
		return StatusResult{}, err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	snapshot := StatusResult{
		SessionID:       s.ID,
		UserID:          s.UserID,
		Status:          s.status,
		FertilizerTypes: append([]market.FertilizerType(nil), s.FertilizerTypes...),
		Region:          s.Region,
		CheckInterval:   s.CheckInterval,
		CreatedAt:       s.CreatedAt,
		LastCheck:       s.lastCheck,
		Uptime:          now.Sub(s.CreatedAt),
		ChecksPerformed: s.checks,
		AdjustmentsMade: s.adjustments,
		AlertsSent:      s.alertsSent,
		TickErrors:      s.tickErrors,
	}
	s.mu.Unlock()

	snapshot.Elapsed = time.Since(began)
	return snapshot, nil
}

// Sessions lists the ids of all registered sessions.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown cancels every worker and waits for the loops to drain, bounded
// by the context.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, s := range m.sessions {
		s.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info().Msg("all session workers drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session shutdown: %w", ctx.Err())
	}
}

func (m *Manager) lookup(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return s, nil
}

func collectImpacts(mods []adjust.Modification) []adjust.ImpactAnalysis {
	var impacts []adjust.ImpactAnalysis
	for _, mod := range mods {
		if mod.Impact != nil {
			impacts = append(impacts, *mod.Impact)
		}
	}
	return impacts
}

func successRate(checks, tickErrors int) float64 {
	if checks == 0 {
		return 1.0
	}
	rate := 1.0 - float64(tickErrors)/float64(checks)
	if rate < 0 {
		return 0
	}
	return rate
}
