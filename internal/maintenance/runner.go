// Package maintenance hosts the background sweeps that keep alert and
// approval state from accumulating: expiry of stale alerts, retention of
// the persisted audit trail, and approval deadline handling.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"fert-price-monitor/internal/alert"
	"fert-price-monitor/internal/approval"
)

const (
	defaultAlertSweepSpec    = "0 */5 * * * *"
	defaultApprovalSweepSpec = "30 * * * * *"
	defaultAlertRetention    = 72 * time.Hour

	// retentionLockKey serialises the storage retention sweep across
	// replicas via a postgres advisory lock.
	retentionLockKey int64 = 7224001
)

// RetentionStore is the slice of storage the retention sweep needs.
type RetentionStore interface {
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error)
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Options configures the sweep runner.
type Options struct {
	Composer  *alert.Composer
	Approvals *approval.Manager
	// Store is optional; without it the retention sweep only trims the
	// in-memory index.
	Store RetentionStore

	// AlertRetention bounds how long persisted alerts outlive their
	// in-memory TTL.
	AlertRetention time.Duration
	// AlertSweepSpec and ApprovalSweepSpec are six-field cron expressions.
	AlertSweepSpec    string
	ApprovalSweepSpec string

	BaseCtx context.Context
	Logger  zerolog.Logger
}

// Runner schedules the sweeps on a seconds-resolution cron.
type Runner struct {
	cron      *cron.Cron
	baseCtx   context.Context
	composer  *alert.Composer
	approvals *approval.Manager
	store     RetentionStore
	retention time.Duration
	logger    zerolog.Logger
}

// NewRunner 构造维护任务调度器并注册清理任务。
func NewRunner(opts Options) (*Runner, error) {
	if opts.AlertRetention <= 0 {
		opts.AlertRetention = defaultAlertRetention
	}
	if opts.AlertSweepSpec == "" {
		opts.AlertSweepSpec = defaultAlertSweepSpec
	}
	if opts.ApprovalSweepSpec == "" {
		opts.ApprovalSweepSpec = defaultApprovalSweepSpec
	}
	if opts.BaseCtx == nil {
		opts.BaseCtx = context.Background()
	}

	r := &Runner{
		cron:      cron.New(cron.WithSeconds()),
		baseCtx:   opts.BaseCtx,
		composer:  opts.Composer,
		approvals: opts.Approvals,
		store:     opts.Store,
		retention: opts.AlertRetention,
		logger:    opts.Logger.With().Str("component", "maintenance").Logger(),
	}

	if _, err := r.cron.AddFunc(opts.AlertSweepSpec, func() { r.SweepAlerts(r.baseCtx) }); err != nil {
		return nil, fmt.Errorf("register alert sweep: %w", err)
	}
	if _, err := r.cron.AddFunc(opts.ApprovalSweepSpec, func() { r.SweepApprovals(r.baseCtx) }); err != nil {
		return nil, fmt.Errorf("register approval sweep: %w", err)
	}

	return r, nil
}

// Start begins running the sweeps on their schedules.
func (r *Runner) Start() {
	r.logger.Info().Msg("维护任务已启动")
	r.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info().Msg("维护任务已停止")
}

// SweepAlerts expires stale in-memory alerts and trims the persisted audit
// trail past its retention window.
func (r *Runner) SweepAlerts(ctx context.Context) {
	now := time.Now().UTC()

	if r.composer != nil {
		if expired := r.composer.ExpireStale(now); expired > 0 {
			r.logger.Info().Int("expired", expired).Msg("过期告警已清理")
		}
	}

	if r.store == nil {
		return
	}

	unlock, acquired, err := r.store.TryAdvisoryLock(ctx, retentionLockKey)
	if err != nil {
		r.logger.Warn().Err(err).Msg("获取清理锁失败")
		return
	}
	if !acquired {
		r.logger.Debug().Msg("另一实例持有清理锁, 跳过本轮")
		return
	}
	defer unlock()

	removed, err := r.store.DeleteAlertsBefore(ctx, now.Add(-r.retention))
	if err != nil {
		r.logger.Warn().Err(err).Msg("清理历史告警失败")
		return
	}
	if removed > 0 {
		r.logger.Info().Int64("removed", removed).Msg("历史告警已清理")
	}
}

// SweepApprovals expires overdue workflows and surfaces deadline reminders.
// Reminders land on the operator log rather than the alert fan-out: the
// alert path is typed to market triggers, and a pending approval is not a
// market event.
func (r *Runner) SweepApprovals(_ context.Context) {
	if r.approvals == nil {
		return
	}
	now := time.Now().UTC()

	if expired := r.approvals.ExpireOverdue(now); expired > 0 {
		r.logger.Warn().Int("expired", expired).Msg("审批超时, 关联调整已作废")
	}

	for _, w := range r.approvals.DueForReminder(now) {
		r.logger.Warn().
			Str("workflow_id", w.ID).
			Str("modification_id", w.Modification.ID).
			Str("product", string(w.Modification.Product)).
			Time("deadline", w.Deadline).
			Int("reminders_sent", w.RemindersSent).
			Msg("审批即将到期, 请尽快处理")
	}
}
