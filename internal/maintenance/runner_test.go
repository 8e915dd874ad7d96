package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fert-price-monitor/internal/adjust"
	"fert-price-monitor/internal/alert"
	"fert-price-monitor/internal/approval"
	"fert-price-monitor/internal/market"
)

type fakeStore struct {
	mu          sync.Mutex
	deleteCalls int
	cutoff      time.Time
	removed     int64
	deleteErr   error

	lockBusy bool
	lockErr  error
	unlocked bool
}

func (f *fakeStore) DeleteAlertsBefore(_ context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	f.cutoff = olderThan
	return f.removed, f.deleteErr
}

func (f *fakeStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return nil, false, f.lockErr
	}
	if f.lockBusy {
		return nil, false, nil
	}
	return func() {
		f.mu.Lock()
		f.unlocked = true
		f.mu.Unlock()
	}, true, nil
}

func newRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	opts.Logger = zerolog.Nop()
	r, err := NewRunner(opts)
	if err != nil {
		t.Fatalf("构造 Runner 失败: %v", err)
	}
	return r
}

func staleComposer(t *testing.T) *alert.Composer {
	t.Helper()
	composer := alert.NewComposer(alert.Options{TTL: time.Hour, Logger: zerolog.Nop()})
	trigger := adjust.Trigger{
		Kind:       adjust.TriggerPriceIncrease,
		Product:    market.FertilizerUrea,
		Region:     "midwest",
		ChangePct:  12,
		DetectedAt: time.Now().UTC().Add(-3 * time.Hour),
	}
	if _, ok := composer.Compose("session-1", trigger, nil, time.Now().UTC().Add(-3*time.Hour)); !ok {
		t.Fatal("准备过期告警失败")
	}
	return composer
}

func TestNewRunnerRejectsBadSpec(t *testing.T) {
	_, err := NewRunner(Options{AlertSweepSpec: "not a cron", Logger: zerolog.Nop()})
	if err == nil {
		t.Fatal("非法 cron 表达式应报错")
	}
}

func TestSweepAlertsExpiresAndTrims(t *testing.T) {
	store := &fakeStore{removed: 3}
	composer := staleComposer(t)
	r := newRunner(t, Options{Composer: composer, Store: store, AlertRetention: 48 * time.Hour})

	r.SweepAlerts(context.Background())

	if got := composer.Active(time.Now().UTC()); len(got) != 0 {
		t.Fatalf("过期告警应被清出活跃列表: %d", len(got))
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.deleteCalls != 1 {
		t.Fatalf("应触发一次持久层清理: %d", store.deleteCalls)
	}
	wantCutoff := time.Now().UTC().Add(-48 * time.Hour)
	if diff := store.cutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("清理截止时间偏差过大: %v", store.cutoff)
	}
	if !store.unlocked {
		t.Fatal("清理锁应被释放")
	}
}

func TestSweepAlertsSkipsWhenLockBusy(t *testing.T) {
	store := &fakeStore{lockBusy: true}
	r := newRunner(t, Options{Composer: staleComposer(t), Store: store})

	r.SweepAlerts(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.deleteCalls != 0 {
		t.Fatal("未拿到锁时不应清理持久层")
	}
}

func TestSweepAlertsToleratesLockError(t *testing.T) {
	store := &fakeStore{lockErr: errors.New("db down")}
	r := newRunner(t, Options{Composer: staleComposer(t), Store: store})

	r.SweepAlerts(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.deleteCalls != 0 {
		t.Fatal("锁出错时不应清理持久层")
	}
}

func TestSweepAlertsWithoutStore(t *testing.T) {
	r := newRunner(t, Options{Composer: staleComposer(t)})
	// 只清理内存索引, 不应崩溃。
	r.SweepAlerts(context.Background())
}

func TestSweepApprovalsExpiresOverdue(t *testing.T) {
	approvals := approval.NewManager(approval.Options{Window: time.Millisecond, Logger: zerolog.Nop()})
	mod := &adjust.Modification{
		ID:               "mod-1",
		SessionID:        "session-1",
		Product:          market.FertilizerUrea,
		Kind:             adjust.ModificationRateReduction,
		AdjustmentPct:    -15,
		RequiresApproval: true,
		ApprovalStatus:   adjust.ApprovalPending,
		CreatedAt:        time.Now().UTC().Add(-time.Hour),
	}
	if _, err := approvals.Create(mod, "agronomist", time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("创建审批流失败: %v", err)
	}

	r := newRunner(t, Options{Approvals: approvals})
	r.SweepApprovals(context.Background())

	if mod.ApprovalStatus != adjust.ApprovalExpired {
		t.Fatalf("超时审批应作废调整: %s", mod.ApprovalStatus)
	}
	if len(approvals.Pending(time.Now().UTC())) != 0 {
		t.Fatal("超时后不应有待审批项")
	}
}

func TestSweepApprovalsWithoutManager(t *testing.T) {
	r := newRunner(t, Options{})
	r.SweepApprovals(context.Background())
}

func TestRunnerStartStop(t *testing.T) {
	r := newRunner(t, Options{Composer: staleComposer(t)})
	r.Start()
	r.Stop()
}
