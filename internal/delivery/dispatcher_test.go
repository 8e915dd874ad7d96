package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fert-price-monitor/internal/alert"
)

// stubNotifier records deliveries and can simulate slow or failing channels.
type stubNotifier struct {
	name  string
	delay time.Duration
	err   error

	mu    sync.Mutex
	seen  []alert.Alert
	count int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(ctx context.Context, a alert.Alert) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.seen = append(s.seen, a)
	s.count++
	s.mu.Unlock()
	return s.err
}

func (s *stubNotifier) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func TestDispatchDoesNotBlock(t *testing.T) {
	slow := &stubNotifier{name: "webhook", delay: 300 * time.Millisecond}
	d := NewDispatcher(DispatcherOptions{Notifiers: []Notifier{slow}, Logger: testLogger()})

	began := time.Now()
	d.Dispatch(context.Background(), sampleAlert(), []string{"webhook"})
	if elapsed := time.Since(began); elapsed > 100*time.Millisecond {
		t.Fatalf("Dispatch 不应等待投递完成: %v", elapsed)
	}

	d.Close()
	if slow.calls() != 1 {
		t.Fatalf("Close 后投递应已完成: %d", slow.calls())
	}
}

func TestDispatchFansOutToEveryChannel(t *testing.T) {
	telegram := &stubNotifier{name: "telegram"}
	webhook := &stubNotifier{name: "webhook"}
	d := NewDispatcher(DispatcherOptions{Notifiers: []Notifier{telegram, webhook}, Logger: testLogger()})

	d.Dispatch(context.Background(), sampleAlert(), []string{"telegram", "webhook"})
	d.Close()

	if telegram.calls() != 1 || webhook.calls() != 1 {
		t.Fatalf("每个渠道都应收到告警: telegram=%d webhook=%d", telegram.calls(), webhook.calls())
	}
}

func TestAliasChannelsFallBackToLog(t *testing.T) {
	fallback := &stubNotifier{name: "log"}
	d := NewDispatcher(DispatcherOptions{Fallback: fallback, Logger: testLogger()})

	d.Dispatch(context.Background(), sampleAlert(), []string{"email", "sms", "push", "pager"})
	d.Close()

	if fallback.calls() != 4 {
		t.Fatalf("邮件/短信/推送及未知渠道都应落到兜底: %d", fallback.calls())
	}
}

func TestFailedDeliveryIsContained(t *testing.T) {
	failing := &stubNotifier{name: "webhook", err: errors.New("endpoint down")}
	ok := &stubNotifier{name: "telegram"}
	d := NewDispatcher(DispatcherOptions{Notifiers: []Notifier{failing, ok}, Logger: testLogger()})

	d.Dispatch(context.Background(), sampleAlert(), []string{"webhook", "telegram"})
	d.Close()

	if ok.calls() != 1 {
		t.Fatal("一个渠道失败不应影响其他渠道")
	}
	if failing.calls() != 1 {
		t.Fatal("失败渠道也应被尝试")
	}
}

func TestDispatchSurvivesCanceledTickContext(t *testing.T) {
	slow := &stubNotifier{name: "webhook", delay: 50 * time.Millisecond}
	d := NewDispatcher(DispatcherOptions{Notifiers: []Notifier{slow}, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, sampleAlert(), []string{"webhook"})
	cancel()

	d.Close()
	if slow.calls() != 1 {
		t.Fatalf("tick 取消不应中断已发起的投递: %d", slow.calls())
	}
}
