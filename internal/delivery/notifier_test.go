package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fert-price-monitor/internal/adjust"
	"fert-price-monitor/internal/alert"
	"fert-price-monitor/internal/market"
)

func sampleAlert() alert.Alert {
	deadline := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	return alert.Alert{
		ID:        "alert-1",
		SessionID: "session-1",
		Product:   market.FertilizerUrea,
		Region:    "midwest",
		Trigger:   adjust.TriggerPriceIncrease,
		Priority:  alert.PriorityMedium,
		Message:   "[Fertilizer MEDIUM Alert]\nProduct: urea (midwest)\n",
		Details: alert.Details{
			ChangePct:  30,
			Volatility: 12,
			Direction:  "up",
		},
		RequiresAction: false,
		ActionDeadline: &deadline,
		Status:         alert.StatusActive,
		CreatedAt:      time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		ExpiresAt:      time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "urea") {
		t.Fatalf("text 应携带告警正文: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleAlert()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var received wirePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("应使用 POST, 实际 %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("Content-Type 不正确: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("webhook Notify 应成功: %v", err)
	}

	if received.ID != "alert-1" || received.Product != "urea" {
		t.Fatalf("载荷字段不正确: %+v", received)
	}
	if received.ChangePct != 30 || received.Trigger != "price_increase" {
		t.Fatalf("载荷明细不正确: %+v", received)
	}
	if received.ActionDeadline == nil {
		t.Fatal("载荷应携带行动截止时间")
	}
}

func TestWebhookNotifierRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleAlert()); err == nil {
		t.Fatal("非 2xx 响应应报错")
	}
}

func TestLogNotifierNeverFails(t *testing.T) {
	notifier := NewLogNotifier(testLogger())
	if err := notifier.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("log 渠道不应失败: %v", err)
	}
	if notifier.Name() != "log" {
		t.Fatalf("渠道名错误: %s", notifier.Name())
	}
}
