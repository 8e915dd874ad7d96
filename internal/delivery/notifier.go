// Package delivery pushes finished alerts out to their channels. Channel
// failures are delivery problems, never monitoring problems: the tick that
// produced the alert has already moved on.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fert-price-monitor/internal/alert"
)

// Notifier 定义单渠道告警推送接口。
type Notifier interface {
	Name() string
	Notify(ctx context.Context, a alert.Alert) error
}

// wirePayload is the JSON shape shared by the webhook and stream channels.
type wirePayload struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"session_id"`
	Product        string     `json:"product"`
	Region         string     `json:"region"`
	Trigger        string     `json:"trigger"`
	Priority       string     `json:"priority"`
	Message        string     `json:"message"`
	ChangePct      float64    `json:"change_pct"`
	Volatility     float64    `json:"volatility"`
	Direction      string     `json:"direction"`
	RequiresAction bool       `json:"requires_action"`
	ActionDeadline *time.Time `json:"action_deadline,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

func toWire(a alert.Alert) wirePayload {
	return wirePayload{
		ID:             a.ID,
		SessionID:      a.SessionID,
		Product:        string(a.Product),
		Region:         a.Region,
		Trigger:        string(a.Trigger),
		Priority:       string(a.Priority),
		Message:        a.Message,
		ChangePct:      a.Details.ChangePct,
		Volatility:     a.Details.Volatility,
		Direction:      string(a.Details.Direction),
		RequiresAction: a.RequiresAction,
		ActionDeadline: a.ActionDeadline,
		CreatedAt:      a.CreatedAt,
		ExpiresAt:      a.ExpiresAt,
	}
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify 调用 sendMessage API 推送告警文本。
func (n *TelegramNotifier) Notify(ctx context.Context, a alert.Alert) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    a.Message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("alert_id", a.ID).
		Str("priority", string(a.Priority)).
		Str("product", string(a.Product)).
		Msg("告警已发送 (Telegram)")
	return nil
}

// WebhookNotifier 以 JSON POST 的方式投递告警, 供农场管理系统接入。
type WebhookNotifier struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// NewWebhookNotifier 构造 webhook 告警器。
func NewWebhookNotifier(endpoint string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_webhook").Logger(),
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Notify(ctx context.Context, a alert.Alert) error {
	body, err := json.Marshal(toWire(a))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 响应码异常: %d", resp.StatusCode)
	}

	n.logger.Info().Str("alert_id", a.ID).
		Str("priority", string(a.Priority)).
		Msg("告警已发送 (webhook)")
	return nil
}

// LogNotifier 把告警写入日志, 作为最后的兜底渠道。
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier 构造日志告警器。
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, a alert.Alert) error {
	n.logger.Info().
		Str("alert_id", a.ID).
		Str("session_id", a.SessionID).
		Str("product", string(a.Product)).
		Str("region", a.Region).
		Str("trigger", string(a.Trigger)).
		Str("priority", string(a.Priority)).
		Bool("requires_action", a.RequiresAction).
		Msg(a.Message)
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
