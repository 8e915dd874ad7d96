package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"fert-price-monitor/internal/alert"
)

// StreamNotifier 将告警发布到 kafka 主题, 供下游农场管理系统流式消费。
// Messages are keyed by product and region so one pair stays on one partition.
type StreamNotifier struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewStreamNotifier 构造 kafka 告警发布器。
func NewStreamNotifier(brokers []string, topic string, logger zerolog.Logger) *StreamNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 250 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &StreamNotifier{
		writer: writer,
		logger: logger.With().Str("component", "alert_stream").Logger(),
	}
}

func (n *StreamNotifier) Name() string { return "stream" }

func (n *StreamNotifier) Notify(ctx context.Context, a alert.Alert) error {
	body, err := json.Marshal(toWire(a))
	if err != nil {
		return fmt.Errorf("marshal stream payload: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%s:%s", a.Product, a.Region)),
		Value: body,
		Time:  a.CreatedAt,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}

	n.logger.Info().Str("alert_id", a.ID).
		Str("topic", n.writer.Topic).
		Msg("告警已发布 (kafka)")
	return nil
}

// Close flushes and releases the kafka writer.
func (n *StreamNotifier) Close() error {
	return n.writer.Close()
}

var _ Notifier = (*StreamNotifier)(nil)
