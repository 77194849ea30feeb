package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier 将结算结果作为 JSON 事件写入 Kafka。
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
}

// NewKafkaNotifier 构造 Kafka 推送器。
func NewKafkaNotifier(brokers []string, topic string, writeTimeout time.Duration, logger zerolog.Logger) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: writeTimeout,
		BatchSize:    1,
	}
	return newKafkaNotifier(writer, topic, logger), nil
}

func newKafkaNotifier(w messageWriter, topic string, logger zerolog.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: w,
		topic:  topic,
		logger: logger.With().Str("component", "alert_kafka").Logger(),
	}
}

// Notify 发布一条事件, key 为市场 id (缺省时为 run id) 以保证同一市场有序。
func (k *KafkaNotifier) Notify(ctx context.Context, note Notification) error {
	value, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal kafka event: %w", err)
	}
	key := note.MarketID
	if key == "" {
		key = note.RunID
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  note.ResolvedAt,
		Headers: []kafka.Header{
			{Key: "profile", Value: []byte(note.Profile)},
			{Key: "code", Value: []byte(note.Code)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka event: %w", err)
	}

	k.logger.Info().Str("run_id", note.RunID).Str("topic", k.topic).Msg("结算事件已发布 (Kafka)")
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

var _ Notifier = (*KafkaNotifier)(nil)
