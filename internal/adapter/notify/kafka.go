package notify

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/mini-oms/internal/core/domain"
)

const (
	kafkaBatchTimeout = 10 * time.Millisecond
	kafkaBatchSize    = 100
)

// KafkaPublisher appends status events to a topic keyed by order id, so events of one order stay
// in one partition. Writes are asynchronous; failures are only logged.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           kafkaBatchTimeout,
		BatchSize:              kafkaBatchSize,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) NotifyStatusChanged(ctx context.Context, event domain.StatusChangedEvent) {
	payload, err := encodeStatusChanged(event)
	if err != nil {
		p.logger.Error("encode status event", zap.Error(err))
		return
	}

	err = p.writer.WriteMessages(context.WithoutCancel(ctx), kafka.Message{
		Key:   []byte(event.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(domain.EventOrderStatusUpdated)},
		},
	})
	if err != nil {
		p.logger.Warn("queue status event", zap.String("order_id", event.OrderID), zap.Error(err))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
