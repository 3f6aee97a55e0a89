package notify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/mini-oms/internal/core/domain"
)

const (
	StatusChannel  = "orders:status-updated"
	publishTimeout = 2 * time.Second
)

// RedisPublisher pushes status events onto a Redis channel so every server instance can relay
// them to its own websocket listeners.
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

func (p *RedisPublisher) NotifyStatusChanged(ctx context.Context, event domain.StatusChangedEvent) {
	payload, err := encodeStatusChanged(event)
	if err != nil {
		p.logger.Error("encode status event", zap.Error(err))
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := p.client.Publish(ctx, StatusChannel, payload).Err(); err != nil {
			p.logger.Warn("publish status event", zap.String("order_id", event.OrderID), zap.Error(err))
		}
	}()
}

// Close waits for in-flight publishes.
func (p *RedisPublisher) Close() {
	p.wg.Wait()
}

type Publisher interface {
	Publish(payload []byte)
}

// RedisRelay forwards messages from the status channel to a local publisher, usually the Hub.
type RedisRelay struct {
	client *redis.Client
	target Publisher
	logger *zap.Logger
}

func NewRedisRelay(client *redis.Client, target Publisher, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, target: target, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, StatusChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("relaying status events", zap.String("channel", StatusChannel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.target.Publish([]byte(msg.Payload))
		}
	}
}
