package registry

import (
	"context"
	"fmt"

	wfredis "github.com/lyzr/wfcompiler/internal/redis"
)

// RedisSignalBus fire-and-forgets wakeups to the scheduler over a Redis
// pub/sub channel, one channel per topic.
type RedisSignalBus struct {
	client *wfredis.Client
}

// NewRedisSignalBus wraps a Redis client as a SignalBus.
func NewRedisSignalBus(client *wfredis.Client) *RedisSignalBus {
	return &RedisSignalBus{client: client}
}

func (b *RedisSignalBus) Publish(ctx context.Context, topic string) error {
	if err := b.client.PublishEvent(ctx, topic, "1"); err != nil {
		return fmt.Errorf("publish signal %s: %w", topic, err)
	}
	return nil
}
