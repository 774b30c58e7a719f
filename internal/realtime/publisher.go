package realtime

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/sappyoak/sappyoak-site-functions/internal/model"
)

// RedisPublisher emits merge notifications on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, broadcast model.Broadcast) error {
	payload, err := json.Marshal(broadcast)
	if err != nil {
		return fmt.Errorf("encoding broadcast: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.channel, err)
	}
	return nil
}
