package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Subscriber relays broadcasts from the Redis channel into the hub.
type Subscriber struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

func NewSubscriber(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{client: client, channel: channel, hub: hub, logger: logger}
}

func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.channel, err)
	}
	s.logger.Info("subscribed to live feed channel", "channel", s.channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.Relay([]byte(msg.Payload))
		}
	}
}

// Relay wraps one published payload and hands it to the hub.
func (s *Subscriber) Relay(payload []byte) {
	message, err := EncodeLiveMessage(s.channel, payload)
	if err != nil {
		s.logger.Warn("discarding malformed broadcast", "error", err, "channel", s.channel)
		return
	}
	if !s.hub.Broadcast(message) {
		s.logger.Warn("live feed hub is backed up, dropping broadcast", "channel", s.channel)
	}
}
