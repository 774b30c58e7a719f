package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/sappyoak/sappyoak-site-functions/internal/model"
)

type Producer interface {
	Enqueue(ctx context.Context, envelope model.QueueEnvelope) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, envelope model.QueueEnvelope) error {
	values, err := encodeValues(envelope, 1)
	if err != nil {
		return err
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue envelope: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued activity envelope",
		"envelope_id", envelope.EnvelopeID,
		"type", envelope.Type,
		"stream", p.stream)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
