package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sappyoak/sappyoak-site-functions/common/logger"
)

type ConsumerConfig struct {
	Stream    string        // Redis stream the ingress writes to
	Group     string        // consumer group shared by all aggregator workers
	Consumer  string        // this worker's name within the group
	DLQStream string        // dead letter stream for envelopes that will never apply
	BatchSize int64         // entries per XREADGROUP
	Block     time.Duration // how long a read blocks waiting for entries
}

type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(ctx context.Context, client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}

	consumer := &RedisConsumer{
		client: client,
		cfg:    cfg,
	}

	if err := consumer.ensureGroup(ctx); err != nil {
		return nil, err
	}

	return consumer, nil
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	// Starting from "0" picks up anything enqueued before the group existed.
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "activityfeed.queue.consumer",
	})

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		// ">" delivers entries nobody has seen; stale pending entries belong to the reclaimer.
		Streams: []string{c.cfg.Stream, ">"},
		Count:   c.cfg.BatchSize,
		Block:   c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var messages []Message
	for _, stream := range streams {
		messages = append(messages, c.parseAll(ctx, stream.Messages)...)
	}

	if len(messages) > 0 {
		slog.DebugContext(ctx, "read messages from stream",
			"count", len(messages),
			"stream", c.cfg.Stream,
			"consumer", c.cfg.Consumer)
	}

	return messages, nil
}

// parseAll decodes entries, dead-lettering the ones that cannot be decoded
// so they stop occupying the pending list.
func (c *RedisConsumer) parseAll(ctx context.Context, entries []redis.XMessage) []Message {
	messages := make([]Message, 0, len(entries))
	for _, entry := range entries {
		parsed, err := ParseMessage(entry)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse message",
				"error", err,
				"raw_message_id", entry.ID,
				"stream", c.cfg.Stream)
			if dlqErr := c.deadLetterRaw(ctx, entry, err.Error()); dlqErr != nil {
				slog.ErrorContext(ctx, "failed to dead-letter unparseable message",
					"error", dlqErr,
					"raw_message_id", entry.ID)
			}
			continue
		}
		messages = append(messages, parsed)
	}
	return messages
}

// Delete acknowledges the entry and removes it from the stream.
func (c *RedisConsumer) Delete(ctx context.Context, msg Message) error {
	pipe := c.client.TxPipeline()
	pipe.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID)
	pipe.XDel(ctx, c.cfg.Stream, msg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting message (stream=%s): %w", c.cfg.Stream, err)
	}

	slog.DebugContext(ctx, "message deleted", "stream", c.cfg.Stream, "message_id", msg.ID)
	return nil
}

// Requeue appends a fresh entry with the attempt bumped, then settles the
// original. If the append fails the original stays pending for the reclaimer.
func (c *RedisConsumer) Requeue(ctx context.Context, msg Message, errMsg string) error {
	values, err := encodeValues(msg.Envelope, msg.Attempt+1)
	if err != nil {
		return err
	}
	if errMsg != "" {
		values[fieldLastError] = errMsg
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd requeue: %w", err)
	}

	if err := c.Delete(ctx, msg); err != nil {
		return fmt.Errorf("deleting requeued message: %w", err)
	}

	slog.InfoContext(ctx, "message requeued for retry",
		"next_attempt", msg.Attempt+1,
		"reason", errMsg)
	return nil
}

// SendDLQ copies the envelope to the dead letter stream before removing it
// from the work stream.
func (c *RedisConsumer) SendDLQ(ctx context.Context, msg Message, errMsg string) error {
	values, err := encodeValues(msg.Envelope, msg.Attempt)
	if err != nil {
		return err
	}
	values[fieldError] = errMsg

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}

	if err := c.Delete(ctx, msg); err != nil {
		return fmt.Errorf("deleting dead-lettered message: %w", err)
	}

	slog.ErrorContext(ctx, "message sent to DLQ",
		"final_error", errMsg,
		"dlq_stream", c.cfg.DLQStream)
	return nil
}

func (c *RedisConsumer) deadLetterRaw(ctx context.Context, entry redis.XMessage, errMsg string) error {
	values := rawValues(entry)
	values[fieldError] = errMsg

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}
	return c.Delete(ctx, Message{ID: entry.ID, Raw: entry})
}

// Claim takes over entries idle for at least minIdle from any consumer in
// the group. Entries that no longer decode are dead-lettered.
func (c *RedisConsumer) Claim(ctx context.Context, minIdle time.Duration, count int64) ([]Message, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xpending: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim: %w", err)
	}

	return c.parseAll(ctx, claimed), nil
}
