package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sappyoak/sappyoak-site-functions/common/logger"
	"github.com/sappyoak/sappyoak-site-functions/internal/model"
	"github.com/sappyoak/sappyoak-site-functions/internal/store"
)

type OutcomeStatus string

const (
	OutcomeApplied   OutcomeStatus = "applied"
	OutcomeRetryable OutcomeStatus = "retryable"
	OutcomePermanent OutcomeStatus = "permanent"
)

var ErrWriteConflict = errors.New("feed record kept changing under concurrent writers")

// Outcome tells the worker what to do with the message that carried the
// envelope. BroadcastErr is informational; the record is persisted either way.
type Outcome struct {
	Status       OutcomeStatus
	Mode         model.PublishMode
	Record       *model.FeedRecord
	Deduplicated bool
	Err          error
	BroadcastErr error
}

type BroadcastPublisher interface {
	Publish(ctx context.Context, broadcast model.Broadcast) error
}

type FeedAggregator interface {
	Aggregate(ctx context.Context, envelope model.QueueEnvelope) Outcome
}

type FeedAggregatorConfig struct {
	MaxWriteAttempts int
	// DedupeActions skips items whose (sourceEventType, id) already sits in
	// the target record instead of appending them again.
	DedupeActions bool
	Now           func() time.Time
}

type feedAggregator struct {
	store     store.FeedRecordStore
	publisher BroadcastPublisher
	cfg       FeedAggregatorConfig
	logger    *slog.Logger
}

func NewFeedAggregator(s store.FeedRecordStore, publisher BroadcastPublisher, cfg FeedAggregatorConfig, logger *slog.Logger) FeedAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxWriteAttempts <= 0 {
		cfg.MaxWriteAttempts = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &feedAggregator{
		store:     s,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Aggregate appends the envelope's item to its day bucket and broadcasts the
// result. The bucket is chosen by the aggregator's clock, not the event time.
func (a *feedAggregator) Aggregate(ctx context.Context, envelope model.QueueEnvelope) Outcome {
	if err := envelope.Validate(); err != nil {
		return Outcome{Status: OutcomePermanent, Err: fmt.Errorf("invalid envelope: %w", err)}
	}

	rowKey := model.RowKey(envelope.Type, a.cfg.Now())
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EnvelopeID: &envelope.EnvelopeID,
		EventType:  &envelope.Type,
		RowKey:     &rowKey,
		Component:  "activityfeed.aggregator",
	})

	outcome := a.merge(ctx, envelope, rowKey)
	if outcome.Status != OutcomeApplied {
		a.logger.ErrorContext(ctx, "feed aggregation failed", "error", outcome.Err, "status", outcome.Status)
		return outcome
	}

	if err := a.publisher.Publish(ctx, model.Broadcast{
		Entity:      *outcome.Record,
		PublishMode: outcome.Mode,
	}); err != nil {
		a.logger.WarnContext(ctx, "failed to broadcast feed record", "error", err)
		outcome.BroadcastErr = err
	}

	a.logger.InfoContext(ctx, "feed record merged",
		"publish_mode", outcome.Mode,
		"actions", len(outcome.Record.Actions),
		"deduplicated", outcome.Deduplicated)
	return outcome
}

func (a *feedAggregator) merge(ctx context.Context, envelope model.QueueEnvelope, rowKey string) Outcome {
	for attempt := 1; attempt <= a.cfg.MaxWriteAttempts; attempt++ {
		existing, err := a.store.Get(ctx, envelope.PartitionKey, rowKey)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Outcome{Status: OutcomeRetryable, Err: fmt.Errorf("reading feed record: %w", err)}
		}

		var (
			saved *model.FeedRecord
			mode  model.PublishMode
		)
		if existing == nil {
			mode = model.PublishModeInsert
			saved, err = a.store.Insert(ctx, model.FeedRecord{
				PartitionKey: envelope.PartitionKey,
				RowKey:       rowKey,
				Actions:      []model.ActivityItem{envelope.Data},
			})
		} else {
			mode = model.PublishModeUpdate
			if a.cfg.DedupeActions && existing.HasAction(envelope.Data) {
				return Outcome{Status: OutcomeApplied, Mode: mode, Record: existing, Deduplicated: true}
			}
			saved, err = a.store.Update(ctx, existing.WithAction(envelope.Data), existing.Version)
		}

		if errors.Is(err, store.ErrConflict) {
			a.logger.DebugContext(ctx, "conditional write lost a race, re-reading", "attempt", attempt, "publish_mode", mode)
			continue
		}
		if err != nil {
			return Outcome{Status: OutcomeRetryable, Err: fmt.Errorf("writing feed record (%s): %w", mode, err)}
		}
		return Outcome{Status: OutcomeApplied, Mode: mode, Record: saved}
	}

	return Outcome{
		Status: OutcomeRetryable,
		Err:    fmt.Errorf("%w after %d attempts", ErrWriteConflict, a.cfg.MaxWriteAttempts),
	}
}
