package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sappyoak/sappyoak-site-functions/common/id"
	"github.com/sappyoak/sappyoak-site-functions/common/logger"
	"github.com/sappyoak/sappyoak-site-functions/internal/mapper"
	"github.com/sappyoak/sappyoak-site-functions/internal/model"
	"github.com/sappyoak/sappyoak-site-functions/internal/queue"
)

type IngestStatus string

const (
	IngestQueued   IngestStatus = "queued"
	IngestIgnored  IngestStatus = "ignored"
	IngestRejected IngestStatus = "rejected"
)

type IngestParams struct {
	Event      string
	Signature  string
	DeliveryID string
	Body       []byte
}

// IngestResult describes what happened to one webhook delivery. Ignored
// deliveries were filtered out; rejected ones failed authentication or
// could not be normalized.
type IngestResult struct {
	Status   IngestStatus
	Reason   string
	Envelope *model.QueueEnvelope
}

type ActivityIngestService interface {
	// Ingest returns an error only when the envelope could not be enqueued.
	Ingest(ctx context.Context, params IngestParams) (*IngestResult, error)
}

type ActivityIngestConfig struct {
	WebhookSecret string
	TrustedSender string
	PartitionKey  string
	Now           func() time.Time
}

type activityIngestService struct {
	cfg      ActivityIngestConfig
	mapper   mapper.ActivityMapper
	producer queue.Producer
	logger   *slog.Logger
}

func NewActivityIngestService(cfg ActivityIngestConfig, m mapper.ActivityMapper, producer queue.Producer, logger *slog.Logger) ActivityIngestService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &activityIngestService{
		cfg:      cfg,
		mapper:   m,
		producer: producer,
		logger:   logger,
	}
}

func (s *activityIngestService) Ingest(ctx context.Context, params IngestParams) (*IngestResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DeliveryID: optional(params.DeliveryID),
		Component:  "activityfeed.ingest",
	})

	if params.Event == "" {
		return s.ignore(ctx, "missing event name"), nil
	}
	if !mapper.IsAllowedEvent(params.Event) {
		return s.ignore(ctx, fmt.Sprintf("event %q is not handled", params.Event)), nil
	}

	if err := VerifySignature([]byte(s.cfg.WebhookSecret), params.Body, params.Signature); err != nil {
		return s.reject(ctx, err.Error()), nil
	}

	if !gjson.ValidBytes(params.Body) {
		return s.reject(ctx, "payload is not valid json"), nil
	}
	payload := gjson.ParseBytes(params.Body)

	action := payload.Get("action").String()
	if !mapper.IsAllowedAction(params.Event, action) {
		return s.ignore(ctx, fmt.Sprintf("action %q of event %q is not targeted", action, params.Event)), nil
	}

	if sender := payload.Get("sender.login").String(); sender != s.cfg.TrustedSender {
		return s.ignore(ctx, fmt.Sprintf("sender %q is not the trusted account", sender)), nil
	}

	item, err := s.mapper.Map(params.Event, params.Body)
	if err != nil {
		return s.reject(ctx, err.Error()), nil
	}

	envelope := model.QueueEnvelope{
		EnvelopeID:   id.New(),
		PartitionKey: s.cfg.PartitionKey,
		Type:         model.EnvelopeType(params.Event, action, mapper.IsWildcardEvent(params.Event)),
		Data:         item,
		ReceivedAt:   s.cfg.Now().UTC(),
	}
	if err := envelope.Validate(); err != nil {
		return s.reject(ctx, fmt.Sprintf("invalid envelope: %v", err)), nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EnvelopeID: &envelope.EnvelopeID,
		EventType:  &envelope.Type,
	})

	if err := s.producer.Enqueue(ctx, envelope); err != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue activity envelope", "error", err)
		return &IngestResult{Status: IngestRejected, Reason: "enqueue failed", Envelope: &envelope}, fmt.Errorf("enqueueing envelope: %w", err)
	}

	return &IngestResult{Status: IngestQueued, Envelope: &envelope}, nil
}

func (s *activityIngestService) ignore(ctx context.Context, reason string) *IngestResult {
	s.logger.InfoContext(ctx, "ignoring github event", "reason", reason)
	return &IngestResult{Status: IngestIgnored, Reason: reason}
}

func (s *activityIngestService) reject(ctx context.Context, reason string) *IngestResult {
	s.logger.WarnContext(ctx, "rejecting github event", "reason", reason)
	return &IngestResult{Status: IngestRejected, Reason: reason}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
