package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sappyoak/sappyoak-site-functions/common/logger"
	"github.com/sappyoak/sappyoak-site-functions/internal/metrics"
	"github.com/sappyoak/sappyoak-site-functions/internal/queue"
	"github.com/sappyoak/sappyoak-site-functions/internal/service"
)

type Config struct {
	MaxAttempts  int
	ErrorBackoff time.Duration

	// RequeueDelay is the wait before the first retry; it doubles per
	// attempt up to MaxRequeueDelay.
	RequeueDelay    time.Duration
	MaxRequeueDelay time.Duration
}

const (
	defaultRequeueDelay    = 5 * time.Second
	defaultMaxRequeueDelay = 2 * time.Minute
)

// NextDelay is how long a message that failed on attempt waits before it
// goes back on the stream.
func (c Config) NextDelay(attempt int) time.Duration {
	initial := c.RequeueDelay
	if initial <= 0 {
		initial = defaultRequeueDelay
	}
	maximum := c.MaxRequeueDelay
	if maximum <= 0 {
		maximum = defaultMaxRequeueDelay
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// Worker drains the activity queue into the feed. Each message is settled
// exactly once per delivery: deleted, requeued or dead-lettered.
type Worker struct {
	consumer   Consumer
	aggregator service.FeedAggregator
	cfg        Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, aggregator service.FeedAggregator, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		consumer:   consumer,
		aggregator: aggregator,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "activityfeed.worker",
	})
	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				w.backoff(ctx)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) backoff(ctx context.Context) {
	w.wait(ctx, w.cfg.ErrorBackoff)
}

// wait reports whether d elapsed before the worker was stopped.
func (w *Worker) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		w.Handle(ctx, msg)
	}
	return nil
}

// Handle aggregates one message and settles it according to the outcome.
// Exported so the reclaimer can reuse it.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID:  &msg.ID,
		EnvelopeID: &msg.Envelope.EnvelopeID,
		EventType:  &msg.Envelope.Type,
	})

	sc := logger.StartSpan(ctx, "worker.aggregate", trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()
	ctx = sc.Context()
	sc.SetAttributes(
		attribute.String("messaging.message.id", msg.ID),
		attribute.Int("activityfeed.attempt", msg.Attempt),
	)

	slog.DebugContext(ctx, "processing message", "attempt", msg.Attempt)

	start := time.Now()
	outcome := w.aggregateSafe(ctx, msg)
	metrics.AggregationLatency.Observe(time.Since(start).Seconds())

	switch outcome.Status {
	case service.OutcomeApplied:
		metrics.Aggregations.WithLabelValues(string(outcome.Mode)).Inc()
		if outcome.BroadcastErr != nil {
			metrics.BroadcastFailures.Inc()
		}
		if err := w.consumer.Delete(ctx, msg); err != nil {
			// The message stays pending and its next delivery appends again.
			slog.WarnContext(ctx, "failed to delete processed message", "error", err)
		}
	case service.OutcomePermanent:
		sc.RecordError(outcome.Err)
		metrics.AggregationFailures.WithLabelValues(string(outcome.Status)).Inc()
		w.deadLetter(ctx, msg, outcome.Err)
	default:
		sc.RecordError(outcome.Err)
		metrics.AggregationFailures.WithLabelValues(string(service.OutcomeRetryable)).Inc()
		w.retry(ctx, msg, outcome.Err)
	}
}

func (w *Worker) aggregateSafe(ctx context.Context, msg queue.Message) (outcome service.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			metrics.AggregationFailures.WithLabelValues("panic").Inc()
			outcome = service.Outcome{
				Status: service.OutcomeRetryable,
				Err:    fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return w.aggregator.Aggregate(ctx, msg.Envelope)
}

func (w *Worker) retry(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ", "attempts", msg.Attempt)
		w.deadLetter(ctx, msg, err)
		return
	}

	delay := w.cfg.NextDelay(msg.Attempt)
	slog.WarnContext(ctx, "requeuing failed message", "attempt", msg.Attempt, "delay", delay, "error", err)
	if !w.wait(ctx, delay) {
		// Left pending; the reclaimer picks it up after MinIdle.
		slog.InfoContext(ctx, "shutdown during requeue delay, leaving message pending")
		return
	}
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

func (w *Worker) deadLetter(ctx context.Context, msg queue.Message, err error) {
	if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
		slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		return
	}
	metrics.DeadLettered.Inc()
}
