package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sappyoak/sappyoak-site-functions/common/logger"
	"github.com/sappyoak/sappyoak-site-functions/internal/queue"
)

type ReclaimerConfig struct {
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
}

// Reclaimer periodically takes over messages left pending by a worker that
// died between reading and settling them.
type Reclaimer struct {
	consumer Consumer
	handle   func(ctx context.Context, msg queue.Message)
	cfg      ReclaimerConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReclaimer(consumer Consumer, handle func(ctx context.Context, msg queue.Message), cfg ReclaimerConfig) *Reclaimer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Reclaimer{
		consumer:  consumer,
		handle:    handle,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until ctx is done or Stop is called.
func (r *Reclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "activityfeed.worker.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			if _, err := r.ReclaimOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "reclaim cycle error", "error", err)
			}
		}
	}
}

func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// ReclaimOnce claims one batch of stale messages and handles them. It
// returns how many were claimed.
func (r *Reclaimer) ReclaimOnce(ctx context.Context) (int, error) {
	messages, err := r.consumer.Claim(ctx, r.cfg.MinIdle, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claiming stale messages: %w", err)
	}
	if len(messages) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "reclaimed stale pending messages", "count", len(messages))
	for _, msg := range messages {
		r.handle(ctx, msg)
	}
	return len(messages), nil
}
