package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/sappyoak/sappyoak-site-functions/internal/model"
)

type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
	MaxRequests      uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "feed-record-store",
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		MaxRequests:      1,
	}
}

// breakerStore stops calling the database after consecutive infrastructure
// failures. Not-found and conflict results are answers, not failures.
type breakerStore struct {
	next    FeedRecordStore
	records *gobreaker.CircuitBreaker[*model.FeedRecord]
	pages   *gobreaker.CircuitBreaker[[]model.FeedRecord]
}

func WithCircuitBreaker(next FeedRecordStore, cfg BreakerConfig) FeedRecordStore {
	return &breakerStore{
		next:    next,
		records: gobreaker.NewCircuitBreaker[*model.FeedRecord](breakerSettings(cfg, cfg.Name+".records")),
		pages:   gobreaker.NewCircuitBreaker[[]model.FeedRecord](breakerSettings(cfg, cfg.Name+".pages")),
	}
}

func breakerSettings(cfg BreakerConfig, name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("store circuit breaker changed state",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	}
}

func (b *breakerStore) Get(ctx context.Context, partitionKey, rowKey string) (*model.FeedRecord, error) {
	return b.records.Execute(func() (*model.FeedRecord, error) {
		return b.next.Get(ctx, partitionKey, rowKey)
	})
}

func (b *breakerStore) Insert(ctx context.Context, record model.FeedRecord) (*model.FeedRecord, error) {
	return b.records.Execute(func() (*model.FeedRecord, error) {
		return b.next.Insert(ctx, record)
	})
}

func (b *breakerStore) Update(ctx context.Context, record model.FeedRecord, expectedVersion int64) (*model.FeedRecord, error) {
	return b.records.Execute(func() (*model.FeedRecord, error) {
		return b.next.Update(ctx, record, expectedVersion)
	})
}

func (b *breakerStore) ListPage(ctx context.Context, partitionKey string, limit int, afterRowKey string) ([]model.FeedRecord, error) {
	return b.pages.Execute(func() ([]model.FeedRecord, error) {
		return b.next.ListPage(ctx, partitionKey, limit, afterRowKey)
	})
}
