package worker_test

import (
	"context"
	"sync"
	"time"

	"github.com/sappyoak/sappyoak-site-functions/internal/model"
	"github.com/sappyoak/sappyoak-site-functions/internal/queue"
	"github.com/sappyoak/sappyoak-site-functions/internal/service"
	"github.com/sappyoak/sappyoak-site-functions/internal/store"
)

type mockConsumer struct {
	mu sync.Mutex

	readFn   func(ctx context.Context) ([]queue.Message, error)
	claimFn  func(ctx context.Context, minIdle time.Duration, count int64) ([]queue.Message, error)
	deleteFn func(ctx context.Context, msg queue.Message) error

	deleted  []queue.Message
	requeued []queue.Message
	dlq      []queue.Message
	reasons  []string
}

func (m *mockConsumer) Read(ctx context.Context) ([]queue.Message, error) {
	if m.readFn != nil {
		return m.readFn(ctx)
	}
	return nil, nil
}

func (m *mockConsumer) Claim(ctx context.Context, minIdle time.Duration, count int64) ([]queue.Message, error) {
	if m.claimFn != nil {
		return m.claimFn(ctx, minIdle, count)
	}
	return nil, nil
}

func (m *mockConsumer) Delete(ctx context.Context, msg queue.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteFn != nil {
		if err := m.deleteFn(ctx, msg); err != nil {
			return err
		}
	}
	m.deleted = append(m.deleted, msg)
	return nil
}

func (m *mockConsumer) Requeue(ctx context.Context, msg queue.Message, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requeued = append(m.requeued, msg)
	m.reasons = append(m.reasons, errMsg)
	return nil
}

func (m *mockConsumer) SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, msg)
	m.reasons = append(m.reasons, errMsg)
	return nil
}

func (m *mockConsumer) deletedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deleted)
}

type mockAggregator struct {
	aggregateFn func(ctx context.Context, envelope model.QueueEnvelope) service.Outcome
	calls       int
}

func (m *mockAggregator) Aggregate(ctx context.Context, envelope model.QueueEnvelope) service.Outcome {
	m.calls++
	if m.aggregateFn != nil {
		return m.aggregateFn(ctx, envelope)
	}
	return service.Outcome{Status: service.OutcomeApplied, Mode: model.PublishModeInsert, Record: &model.FeedRecord{}}
}

type recordingProducer struct {
	enqueued []model.QueueEnvelope
}

func (p *recordingProducer) Enqueue(ctx context.Context, envelope model.QueueEnvelope) error {
	p.enqueued = append(p.enqueued, envelope)
	return nil
}

func (p *recordingProducer) Close() error {
	return nil
}

type recordingPublisher struct {
	broadcasts []model.Broadcast
}

func (p *recordingPublisher) Publish(ctx context.Context, broadcast model.Broadcast) error {
	p.broadcasts = append(p.broadcasts, broadcast)
	return nil
}

// mapFeedStore is a minimal versioned store for pipeline tests.
type mapFeedStore struct {
	records map[string]model.FeedRecord
}

func newMapFeedStore() *mapFeedStore {
	return &mapFeedStore{records: map[string]model.FeedRecord{}}
}

func (s *mapFeedStore) Get(ctx context.Context, partitionKey, rowKey string) (*model.FeedRecord, error) {
	record, ok := s.records[partitionKey+"/"+rowKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &record, nil
}

func (s *mapFeedStore) Insert(ctx context.Context, record model.FeedRecord) (*model.FeedRecord, error) {
	key := record.PartitionKey + "/" + record.RowKey
	if _, ok := s.records[key]; ok {
		return nil, store.ErrConflict
	}
	record.Version = 1
	s.records[key] = record
	return &record, nil
}

func (s *mapFeedStore) Update(ctx context.Context, record model.FeedRecord, expectedVersion int64) (*model.FeedRecord, error) {
	key := record.PartitionKey + "/" + record.RowKey
	current, ok := s.records[key]
	if !ok || current.Version != expectedVersion {
		return nil, store.ErrConflict
	}
	record.Version = expectedVersion + 1
	s.records[key] = record
	return &record, nil
}

func (s *mapFeedStore) ListPage(ctx context.Context, partitionKey string, limit int, after string) ([]model.FeedRecord, error) {
	return nil, nil
}
