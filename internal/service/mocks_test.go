package service_test

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/sappyoak/sappyoak-site-functions/internal/model"
	"github.com/sappyoak/sappyoak-site-functions/internal/store"
)

type mockProducer struct {
	enqueueFn func(ctx context.Context, envelope model.QueueEnvelope) error
	enqueued  []model.QueueEnvelope
}

func (m *mockProducer) Enqueue(ctx context.Context, envelope model.QueueEnvelope) error {
	if m.enqueueFn != nil {
		if err := m.enqueueFn(ctx, envelope); err != nil {
			return err
		}
	}
	m.enqueued = append(m.enqueued, envelope)
	return nil
}

func (m *mockProducer) Close() error {
	return nil
}

type mockPublisher struct {
	publishFn  func(ctx context.Context, broadcast model.Broadcast) error
	broadcasts []model.Broadcast
}

func (m *mockPublisher) Publish(ctx context.Context, broadcast model.Broadcast) error {
	m.broadcasts = append(m.broadcasts, broadcast)
	if m.publishFn != nil {
		return m.publishFn(ctx, broadcast)
	}
	return nil
}

// memoryFeedStore keeps records in memory with the same conditional-write
// rules as the postgres store. The *Fn hooks run before the default
// behaviour and short-circuit it when they return a non-nil error.
type memoryFeedStore struct {
	mu      sync.Mutex
	records map[string]model.FeedRecord

	getFn    func(ctx context.Context, partitionKey, rowKey string) error
	insertFn func(ctx context.Context, record model.FeedRecord) error
	updateFn func(ctx context.Context, record model.FeedRecord, expectedVersion int64) error
	listFn   func(ctx context.Context, partitionKey string, limit int, after string) error

	getCalls    int
	insertCalls int
	updateCalls int
}

func newMemoryFeedStore() *memoryFeedStore {
	return &memoryFeedStore{records: map[string]model.FeedRecord{}}
}

func recordKey(partitionKey, rowKey string) string {
	return partitionKey + "\x00" + rowKey
}

func (m *memoryFeedStore) put(record model.FeedRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.Version == 0 {
		record.Version = 1
	}
	m.records[recordKey(record.PartitionKey, record.RowKey)] = record
}

func (m *memoryFeedStore) Get(ctx context.Context, partitionKey, rowKey string) (*model.FeedRecord, error) {
	m.getCalls++
	if m.getFn != nil {
		if err := m.getFn(ctx, partitionKey, rowKey); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[recordKey(partitionKey, rowKey)]
	if !ok {
		return nil, store.ErrNotFound
	}
	record.Actions = slices.Clone(record.Actions)
	return &record, nil
}

func (m *memoryFeedStore) Insert(ctx context.Context, record model.FeedRecord) (*model.FeedRecord, error) {
	m.insertCalls++
	if m.insertFn != nil {
		if err := m.insertFn(ctx, record); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(record.PartitionKey, record.RowKey)
	if _, ok := m.records[key]; ok {
		return nil, store.ErrConflict
	}
	record.Version = 1
	m.records[key] = record
	return &record, nil
}

func (m *memoryFeedStore) Update(ctx context.Context, record model.FeedRecord, expectedVersion int64) (*model.FeedRecord, error) {
	m.updateCalls++
	if m.updateFn != nil {
		if err := m.updateFn(ctx, record, expectedVersion); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(record.PartitionKey, record.RowKey)
	current, ok := m.records[key]
	if !ok || current.Version != expectedVersion {
		return nil, store.ErrConflict
	}
	current.Actions = slices.Clone(record.Actions)
	current.Version++
	m.records[key] = current
	return &current, nil
}

func (m *memoryFeedStore) ListPage(ctx context.Context, partitionKey string, limit int, after string) ([]model.FeedRecord, error) {
	if m.listFn != nil {
		if err := m.listFn(ctx, partitionKey, limit, after); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []model.FeedRecord
	for _, record := range m.records {
		if record.PartitionKey == partitionKey && record.RowKey > after {
			matched = append(matched, record)
		}
	}
	slices.SortFunc(matched, func(a, b model.FeedRecord) int {
		return strings.Compare(a.RowKey, b.RowKey)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *memoryFeedStore) record(partitionKey, rowKey string) (model.FeedRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[recordKey(partitionKey, rowKey)]
	return record, ok
}
