package store

import (
	"context"
	"errors"

	"github.com/sappyoak/sappyoak-site-functions/internal/model"
)

// ErrNotFound is returned when no record exists for a key
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write loses to a concurrent one
var ErrConflict = errors.New("write conflict")

// FeedRecordStore is the keyed store for day-bucketed feed records.
type FeedRecordStore interface {
	Get(ctx context.Context, partitionKey, rowKey string) (*model.FeedRecord, error)
	// Insert writes a new record at version 1. Returns ErrConflict if the key exists.
	Insert(ctx context.Context, record model.FeedRecord) (*model.FeedRecord, error)
	// Update replaces actions when the stored version still equals
	// expectedVersion. Returns ErrConflict otherwise.
	Update(ctx context.Context, record model.FeedRecord, expectedVersion int64) (*model.FeedRecord, error)
	// ListPage returns up to limit records ordered by row key, strictly after
	// afterRowKey when it is non-empty.
	ListPage(ctx context.Context, partitionKey string, limit int, afterRowKey string) ([]model.FeedRecord, error)
}
