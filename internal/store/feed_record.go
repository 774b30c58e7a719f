package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/sappyoak/sappyoak-site-functions/core/db"
	"github.com/sappyoak/sappyoak-site-functions/internal/model"
)

type feedRecordStore struct {
	q     db.Querier
	table string
	now   func() time.Time
}

// NewFeedRecordStore returns a Postgres-backed store writing to table.
func NewFeedRecordStore(q db.Querier, table string) FeedRecordStore {
	return &feedRecordStore{
		q:     q,
		table: pgx.Identifier{table}.Sanitize(),
		now:   time.Now,
	}
}

// EnsureSchema creates the feed table if it does not exist yet.
func EnsureSchema(ctx context.Context, q db.Querier, table string) error {
	ident := pgx.Identifier{table}.Sanitize()
	_, err := q.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			partition_key TEXT NOT NULL,
			row_key TEXT NOT NULL,
			actions JSONB NOT NULL DEFAULT '[]'::jsonb,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (partition_key, row_key)
		)`, ident))
	if err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}
	return nil
}

func (s *feedRecordStore) Get(ctx context.Context, partitionKey, rowKey string) (*model.FeedRecord, error) {
	row := s.q.QueryRow(ctx, fmt.Sprintf(`
		SELECT partition_key, row_key, actions, version, created_at, updated_at
		FROM %s
		WHERE partition_key = $1 AND row_key = $2`, s.table),
		partitionKey, rowKey)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *feedRecordStore) Insert(ctx context.Context, record model.FeedRecord) (*model.FeedRecord, error) {
	actions, err := json.Marshal(nonNil(record.Actions))
	if err != nil {
		return nil, fmt.Errorf("encoding actions: %w", err)
	}

	now := s.now().UTC()
	row := s.q.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (partition_key, row_key, actions, version, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $4)
		ON CONFLICT (partition_key, row_key) DO NOTHING
		RETURNING partition_key, row_key, actions, version, created_at, updated_at`, s.table),
		record.PartitionKey, record.RowKey, actions, now)

	inserted, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return inserted, nil
}

func (s *feedRecordStore) Update(ctx context.Context, record model.FeedRecord, expectedVersion int64) (*model.FeedRecord, error) {
	actions, err := json.Marshal(nonNil(record.Actions))
	if err != nil {
		return nil, fmt.Errorf("encoding actions: %w", err)
	}

	row := s.q.QueryRow(ctx, fmt.Sprintf(`
		UPDATE %s
		SET actions = $3, version = version + 1, updated_at = $5
		WHERE partition_key = $1 AND row_key = $2 AND version = $4
		RETURNING partition_key, row_key, actions, version, created_at, updated_at`, s.table),
		record.PartitionKey, record.RowKey, actions, expectedVersion, s.now().UTC())

	updated, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return updated, nil
}

func (s *feedRecordStore) ListPage(ctx context.Context, partitionKey string, limit int, afterRowKey string) ([]model.FeedRecord, error) {
	rows, err := s.q.Query(ctx, fmt.Sprintf(`
		SELECT partition_key, row_key, actions, version, created_at, updated_at
		FROM %s
		WHERE partition_key = $1 AND row_key > $2
		ORDER BY row_key
		LIMIT $3`, s.table),
		partitionKey, afterRowKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]model.FeedRecord, 0, limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*model.FeedRecord, error) {
	var (
		record  model.FeedRecord
		actions []byte
	)
	if err := row.Scan(
		&record.PartitionKey,
		&record.RowKey,
		&actions,
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(actions, &record.Actions); err != nil {
		return nil, fmt.Errorf("decoding actions for %s: %w", record.RowKey, err)
	}
	return &record, nil
}

func nonNil(actions []model.ActivityItem) []model.ActivityItem {
	if actions == nil {
		return []model.ActivityItem{}
	}
	return actions
}
