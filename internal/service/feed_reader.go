package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sappyoak/sappyoak-site-functions/internal/model"
	"github.com/sappyoak/sappyoak-site-functions/internal/store"
)

// FeedQuery selects a page. Limit <= 0 means no limit was given.
type FeedQuery struct {
	Limit             int
	ContinuationToken string
	All               bool
}

type FeedPage struct {
	Data              []model.FeedRecord `json:"data"`
	ContinuationToken string             `json:"continuationToken,omitempty"`
}

type FeedReaderConfig struct {
	PartitionKey    string
	DefaultPageSize int
	MaxPageSize     int
	MaxFetchAll     int
}

type FeedReader interface {
	Read(ctx context.Context, query FeedQuery) (*FeedPage, error)
}

type feedReader struct {
	store  store.FeedRecordStore
	cfg    FeedReaderConfig
	logger *slog.Logger
}

func NewFeedReader(s store.FeedRecordStore, cfg FeedReaderConfig, logger *slog.Logger) FeedReader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	if cfg.MaxFetchAll < cfg.MaxPageSize {
		cfg.MaxFetchAll = cfg.MaxPageSize
	}
	return &feedReader{store: s, cfg: cfg, logger: logger}
}

func (r *feedReader) Read(ctx context.Context, query FeedQuery) (*FeedPage, error) {
	pageSize := r.pageSize(query.Limit)

	var after string
	if query.ContinuationToken != "" {
		rowKey, err := DecodeCursor(query.ContinuationToken)
		if err != nil {
			return nil, err
		}
		after = rowKey
	}

	if query.All && query.ContinuationToken == "" {
		return r.readAll(ctx, pageSize)
	}

	records, err := r.store.ListPage(ctx, r.cfg.PartitionKey, pageSize, after)
	if err != nil {
		return nil, fmt.Errorf("listing feed records: %w", err)
	}
	return newPage(records, len(records) > 0), nil
}

// readAll collects pages from the head until the partition is exhausted or
// the fetch-all ceiling is reached. Only the latter leaves a token.
func (r *feedReader) readAll(ctx context.Context, pageSize int) (*FeedPage, error) {
	var (
		all   []model.FeedRecord
		after string
	)
	for len(all) < r.cfg.MaxFetchAll {
		limit := min(pageSize, r.cfg.MaxFetchAll-len(all))
		records, err := r.store.ListPage(ctx, r.cfg.PartitionKey, limit, after)
		if err != nil {
			return nil, fmt.Errorf("listing feed records: %w", err)
		}
		all = append(all, records...)
		if len(records) < limit {
			return newPage(all, false), nil
		}
		after = records[len(records)-1].RowKey
	}

	r.logger.WarnContext(ctx, "fetch-all read hit its ceiling", "max_fetch_all", r.cfg.MaxFetchAll)
	return newPage(all, len(all) > 0), nil
}

func (r *feedReader) pageSize(limit int) int {
	if limit <= 0 {
		return r.cfg.DefaultPageSize
	}
	return min(limit, r.cfg.MaxPageSize)
}

func newPage(records []model.FeedRecord, withToken bool) *FeedPage {
	if records == nil {
		records = []model.FeedRecord{}
	}
	page := &FeedPage{Data: records}
	if withToken {
		page.ContinuationToken = EncodeCursor(records[len(records)-1].RowKey)
	}
	return page
}
