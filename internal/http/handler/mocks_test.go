package handler_test

import (
	"context"

	"github.com/sappyoak/sappyoak-site-functions/internal/service"
)

type mockFeedReader struct {
	queries []service.FeedQuery
	readFn  func(ctx context.Context, query service.FeedQuery) (*service.FeedPage, error)
}

func (m *mockFeedReader) Read(ctx context.Context, query service.FeedQuery) (*service.FeedPage, error) {
	m.queries = append(m.queries, query)
	if m.readFn != nil {
		return m.readFn(ctx, query)
	}
	return &service.FeedPage{}, nil
}
