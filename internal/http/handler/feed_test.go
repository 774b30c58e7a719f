package handler_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sappyoak/sappyoak-site-functions/internal/http/handler"
	"github.com/sappyoak/sappyoak-site-functions/internal/model"
	"github.com/sappyoak/sappyoak-site-functions/internal/service"
)

var _ = Describe("FeedHandler", func() {
	var (
		router *gin.Engine
		reader *mockFeedReader
		buf    *bytes.Buffer
	)

	get := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		buf = &bytes.Buffer{}
		slog.SetDefault(slog.New(slog.NewJSONHandler(buf, nil)))

		reader = &mockFeedReader{}
		router.GET("/api/v1/feed", handler.NewFeedHandler(reader).List)
	})

	It("returns the page with its continuation token", func() {
		day := time.Date(2024, 5, 13, 8, 0, 0, 0, time.UTC)
		reader.readFn = func(ctx context.Context, query service.FeedQuery) (*service.FeedPage, error) {
			return &service.FeedPage{
				Data: []model.FeedRecord{{
					PartitionKey: "github-activity",
					RowKey:       model.RowKey("push.push", day),
					Actions:      []model.ActivityItem{{SourceEventType: "push", ID: "abc"}},
					Version:      1,
				}},
				ContinuationToken: "next",
			}, nil
		}

		w := get("/api/v1/feed?limit=1")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"continuationToken":"next"`))
		Expect(w.Body.String()).To(ContainSubstring(`"push.push.2024-05-13"`))
		Expect(reader.queries).To(ConsistOf(service.FeedQuery{Limit: 1}))
	})

	It("forwards the token and the all flag", func() {
		w := get("/api/v1/feed?continuationToken=tok&all=true")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(reader.queries).To(ConsistOf(service.FeedQuery{ContinuationToken: "tok", All: true}))
	})

	It("treats a malformed limit as absent", func() {
		w := get("/api/v1/feed?limit=abc")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(reader.queries).To(ConsistOf(service.FeedQuery{}))
	})

	It("returns 400 for an invalid continuation token", func() {
		reader.readFn = func(ctx context.Context, query service.FeedQuery) (*service.FeedPage, error) {
			return nil, fmt.Errorf("decoding: %w", service.ErrInvalidCursor)
		}

		w := get("/api/v1/feed?continuationToken=not-a-token")

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring("invalid continuation token"))
	})

	It("returns 500 when the store fails", func() {
		reader.readFn = func(ctx context.Context, query service.FeedQuery) (*service.FeedPage, error) {
			return nil, errors.New("connection refused")
		}

		w := get("/api/v1/feed")

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).NotTo(ContainSubstring("connection refused"))
		Expect(buf.String()).To(ContainSubstring("failed to read feed"))
	})
})
