package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sappyoak/sappyoak-site-functions/common/logger"
)

const deliveryHeader = "X-GitHub-Delivery"

// Logger logs one line per request. Probe and scrape routes log at debug.
// GitHub delivery ids are attached to the request context for handlers.
func Logger(quietPaths ...string) gin.HandlerFunc {
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		if delivery := c.GetHeader(deliveryHeader); delivery != "" {
			ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{DeliveryID: &delivery})
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()

		status := c.Writer.Status()
		ctx := c.Request.Context()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		_, isQuiet := quiet[c.Request.URL.Path]
		switch {
		case status >= 500:
			slog.ErrorContext(ctx, "request failed", attrs...)
		case status >= 400:
			slog.WarnContext(ctx, "request error", attrs...)
		case isQuiet:
			slog.DebugContext(ctx, "request", attrs...)
		default:
			slog.InfoContext(ctx, "request", attrs...)
		}
	}
}
