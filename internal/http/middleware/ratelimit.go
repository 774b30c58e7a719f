package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sappyoak/sappyoak-site-functions/internal/metrics"
)

// RateLimit sheds load with 429 once the token bucket is empty. GitHub
// treats non-2xx answers as failed deliveries that can be redelivered.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			metrics.WebhookEvents.WithLabelValues("rate_limited").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
