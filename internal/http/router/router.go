package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sappyoak/sappyoak-site-functions/internal/http/handler"
	"github.com/sappyoak/sappyoak-site-functions/internal/http/handler/webhook"
	"github.com/sappyoak/sappyoak-site-functions/internal/http/middleware"
)

type Handlers struct {
	GitHub *webhook.GitHubWebhookHandler
	Feed   *handler.FeedHandler
	Live   *handler.LiveHandler
	Schema *handler.SchemaHandler
}

type RouterConfig struct {
	WebhookRPS   float64
	WebhookBurst int
}

func SetupRoutes(router *gin.Engine, h Handlers, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	WebhookRouter(router.Group("/webhooks", middleware.RateLimit(cfg.WebhookRPS, cfg.WebhookBurst)), h.GitHub)

	v1 := router.Group("/api/v1")
	{
		FeedRouter(v1.Group("/feed"), h.Feed, h.Live, h.Schema)
	}
}
