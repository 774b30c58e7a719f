package router

import (
	"github.com/gin-gonic/gin"

	"github.com/sappyoak/sappyoak-site-functions/internal/http/handler/webhook"
)

func WebhookRouter(router *gin.RouterGroup, github *webhook.GitHubWebhookHandler) {
	router.POST("/github", github.HandleEvent)
}
