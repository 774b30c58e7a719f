package router

import (
	"github.com/gin-gonic/gin"

	"github.com/sappyoak/sappyoak-site-functions/internal/http/handler"
)

func FeedRouter(router *gin.RouterGroup, feed *handler.FeedHandler, live *handler.LiveHandler, schema *handler.SchemaHandler) {
	router.GET("", feed.List)
	router.GET("/live", live.Subscribe)
	router.GET("/schema", schema.Get)
}
