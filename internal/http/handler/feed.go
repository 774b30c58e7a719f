package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sappyoak/sappyoak-site-functions/internal/http/dto"
	"github.com/sappyoak/sappyoak-site-functions/internal/service"
)

type FeedHandler struct {
	reader service.FeedReader
}

func NewFeedHandler(reader service.FeedReader) *FeedHandler {
	return &FeedHandler{reader: reader}
}

func (h *FeedHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var params dto.FeedQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}

	page, err := h.reader.Read(ctx, params.ToQuery())
	if err != nil {
		if errors.Is(err, service.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid continuation token"})
			return
		}
		slog.ErrorContext(ctx, "failed to read feed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read feed"})
		return
	}

	c.JSON(http.StatusOK, page)
}
