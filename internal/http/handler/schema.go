package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/invopop/jsonschema"

	"github.com/sappyoak/sappyoak-site-functions/internal/model"
	"github.com/sappyoak/sappyoak-site-functions/internal/realtime"
	"github.com/sappyoak/sappyoak-site-functions/internal/service"
)

// SchemaHandler serves JSON Schemas for the feed page and the live message
// so consumers can validate what they receive.
type SchemaHandler struct {
	schemas gin.H
}

func NewSchemaHandler() *SchemaHandler {
	reflector := &jsonschema.Reflector{
		ExpandedStruct: true,
	}
	return &SchemaHandler{
		schemas: gin.H{
			"feedRecord":  reflector.Reflect(&model.FeedRecord{}),
			"feedPage":    reflector.Reflect(&service.FeedPage{}),
			"liveMessage": reflector.Reflect(&realtime.LiveMessage{}),
		},
	}
}

func (h *SchemaHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.schemas)
}
