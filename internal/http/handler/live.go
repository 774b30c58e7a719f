package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sappyoak/sappyoak-site-functions/internal/realtime"
)

type LiveHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

// NewLiveHandler accepts websocket upgrades from any origin in
// allowedOrigins; an empty list allows all origins.
func NewLiveHandler(hub *realtime.Hub, allowedOrigins []string) *LiveHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return &LiveHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

func (h *LiveHandler) Subscribe(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.WarnContext(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}
	realtime.NewClient(h.hub, conn).Start()
}
