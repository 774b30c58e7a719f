package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sappyoak/sappyoak-site-functions/internal/metrics"
	"github.com/sappyoak/sappyoak-site-functions/internal/service"
)

const (
	headerEvent     = "X-GitHub-Event"
	headerSignature = "X-Hub-Signature-256"
	headerDelivery  = "X-GitHub-Delivery"
)

type GitHubWebhookHandler struct {
	ingest         service.ActivityIngestService
	maxPayloadSize int64
}

func NewGitHubWebhookHandler(ingest service.ActivityIngestService, maxPayloadSize int64) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{
		ingest:         ingest,
		maxPayloadSize: maxPayloadSize,
	}
}

// HandleEvent acknowledges every delivery it could read with 200. Filtering
// and failures are visible in logs and metrics, not to GitHub.
func (h *GitHubWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxPayloadSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.WebhookEvents.WithLabelValues(string(service.IngestRejected)).Inc()
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	result, err := h.ingest.Ingest(ctx, service.IngestParams{
		Event:      c.GetHeader(headerEvent),
		Signature:  c.GetHeader(headerSignature),
		DeliveryID: c.GetHeader(headerDelivery),
		Body:       body,
	})
	if err != nil {
		metrics.EnqueueFailures.Inc()
		slog.ErrorContext(ctx, "failed to ingest github event", "error", err)
	}
	if result != nil {
		metrics.WebhookEvents.WithLabelValues(string(result.Status)).Inc()
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
