package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haventory/haventory-backend/internal/platform/logger"
	"github.com/haventory/haventory-backend/internal/services"
)

// maxWebhookBody caps the raw payload we are willing to buffer for
// signature verification. Attachments arrive as descriptors, not bytes, so
// real payloads are tiny.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	log    *logger.Logger
	ingest services.EmailIngestService
}

func NewWebhookHandler(log *logger.Logger, ingest services.EmailIngestService) *WebhookHandler {
	return &WebhookHandler{
		log:    log.With("handler", "WebhookHandler"),
		ingest: ingest,
	}
}

// ReceiveEmail always acks 200. A non-200 would make the provider retry
// forever; forged or malformed deliveries are logged and dropped instead.
func (h *WebhookHandler) ReceiveEmail(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.log.Warn("Webhook body unreadable", "error", err)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	sig := c.GetHeader("Webhook-Signature")
	if err := h.ingest.HandleWebhook(c.Request.Context(), raw, sig); err != nil {
		h.log.Warn("Webhook dropped", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
