package handlers

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/haventory/haventory-backend/internal/platform/logger"
	"github.com/haventory/haventory-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{
		log: log.With("handler", "RealtimeHandler"),
		hub: hub,
	}
}

// Stream pushes the caller's document status events over SSE until the
// client disconnects.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	ownerID, ok := callerID(c)
	if !ok {
		return
	}

	events, cancel := h.hub.Subscribe(ownerID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case evt, open := <-events:
			if !open {
				return false
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				return true
			}
			c.SSEvent(evt.Type, string(payload))
			return true
		}
	})
}
