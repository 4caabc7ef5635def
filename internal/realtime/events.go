// Package realtime defines the events fanned out to connected clients
// whenever a document moves through its lifecycle.
package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/haventory/haventory-backend/internal/domain/docs"
)

const EventDocumentStatus = "document.status"

// StatusEvent is published on every status transition. Clients filter on
// OwnerUserID; the payload carries enough to update a list row without a
// refetch.
type StatusEvent struct {
	Type        string                `json:"type"`
	OwnerUserID uuid.UUID             `json:"owner_user_id"`
	DocumentID  uuid.UUID             `json:"document_id"`
	Status      docs.ProcessingStatus `json:"status"`
	RetryCount  int                   `json:"retry_count"`
	At          time.Time             `json:"at"`
}

func NewStatusEvent(doc *docs.Document) StatusEvent {
	return StatusEvent{
		Type:        EventDocumentStatus,
		OwnerUserID: doc.OwnerUserID,
		DocumentID:  doc.ID,
		Status:      doc.ProcessingStatus,
		RetryCount:  doc.RetryCount,
		At:          time.Now().UTC(),
	}
}
