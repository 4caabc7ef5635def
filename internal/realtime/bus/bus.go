package bus

import (
	"context"

	"github.com/haventory/haventory-backend/internal/realtime"
)

// Bus carries status events between API replicas. Publish is fire-and-
// forget from the pipeline's point of view; a bus outage never fails a
// document attempt.
type Bus interface {
	Publish(ctx context.Context, evt realtime.StatusEvent) error
	StartForwarder(ctx context.Context, onEvent func(evt realtime.StatusEvent)) error
	Close() error
}
