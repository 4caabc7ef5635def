package services

import (
	"context"
	"fmt"

	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/platform/logger"
	"github.com/haventory/haventory-backend/internal/platform/sendgrid"
	"github.com/haventory/haventory-backend/internal/realtime"
	"github.com/haventory/haventory-backend/internal/realtime/bus"
)

// DocumentNotifier fans status changes out to clients. Everything here is
// best-effort: a down bus or mail provider is logged and swallowed, never
// propagated into the pipeline or a request handler.
type DocumentNotifier interface {
	StatusChanged(ctx context.Context, doc *docs.Document)
	DocumentReady(ctx context.Context, doc *docs.Document)
}

type documentNotifier struct {
	log  *logger.Logger
	bus  bus.Bus
	mail sendgrid.Client
}

// NewDocumentNotifier builds a notifier; either dependency may be nil when
// the corresponding channel is not configured.
func NewDocumentNotifier(log *logger.Logger, b bus.Bus, mail sendgrid.Client) DocumentNotifier {
	return &documentNotifier{
		log:  log.With("service", "DocumentNotifier"),
		bus:  b,
		mail: mail,
	}
}

func (n *documentNotifier) StatusChanged(ctx context.Context, doc *docs.Document) {
	if doc == nil || n.bus == nil {
		return
	}
	if err := n.bus.Publish(ctx, realtime.NewStatusEvent(doc)); err != nil {
		n.log.Warn("Status event publish failed",
			"document_id", doc.ID.String(),
			"status", doc.ProcessingStatus,
			"error", err,
		)
	}
}

// DocumentReady fires when processing finishes. Email-ingested documents
// additionally get a reply to the sender, since that user never sees the
// app's realtime stream.
func (n *documentNotifier) DocumentReady(ctx context.Context, doc *docs.Document) {
	if doc == nil {
		return
	}
	n.StatusChanged(ctx, doc)

	if n.mail == nil || doc.Source != docs.SourceEmail || doc.SourceEmail == "" {
		return
	}
	err := n.mail.Send(ctx, sendgrid.SendEmailRequest{
		ToEmail: doc.SourceEmail,
		Subject: "Your document is ready for review",
		TextBody: fmt.Sprintf(
			"We processed %q. Open the app to confirm what we found and file it into your home inventory.",
			doc.FileName,
		),
	})
	if err != nil {
		n.log.Warn("Review notification email failed",
			"document_id", doc.ID.String(),
			"error", err,
		)
	}
}
