package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/haventory/haventory-backend/internal/data/repos/docsrepo"
	"github.com/haventory/haventory-backend/internal/data/repos/inventoryrepo"
	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/domain/inventory"
	"github.com/haventory/haventory-backend/internal/pipeline"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/dbctx"
	"github.com/haventory/haventory-backend/internal/platform/gcp"
	"github.com/haventory/haventory-backend/internal/platform/logger"
	"github.com/haventory/haventory-backend/internal/platform/resend"
)

// WebhookTypeEmailReceived is the only inbound event we act on.
const WebhookTypeEmailReceived = "email.received"

// attachmentConcurrency bounds the fan-out over one email's attachments.
const attachmentConcurrency = 4

// EmailIngestService turns inbound email into documents. Every failure
// path is silent from the provider's point of view: the HTTP layer acks
// 200 no matter what this returns.
type EmailIngestService interface {
	HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) error
}

type emailIngestService struct {
	log           *logger.Logger
	documents     docsrepo.DocumentRepo
	properties    inventoryrepo.PropertyRepo
	bucket        gcp.BucketService
	provider      resend.Client
	webhookSecret string
	scheduler     pipeline.Scheduler
	notifier      DocumentNotifier
}

func NewEmailIngestService(
	log *logger.Logger,
	documents docsrepo.DocumentRepo,
	properties inventoryrepo.PropertyRepo,
	bucket gcp.BucketService,
	provider resend.Client,
	webhookSecret string,
	scheduler pipeline.Scheduler,
	notifier DocumentNotifier,
) EmailIngestService {
	return &emailIngestService{
		log:           log.With("service", "EmailIngestService"),
		documents:     documents,
		properties:    properties,
		bucket:        bucket,
		provider:      provider,
		webhookSecret: webhookSecret,
		scheduler:     scheduler,
		notifier:      notifier,
	}
}

func (s *emailIngestService) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) error {
	if !resend.VerifySignature(s.webhookSecret, signatureHeader, rawBody, time.Now(), resend.DefaultSignatureTolerance) {
		return apperr.Authorization("webhook_signature_invalid", "webhook signature verification failed")
	}

	var payload resend.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return apperr.Validation("webhook_payload_invalid", "decoding webhook body: %v", err)
	}
	if payload.Type != WebhookTypeEmailReceived {
		s.log.Debug("Ignoring webhook event", "type", payload.Type)
		return nil
	}

	dbc := dbctx.Context{Ctx: ctx}
	property, err := s.routeRecipient(dbc, payload.Data.To)
	if err != nil {
		// Unroutable mail is dropped, not bounced.
		s.log.Warn("Inbound email not routable", "email_id", payload.Data.EmailID, "error", err)
		return nil
	}

	ownerID := property.OwnerUserID
	sender := strings.TrimSpace(payload.Data.From)
	log := s.log.With("email_id", payload.Data.EmailID, "property_id", property.ID.String())

	// Attachments fan out concurrently; each one is independent and a
	// failure never blocks its siblings.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(attachmentConcurrency)
	for _, att := range payload.Data.Attachments {
		att := att
		g.Go(func() error {
			if err := s.ingestAttachment(gctx, log, ownerID, property.ID, sender, att); err != nil {
				log.Warn("Attachment ingest failed", "filename", att.Filename, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := s.ingestBody(ctx, log, ownerID, property.ID, sender, payload.Data); err != nil {
		log.Warn("Email body ingest failed", "error", err)
	}
	return nil
}

// routeRecipient maps the first recipient's local part to a property via
// its ingest token.
func (s *emailIngestService) routeRecipient(dbc dbctx.Context, to []string) (*inventory.Property, error) {
	if len(to) == 0 {
		return nil, apperr.Validation("recipient_missing", "webhook carries no recipients")
	}
	addr := strings.TrimSpace(to[0])
	local, _, found := strings.Cut(addr, "@")
	if !found || strings.TrimSpace(local) == "" {
		return nil, apperr.Validation("recipient_invalid", "recipient %q has no local part", addr)
	}
	return s.properties.GetByIngestToken(dbc, strings.TrimSpace(local))
}

func (s *emailIngestService) ingestAttachment(ctx context.Context, log *logger.Logger, ownerID, propertyID uuid.UUID, sender string, att resend.Attachment) error {
	contentType, err := CheckContentType(att.ContentType)
	if err != nil {
		log.Debug("Skipping attachment with unsupported content type",
			"filename", att.Filename, "content_type", att.ContentType)
		return nil
	}
	if att.Size > MaxUploadBytes {
		return apperr.Validation("artifact_too_large", "attachment is %d bytes, limit is %d", att.Size, MaxUploadBytes)
	}

	raw, err := s.attachmentBytes(ctx, att)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return apperr.Validation("artifact_empty", "attachment carries no bytes")
	}
	if len(raw) > MaxUploadBytes {
		return apperr.Validation("artifact_too_large", "attachment exceeds %d bytes", MaxUploadBytes)
	}

	doc := &docs.Document{
		OwnerUserID:      ownerID,
		FileName:         fileNameOr(att.Filename, "attachment"),
		ContentType:      contentType,
		SizeBytes:        int64(len(raw)),
		ProcessingStatus: docs.StatusPending,
		Source:           docs.SourceEmail,
		SourceEmail:      sender,
	}
	return s.createAndDispatch(ctx, doc, propertyID, raw)
}

func (s *emailIngestService) attachmentBytes(ctx context.Context, att resend.Attachment) ([]byte, error) {
	if att.Content != "" {
		raw, err := base64.StdEncoding.DecodeString(att.Content)
		if err != nil {
			return nil, apperr.Validation("attachment_content_invalid", "decoding inline attachment: %v", err)
		}
		return raw, nil
	}
	return s.provider.DownloadAttachment(ctx, att.DownloadURL)
}

// ingestBody creates a text document from the message itself when there is
// enough of it to matter. The extraction is seeded here, so the pipeline
// skips the classifier and goes straight to resolution.
func (s *emailIngestService) ingestBody(ctx context.Context, log *logger.Logger, ownerID, propertyID uuid.UUID, sender string, email resend.WebhookEmail) error {
	body, err := s.provider.GetEmailBody(ctx, email.EmailID)
	if err != nil {
		return err
	}

	text := EmailPlainText(body.HTML, body.Text)
	if len(text) < MinEmailBodyChars {
		log.Debug("Email body below substance threshold", "chars", len(text))
		return nil
	}

	extraction := docs.ExtractionResult{
		DocumentType:      docs.DocTypeEmailText,
		Confidence:        1,
		RawText:           text,
		SuggestedItemName: strings.TrimSpace(email.Subject),
	}
	extractionJSON, err := extraction.ToJSON()
	if err != nil {
		return err
	}

	doc := &docs.Document{
		OwnerUserID:      ownerID,
		FileName:         fileNameOr(email.Subject, "email") + ".txt",
		ContentType:      "text/plain",
		SizeBytes:        int64(len(text)),
		ExtractedData:    extractionJSON,
		ProcessingStatus: docs.StatusPending,
		Source:           docs.SourceEmail,
		SourceEmail:      sender,
	}
	return s.createAndDispatch(ctx, doc, propertyID, []byte(text))
}

func (s *emailIngestService) createAndDispatch(ctx context.Context, doc *docs.Document, propertyID uuid.UUID, raw []byte) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if err := doc.SetLink(docs.Link{Kind: docs.LinkProperty, Target: &propertyID}); err != nil {
		return err
	}
	doc.StorageKey = gcp.ObjectKey(doc.OwnerUserID, doc.ID, doc.FileName)

	if err := s.bucket.Upload(ctx, doc.StorageKey, doc.ContentType, bytes.NewReader(raw)); err != nil {
		return err
	}
	if _, err := s.documents.Create(dbctx.Context{Ctx: ctx}, doc); err != nil {
		if delErr := s.bucket.Delete(ctx, doc.StorageKey); delErr != nil {
			s.log.Warn("Orphan artifact cleanup failed", "key", doc.StorageKey, "error", delErr)
		}
		return err
	}

	s.notifier.StatusChanged(ctx, doc)

	runIn := pipeline.RunInput{DocumentID: doc.ID, OwnerID: doc.OwnerUserID, PropertyID: propertyID}
	if err := s.scheduler.Schedule(ctx, runIn); err != nil {
		s.log.Error("Pipeline dispatch failed; document stays pending",
			"document_id", doc.ID.String(), "error", err)
	}
	return nil
}
