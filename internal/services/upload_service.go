package services

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/haventory/haventory-backend/internal/data/repos/docsrepo"
	"github.com/haventory/haventory-backend/internal/data/repos/inventoryrepo"
	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/pipeline"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/dbctx"
	"github.com/haventory/haventory-backend/internal/platform/gcp"
	"github.com/haventory/haventory-backend/internal/platform/logger"
)

// MaxUploadBytes is the artifact size ceiling shared by direct uploads and
// email attachments.
const MaxUploadBytes = 50 << 20

// AllowedContentTypes is the ingress allow-list. Anything else is rejected
// before a single byte reaches storage.
var AllowedContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"image/heic":      true,
	"application/pdf": true,
}

// CheckContentType normalizes and validates an ingress content type.
func CheckContentType(ct string) (string, error) {
	norm := strings.ToLower(strings.TrimSpace(ct))
	if i := strings.Index(norm, ";"); i >= 0 {
		norm = strings.TrimSpace(norm[:i])
	}
	if !AllowedContentTypes[norm] {
		return "", apperr.Validation("content_type_unsupported", "content type %q not allowed", ct)
	}
	return norm, nil
}

type UploadInput struct {
	OwnerID     uuid.UUID
	FileName    string
	ContentType string
	Size        int64
	Data        io.Reader
	Link        docs.Link
}

// UploadService is the direct-upload ingress: validate, store the artifact,
// create the pending document, dispatch the pipeline.
type UploadService interface {
	Upload(ctx context.Context, in UploadInput) (*docs.Document, error)
}

type uploadService struct {
	log       *logger.Logger
	documents docsrepo.DocumentRepo
	links     *linkResolver
	bucket    gcp.BucketService
	scheduler pipeline.Scheduler
	notifier  DocumentNotifier
}

func NewUploadService(
	log *logger.Logger,
	documents docsrepo.DocumentRepo,
	properties inventoryrepo.PropertyRepo,
	systems inventoryrepo.SystemRepo,
	items inventoryrepo.ItemRepo,
	bucket gcp.BucketService,
	scheduler pipeline.Scheduler,
	notifier DocumentNotifier,
) UploadService {
	return &uploadService{
		log:       log.With("service", "UploadService"),
		documents: documents,
		links:     &linkResolver{properties: properties, systems: systems, items: items},
		bucket:    bucket,
		scheduler: scheduler,
		notifier:  notifier,
	}
}

func (s *uploadService) Upload(ctx context.Context, in UploadInput) (*docs.Document, error) {
	if in.OwnerID == uuid.Nil {
		return nil, apperr.Authorization("owner_required", "upload requires an authenticated owner")
	}

	contentType, err := CheckContentType(in.ContentType)
	if err != nil {
		return nil, err
	}
	if in.Size > MaxUploadBytes {
		return nil, apperr.Validation("artifact_too_large", "artifact is %d bytes, limit is %d", in.Size, MaxUploadBytes)
	}

	// The declared size is advisory; the read enforces the real ceiling.
	raw, err := io.ReadAll(io.LimitReader(in.Data, MaxUploadBytes+1))
	if err != nil {
		return nil, apperr.Validation("artifact_unreadable", "reading upload: %v", err)
	}
	if len(raw) == 0 {
		return nil, apperr.Validation("artifact_empty", "upload carries no bytes")
	}
	if len(raw) > MaxUploadBytes {
		return nil, apperr.Validation("artifact_too_large", "artifact exceeds %d bytes", MaxUploadBytes)
	}

	dbc := dbctx.Context{Ctx: ctx}
	propertyID, err := s.links.resolve(dbc, in.OwnerID, in.Link)
	if err != nil {
		return nil, err
	}

	artifactID := uuid.New()
	key := gcp.ObjectKey(in.OwnerID, artifactID, in.FileName)
	if err := s.bucket.Upload(ctx, key, contentType, bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	doc := &docs.Document{
		ID:               artifactID,
		OwnerUserID:      in.OwnerID,
		FileName:         fileNameOr(in.FileName, "artifact"),
		StorageKey:       key,
		ContentType:      contentType,
		SizeBytes:        int64(len(raw)),
		ProcessingStatus: docs.StatusPending,
		Source:           docs.SourceUpload,
	}
	if err := doc.SetLink(in.Link); err != nil {
		return nil, err
	}
	if _, err := s.documents.Create(dbc, doc); err != nil {
		// Best-effort cleanup; the create-only precondition makes a
		// leftover object block re-use of the same key forever.
		if delErr := s.bucket.Delete(ctx, key); delErr != nil {
			s.log.Warn("Orphan artifact cleanup failed", "key", key, "error", delErr)
		}
		return nil, err
	}

	s.notifier.StatusChanged(ctx, doc)

	runIn := pipeline.RunInput{DocumentID: doc.ID, OwnerID: in.OwnerID, PropertyID: propertyID}
	if err := s.scheduler.Schedule(ctx, runIn); err != nil {
		s.log.Error("Pipeline dispatch failed; document stays pending",
			"document_id", doc.ID.String(), "error", err)
	}

	s.log.Info("Document uploaded",
		"document_id", doc.ID.String(),
		"content_type", contentType,
		"size_bytes", len(raw),
		"link_kind", doc.LinkKind,
	)
	return doc, nil
}

func fileNameOr(name, def string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return def
	}
	return name
}
