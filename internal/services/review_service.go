package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/haventory/haventory-backend/internal/data/repos/docsrepo"
	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/dbctx"
	"github.com/haventory/haventory-backend/internal/platform/gcp"
	"github.com/haventory/haventory-backend/internal/platform/logger"
)

// SignedURLExpiry is how long a review-time artifact link stays valid.
const SignedURLExpiry = 15 * time.Minute

// ReviewService is the human end of the pipeline: list and inspect
// documents, confirm or discard what processing produced, delete outright.
type ReviewService interface {
	List(ctx context.Context, ownerID uuid.UUID) ([]*docs.Document, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*docs.Document, error)
	Confirm(ctx context.Context, ownerID, id uuid.UUID) (*docs.Document, error)
	Discard(ctx context.Context, ownerID, id uuid.UUID) (*docs.Document, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	SignedURL(ctx context.Context, ownerID, id uuid.UUID) (string, error)
	UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, to docs.ProcessingStatus, retryCount *int) (*docs.Document, error)
}

type reviewService struct {
	log       *logger.Logger
	documents docsrepo.DocumentRepo
	bucket    gcp.BucketService
	notifier  DocumentNotifier
}

func NewReviewService(
	log *logger.Logger,
	documents docsrepo.DocumentRepo,
	bucket gcp.BucketService,
	notifier DocumentNotifier,
) ReviewService {
	return &reviewService{
		log:       log.With("service", "ReviewService"),
		documents: documents,
		bucket:    bucket,
		notifier:  notifier,
	}
}

func (s *reviewService) List(ctx context.Context, ownerID uuid.UUID) ([]*docs.Document, error) {
	return s.documents.ListByOwner(dbctx.Context{Ctx: ctx}, ownerID)
}

func (s *reviewService) Get(ctx context.Context, ownerID, id uuid.UUID) (*docs.Document, error) {
	return s.documents.GetOwned(dbctx.Context{Ctx: ctx}, id, ownerID)
}

func (s *reviewService) Confirm(ctx context.Context, ownerID, id uuid.UUID) (*docs.Document, error) {
	return s.finalize(ctx, ownerID, id, docs.StatusConfirmed)
}

func (s *reviewService) Discard(ctx context.Context, ownerID, id uuid.UUID) (*docs.Document, error) {
	return s.finalize(ctx, ownerID, id, docs.StatusDiscarded)
}

func (s *reviewService) finalize(ctx context.Context, ownerID, id uuid.UUID, to docs.ProcessingStatus) (*docs.Document, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.documents.GetOwned(dbc, id, ownerID); err != nil {
		return nil, err
	}
	doc, err := s.documents.Finalize(dbc, id, to)
	if err != nil {
		return nil, err
	}
	s.notifier.StatusChanged(ctx, doc)
	s.log.Info("Document finalized", "document_id", id.String(), "status", to)
	return doc, nil
}

// Delete removes the record and, best-effort, the stored artifact. Any
// status is deletable; review gating applies to confirm/discard only.
func (s *reviewService) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	doc, err := s.documents.GetOwned(dbc, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.documents.FullDelete(dbc, id); err != nil {
		return err
	}
	if doc.StorageKey != "" {
		if err := s.bucket.Delete(ctx, doc.StorageKey); err != nil {
			s.log.Warn("Artifact delete failed after record delete",
				"document_id", id.String(), "key", doc.StorageKey, "error", err)
		}
	}
	s.log.Info("Document deleted", "document_id", id.String())
	return nil
}

func (s *reviewService) SignedURL(ctx context.Context, ownerID, id uuid.UUID) (string, error) {
	doc, err := s.documents.GetOwned(dbctx.Context{Ctx: ctx}, id, ownerID)
	if err != nil {
		return "", err
	}
	if doc.StorageKey == "" {
		return "", apperr.NotFound("artifact_missing", "document %s has no stored artifact", id)
	}
	if !gcp.KeyOwnedBy(doc.StorageKey, ownerID) {
		return "", apperr.Authorization("artifact_forbidden", "artifact key not under caller's prefix")
	}
	return s.bucket.SignedURL(doc.StorageKey, SignedURLExpiry)
}

func (s *reviewService) UpdateStatus(ctx context.Context, ownerID, id uuid.UUID, to docs.ProcessingStatus, retryCount *int) (*docs.Document, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.documents.GetOwned(dbc, id, ownerID); err != nil {
		return nil, err
	}
	doc, err := s.documents.UpdateStatus(dbc, id, to, retryCount)
	if err != nil {
		return nil, err
	}
	s.notifier.StatusChanged(ctx, doc)
	return doc, nil
}
