package docsrepo

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/dbctx"
	"github.com/haventory/haventory-backend/internal/platform/logger"
)

// DocumentRepo owns every status write in the system. All lifecycle
// transitions go through conditional updates so the state-machine guard and
// the write are one statement; there is no status mutex anywhere else.
type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *docs.Document) (*docs.Document, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*docs.Document, error)
	GetOwned(dbc dbctx.Context, id uuid.UUID, ownerID uuid.UUID) (*docs.Document, error)
	ListByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]*docs.Document, error)

	// ClaimForProcessing atomically moves pending -> processing. A second
	// concurrent claim for the same id gets a StateError and must abort.
	ClaimForProcessing(dbc dbctx.Context, id uuid.UUID) (*docs.Document, error)

	SetExtraction(dbc dbctx.Context, id uuid.UUID, extraction datatypes.JSON) error

	// SetResolution persists the resolution output and completes the
	// attempt: processing -> ready_for_review with processed_at stamped.
	SetResolution(dbc dbctx.Context, id uuid.UUID, resolution datatypes.JSON) error

	// RecordFailure increments retry_count and regresses processing ->
	// pending while attempts remain, else processing -> failed.
	RecordFailure(dbc dbctx.Context, id uuid.UUID, maxAttempts int) (*docs.Document, error)

	// Finalize applies ready_for_review -> confirmed|discarded. processed_at
	// is stamped once by SetResolution and never touched here.
	Finalize(dbc dbctx.Context, id uuid.UUID, to docs.ProcessingStatus) (*docs.Document, error)

	// UpdateStatus applies an arbitrary edge of the transition table,
	// optionally forcing retry_count. Used by the status update call.
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, to docs.ProcessingStatus, retryCount *int) (*docs.Document, error)

	FullDelete(dbc dbctx.Context, id uuid.UUID) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *docs.Document) (*docs.Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.ProcessingStatus == "" {
		doc.ProcessingStatus = docs.StatusPending
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*docs.Document, error) {
	var doc docs.Document
	err := r.conn(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("document_missing", "document %s not found", id)
		}
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) GetOwned(dbc dbctx.Context, id uuid.UUID, ownerID uuid.UUID) (*docs.Document, error) {
	doc, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerUserID != ownerID {
		return nil, apperr.Authorization("document_forbidden", "document %s not owned by caller", id)
	}
	return doc, nil
}

func (r *documentRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]*docs.Document, error) {
	var results []*docs.Document
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("owner_user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentRepo) ClaimForProcessing(dbc dbctx.Context, id uuid.UUID) (*docs.Document, error) {
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&docs.Document{}).
		Where("id = ? AND processing_status = ?", id, docs.StatusPending).
		Updates(map[string]any{
			"processing_status": docs.StatusProcessing,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		doc, err := r.GetByID(dbc, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.State("document_not_claimable",
			"document %s is %s, not pending", id, doc.ProcessingStatus)
	}
	return r.GetByID(dbc, id)
}

func (r *documentRepo) SetExtraction(dbc dbctx.Context, id uuid.UUID, extraction datatypes.JSON) error {
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&docs.Document{}).
		Where("id = ? AND processing_status = ?", id, docs.StatusProcessing).
		Updates(map[string]any{
			"extracted_data": extraction,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.State("document_not_processing", "document %s is not processing", id)
	}
	return nil
}

func (r *documentRepo) SetResolution(dbc dbctx.Context, id uuid.UUID, resolution datatypes.JSON) error {
	now := time.Now().UTC()
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&docs.Document{}).
		Where("id = ? AND processing_status = ?", id, docs.StatusProcessing).
		Updates(map[string]any{
			"resolve_data":      resolution,
			"processing_status": docs.StatusReadyForReview,
			"processed_at":      now,
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.State("document_not_processing", "document %s is not processing", id)
	}
	return nil
}

func (r *documentRepo) RecordFailure(dbc dbctx.Context, id uuid.UUID, maxAttempts int) (*docs.Document, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&docs.Document{}).
		Where("id = ? AND processing_status = ?", id, docs.StatusProcessing).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"processing_status": gorm.Expr(
				"CASE WHEN retry_count + 1 >= ? THEN ? ELSE ? END",
				maxAttempts, string(docs.StatusFailed), string(docs.StatusPending),
			),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.State("document_not_processing", "document %s is not processing", id)
	}
	return r.GetByID(dbc, id)
}

func (r *documentRepo) Finalize(dbc dbctx.Context, id uuid.UUID, to docs.ProcessingStatus) (*docs.Document, error) {
	if to != docs.StatusConfirmed && to != docs.StatusDiscarded {
		return nil, apperr.State("invalid_status_transition", "finalize target %s is not terminal", to)
	}
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&docs.Document{}).
		Where("id = ? AND processing_status = ?", id, docs.StatusReadyForReview).
		Updates(map[string]any{
			"processing_status": to,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		doc, err := r.GetByID(dbc, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.State("document_not_reviewable",
			"document %s is %s, not ready_for_review", id, doc.ProcessingStatus)
	}
	return r.GetByID(dbc, id)
}

func (r *documentRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, to docs.ProcessingStatus, retryCount *int) (*docs.Document, error) {
	doc, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if err := docs.CheckTransition(doc.ProcessingStatus, to); err != nil {
		return nil, err
	}
	if retryCount != nil && *retryCount < doc.RetryCount {
		return nil, apperr.Validation("retry_count_decreasing",
			"retry count only increases (have %d, got %d)", doc.RetryCount, *retryCount)
	}

	updates := map[string]any{
		"processing_status": to,
		"updated_at":        time.Now().UTC(),
	}
	if retryCount != nil {
		updates["retry_count"] = *retryCount
	}
	if to == docs.StatusReadyForReview && doc.ProcessedAt == nil {
		updates["processed_at"] = time.Now().UTC()
	}

	// Guard on the status we just read so a concurrent transition loses
	// cleanly instead of overwriting.
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&docs.Document{}).
		Where("id = ? AND processing_status = ?", id, doc.ProcessingStatus).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.State("status_conflict", "document %s changed status concurrently", id)
	}
	return r.GetByID(dbc, id)
}

func (r *documentRepo) FullDelete(dbc dbctx.Context, id uuid.UUID) error {
	return r.conn(dbc).WithContext(dbc.Ctx).
		Unscoped().
		Where("id = ?", id).
		Delete(&docs.Document{}).Error
}
