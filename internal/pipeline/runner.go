// Package pipeline drives a claimed document through extraction and
// resolution. The runner is transport-agnostic: the same code executes
// inside a Temporal activity or inline in-process, and every status write
// goes through DocumentRepo's conditional updates.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/haventory/haventory-backend/internal/data/repos/docsrepo"
	"github.com/haventory/haventory-backend/internal/data/repos/inventoryrepo"
	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/domain/inventory"
	"github.com/haventory/haventory-backend/internal/pipeline/extract"
	"github.com/haventory/haventory-backend/internal/pipeline/resolve"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/dbctx"
	"github.com/haventory/haventory-backend/internal/platform/gcp"
	"github.com/haventory/haventory-backend/internal/platform/logger"
)

// MaxAttempts is the total processing budget per document. The third
// failed attempt lands the document in failed instead of pending.
const MaxAttempts = 3

// RunInput identifies one processing attempt. PropertyID scopes the
// inventory candidates offered to the resolver; uuid.Nil means the
// document is not routed to a property yet and resolution sees no
// candidates.
type RunInput struct {
	DocumentID uuid.UUID `json:"document_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	PropertyID uuid.UUID `json:"property_id"`
}

// Notifier is told when a document reaches ready_for_review. Failures to
// notify never fail the attempt.
type Notifier interface {
	DocumentReady(ctx context.Context, doc *docs.Document)
}

// NopNotifier is used where no notification channel is configured.
type NopNotifier struct{}

func (NopNotifier) DocumentReady(context.Context, *docs.Document) {}

type Runner struct {
	log       *logger.Logger
	documents docsrepo.DocumentRepo
	items     inventoryrepo.ItemRepo
	bucket    gcp.BucketService
	extractor *extract.Extractor
	resolver  *resolve.Resolver
	notifier  Notifier
}

func NewRunner(
	log *logger.Logger,
	documents docsrepo.DocumentRepo,
	items inventoryrepo.ItemRepo,
	bucket gcp.BucketService,
	extractor *extract.Extractor,
	resolver *resolve.Resolver,
	notifier Notifier,
) *Runner {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Runner{
		log:       log.With("component", "PipelineRunner"),
		documents: documents,
		items:     items,
		bucket:    bucket,
		extractor: extractor,
		resolver:  resolver,
		notifier:  notifier,
	}
}

// Run executes one full attempt: claim, extract (unless already extracted),
// resolve, persist. A stage error records the failure (regressing to
// pending or landing in failed) and is returned to the caller so the
// scheduler can decide whether to redispatch.
func (r *Runner) Run(ctx context.Context, in RunInput) error {
	log := r.log.With("document_id", in.DocumentID.String())
	dbc := dbctx.Context{Ctx: ctx}

	doc, err := r.documents.ClaimForProcessing(dbc, in.DocumentID)
	if err != nil {
		// A lost claim means another attempt owns the document; there is
		// nothing to record and nothing to retry.
		log.Warn("Claim failed", "error", err)
		return err
	}
	log.Info("Attempt started", "retry_count", doc.RetryCount, "source", doc.Source)

	extraction, err := r.ensureExtraction(dbc, doc)
	if err != nil {
		return r.fail(dbc, log, in.DocumentID, "extract", err)
	}

	items, err := r.candidates(dbc, in.PropertyID)
	if err != nil {
		return r.fail(dbc, log, in.DocumentID, "list_candidates", err)
	}

	resolution, err := r.resolver.Resolve(ctx, extraction, items)
	if err != nil {
		return r.fail(dbc, log, in.DocumentID, "resolve", err)
	}

	resolutionJSON, err := resolution.ToJSON()
	if err != nil {
		return r.fail(dbc, log, in.DocumentID, "encode_resolution", err)
	}
	if err := r.documents.SetResolution(dbc, in.DocumentID, resolutionJSON); err != nil {
		return r.fail(dbc, log, in.DocumentID, "persist_resolution", err)
	}

	updated, err := r.documents.GetByID(dbc, in.DocumentID)
	if err == nil {
		r.notifier.DocumentReady(ctx, updated)
	}

	log.Info("Attempt complete", "action", resolution.Action, "confidence", resolution.Confidence)
	return nil
}

// ensureExtraction returns the document's extraction, producing and
// persisting one when absent. Email-body documents arrive with their
// extraction seeded at ingress and skip the classifier entirely.
func (r *Runner) ensureExtraction(dbc dbctx.Context, doc *docs.Document) (*docs.ExtractionResult, error) {
	if existing, err := docs.ExtractionFromJSON(doc.ExtractedData); err == nil && existing != nil {
		return existing, nil
	}

	raw, err := r.bucket.Download(dbc.Ctx, doc.StorageKey)
	if err != nil {
		return nil, err
	}

	extraction, err := r.extractor.Extract(dbc.Ctx, raw, doc.ContentType)
	if err != nil {
		return nil, err
	}
	if doc.Source == docs.SourceEmail && extraction.DocumentType == docs.DocTypeOther {
		extraction.DocumentType = docs.DocTypeEmailAttachment
	}

	extractionJSON, err := extraction.ToJSON()
	if err != nil {
		return nil, err
	}
	if err := r.documents.SetExtraction(dbc, doc.ID, extractionJSON); err != nil {
		return nil, err
	}
	return extraction, nil
}

func (r *Runner) candidates(dbc dbctx.Context, propertyID uuid.UUID) ([]*inventory.Item, error) {
	if propertyID == uuid.Nil {
		return nil, nil
	}
	return r.items.ListByPropertyID(dbc, propertyID, resolve.MaxCandidates)
}

// fail records the attempt outcome and returns an error describing both
// the stage failure and where the document landed.
func (r *Runner) fail(dbc dbctx.Context, log *logger.Logger, id uuid.UUID, stage string, cause error) error {
	doc, recErr := r.documents.RecordFailure(dbc, id, MaxAttempts)
	if recErr != nil {
		log.Error("Failed to record attempt failure", "stage", stage, "cause", cause, "error", recErr)
		return fmt.Errorf("%s failed (unrecorded): %w", stage, cause)
	}
	log.Warn("Attempt failed",
		"stage", stage,
		"retry_count", doc.RetryCount,
		"status", doc.ProcessingStatus,
		"error", cause,
	)
	if doc.ProcessingStatus == docs.StatusFailed {
		return apperr.State("processing_exhausted",
			"document %s failed after %d attempts: %v", id, doc.RetryCount, cause)
	}
	return fmt.Errorf("%s failed on attempt %d: %w", stage, doc.RetryCount, cause)
}
