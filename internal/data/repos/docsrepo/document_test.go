package docsrepo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/haventory/haventory-backend/internal/data/repos/testutil"
	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/dbctx"
)

func repoFixture(t *testing.T) (DocumentRepo, dbctx.Context) {
	t.Helper()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewDocumentRepo(tx, testutil.Logger(t))
	return repo, dbctx.Context{Ctx: context.Background(), Tx: tx}
}

func seedDoc(t *testing.T, repo DocumentRepo, dbc dbctx.Context, status docs.ProcessingStatus) *docs.Document {
	t.Helper()
	doc, err := repo.Create(dbc, &docs.Document{
		OwnerUserID:      uuid.New(),
		FileName:         "plate.jpg",
		ContentType:      "image/jpeg",
		SizeBytes:        3,
		ProcessingStatus: status,
		Source:           docs.SourceUpload,
	})
	if err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return doc
}

func TestClaimForProcessing(t *testing.T) {
	repo, dbc := repoFixture(t)
	doc := seedDoc(t, repo, dbc, docs.StatusPending)

	claimed, err := repo.ClaimForProcessing(dbc, doc.ID)
	if err != nil {
		t.Fatalf("ClaimForProcessing: %v", err)
	}
	if claimed.ProcessingStatus != docs.StatusProcessing {
		t.Fatalf("status = %q", claimed.ProcessingStatus)
	}

	// A second claim loses: the document is no longer pending.
	_, err = repo.ClaimForProcessing(dbc, doc.ID)
	if !apperr.IsKind(err, apperr.KindState) || apperr.CodeOf(err) != "document_not_claimable" {
		t.Fatalf("second claim: %v", err)
	}
}

func TestClaimMissingDocument(t *testing.T) {
	repo, dbc := repoFixture(t)
	_, err := repo.ClaimForProcessing(dbc, uuid.New())
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestSetExtractionRequiresProcessing(t *testing.T) {
	repo, dbc := repoFixture(t)
	doc := seedDoc(t, repo, dbc, docs.StatusPending)

	payload := datatypes.JSON(`{"document_type":"receipt","confidence":0.8,"extracted":{}}`)
	if err := repo.SetExtraction(dbc, doc.ID, payload); !apperr.IsKind(err, apperr.KindState) {
		t.Fatalf("extraction on pending doc: %v", err)
	}

	if _, err := repo.ClaimForProcessing(dbc, doc.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.SetExtraction(dbc, doc.ID, payload); err != nil {
		t.Fatalf("SetExtraction: %v", err)
	}

	got, err := repo.GetByID(dbc, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.ExtractedData) == 0 {
		t.Fatal("extracted_data not persisted")
	}
}

func TestSetResolutionCompletesAttempt(t *testing.T) {
	repo, dbc := repoFixture(t)
	doc := seedDoc(t, repo, dbc, docs.StatusPending)
	if _, err := repo.ClaimForProcessing(dbc, doc.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := repo.SetResolution(dbc, doc.ID, datatypes.JSON(`{"action":"NEW_ITEM","confidence":0.4}`)); err != nil {
		t.Fatalf("SetResolution: %v", err)
	}

	got, err := repo.GetByID(dbc, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ProcessingStatus != docs.StatusReadyForReview {
		t.Fatalf("status = %q", got.ProcessingStatus)
	}
	if got.ProcessedAt == nil {
		t.Fatal("processed_at not stamped")
	}
}

func TestRecordFailureRegressesToPending(t *testing.T) {
	repo, dbc := repoFixture(t)
	doc := seedDoc(t, repo, dbc, docs.StatusPending)
	if _, err := repo.ClaimForProcessing(dbc, doc.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	got, err := repo.RecordFailure(dbc, doc.ID, 3)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if got.ProcessingStatus != docs.StatusPending || got.RetryCount != 1 {
		t.Fatalf("doc = %s retry=%d, want pending/1", got.ProcessingStatus, got.RetryCount)
	}
}

func TestRecordFailureExhaustsBudget(t *testing.T) {
	repo, dbc := repoFixture(t)
	doc := seedDoc(t, repo, dbc, docs.StatusPending)

	const maxAttempts = 3
	var last *docs.Document
	for i := 0; i < maxAttempts; i++ {
		if _, err := repo.ClaimForProcessing(dbc, doc.ID); err != nil {
			t.Fatalf("claim %d: %v", i+1, err)
		}
		var err error
		last, err = repo.RecordFailure(dbc, doc.ID, maxAttempts)
		if err != nil {
			t.Fatalf("RecordFailure %d: %v", i+1, err)
		}
	}
	if last.ProcessingStatus != docs.StatusFailed || last.RetryCount != maxAttempts {
		t.Fatalf("doc = %s retry=%d, want failed/%d", last.ProcessingStatus, last.RetryCount, maxAttempts)
	}

	// A failed document is no longer claimable.
	if _, err := repo.ClaimForProcessing(dbc, doc.ID); apperr.CodeOf(err) != "document_not_claimable" {
		t.Fatalf("claim after exhaustion: %v", err)
	}
}

func TestFinalizeGate(t *testing.T) {
	repo, dbc := repoFixture(t)

	ready := seedDoc(t, repo, dbc, docs.StatusReadyForReview)
	got, err := repo.Finalize(dbc, ready.ID, docs.StatusConfirmed)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got.ProcessingStatus != docs.StatusConfirmed {
		t.Fatalf("status = %q", got.ProcessingStatus)
	}

	pending := seedDoc(t, repo, dbc, docs.StatusPending)
	if _, err := repo.Finalize(dbc, pending.ID, docs.StatusDiscarded); apperr.CodeOf(err) != "document_not_reviewable" {
		t.Fatalf("finalize pending doc: %v", err)
	}

	// Only the two terminal statuses are valid targets.
	if _, err := repo.Finalize(dbc, ready.ID, docs.StatusPending); !apperr.IsKind(err, apperr.KindState) {
		t.Fatalf("finalize to pending: %v", err)
	}
}

func TestUpdateStatusTransitionGuard(t *testing.T) {
	repo, dbc := repoFixture(t)
	doc := seedDoc(t, repo, dbc, docs.StatusPending)

	if _, err := repo.UpdateStatus(dbc, doc.ID, docs.StatusConfirmed, nil); !apperr.IsKind(err, apperr.KindState) {
		t.Fatalf("pending -> confirmed: %v", err)
	}

	got, err := repo.UpdateStatus(dbc, doc.ID, docs.StatusProcessing, nil)
	if err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	if got.ProcessingStatus != docs.StatusProcessing {
		t.Fatalf("status = %q", got.ProcessingStatus)
	}
}

func TestUpdateStatusRetryCountMonotonic(t *testing.T) {
	repo, dbc := repoFixture(t)
	doc := seedDoc(t, repo, dbc, docs.StatusPending)

	two := 2
	if _, err := repo.UpdateStatus(dbc, doc.ID, docs.StatusProcessing, &two); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	one := 1
	_, err := repo.UpdateStatus(dbc, doc.ID, docs.StatusPending, &one)
	if !apperr.IsKind(err, apperr.KindValidation) || apperr.CodeOf(err) != "retry_count_decreasing" {
		t.Fatalf("got %v", err)
	}
}

func TestGetOwned(t *testing.T) {
	repo, dbc := repoFixture(t)
	doc := seedDoc(t, repo, dbc, docs.StatusPending)

	if _, err := repo.GetOwned(dbc, doc.ID, doc.OwnerUserID); err != nil {
		t.Fatalf("GetOwned: %v", err)
	}
	if _, err := repo.GetOwned(dbc, doc.ID, uuid.New()); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("foreign owner: %v", err)
	}
}

func TestFullDelete(t *testing.T) {
	repo, dbc := repoFixture(t)
	doc := seedDoc(t, repo, dbc, docs.StatusFailed)

	if err := repo.FullDelete(dbc, doc.ID); err != nil {
		t.Fatalf("FullDelete: %v", err)
	}
	if _, err := repo.GetByID(dbc, doc.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("got %v", err)
	}
}
