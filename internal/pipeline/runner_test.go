package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/haventory/haventory-backend/internal/data/repos/docsrepo"
	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/domain/inventory"
	"github.com/haventory/haventory-backend/internal/pipeline/extract"
	"github.com/haventory/haventory-backend/internal/pipeline/resolve"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/dbctx"
	"github.com/haventory/haventory-backend/internal/platform/logger"
	"github.com/haventory/haventory-backend/internal/platform/openai"
)

// memDocRepo mirrors the repo's conditional-update semantics in memory so
// the runner's claim/regression behavior can be exercised without postgres.
type memDocRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*docs.Document
}

func newMemDocRepo() *memDocRepo {
	return &memDocRepo{docs: make(map[uuid.UUID]*docs.Document)}
}

func (m *memDocRepo) put(d *docs.Document) *docs.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.docs[d.ID] = &cp
	return d
}

func (m *memDocRepo) Create(dbc dbctx.Context, doc *docs.Document) (*docs.Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.ProcessingStatus == "" {
		doc.ProcessingStatus = docs.StatusPending
	}
	return m.put(doc), nil
}

func (m *memDocRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*docs.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("document_missing", "document %s not found", id)
	}
	cp := *d
	return &cp, nil
}

func (m *memDocRepo) GetOwned(dbc dbctx.Context, id, ownerID uuid.UUID) (*docs.Document, error) {
	d, err := m.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if d.OwnerUserID != ownerID {
		return nil, apperr.Authorization("document_forbidden", "document %s not owned by caller", id)
	}
	return d, nil
}

func (m *memDocRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]*docs.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*docs.Document
	for _, d := range m.docs {
		if d.OwnerUserID == ownerID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDocRepo) ClaimForProcessing(dbc dbctx.Context, id uuid.UUID) (*docs.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("document_missing", "document %s not found", id)
	}
	if d.ProcessingStatus != docs.StatusPending {
		return nil, apperr.State("document_not_claimable", "document %s is %s, not pending", id, d.ProcessingStatus)
	}
	d.ProcessingStatus = docs.StatusProcessing
	cp := *d
	return &cp, nil
}

func (m *memDocRepo) SetExtraction(dbc dbctx.Context, id uuid.UUID, extraction datatypes.JSON) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.ProcessingStatus != docs.StatusProcessing {
		return apperr.State("document_not_processing", "document %s is not processing", id)
	}
	d.ExtractedData = extraction
	return nil
}

func (m *memDocRepo) SetResolution(dbc dbctx.Context, id uuid.UUID, resolution datatypes.JSON) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.ProcessingStatus != docs.StatusProcessing {
		return apperr.State("document_not_processing", "document %s is not processing", id)
	}
	now := time.Now().UTC()
	d.ResolveData = resolution
	d.ProcessingStatus = docs.StatusReadyForReview
	d.ProcessedAt = &now
	return nil
}

func (m *memDocRepo) RecordFailure(dbc dbctx.Context, id uuid.UUID, maxAttempts int) (*docs.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.ProcessingStatus != docs.StatusProcessing {
		return nil, apperr.State("document_not_processing", "document %s is not processing", id)
	}
	d.RetryCount++
	if d.RetryCount >= maxAttempts {
		d.ProcessingStatus = docs.StatusFailed
	} else {
		d.ProcessingStatus = docs.StatusPending
	}
	cp := *d
	return &cp, nil
}

func (m *memDocRepo) Finalize(dbc dbctx.Context, id uuid.UUID, to docs.ProcessingStatus) (*docs.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("document_missing", "document %s not found", id)
	}
	if d.ProcessingStatus != docs.StatusReadyForReview {
		return nil, apperr.State("document_not_reviewable", "document %s is %s", id, d.ProcessingStatus)
	}
	d.ProcessingStatus = to
	cp := *d
	return &cp, nil
}

func (m *memDocRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, to docs.ProcessingStatus, retryCount *int) (*docs.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("document_missing", "document %s not found", id)
	}
	if err := docs.CheckTransition(d.ProcessingStatus, to); err != nil {
		return nil, err
	}
	d.ProcessingStatus = to
	if retryCount != nil {
		d.RetryCount = *retryCount
	}
	cp := *d
	return &cp, nil
}

func (m *memDocRepo) FullDelete(dbc dbctx.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

var _ docsrepo.DocumentRepo = (*memDocRepo)(nil)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (b *fakeBucket) Upload(ctx context.Context, key, contentType string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.objects[key]; exists {
		return apperr.State("artifact_exists", "object %s already exists", key)
	}
	b.objects[key] = raw
	return nil
}

func (b *fakeBucket) Download(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[key]
	if !ok {
		return nil, apperr.NotFound("artifact_missing", "object %s not found", key)
	}
	return raw, nil
}

func (b *fakeBucket) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *fakeBucket) SignedURL(key string, expiry time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

type fakeItems struct {
	items []*inventory.Item
}

func (f *fakeItems) Create(dbc dbctx.Context, item *inventory.Item) (*inventory.Item, error) {
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeItems) GetByID(dbc dbctx.Context, id uuid.UUID) (*inventory.Item, error) {
	for _, it := range f.items {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, apperr.NotFound("item_missing", "item %s not found", id)
}

func (f *fakeItems) ListByPropertyID(dbc dbctx.Context, propertyID uuid.UUID, limit int) ([]*inventory.Item, error) {
	return f.items, nil
}

type fakeModel struct {
	extractText string
	extractErr  error
	resolveText string
	resolveErr  error

	imageCalls int
	textCalls  int
}

func (f *fakeModel) GenerateText(ctx context.Context, system, user string) (string, error) {
	f.textCalls++
	return f.resolveText, f.resolveErr
}

func (f *fakeModel) GenerateTextWithImages(ctx context.Context, system, user string, images []openai.ImageInput) (string, error) {
	f.imageCalls++
	return f.extractText, f.extractErr
}

var _ openai.Client = (*fakeModel)(nil)

type recordingNotifier struct {
	mu    sync.Mutex
	ready []uuid.UUID
}

func (n *recordingNotifier) DocumentReady(ctx context.Context, doc *docs.Document) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = append(n.ready, doc.ID)
}

const goodExtraction = `{"document_type":"equipment_plate","confidence":0.9,"raw_text":"SN 1","extracted":{"serial_number":"1"}}`
const goodResolution = `{"action":"NEW_ITEM","confidence":0.6,"reasoning":"no match"}`

type runnerFixture struct {
	repo     *memDocRepo
	bucket   *fakeBucket
	model    *fakeModel
	notifier *recordingNotifier
	runner   *Runner
	ownerID  uuid.UUID
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	repo := newMemDocRepo()
	bucket := newFakeBucket()
	model := &fakeModel{extractText: goodExtraction, resolveText: goodResolution}
	notifier := &recordingNotifier{}
	runner := NewRunner(log, repo, &fakeItems{}, bucket,
		extract.NewExtractor(log, model),
		resolve.NewResolver(log, model),
		notifier,
	)
	return &runnerFixture{
		repo:     repo,
		bucket:   bucket,
		model:    model,
		notifier: notifier,
		runner:   runner,
		ownerID:  uuid.New(),
	}
}

func (f *runnerFixture) seedDocument(t *testing.T, status docs.ProcessingStatus, retryCount int) *docs.Document {
	t.Helper()
	id := uuid.New()
	key := "users/" + f.ownerID.String() + "/documents/" + id.String() + "/plate.jpg"
	if err := f.bucket.Upload(context.Background(), key, "image/jpeg", bytes.NewReader([]byte{0xFF, 0xD8})); err != nil {
		t.Fatalf("seed bucket: %v", err)
	}
	doc := &docs.Document{
		ID:               id,
		OwnerUserID:      f.ownerID,
		FileName:         "plate.jpg",
		StorageKey:       key,
		ContentType:      "image/jpeg",
		ProcessingStatus: status,
		RetryCount:       retryCount,
		Source:           docs.SourceUpload,
	}
	if _, err := f.repo.Create(dbctx.Context{Ctx: context.Background()}, doc); err != nil {
		t.Fatalf("seed doc: %v", err)
	}
	return doc
}

func TestRunHappyPath(t *testing.T) {
	f := newRunnerFixture(t)
	doc := f.seedDocument(t, docs.StatusPending, 0)

	err := f.runner.Run(context.Background(), RunInput{DocumentID: doc.ID, OwnerID: f.ownerID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := f.repo.GetByID(dbctx.Context{Ctx: context.Background()}, doc.ID)
	if got.ProcessingStatus != docs.StatusReadyForReview {
		t.Fatalf("status = %s", got.ProcessingStatus)
	}
	if len(got.ExtractedData) == 0 || len(got.ResolveData) == 0 {
		t.Fatal("pipeline outputs not persisted")
	}
	if got.ProcessedAt == nil {
		t.Fatal("processed_at not stamped")
	}
	if len(f.notifier.ready) != 1 || f.notifier.ready[0] != doc.ID {
		t.Fatalf("notifier calls = %v", f.notifier.ready)
	}
}

func TestRunExtractionFailureRegressesToPending(t *testing.T) {
	f := newRunnerFixture(t)
	f.model.extractErr = errors.New("model down")
	doc := f.seedDocument(t, docs.StatusPending, 0)

	err := f.runner.Run(context.Background(), RunInput{DocumentID: doc.ID, OwnerID: f.ownerID})
	if err == nil {
		t.Fatal("expected error")
	}
	if !Retryable(err) {
		t.Fatalf("first failure should be retryable: %v", err)
	}

	got, _ := f.repo.GetByID(dbctx.Context{Ctx: context.Background()}, doc.ID)
	if got.ProcessingStatus != docs.StatusPending {
		t.Fatalf("status = %s, want pending", got.ProcessingStatus)
	}
	if got.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", got.RetryCount)
	}
	if len(got.ResolveData) != 0 {
		t.Fatal("resolution must not be set on a failed attempt")
	}
}

func TestRunExhaustsRetryBudget(t *testing.T) {
	f := newRunnerFixture(t)
	f.model.extractErr = errors.New("model still down")
	doc := f.seedDocument(t, docs.StatusPending, MaxAttempts-1)

	err := f.runner.Run(context.Background(), RunInput{DocumentID: doc.ID, OwnerID: f.ownerID})
	if apperr.CodeOf(err) != "processing_exhausted" {
		t.Fatalf("got %v", err)
	}
	if Retryable(err) {
		t.Fatal("exhausted error must not be retryable")
	}

	got, _ := f.repo.GetByID(dbctx.Context{Ctx: context.Background()}, doc.ID)
	if got.ProcessingStatus != docs.StatusFailed {
		t.Fatalf("status = %s, want failed", got.ProcessingStatus)
	}
	if got.RetryCount != MaxAttempts {
		t.Fatalf("retry count = %d, want %d", got.RetryCount, MaxAttempts)
	}
}

func TestRunLostClaimAborts(t *testing.T) {
	f := newRunnerFixture(t)
	doc := f.seedDocument(t, docs.StatusProcessing, 0)

	err := f.runner.Run(context.Background(), RunInput{DocumentID: doc.ID, OwnerID: f.ownerID})
	if apperr.CodeOf(err) != "document_not_claimable" {
		t.Fatalf("got %v", err)
	}
	if Retryable(err) {
		t.Fatal("lost claim must not be retryable")
	}

	got, _ := f.repo.GetByID(dbctx.Context{Ctx: context.Background()}, doc.ID)
	if got.RetryCount != 0 {
		t.Fatalf("lost claim must not touch retry bookkeeping, count = %d", got.RetryCount)
	}
	if f.model.imageCalls != 0 || f.model.textCalls != 0 {
		t.Fatal("no model calls expected after a lost claim")
	}
}

func TestRunSkipsExtractionWhenSeeded(t *testing.T) {
	f := newRunnerFixture(t)
	doc := f.seedDocument(t, docs.StatusPending, 0)

	seeded := docs.ExtractionResult{DocumentType: docs.DocTypeEmailText, Confidence: 1, RawText: "the water heater was replaced last week"}
	raw, err := seeded.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	doc.ExtractedData = raw
	f.repo.put(doc)

	if err := f.runner.Run(context.Background(), RunInput{DocumentID: doc.ID, OwnerID: f.ownerID}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.model.imageCalls != 0 {
		t.Fatalf("classifier called %d times for a seeded document", f.model.imageCalls)
	}
	if f.model.textCalls != 1 {
		t.Fatalf("resolver calls = %d, want 1", f.model.textCalls)
	}

	got, _ := f.repo.GetByID(dbctx.Context{Ctx: context.Background()}, doc.ID)
	if got.ProcessingStatus != docs.StatusReadyForReview {
		t.Fatalf("status = %s", got.ProcessingStatus)
	}
}

func TestRetryableClassification(t *testing.T) {
	if Retryable(nil) {
		t.Fatal("nil error is not retryable")
	}
	if !Retryable(errors.New("transient")) {
		t.Fatal("plain errors are retryable")
	}
	if !Retryable(apperr.ExternalService("classifier_failed", errors.New("upstream"))) {
		t.Fatal("external service errors are retryable")
	}
}
