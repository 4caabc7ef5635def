package services

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/haventory/haventory-backend/internal/data/repos/docsrepo"
	"github.com/haventory/haventory-backend/internal/data/repos/inventoryrepo"
	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/domain/inventory"
	"github.com/haventory/haventory-backend/internal/pipeline"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/dbctx"
	"github.com/haventory/haventory-backend/internal/platform/resend"
)

func nilDBC() dbctx.Context { return dbctx.Context{} }

type fakeDocRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*docs.Document
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[uuid.UUID]*docs.Document)}
}

func (m *fakeDocRepo) put(d *docs.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.docs[d.ID] = &cp
}

func (m *fakeDocRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *fakeDocRepo) Create(dbc dbctx.Context, doc *docs.Document) (*docs.Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.ProcessingStatus == "" {
		doc.ProcessingStatus = docs.StatusPending
	}
	m.put(doc)
	return doc, nil
}

func (m *fakeDocRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*docs.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("document_missing", "document %s not found", id)
	}
	cp := *d
	return &cp, nil
}

func (m *fakeDocRepo) GetOwned(dbc dbctx.Context, id, ownerID uuid.UUID) (*docs.Document, error) {
	d, err := m.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if d.OwnerUserID != ownerID {
		return nil, apperr.Authorization("document_forbidden", "document %s not owned by caller", id)
	}
	return d, nil
}

func (m *fakeDocRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]*docs.Document, error) {
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

func (m *fakeDocRepo) ClaimForProcessing(dbc dbctx.Context, id uuid.UUID) (*docs.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("document_missing", "document %s not found", id)
	}
	if d.ProcessingStatus != docs.StatusPending {
		return nil, apperr.State("document_not_claimable", "document %s is %s", id, d.ProcessingStatus)
	}
	d.ProcessingStatus = docs.StatusProcessing
	cp := *d
	return &cp, nil
}

func (m *fakeDocRepo) SetExtraction(dbc dbctx.Context, id uuid.UUID, extraction datatypes.JSON) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		d.ExtractedData = extraction
		return nil
	}
	return apperr.NotFound("document_missing", "document %s not found", id)
}

func (m *fakeDocRepo) SetResolution(dbc dbctx.Context, id uuid.UUID, resolution datatypes.JSON) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		now := time.Now().UTC()
		d.ResolveData = resolution
		d.ProcessingStatus = docs.StatusReadyForReview
		d.ProcessedAt = &now
		return nil
	}
	return apperr.NotFound("document_missing", "document %s not found", id)
}

func (m *fakeDocRepo) RecordFailure(dbc dbctx.Context, id uuid.UUID, maxAttempts int) (*docs.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("document_missing", "document %s not found", id)
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

func (m *fakeDocRepo) Finalize(dbc dbctx.Context, id uuid.UUID, to docs.ProcessingStatus) (*docs.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("document_missing", "document %s not found", id)
	}
	if d.ProcessingStatus != docs.StatusReadyForReview {
		return nil, apperr.State("document_not_reviewable", "document %s is %s, not ready_for_review", id, d.ProcessingStatus)
	}
	d.ProcessingStatus = to
	cp := *d
	return &cp, nil
}

func (m *fakeDocRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, to docs.ProcessingStatus, retryCount *int) (*docs.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("document_missing", "document %s not found", id)
	}
	if err := docs.CheckTransition(d.ProcessingStatus, to); err != nil {
		return nil, err
	}
	if retryCount != nil {
		if *retryCount < d.RetryCount {
			return nil, apperr.Validation("retry_count_decreasing", "retry count only increases")
		}
		d.RetryCount = *retryCount
	}
	d.ProcessingStatus = to
	cp := *d
	return &cp, nil
}

func (m *fakeDocRepo) FullDelete(dbc dbctx.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

var _ docsrepo.DocumentRepo = (*fakeDocRepo)(nil)

type fakePropertyRepo struct {
	properties []*inventory.Property
}

func (f *fakePropertyRepo) Create(dbc dbctx.Context, p *inventory.Property) (*inventory.Property, error) {
	f.properties = append(f.properties, p)
	return p, nil
}

func (f *fakePropertyRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*inventory.Property, error) {
	for _, p := range f.properties {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperr.NotFound("property_missing", "property %s not found", id)
}

func (f *fakePropertyRepo) GetByIngestToken(dbc dbctx.Context, token string) (*inventory.Property, error) {
	for _, p := range f.properties {
		if p.IngestToken == token {
			return p, nil
		}
	}
	return nil, apperr.NotFound("property_missing", "no property for ingest token")
}

var _ inventoryrepo.PropertyRepo = (*fakePropertyRepo)(nil)

type fakeSystemRepo struct {
	systems []*inventory.HomeSystem
}

func (f *fakeSystemRepo) Create(dbc dbctx.Context, s *inventory.HomeSystem) (*inventory.HomeSystem, error) {
	f.systems = append(f.systems, s)
	return s, nil
}

func (f *fakeSystemRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*inventory.HomeSystem, error) {
	for _, s := range f.systems {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, apperr.NotFound("system_missing", "home system %s not found", id)
}

var _ inventoryrepo.SystemRepo = (*fakeSystemRepo)(nil)

type fakeItemRepo struct {
	items []*inventory.Item
}

func (f *fakeItemRepo) Create(dbc dbctx.Context, item *inventory.Item) (*inventory.Item, error) {
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeItemRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*inventory.Item, error) {
	for _, it := range f.items {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, apperr.NotFound("item_missing", "item %s not found", id)
}

func (f *fakeItemRepo) ListByPropertyID(dbc dbctx.Context, propertyID uuid.UUID, limit int) ([]*inventory.Item, error) {
	return f.items, nil
}

var _ inventoryrepo.ItemRepo = (*fakeItemRepo)(nil)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	deletes []string
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
	b.deletes = append(b.deletes, key)
	return nil
}

func (b *fakeBucket) SignedURL(key string, expiry time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

func (b *fakeBucket) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type fakeScheduler struct {
	mu   sync.Mutex
	runs []pipeline.RunInput
}

func (s *fakeScheduler) Schedule(ctx context.Context, in pipeline.RunInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, in)
	return nil
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

type fakeProvider struct {
	body        *resend.EmailBody
	bodyErr     error
	attachments map[string][]byte
}

func (f *fakeProvider) GetEmailBody(ctx context.Context, emailID string) (*resend.EmailBody, error) {
	if f.bodyErr != nil {
		return nil, f.bodyErr
	}
	if f.body == nil {
		return &resend.EmailBody{}, nil
	}
	return f.body, nil
}

func (f *fakeProvider) DownloadAttachment(ctx context.Context, url string) ([]byte, error) {
	raw, ok := f.attachments[url]
	if !ok {
		return nil, apperr.NotFound("attachment_missing", "no attachment at %s", url)
	}
	return raw, nil
}

var _ resend.Client = (*fakeProvider)(nil)

type nopNotifier struct{}

func (nopNotifier) StatusChanged(context.Context, *docs.Document) {}
func (nopNotifier) DocumentReady(context.Context, *docs.Document) {}
