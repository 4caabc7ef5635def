package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/domain/inventory"
)

func SeedProperty(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) *inventory.Property {
	tb.Helper()
	p := &inventory.Property{
		ID:          uuid.New(),
		OwnerUserID: ownerID,
		Name:        "home",
		IngestToken: uuid.NewString(),
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed property: %v", err)
	}
	return p
}

func SeedItem(tb testing.TB, ctx context.Context, tx *gorm.DB, propertyID uuid.UUID, name string) *inventory.Item {
	tb.Helper()
	item := &inventory.Item{
		ID:           uuid.New(),
		PropertyID:   propertyID,
		Name:         name,
		Manufacturer: "Acme",
		Model:        "X-100",
	}
	if err := tx.WithContext(ctx).Create(item).Error; err != nil {
		tb.Fatalf("seed item: %v", err)
	}
	return item
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, status docs.ProcessingStatus) *docs.Document {
	tb.Helper()
	d := &docs.Document{
		ID:               uuid.New(),
		OwnerUserID:      ownerID,
		LinkKind:         docs.LinkNone,
		FileName:         "receipt.jpg",
		StorageKey:       "users/" + ownerID.String() + "/documents/" + uuid.NewString() + "/receipt.jpg",
		ContentType:      "image/jpeg",
		SizeBytes:        1024,
		ProcessingStatus: status,
		Source:           docs.SourceUpload,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}
