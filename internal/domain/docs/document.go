package docs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/haventory/haventory-backend/internal/platform/apperr"
)

type ProcessingStatus string

const (
	StatusPending        ProcessingStatus = "pending"
	StatusProcessing     ProcessingStatus = "processing"
	StatusReadyForReview ProcessingStatus = "ready_for_review"
	StatusConfirmed      ProcessingStatus = "confirmed"
	StatusDiscarded      ProcessingStatus = "discarded"
	StatusFailed         ProcessingStatus = "failed"
)

type Source string

const (
	SourceUpload Source = "upload"
	SourceEmail  Source = "email"
)

// validTransitions is the full edge set of the document lifecycle. Anything
// outside it is a StateError, including confirm/discard on a document that
// never finished processing.
var validTransitions = map[ProcessingStatus][]ProcessingStatus{
	StatusPending:        {StatusProcessing},
	StatusProcessing:     {StatusReadyForReview, StatusPending, StatusFailed},
	StatusReadyForReview: {StatusConfirmed, StatusDiscarded},
}

func CanTransition(from, to ProcessingStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a StateError when from->to is not a lifecycle edge.
func CheckTransition(from, to ProcessingStatus) error {
	if !CanTransition(from, to) {
		return apperr.State("invalid_status_transition", "cannot transition document from %s to %s", from, to)
	}
	return nil
}

func IsTerminal(s ProcessingStatus) bool {
	return s == StatusConfirmed || s == StatusDiscarded
}

// Document is one ingested artifact moving through the pipeline.
type Document struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	// Linkage is a tagged variant: kind decides which table link_id points
	// at, and "none" means link_id is null. See Link / SetLink.
	LinkKind LinkKind   `gorm:"column:link_kind;not null;default:'none'" json:"link_kind"`
	LinkID   *uuid.UUID `gorm:"column:link_id;type:uuid" json:"link_id,omitempty"`

	FileName    string `gorm:"column:file_name;not null" json:"file_name"`
	StorageKey  string `gorm:"column:storage_key" json:"storage_key"`
	ContentType string `gorm:"column:content_type;not null" json:"content_type"`
	SizeBytes   int64  `gorm:"column:size_bytes" json:"size_bytes"`

	ExtractedData datatypes.JSON `gorm:"column:extracted_data;type:jsonb" json:"extracted_data,omitempty"`
	ResolveData   datatypes.JSON `gorm:"column:resolve_data;type:jsonb" json:"resolve_data,omitempty"`

	ProcessingStatus ProcessingStatus `gorm:"column:processing_status;not null;default:'pending';index" json:"processing_status"`
	RetryCount       int              `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	ProcessedAt      *time.Time       `gorm:"column:processed_at" json:"processed_at,omitempty"`

	Source      Source `gorm:"column:source;not null;default:'upload'" json:"source"`
	SourceEmail string `gorm:"column:source_email" json:"source_email,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }

// LinkKind tags which inventory entity a document is attached to.
type LinkKind string

const (
	LinkNone     LinkKind = "none"
	LinkProperty LinkKind = "property"
	LinkSystem   LinkKind = "system"
	LinkItem     LinkKind = "item"
)

// Link is the in-memory view of document linkage. Target is nil exactly when
// Kind is LinkNone, so "at most one link" holds by construction.
type Link struct {
	Kind   LinkKind
	Target *uuid.UUID
}

func Unlinked() Link { return Link{Kind: LinkNone} }

func LinkedTo(kind LinkKind, id uuid.UUID) (Link, error) {
	switch kind {
	case LinkProperty, LinkSystem, LinkItem:
		return Link{Kind: kind, Target: &id}, nil
	case LinkNone:
		return Link{}, apperr.Validation("link_target_forbidden", "link kind none cannot carry a target")
	default:
		return Link{}, apperr.Validation("link_kind_invalid", "unknown link kind %q", kind)
	}
}

func (d *Document) Link() Link {
	if d.LinkKind == LinkNone || d.LinkKind == "" || d.LinkID == nil {
		return Unlinked()
	}
	id := *d.LinkID
	return Link{Kind: d.LinkKind, Target: &id}
}

func (d *Document) SetLink(l Link) error {
	switch l.Kind {
	case LinkNone, "":
		d.LinkKind = LinkNone
		d.LinkID = nil
		return nil
	case LinkProperty, LinkSystem, LinkItem:
		if l.Target == nil || *l.Target == uuid.Nil {
			return apperr.Validation("link_target_required", "link kind %s requires a target id", l.Kind)
		}
		id := *l.Target
		d.LinkKind = l.Kind
		d.LinkID = &id
		return nil
	default:
		return apperr.Validation("link_kind_invalid", "unknown link kind %q", l.Kind)
	}
}
