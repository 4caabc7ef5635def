package docs

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/haventory/haventory-backend/internal/platform/apperr"
)

type DocumentType string

const (
	DocTypeEquipmentPlate DocumentType = "equipment_plate"
	DocTypeReceipt        DocumentType = "receipt"
	DocTypeManual         DocumentType = "manual"
	DocTypeWarranty       DocumentType = "warranty"
	DocTypeInvoice        DocumentType = "invoice"
	DocTypeProductPhoto   DocumentType = "product_photo"
	DocTypeOther          DocumentType = "other"

	// Email-origin variants. email_text marks a document synthesized from a
	// message body rather than an attachment; its extraction is seeded at
	// ingress and the pipeline goes straight to resolution.
	DocTypeEmailText       DocumentType = "email_text"
	DocTypeEmailAttachment DocumentType = "email_attachment"
)

var knownDocumentTypes = map[DocumentType]bool{
	DocTypeEquipmentPlate:  true,
	DocTypeReceipt:         true,
	DocTypeManual:          true,
	DocTypeWarranty:        true,
	DocTypeInvoice:         true,
	DocTypeProductPhoto:    true,
	DocTypeOther:           true,
	DocTypeEmailText:       true,
	DocTypeEmailAttachment: true,
}

// ExtractedFields is the structured bag pulled out of an artifact. Every
// field is best-effort; absent values stay empty.
type ExtractedFields struct {
	Manufacturer    string            `json:"manufacturer,omitempty"`
	Model           string            `json:"model,omitempty"`
	SerialNumber    string            `json:"serial_number,omitempty"`
	ProductName     string            `json:"product_name,omitempty"`
	Date            string            `json:"date,omitempty"`
	Price           string            `json:"price,omitempty"`
	Vendor          string            `json:"vendor,omitempty"`
	WarrantyExpires string            `json:"warranty_expires,omitempty"`
	Specs           map[string]string `json:"specs,omitempty"`
}

// ExtractionResult is produced once per document and never patched in
// place; re-extraction replaces the whole record.
type ExtractionResult struct {
	DocumentType      DocumentType    `json:"document_type"`
	Confidence        float64         `json:"confidence"`
	RawText           string          `json:"raw_text,omitempty"`
	Extracted         ExtractedFields `json:"extracted"`
	SuggestedItemName string          `json:"suggested_item_name,omitempty"`
	SuggestedCategory string          `json:"suggested_category,omitempty"`
}

func (r *ExtractionResult) Validate() error {
	if !knownDocumentTypes[r.DocumentType] {
		return apperr.Validation("document_type_invalid", "unknown document type %q", r.DocumentType)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return apperr.Validation("confidence_out_of_range", "confidence %v outside [0,1]", r.Confidence)
	}
	return nil
}

func (r *ExtractionResult) ToJSON() (datatypes.JSON, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func ExtractionFromJSON(raw datatypes.JSON) (*ExtractionResult, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var r ExtractionResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

type ResolutionAction string

const (
	ActionNewItem      ResolutionAction = "NEW_ITEM"
	ActionAttachToItem ResolutionAction = "ATTACH_TO_ITEM"
	ActionChildOfItem  ResolutionAction = "CHILD_OF_ITEM"
)

type EventType string

const (
	EventInstallation EventType = "installation"
	EventMaintenance  EventType = "maintenance"
	EventRepair       EventType = "repair"
	EventInspection   EventType = "inspection"
	EventReplacement  EventType = "replacement"
	EventObservation  EventType = "observation"
)

var knownEventTypes = map[EventType]bool{
	EventInstallation: true,
	EventMaintenance:  true,
	EventRepair:       true,
	EventInspection:   true,
	EventReplacement:  true,
	EventObservation:  true,
}

// ResolutionResult decides how extracted data attaches to inventory.
type ResolutionResult struct {
	Action             ResolutionAction `json:"action"`
	MatchedItemID      *uuid.UUID       `json:"matched_item_id,omitempty"`
	Confidence         float64          `json:"confidence"`
	Reasoning          string           `json:"reasoning,omitempty"`
	SuggestedEventType *EventType       `json:"suggested_event_type,omitempty"`
}

func (r *ResolutionResult) Validate() error {
	switch r.Action {
	case ActionNewItem:
	case ActionAttachToItem, ActionChildOfItem:
		if r.MatchedItemID == nil || *r.MatchedItemID == uuid.Nil {
			return apperr.Validation("matched_item_required", "action %s requires matched_item_id", r.Action)
		}
	default:
		return apperr.Validation("resolution_action_invalid", "unknown resolution action %q", r.Action)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return apperr.Validation("confidence_out_of_range", "confidence %v outside [0,1]", r.Confidence)
	}
	if r.SuggestedEventType != nil {
		et := EventType(strings.ToLower(string(*r.SuggestedEventType)))
		if !knownEventTypes[et] {
			return apperr.Validation("event_type_invalid", "unknown event type %q", *r.SuggestedEventType)
		}
		*r.SuggestedEventType = et
	}
	return nil
}

func (r *ResolutionResult) ToJSON() (datatypes.JSON, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func ResolutionFromJSON(raw datatypes.JSON) (*ResolutionResult, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var r ResolutionResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
