package resolve

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/domain/inventory"
	"github.com/haventory/haventory-backend/internal/pipeline/modelout"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/logger"
	"github.com/haventory/haventory-backend/internal/platform/openai"
)

// MaxCandidates bounds how much inventory context goes into the prompt.
const MaxCandidates = 50

// Resolver decides how an extraction result attaches to existing inventory.
// Like the extractor it is stateless; the runner supplies candidates and
// persists the outcome.
type Resolver struct {
	log   *logger.Logger
	model openai.Client
}

func NewResolver(log *logger.Logger, model openai.Client) *Resolver {
	return &Resolver{log: log.With("stage", "resolve"), model: model}
}

// candidateSummary is the compact projection of an item shown to the model.
type candidateSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Category     string `json:"category,omitempty"`
}

func summarize(items []*inventory.Item) []candidateSummary {
	if len(items) > MaxCandidates {
		items = items[:MaxCandidates]
	}
	out := make([]candidateSummary, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		out = append(out, candidateSummary{
			ID:           it.ID.String(),
			Name:         it.Name,
			Manufacturer: it.Manufacturer,
			Model:        it.Model,
			Category:     it.Category,
		})
	}
	return out
}

func (r *Resolver) Resolve(ctx context.Context, extraction *docs.ExtractionResult, items []*inventory.Item) (*docs.ResolutionResult, error) {
	if extraction == nil {
		return nil, apperr.Validation("extraction_missing", "resolution requires an extraction result")
	}

	candidates := summarize(items)

	extractionJSON, err := json.Marshal(extraction)
	if err != nil {
		return nil, err
	}
	candidatesJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, err
	}

	text, err := r.model.GenerateText(ctx, resolutionSystemPrompt(),
		fmt.Sprintf("Extracted document data:\n%s\n\nExisting inventory items:\n%s", extractionJSON, candidatesJSON))
	if err != nil {
		return nil, apperr.ExternalService("resolver_failed", err)
	}

	var result docs.ResolutionResult
	if err := modelout.DecodeObject(text, &result); err != nil {
		return nil, err
	}
	if err := result.Validate(); err != nil {
		return nil, apperr.ExternalService("resolver_output_invalid", err)
	}

	// A match against an item the prompt never offered is a hallucination.
	// Fall back to proposing a new item rather than linking garbage.
	if result.MatchedItemID != nil && !inCandidates(candidates, *result.MatchedItemID) {
		r.log.Warn("Resolver matched unknown item, falling back to NEW_ITEM",
			"matched_item_id", result.MatchedItemID.String(),
		)
		result.Action = docs.ActionNewItem
		result.MatchedItemID = nil
		result.Confidence = 0
		result.Reasoning = "proposed match was not among known inventory items"
	}

	r.log.Debug("Resolution complete",
		"action", result.Action,
		"confidence", result.Confidence,
	)
	return &result, nil
}

func inCandidates(candidates []candidateSummary, id uuid.UUID) bool {
	s := id.String()
	for _, c := range candidates {
		if c.ID == s {
			return true
		}
	}
	return false
}

func resolutionSystemPrompt() string {
	return `You link extracted document data to a homeowner's inventory.

Given the structured data pulled from a document and a list of existing
inventory items, decide one of:
  - "NEW_ITEM": the document describes equipment not in the list.
  - "ATTACH_TO_ITEM": the document belongs to a listed item (same unit).
  - "CHILD_OF_ITEM": the document describes a component or consumable of a
    listed item (for example a filter for a furnace).

Be conservative: when manufacturer, model, or serial evidence is weak or
conflicting, prefer "NEW_ITEM" over a doubtful match.

Respond with ONLY a JSON object, no prose and no markdown, shaped as:
{
  "action": "NEW_ITEM" | "ATTACH_TO_ITEM" | "CHILD_OF_ITEM",
  "matched_item_id": "<uuid of the matched item, only when attaching>",
  "confidence": <0..1>,
  "reasoning": "<one or two sentences>",
  "suggested_event_type": "installation" | "maintenance" | "repair" | "inspection" | "replacement" | "observation"
}
Omit matched_item_id for NEW_ITEM. Omit suggested_event_type when the
document does not evidence a service event.`
}
