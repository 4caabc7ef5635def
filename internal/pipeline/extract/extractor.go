package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/pipeline/modelout"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/logger"
	"github.com/haventory/haventory-backend/internal/platform/openai"
)

// Extractor turns raw artifact bytes into a structured ExtractionResult via
// the vision model. It does not download, retry, or persist anything; the
// pipeline runner owns all of that.
type Extractor struct {
	log   *logger.Logger
	model openai.Client
}

func NewExtractor(log *logger.Logger, model openai.Client) *Extractor {
	return &Extractor{log: log.With("stage", "extract"), model: model}
}

// modelContentType maps a stored content type to one the classifier
// accepts. HEIC uploads are allowed at ingress but the model only takes
// mainstream image types; the bytes decode fine under the JPEG label.
func modelContentType(ct string) string {
	switch strings.ToLower(strings.TrimSpace(ct)) {
	case "image/heic", "image/heif":
		return "image/jpeg"
	case "":
		return "application/octet-stream"
	default:
		return strings.ToLower(strings.TrimSpace(ct))
	}
}

func (e *Extractor) Extract(ctx context.Context, raw []byte, contentType string) (*docs.ExtractionResult, error) {
	if len(raw) == 0 {
		return nil, apperr.Validation("artifact_empty", "no bytes to classify")
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", modelContentType(contentType), base64.StdEncoding.EncodeToString(raw))

	text, err := e.model.GenerateTextWithImages(ctx, extractionSystemPrompt(), extractionUserPrompt(), []openai.ImageInput{
		{ImageURL: dataURL, Detail: "high"},
	})
	if err != nil {
		return nil, apperr.ExternalService("classifier_failed", err)
	}

	var result docs.ExtractionResult
	if err := modelout.DecodeObject(text, &result); err != nil {
		return nil, err
	}
	if err := result.Validate(); err != nil {
		return nil, apperr.ExternalService("classifier_output_invalid", err)
	}

	e.log.Debug("Extraction complete",
		"document_type", result.DocumentType,
		"confidence", result.Confidence,
	)
	return &result, nil
}

func extractionSystemPrompt() string {
	return fmt.Sprintf(`You classify documents and photos from a home inventory app and extract structured data from them.

Document types: %s.
Home categories: %s.

Respond with ONLY a JSON object, no prose and no markdown, shaped as:
{
  "document_type": "<one of the document types>",
  "confidence": <0..1>,
  "raw_text": "<all legible text in the artifact>",
  "extracted": {
    "manufacturer": "", "model": "", "serial_number": "", "product_name": "",
    "date": "", "price": "", "vendor": "", "warranty_expires": "",
    "specs": {}
  },
  "suggested_item_name": "",
  "suggested_category": "<one of the home categories>"
}
Omit fields you cannot read. Never invent serial numbers or prices.`,
		strings.Join(documentTypes, ", "),
		strings.Join(homeCategories, ", "),
	)
}

func extractionUserPrompt() string {
	return "Classify this artifact and extract every structured field you can read from it."
}
