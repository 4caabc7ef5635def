// Package modelout decodes structured output from model responses. Models
// are told to answer with JSON only, but in practice wrap it in Markdown
// code fences often enough that every caller needs the same adapter.
package modelout

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haventory/haventory-backend/internal/platform/apperr"
)

// DecodeObject parses raw as JSON into out. It tries the text as-is, then
// the contents of the first fenced block. Anything else is an
// ExternalService error; a parse failure never yields a default value.
func DecodeObject(raw string, out any) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return apperr.ExternalService("model_output_empty", fmt.Errorf("empty model response"))
	}

	if err := json.Unmarshal([]byte(s), out); err == nil {
		return nil
	}

	fenced := firstFencedBlock(s)
	if fenced != "" {
		if err := json.Unmarshal([]byte(fenced), out); err == nil {
			return nil
		}
	}

	return apperr.ExternalService("model_output_unparseable",
		fmt.Errorf("model response is not valid JSON: %s", snippet(s, 200)))
}

// firstFencedBlock returns the body of the first ``` block, dropping an
// optional language tag on the opening fence.
func firstFencedBlock(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	rest := s[start+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		// The first line is either empty or a language tag (```json).
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
