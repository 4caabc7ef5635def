package resolve

import (
	"sort"
	"strings"

	"github.com/haventory/haventory-backend/internal/domain/inventory"
)

// MaxChatCandidates bounds the candidate list for conversational callers,
// where the triggering message narrows the inventory by keyword relevance.
const MaxChatCandidates = 10

// NarrowByMessage ranks items by keyword overlap with a free-text message and
// keeps at most MaxChatCandidates of them. Items with no overlap are dropped
// entirely; an empty message yields the first MaxChatCandidates items.
func NarrowByMessage(items []*inventory.Item, message string) []*inventory.Item {
	keywords := messageKeywords(message)
	if len(keywords) == 0 {
		if len(items) > MaxChatCandidates {
			return items[:MaxChatCandidates]
		}
		return items
	}

	type scored struct {
		item  *inventory.Item
		score int
		idx   int
	}
	ranked := make([]scored, 0, len(items))
	for i, it := range items {
		if it == nil {
			continue
		}
		if s := relevance(it, keywords); s > 0 {
			ranked = append(ranked, scored{item: it, score: s, idx: i})
		}
	}
	// Stable by original order within equal scores.
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].idx < ranked[b].idx
	})
	if len(ranked) > MaxChatCandidates {
		ranked = ranked[:MaxChatCandidates]
	}

	out := make([]*inventory.Item, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.item)
	}
	return out
}

func relevance(it *inventory.Item, keywords []string) int {
	haystack := strings.ToLower(strings.Join([]string{
		it.Name, it.Manufacturer, it.Model, it.Category,
	}, " "))
	score := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			score++
		}
	}
	return score
}

// messageKeywords lowercases and splits the message, dropping words too short
// to discriminate.
func messageKeywords(message string) []string {
	fields := strings.Fields(strings.ToLower(message))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if len(f) < 3 {
			continue
		}
		out = append(out, f)
	}
	return out
}
