package agent

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ipoteka-ai/policyrag/pkg/llms"
)

// contextWindows maps model name fragments to context window sizes.
// Matching is by substring, so versioned names resolve too.
var contextWindows = []struct {
	model  string
	tokens int
}{
	{"claude-opus-4", 200000},
	{"claude-sonnet-4", 200000},
	{"claude-3-5-sonnet", 200000},
	{"claude-3-opus", 200000},
	{"claude-3-sonnet", 200000},
	{"claude-3-haiku", 200000},
	{"gpt-4o", 128000},
	{"gpt-4-turbo", 128000},
	{"gpt-4", 8192},
	{"gpt-3.5-turbo", 16385},
	{"llama3.1", 128000},
	{"llama3.2", 128000},
	{"mistral", 32000},
	{"mixtral", 32000},
}

const defaultContextWindow = 8000

// promptOverhead reserves room for message framing around the packed
// documents.
const promptOverhead = 200

// ContextBudget returns the input token budget for a model after
// reserving room for the model's output.
func ContextBudget(modelName string, reserveOutput int) int {
	lower := strings.ToLower(modelName)
	total := defaultContextWindow
	for _, entry := range contextWindows {
		if strings.Contains(lower, entry.model) {
			total = entry.tokens
			break
		}
	}
	if budget := total - reserveOutput; budget > 1000 {
		return budget
	}
	return 1000
}

// TokenCounter estimates token counts for a model.
type TokenCounter func(text string) int

// NewTokenCounter returns a tiktoken-backed counter for OpenAI models
// and a characters/4 heuristic for everything else. The heuristic is
// conservative for multilingual content.
func NewTokenCounter(modelName string) TokenCounter {
	if strings.Contains(strings.ToLower(modelName), "gpt") {
		if encoding, err := tiktoken.EncodingForModel(modelName); err == nil {
			return func(text string) int {
				return len(encoding.Encode(text, nil, nil))
			}
		}
	}
	return func(text string) int {
		if n := len(text) / 4; n > 1 {
			return n
		}
		return 1
	}
}

// FitDocumentsToBudget packs documents into the model's context budget
// by score order. Each document is numbered and annotated with its
// page info. When not even the first document fits, it is truncated
// rather than dropped so generation always sees some context.
func FitDocumentsToBudget(
	documents []Document,
	query string,
	history []llms.Message,
	modelName string,
	systemPrompt string,
	reserveOutput int,
) (string, *ContextMetadata) {
	counter := NewTokenCounter(modelName)
	budget := ContextBudget(modelName, reserveOutput)

	systemTokens := 500
	if systemPrompt != "" {
		systemTokens = counter(systemPrompt)
	}
	queryTokens := counter(query)
	historyTokens := 0
	for _, msg := range history {
		historyTokens += counter(msg.Content)
	}

	reserved := systemTokens + queryTokens + historyTokens + promptOverhead
	available := budget - reserved
	if available < 1000 {
		available = 1000
	}

	sorted := make([]Document, len(documents))
	copy(sorted, documents)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	var parts []string
	used := 0
	included := 0

	for _, doc := range sorted {
		pageInfo := formatPageInfo(doc.Metadata)
		text := doc.Text
		if parent, _ := doc.Metadata["parent_text"].(string); parent != "" {
			text = parent
		}

		formatted := fmt.Sprintf("[%d]%s: %s", included+1, pageInfo, text)
		tokens := counter(formatted)

		if used+tokens <= available {
			parts = append(parts, formatted)
			used += tokens
			included++
			continue
		}

		if included == 0 {
			// Always include at least one document, truncated to fit.
			text = truncateRunes(text, available*4)
			formatted = fmt.Sprintf("[1]%s: %s...", pageInfo, text)
			parts = append(parts, formatted)
			used = counter(formatted)
			included = 1
		}
		break
	}

	metadata := &ContextMetadata{
		TotalDocs:       len(documents),
		IncludedDocs:    included,
		TokensUsed:      used + reserved,
		TokensAvailable: budget,
		TokensReserved:  reserved,
		Utilization:     math.Round(float64(used+reserved)/float64(budget)*1000) / 10,
	}
	return strings.Join(parts, "\n\n"), metadata
}

// truncateRunes cuts text to at most maxChars bytes without splitting
// a multi-byte rune.
func truncateRunes(text string, maxChars int) string {
	if maxChars >= len(text) {
		return text
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func formatPageInfo(metadata map[string]any) string {
	if page, ok := metadataInt(metadata, "page_number"); ok && page != 0 {
		return fmt.Sprintf(" (page %d)", page)
	}
	if start, ok := metadataInt(metadata, "page_start"); ok && start != 0 {
		if end, ok := metadataInt(metadata, "page_end"); ok && end != 0 {
			return fmt.Sprintf(" (pages %d-%d)", start, end)
		}
		return fmt.Sprintf(" (pages %d-?)", start)
	}
	return ""
}

func metadataInt(metadata map[string]any, key string) (int64, bool) {
	switch v := metadata[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
