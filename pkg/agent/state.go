package agent

import "github.com/ipoteka-ai/policyrag/pkg/llms"

// Intent labels produced by the intent classifier.
const (
	IntentGreeting = "greeting"
	IntentThanks   = "thanks"
	IntentHRQuery  = "hr_query"
)

// Document is a retrieved chunk flowing through the pipeline.
type Document struct {
	ID string `json:"id"`
	// Text is the chunk text used for grading and packing.
	Text string `json:"text"`
	// Score is the current ranking score. After retrieval it holds the
	// fused hybrid score; after reranking it holds the cross-encoder
	// score.
	Score float64 `json:"score"`
	// RetrievalScore preserves the hybrid score once reranking
	// overwrites Score.
	RetrievalScore float64 `json:"retrieval_score,omitempty"`
	// CombinedScore is the average of retrieval and rerank scores.
	CombinedScore float64 `json:"combined_score,omitempty"`
	// LanguageMatch marks documents whose language matches the query.
	LanguageMatch bool           `json:"language_match,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// RuntimeContext carries per-request generation preferences.
type RuntimeContext struct {
	// LanguagePreference is "auto" or an explicit language code.
	LanguagePreference string `json:"language_preference"`
	// ExpertiseLevel is "general", "expert", or "beginner".
	ExpertiseLevel string `json:"expertise_level"`
	// ResponseStyle is "balanced", "concise", or "detailed".
	ResponseStyle   string `json:"response_style"`
	EnableCitations bool   `json:"enable_citations"`
}

func DefaultRuntimeContext() RuntimeContext {
	return RuntimeContext{
		LanguagePreference: "auto",
		ExpertiseLevel:     "general",
		ResponseStyle:      "balanced",
		EnableCitations:    true,
	}
}

// ValidationResult summarizes the answer quality checks.
type ValidationResult struct {
	Generation         string   `json:"-"`
	Confidence         float64  `json:"confidence"`
	IsGeneric          bool     `json:"is_generic"`
	HasCitations       bool     `json:"has_citations"`
	ContradictsSources bool     `json:"contradicts_sources"`
	ValidationPassed   bool     `json:"validation_passed"`
	Warnings           []string `json:"warnings,omitempty"`
}

// ContextMetadata reports token accounting for one generation.
type ContextMetadata struct {
	TotalDocs       int               `json:"total_docs"`
	IncludedDocs    int               `json:"included_docs"`
	TokensUsed      int               `json:"tokens_used"`
	TokensAvailable int               `json:"tokens_available"`
	TokensReserved  int               `json:"tokens_reserved"`
	Utilization     float64           `json:"utilization"`
	Validation      *ValidationResult `json:"validation,omitempty"`
}

// State is the full pipeline state. Nodes never mutate it directly;
// they return a Delta that Reduce folds in.
type State struct {
	Query         string
	OriginalQuery string
	SearchQuery   string
	SearchQueries []string
	// Filters are caller-supplied metadata filters; InferredFilters
	// come from the query preparer. Both merge at retrieval time.
	Filters         map[string]any
	InferredFilters map[string]any
	Documents       []Document
	Generation      string
	Intent          string
	QueryLanguage   string
	Retries         int
	Messages        []llms.Message
	RuntimeContext  RuntimeContext
	ContextMetadata *ContextMetadata
}

// Delta is a partial state update. Nil fields leave the state
// untouched; a pointer to a zero value explicitly clears a field.
type Delta struct {
	Query           *string
	OriginalQuery   *string
	SearchQuery     *string
	SearchQueries   *[]string
	InferredFilters *map[string]any
	Documents       *[]Document
	Generation      *string
	Intent          *string
	QueryLanguage   *string
	Retries         *int
	Messages        *[]llms.Message
	ContextMetadata *ContextMetadata
}

// Reduce folds a delta into the state and returns the new state.
func Reduce(state State, delta Delta) State {
	if delta.Query != nil {
		state.Query = *delta.Query
	}
	if delta.OriginalQuery != nil {
		state.OriginalQuery = *delta.OriginalQuery
	}
	if delta.SearchQuery != nil {
		state.SearchQuery = *delta.SearchQuery
	}
	if delta.SearchQueries != nil {
		state.SearchQueries = *delta.SearchQueries
	}
	if delta.InferredFilters != nil {
		state.InferredFilters = *delta.InferredFilters
	}
	if delta.Documents != nil {
		state.Documents = *delta.Documents
	}
	if delta.Generation != nil {
		state.Generation = *delta.Generation
	}
	if delta.Intent != nil {
		state.Intent = *delta.Intent
	}
	if delta.QueryLanguage != nil {
		state.QueryLanguage = *delta.QueryLanguage
	}
	if delta.Retries != nil {
		state.Retries = *delta.Retries
	}
	if delta.Messages != nil {
		state.Messages = *delta.Messages
	}
	if delta.ContextMetadata != nil {
		state.ContextMetadata = delta.ContextMetadata
	}
	return state
}

func strPtr(s string) *string          { return &s }
func intPtr(i int) *int                { return &i }
func docsPtr(d []Document) *[]Document { return &d }
