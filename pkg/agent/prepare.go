package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ipoteka-ai/policyrag/pkg/llms"
)

// preparedQuery is the JSON contract the query preparer asks the model
// to fill in.
type preparedQuery struct {
	SearchQuery   string            `json:"search_query"`
	SearchQueries []string          `json:"search_queries"`
	StepBackQuery string            `json:"step_back_query"`
	Filters       map[string]string `json:"filters"`
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSONRe   = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON pulls a JSON object out of a model response, tolerating
// markdown fences and surrounding prose.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if match := fencedJSONRe.FindStringSubmatch(content); match != nil {
		return match[1]
	}
	if match := bareJSONRe.FindString(content); match != "" {
		return match
	}
	return content
}

// prepareNode rewrites the query, generates alternative phrasings, a
// step-back query, and inferred metadata filters in one model call.
// On any parse failure it degrades to the original query untouched.
func (p *Pipeline) prepareNode(ctx context.Context, state State) (Delta, error) {
	query := state.Query

	identity := Delta{
		OriginalQuery: strPtr(query),
		SearchQuery:   strPtr(query),
		SearchQueries: &[]string{query},
	}

	response, err := p.llm.Generate(ctx, []llms.Message{
		llms.System(queryPrepareSystem),
		llms.User(fmt.Sprintf(queryPrepareHuman, query)),
	})
	if err != nil {
		p.logger.Warn("query preparation failed, using original query", "error", err)
		return identity, nil
	}

	var prepared preparedQuery
	if err := json.Unmarshal([]byte(extractJSON(response)), &prepared); err != nil {
		p.logger.Warn("query preparation returned unparseable JSON", "error", err)
		return identity, nil
	}

	searchQuery := prepared.SearchQuery
	if searchQuery == "" {
		searchQuery = query
	}

	allQueries := []string{searchQuery}
	alternates := prepared.SearchQueries
	if len(alternates) > 3 {
		alternates = alternates[:3]
	}
	allQueries = append(allQueries, alternates...)
	if prepared.StepBackQuery != "" {
		allQueries = append(allQueries, prepared.StepBackQuery)
	}

	var inferred map[string]any
	for key, value := range prepared.Filters {
		if value == "" {
			continue
		}
		if inferred == nil {
			inferred = make(map[string]any)
		}
		inferred[key] = value
	}

	return Delta{
		OriginalQuery:   strPtr(query),
		SearchQuery:     strPtr(searchQuery),
		SearchQueries:   &allQueries,
		InferredFilters: &inferred,
	}, nil
}
