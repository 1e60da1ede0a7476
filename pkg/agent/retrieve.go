package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ipoteka-ai/policyrag/pkg/llms"
	"github.com/ipoteka-ai/policyrag/pkg/vectorstore"
)

// languageBoost multiplies the score of documents whose language
// matches the detected query language.
const languageBoost = 1.1

// retrieveNode embeds the prepared query family in one batched call,
// fans out hybrid searches, merges results by point ID keeping the
// higher score, optionally mixes in HyDE results, and applies the
// language boost. Rankings merge in query order, so equal scores rank
// identically across runs.
func (p *Pipeline) retrieveNode(ctx context.Context, state State) (Delta, error) {
	start := time.Now()

	query := state.OriginalQuery
	if query == "" {
		query = state.Query
	}
	queries := state.SearchQueries
	if len(queries) == 0 {
		if state.SearchQuery != "" {
			queries = []string{state.SearchQuery}
		} else {
			queries = []string{query}
		}
	}
	if limit := p.cfg.Retrieval.MaxSearchQueries; limit > 0 && len(queries) > limit {
		queries = queries[:limit]
	}

	language := state.RuntimeContext.LanguagePreference
	if language == "" || language == "auto" {
		language = DetectLanguage(query)
	}

	filters := mergeFilters(state.Filters, state.InferredFilters)

	vectors, err := p.embedder.EmbedDocuments(ctx, queries)
	if err != nil {
		return Delta{}, fmt.Errorf("embed queries: %w", err)
	}
	if len(vectors) != len(queries) {
		return Delta{}, fmt.Errorf("embedder returned %d vectors for %d queries", len(vectors), len(queries))
	}

	// Per-query failures are logged and skipped; a single flaky search
	// must not sink the whole retrieval.
	rankings := make([][]vectorstore.ScoredPoint, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, text := range queries {
		g.Go(func() error {
			points, err := p.hybridSearch(gctx, text, vectors[i], filters)
			if err != nil {
				p.logger.Warn("search query failed", "error", err)
				return nil
			}
			rankings[i] = points
			return nil
		})
	}
	_ = g.Wait()

	if p.cfg.Retrieval.EnableHyde {
		points, err := p.hydeSearch(ctx, query, filters)
		if err != nil {
			p.logger.Warn("hyde retrieval failed", "error", err)
		} else {
			rankings = append(rankings, points)
		}
	}

	index := make(map[string]int)
	documents := make([]Document, 0)
	for _, ranking := range rankings {
		for _, point := range ranking {
			doc := Document{
				ID:       point.ID,
				Text:     point.Text,
				Score:    point.Score,
				Metadata: point.Payload,
			}
			if at, ok := index[doc.ID]; ok {
				if doc.Score > documents[at].Score {
					documents[at] = doc
				}
				continue
			}
			index[doc.ID] = len(documents)
			documents = append(documents, doc)
		}
	}

	if language != "" {
		for i := range documents {
			docLang, _ := documents[i].Metadata["language"].(string)
			if docLang == language {
				documents[i].Score *= languageBoost
				documents[i].LanguageMatch = true
			}
		}
	}
	// Stable sort preserves first-seen order for tied scores.
	sort.SliceStable(documents, func(i, j int) bool {
		return documents[i].Score > documents[j].Score
	})

	p.logger.Info("retrieval complete",
		"query", query,
		"doc_count", len(documents),
		"query_language", language,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	p.metrics.ObserveRetrieval(len(documents), time.Since(start))

	return Delta{
		Documents:     docsPtr(documents),
		QueryLanguage: strPtr(language),
	}, nil
}

func (p *Pipeline) hybridSearch(ctx context.Context, text string, vector []float32, filters map[string]any) ([]vectorstore.ScoredPoint, error) {
	points, err := p.store.HybridSearch(ctx, vector, text, vectorstore.SearchOptions{
		TopK:          p.cfg.Retrieval.TopK,
		PrefetchLimit: p.cfg.Retrieval.PrefetchLimit,
		RRFK:          p.cfg.Retrieval.RRFK,
		Filter:        filters,
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", text, err)
	}
	return points, nil
}

// hydeSearch generates a hypothetical answer paragraph and searches
// with it. Failures are non-fatal.
func (p *Pipeline) hydeSearch(ctx context.Context, query string, filters map[string]any) ([]vectorstore.ScoredPoint, error) {
	response, err := p.llm.Generate(ctx, []llms.Message{
		llms.User(fmt.Sprintf(hydeHuman, query)),
	})
	if err != nil {
		return nil, fmt.Errorf("hyde generation: %w", err)
	}
	hypothetical := strings.TrimSpace(response)
	if hypothetical == "" {
		return nil, nil
	}
	vector, err := p.embedder.EmbedQuery(ctx, hypothetical)
	if err != nil {
		return nil, fmt.Errorf("hyde embedding: %w", err)
	}
	return p.hybridSearch(ctx, hypothetical, vector, filters)
}

func mergeFilters(base, inferred map[string]any) map[string]any {
	if len(base) == 0 && len(inferred) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(inferred))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range inferred {
		merged[key] = value
	}
	return merged
}
