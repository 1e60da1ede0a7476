package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ipoteka-ai/policyrag/pkg/llms"
)

// gradeScoreThreshold is the minimum rerank score a document needs to
// survive grading.
const gradeScoreThreshold = 0.15

// intentNode classifies the message without a model call.
func (p *Pipeline) intentNode(_ context.Context, state State) (Delta, error) {
	intent := ClassifyIntent(state.Query)
	return Delta{Intent: strPtr(intent)}, nil
}

// greetingNode answers greetings and thanks with a canned reply in the
// user's language. No retrieval, no model call.
func (p *Pipeline) greetingNode(_ context.Context, state State) (Delta, error) {
	language := GreetingLanguage(state.Query)
	response := CannedResponse(state.Intent, language)

	messages := append(append([]llms.Message{}, state.Messages...), llms.Assistant(response))
	return Delta{
		Generation:    strPtr(response),
		Messages:      &messages,
		Documents:     docsPtr([]Document{}),
		QueryLanguage: strPtr(language),
	}, nil
}

// rerankNode scores documents with the cross-encoder. The rerank score
// becomes the primary score; the hybrid score survives as
// RetrievalScore and both average into CombinedScore.
func (p *Pipeline) rerankNode(ctx context.Context, state State) (Delta, error) {
	start := time.Now()
	documents := state.Documents
	if len(documents) == 0 {
		return Delta{Documents: docsPtr([]Document{})}, nil
	}

	texts := make([]string, len(documents))
	for i, doc := range documents {
		texts[i] = doc.Text
	}

	results, err := p.reranker.Rerank(ctx, state.Query, texts, p.cfg.Retrieval.RerankTopK)
	if err != nil {
		return Delta{}, fmt.Errorf("rerank: %w", err)
	}

	reranked := make([]Document, 0, len(results))
	for _, result := range results {
		doc := documents[result.Index]
		doc.RetrievalScore = doc.Score
		doc.Score = result.Score
		doc.CombinedScore = (doc.RetrievalScore + result.Score) / 2
		reranked = append(reranked, doc)
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	if limit := p.cfg.Retrieval.RerankTopK; len(reranked) > limit {
		reranked = reranked[:limit]
	}

	p.logger.Info("rerank complete",
		"original_count", len(documents),
		"reranked_count", len(reranked),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	p.metrics.ObserveRerank(len(reranked), time.Since(start))

	return Delta{Documents: docsPtr(reranked)}, nil
}

// gradeNode keeps documents whose rerank score clears the threshold.
// When nothing clears it, the best few survive anyway so generation
// has something to work with.
func (p *Pipeline) gradeNode(_ context.Context, state State) (Delta, error) {
	documents := state.Documents
	if len(documents) == 0 {
		return Delta{Documents: docsPtr([]Document{})}, nil
	}

	kept := make([]Document, 0, len(documents))
	for _, doc := range documents {
		if doc.Score >= gradeScoreThreshold {
			kept = append(kept, doc)
		}
	}
	if len(kept) == 0 {
		if len(documents) >= 3 {
			kept = documents[:3]
		} else {
			kept = documents[:1]
		}
	}

	p.logger.Info("grading complete",
		"initial_count", len(documents),
		"graded_count", len(kept),
	)
	return Delta{Documents: docsPtr(kept)}, nil
}

// expandNode widens chunk context. Chunks carrying parent_text are
// deduplicated per parent; legacy chunks get their neighbors fetched
// and concatenated.
func (p *Pipeline) expandNode(ctx context.Context, state State) (Delta, error) {
	documents := state.Documents
	expanded := make([]Document, len(documents))
	seenParents := make(map[string]bool)
	keep := make([]bool, len(documents))

	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range documents {
		if parent, _ := doc.Metadata["parent_text"].(string); parent != "" {
			parentKey := fmt.Sprintf("%v:%v", doc.Metadata["document_id"], doc.Metadata["parent_chunk_index"])
			if !seenParents[parentKey] {
				seenParents[parentKey] = true
				expanded[i] = doc
				keep[i] = true
			}
			continue
		}

		docID, _ := doc.Metadata["document_id"].(string)
		chunkIdx, hasIdx := metadataInt(doc.Metadata, "chunk_index")
		if docID == "" || !hasIdx {
			expanded[i] = doc
			keep[i] = true
			continue
		}

		expanded[i] = doc
		keep[i] = true
		g.Go(func() error {
			neighbors, err := p.store.SurroundingChunks(gctx, docID, int(chunkIdx))
			if err != nil {
				p.logger.Warn("neighbor lookup failed", "document_id", docID, "error", err)
				return nil
			}
			if len(neighbors) == 0 {
				return nil
			}
			texts := make([]string, 0, len(neighbors))
			for _, neighbor := range neighbors {
				texts = append(texts, neighbor.Text)
			}
			expanded[i].Text = strings.Join(texts, "\n")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Delta{}, err
	}

	result := make([]Document, 0, len(documents))
	for i := range documents {
		if keep[i] {
			result = append(result, expanded[i])
		}
	}
	return Delta{Documents: docsPtr(result)}, nil
}

// rewriteNode reformulates the query with HR terminology for the next
// retrieval attempt and bumps the retry counter.
func (p *Pipeline) rewriteNode(ctx context.Context, state State) (Delta, error) {
	query := state.SearchQuery
	if query == "" {
		query = state.Query
	}

	response, err := p.llm.Generate(ctx, []llms.Message{
		llms.System(rewriteSystem),
		llms.User(fmt.Sprintf(rewriteHuman, query)),
	})
	if err != nil {
		return Delta{}, fmt.Errorf("rewrite: %w", err)
	}
	rewritten := strings.TrimSpace(response)

	p.metrics.CountRetry()
	return Delta{
		Query:         strPtr(rewritten),
		SearchQuery:   strPtr(rewritten),
		SearchQueries: &[]string{rewritten},
		Retries:       intPtr(state.Retries + 1),
	}, nil
}

// generateNode packs documents into the context budget, calls the
// model with a dynamically built system prompt, validates the answer,
// and applies output guardrails.
func (p *Pipeline) generateNode(ctx context.Context, state State) (Delta, error) {
	start := time.Now()

	query := state.OriginalQuery
	if query == "" {
		query = state.Query
	}
	documents := state.Documents
	history := state.Messages

	systemPrompt := BuildSystemPrompt(query, documents, state.RuntimeContext)

	contextText, contextMetadata := FitDocumentsToBudget(
		documents, query, history, p.llm.ModelName(), systemPrompt, p.cfg.Agent.ReserveOutput)

	messages := []llms.Message{llms.System(systemPrompt)}
	// History ends with the current question; replay earlier turns only.
	if len(history) > 1 {
		messages = append(messages, history[:len(history)-1]...)
	}
	messages = append(messages, llms.User(fmt.Sprintf(generationHuman, contextText, query)))

	answer, err := p.llm.Generate(ctx, messages)
	if err != nil {
		return Delta{}, fmt.Errorf("generate: %w", err)
	}

	validation := ValidateGeneration(answer, documents, query)

	finalAnswer := validation.Generation
	warnings := validation.Warnings
	output, err := ValidateOutput(validation.Generation, validation, false)
	if err != nil {
		p.logger.Warn("output guardrail error", "error", err)
		warnings = append(warnings, fmt.Sprintf("Guardrail error: %v", err))
	} else {
		finalAnswer = output.Response
		warnings = output.Warnings
	}

	updatedMessages := append(append([]llms.Message{}, history...), llms.Assistant(finalAnswer))

	combined := *contextMetadata
	combined.Validation = &ValidationResult{
		Confidence:       validation.Confidence,
		HasCitations:     validation.HasCitations,
		IsGeneric:        validation.IsGeneric,
		ValidationPassed: validation.ValidationPassed,
		Warnings:         warnings,
	}

	p.logger.Info("generation complete",
		"query", query,
		"doc_count", len(documents),
		"confidence", validation.Confidence,
		"tokens_used", contextMetadata.TokensUsed,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	p.metrics.ObserveGeneration(validation.Confidence, time.Since(start))

	return Delta{
		Generation:      strPtr(finalAnswer),
		Messages:        &updatedMessages,
		ContextMetadata: &combined,
	}, nil
}
