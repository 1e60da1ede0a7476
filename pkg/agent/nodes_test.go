package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipoteka-ai/policyrag/pkg/vectorstore"
)

// queryAwareStore returns different results per query text, for merge
// tests.
type queryAwareStore struct {
	stubStore
	byQuery map[string][]vectorstore.ScoredPoint
}

func (s *queryAwareStore) HybridSearch(_ context.Context, _ []float32, text string, _ vectorstore.SearchOptions) ([]vectorstore.ScoredPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchCalls++
	out := make([]vectorstore.ScoredPoint, len(s.byQuery[text]))
	copy(out, s.byQuery[text])
	return out, nil
}

func TestRetrieveNodeMergesAcrossQueries(t *testing.T) {
	store := &queryAwareStore{byQuery: map[string][]vectorstore.ScoredPoint{
		"leave policy": {
			{ID: "d1", Text: "leave chunk", Score: 0.5},
			{ID: "d2", Text: "shared chunk", Score: 0.4},
		},
		"vacation rules": {
			{ID: "d2", Text: "shared chunk", Score: 0.9},
			{ID: "d3", Text: "vacation chunk", Score: 0.3},
		},
	}}
	p := newTestPipeline(t, testConfig(), &stubLLM{}, &stubReranker{}, &stubStore{})
	p.store = store

	delta, err := p.retrieveNode(context.Background(), State{
		Query:         "What is the leave policy?",
		SearchQueries: []string{"leave policy", "vacation rules"},
	})
	require.NoError(t, err)

	docs := *delta.Documents
	require.Len(t, docs, 3)
	// d2 appears in both rankings; the higher score wins.
	assert.Equal(t, "d2", docs[0].ID)
	assert.InDelta(t, 0.9, docs[0].Score, 1e-9)
	assert.Equal(t, "d1", docs[1].ID)
	assert.Equal(t, "d3", docs[2].ID)
	assert.Equal(t, 2, store.searchCalls)
}

func TestRetrieveNodeLanguageBoost(t *testing.T) {
	store := &queryAwareStore{byQuery: map[string][]vectorstore.ScoredPoint{
		"отпуск": {
			{ID: "en-doc", Text: "english chunk", Score: 0.5,
				Payload: map[string]any{"language": "en"}},
			{ID: "ru-doc", Text: "русский фрагмент", Score: 0.48,
				Payload: map[string]any{"language": "ru"}},
		},
	}}
	p := newTestPipeline(t, testConfig(), &stubLLM{}, &stubReranker{}, &stubStore{})
	p.store = store

	delta, err := p.retrieveNode(context.Background(), State{
		Query:          "Сколько дней отпуска мне положено?",
		SearchQueries:  []string{"отпуск"},
		RuntimeContext: DefaultRuntimeContext(),
	})
	require.NoError(t, err)
	assert.Equal(t, LangRussian, *delta.QueryLanguage)

	docs := *delta.Documents
	require.Len(t, docs, 2)
	// 0.48 * 1.1 beats the unboosted 0.5.
	assert.Equal(t, "ru-doc", docs[0].ID)
	assert.True(t, docs[0].LanguageMatch)
	assert.InDelta(t, 0.48*1.1, docs[0].Score, 1e-9)
	assert.False(t, docs[1].LanguageMatch)
}

// recordingEmbedder captures how queries reach the embedder.
type recordingEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	queries []string
}

func (e *recordingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = append(e.batches, append([]string{}, texts...))
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

func (e *recordingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries = append(e.queries, text)
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *recordingEmbedder) Dimension() int { return 3 }
func (e *recordingEmbedder) Close() error   { return nil }

func TestRetrieveNodeBatchesQueryEmbeddings(t *testing.T) {
	embedder := &recordingEmbedder{}
	p := newTestPipeline(t, testConfig(), &stubLLM{}, &stubReranker{}, &stubStore{})
	p.embedder = embedder

	_, err := p.retrieveNode(context.Background(), State{
		Query:         "What is the leave policy?",
		SearchQueries: []string{"leave policy", "vacation rules"},
	})
	require.NoError(t, err)

	// The whole query family goes through one batched embed call.
	require.Len(t, embedder.batches, 1)
	assert.Equal(t, []string{"leave policy", "vacation rules"}, embedder.batches[0])
	assert.Empty(t, embedder.queries)
}

func TestRetrieveNodeStableOrderOnTies(t *testing.T) {
	tied := []vectorstore.ScoredPoint{
		{ID: "a", Text: "chunk a", Score: 0.5},
		{ID: "b", Text: "chunk b", Score: 0.5},
		{ID: "c", Text: "chunk c", Score: 0.5},
		{ID: "d", Text: "chunk d", Score: 0.5},
		{ID: "e", Text: "chunk e", Score: 0.5},
		{ID: "f", Text: "chunk f", Score: 0.5},
	}
	p := newTestPipeline(t, testConfig(), &stubLLM{}, &stubReranker{}, &stubStore{results: tied})

	state := State{Query: "q", SearchQueries: []string{"leave policy"}}
	want := []string{"a", "b", "c", "d", "e", "f"}
	for run := 0; run < 50; run++ {
		delta, err := p.retrieveNode(context.Background(), state)
		require.NoError(t, err)

		docs := *delta.Documents
		got := make([]string, len(docs))
		for i, doc := range docs {
			got[i] = doc.ID
		}
		require.Equal(t, want, got, "document ordering changed on run %d", run)
	}
}

func TestRetrieveNodeCapsQueryFanOut(t *testing.T) {
	store := &queryAwareStore{byQuery: map[string][]vectorstore.ScoredPoint{}}
	p := newTestPipeline(t, testConfig(), &stubLLM{}, &stubReranker{}, &stubStore{})
	p.store = store

	_, err := p.retrieveNode(context.Background(), State{
		Query:         "q",
		SearchQueries: []string{"a", "b", "c", "d", "e"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, store.searchCalls)
}

func TestGradeNode(t *testing.T) {
	p := newTestPipeline(t, testConfig(), &stubLLM{}, &stubReranker{}, &stubStore{})

	t.Run("threshold filters", func(t *testing.T) {
		delta, err := p.gradeNode(context.Background(), State{Documents: []Document{
			{ID: "a", Score: 0.5},
			{ID: "b", Score: 0.2},
			{ID: "c", Score: 0.1},
		}})
		require.NoError(t, err)
		docs := *delta.Documents
		require.Len(t, docs, 2)
		assert.Equal(t, "a", docs[0].ID)
		assert.Equal(t, "b", docs[1].ID)
	})

	t.Run("all below threshold keeps top three", func(t *testing.T) {
		delta, err := p.gradeNode(context.Background(), State{Documents: []Document{
			{ID: "a", Score: 0.12},
			{ID: "b", Score: 0.11},
			{ID: "c", Score: 0.10},
			{ID: "d", Score: 0.05},
		}})
		require.NoError(t, err)
		assert.Len(t, *delta.Documents, 3)
	})

	t.Run("all below threshold with few docs keeps one", func(t *testing.T) {
		delta, err := p.gradeNode(context.Background(), State{Documents: []Document{
			{ID: "a", Score: 0.12},
			{ID: "b", Score: 0.11},
		}})
		require.NoError(t, err)
		docs := *delta.Documents
		require.Len(t, docs, 1)
		assert.Equal(t, "a", docs[0].ID)
	})

	t.Run("empty stays empty", func(t *testing.T) {
		delta, err := p.gradeNode(context.Background(), State{})
		require.NoError(t, err)
		assert.Empty(t, *delta.Documents)
	})
}

func TestExpandNodeParentDedupe(t *testing.T) {
	p := newTestPipeline(t, testConfig(), &stubLLM{}, &stubReranker{}, &stubStore{})

	delta, err := p.expandNode(context.Background(), State{Documents: []Document{
		{ID: "a", Text: "child a", Metadata: map[string]any{
			"parent_text": "parent one", "document_id": "doc", "parent_chunk_index": int64(0),
		}},
		{ID: "b", Text: "child b", Metadata: map[string]any{
			"parent_text": "parent one", "document_id": "doc", "parent_chunk_index": int64(0),
		}},
		{ID: "c", Text: "child c", Metadata: map[string]any{
			"parent_text": "parent two", "document_id": "doc", "parent_chunk_index": int64(1),
		}},
	}})
	require.NoError(t, err)

	docs := *delta.Documents
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)
}

func TestExpandNodeNeighborMerge(t *testing.T) {
	store := &queryAwareStore{}
	store.neighborResults = []vectorstore.ScoredPoint{
		{ID: "n0", Text: "before"},
		{ID: "n1", Text: "hit"},
		{ID: "n2", Text: "after"},
	}
	p := newTestPipeline(t, testConfig(), &stubLLM{}, &stubReranker{}, &stubStore{})
	p.store = store

	delta, err := p.expandNode(context.Background(), State{Documents: []Document{
		{ID: "a", Text: "hit", Metadata: map[string]any{
			"document_id": "doc", "chunk_index": int64(1),
		}},
	}})
	require.NoError(t, err)

	docs := *delta.Documents
	require.Len(t, docs, 1)
	assert.Equal(t, "before\nhit\nafter", docs[0].Text)
}
