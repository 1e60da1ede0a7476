package agent

import (
	"context"
	"log/slog"

	"github.com/ipoteka-ai/policyrag/pkg/config"
	"github.com/ipoteka-ai/policyrag/pkg/embedders"
	"github.com/ipoteka-ai/policyrag/pkg/graph"
	"github.com/ipoteka-ai/policyrag/pkg/llms"
	"github.com/ipoteka-ai/policyrag/pkg/logger"
	"github.com/ipoteka-ai/policyrag/pkg/metrics"
	"github.com/ipoteka-ai/policyrag/pkg/reranker"
	"github.com/ipoteka-ai/policyrag/pkg/vectorstore"
)

// Node names in the pipeline graph.
const (
	NodeIntent   = "intent"
	NodeGreeting = "greeting_response"
	NodePrepare  = "query_prepare"
	NodeRetrieve = "retrieve"
	NodeRerank   = "rerank"
	NodeGrade    = "grade_documents"
	NodeExpand   = "expand_context"
	NodeGenerate = "generate"
	NodeRewrite  = "rewrite_query"
)

// Pipeline is the agentic RAG workflow: intent routing, query
// preparation, hybrid retrieval with self-correcting retries, context
// expansion, and guarded generation.
type Pipeline struct {
	cfg      config.Config
	llm      llms.Provider
	embedder embedders.Embedder
	reranker reranker.Reranker
	store    vectorstore.Store
	runner   *graph.Runner[State, Delta]
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Request is one user turn.
type Request struct {
	Query string
	// History holds prior conversation turns, oldest first.
	History []llms.Message
	// Filters are caller-supplied metadata filters applied to every
	// search.
	Filters        map[string]any
	RuntimeContext RuntimeContext
}

// Response is the pipeline's answer to one request.
type Response struct {
	Answer        string           `json:"answer"`
	Intent        string           `json:"intent"`
	QueryLanguage string           `json:"query_language"`
	Documents     []Document       `json:"documents"`
	Retries       int              `json:"retries"`
	Metadata      *ContextMetadata `json:"metadata,omitempty"`
	Warnings      []string         `json:"warnings,omitempty"`
	Messages      []llms.Message   `json:"-"`
}

func NewPipeline(
	cfg config.Config,
	llm llms.Provider,
	embedder embedders.Embedder,
	rr reranker.Reranker,
	store vectorstore.Store,
	m *metrics.Metrics,
) (*Pipeline, error) {
	p := &Pipeline{
		cfg:      cfg,
		llm:      llm,
		embedder: embedder,
		reranker: rr,
		store:    store,
		metrics:  m,
		logger:   logger.GetLogger().With("component", "pipeline"),
	}

	runner, err := p.buildGraph()
	if err != nil {
		return nil, err
	}
	p.runner = runner
	return p, nil
}

// buildGraph wires the workflow:
//
//	intent --greeting/thanks--> greeting_response -> END
//	       --hr_query--> query_prepare -> retrieve -> rerank -> grade
//	grade --has docs or retries spent--> expand -> generate -> END
//	      --no docs--> rewrite_query -> retrieve
func (p *Pipeline) buildGraph() (*graph.Runner[State, Delta], error) {
	g := graph.New[State, Delta](Reduce)

	g.AddNode(NodeIntent, p.intentNode)
	g.AddNode(NodeGreeting, p.greetingNode)
	g.AddNode(NodePrepare, p.prepareNode)
	g.AddNode(NodeRetrieve, p.retrieveNode)
	g.AddNode(NodeRerank, p.rerankNode)
	g.AddNode(NodeGrade, p.gradeNode)
	g.AddNode(NodeExpand, p.expandNode)
	g.AddNode(NodeGenerate, p.generateNode)
	g.AddNode(NodeRewrite, p.rewriteNode)

	g.SetEntryPoint(NodeIntent)
	g.AddConditionalEdge(NodeIntent, routeByIntent)
	g.AddEdge(NodeGreeting, graph.End)
	g.AddEdge(NodePrepare, NodeRetrieve)
	g.AddEdge(NodeRetrieve, NodeRerank)
	g.AddEdge(NodeRerank, NodeGrade)
	g.AddConditionalEdge(NodeGrade, p.routeAfterGrading)
	g.AddEdge(NodeRewrite, NodeRetrieve)
	g.AddEdge(NodeExpand, NodeGenerate)
	g.AddEdge(NodeGenerate, graph.End)

	return g.Compile()
}

func routeByIntent(state State) string {
	if state.Intent == IntentGreeting || state.Intent == IntentThanks {
		return NodeGreeting
	}
	return NodePrepare
}

// routeAfterGrading decides between answering and another retrieval
// round. Once the retry budget is spent, generation proceeds with
// whatever survived grading, possibly nothing.
func (p *Pipeline) routeAfterGrading(state State) string {
	if len(state.Documents) > 0 {
		return NodeExpand
	}
	if state.Retries >= p.cfg.Agent.MaxRetries {
		return NodeExpand
	}
	return NodeRewrite
}

// initialState screens the query through input guardrails and builds
// the starting state. Guardrail rejections surface as errors before
// any node runs.
func (p *Pipeline) initialState(req Request) (State, []string, error) {
	check, err := ValidateInput(req.Query, p.cfg.Agent.MaxQueryLen)
	if err != nil {
		return State{}, nil, err
	}

	rc := req.RuntimeContext
	if rc == (RuntimeContext{}) {
		rc = DefaultRuntimeContext()
	}

	messages := append(append([]llms.Message{}, req.History...), llms.User(check.MaskedQuery))

	return State{
		Query:          check.MaskedQuery,
		Filters:        req.Filters,
		Messages:       messages,
		RuntimeContext: rc,
	}, check.Warnings, nil
}

// Answer runs the pipeline to completion.
func (p *Pipeline) Answer(ctx context.Context, req Request) (*Response, error) {
	state, warnings, err := p.initialState(req)
	if err != nil {
		p.metrics.CountRejected()
		return nil, err
	}

	final, err := p.runner.Invoke(ctx, state)
	if err != nil {
		return nil, err
	}
	return buildResponse(final, warnings), nil
}

// Event is one streamed pipeline update.
type Event struct {
	// Node that just finished, or "" for the terminal event.
	Node string
	// Update snapshots the state after the node ran.
	Update *NodeUpdate
	// Response is set on the terminal event.
	Response *Response
	Err      error
}

// NodeUpdate is the partial state carried on per-node stream events.
type NodeUpdate struct {
	Intent        string   `json:"intent,omitempty"`
	QueryLanguage string   `json:"query_language,omitempty"`
	SearchQueries []string `json:"search_queries,omitempty"`
	DocumentCount int      `json:"document_count"`
	Retries       int      `json:"retries"`
	Generation    string   `json:"generation,omitempty"`
}

func snapshotState(state State) *NodeUpdate {
	return &NodeUpdate{
		Intent:        state.Intent,
		QueryLanguage: state.QueryLanguage,
		SearchQueries: state.SearchQueries,
		DocumentCount: len(state.Documents),
		Retries:       state.Retries,
		Generation:    state.Generation,
	}
}

// Stream runs the pipeline and emits an event per completed node,
// ending with either the final response or an error. The channel
// closes when the run ends.
func (p *Pipeline) Stream(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		state, warnings, err := p.initialState(req)
		if err != nil {
			p.metrics.CountRejected()
			out <- Event{Err: err}
			return
		}

		var final State
		for event := range p.runner.Stream(ctx, state) {
			if event.Err != nil {
				out <- Event{Node: event.Node, Err: event.Err}
				return
			}
			final = event.State
			out <- Event{Node: event.Node, Update: snapshotState(event.State)}
		}
		out <- Event{Response: buildResponse(final, warnings)}
	}()
	return out
}

func buildResponse(state State, guardrailWarnings []string) *Response {
	warnings := append([]string{}, guardrailWarnings...)
	if state.ContextMetadata != nil && state.ContextMetadata.Validation != nil {
		warnings = append(warnings, state.ContextMetadata.Validation.Warnings...)
	}
	return &Response{
		Answer:        state.Generation,
		Intent:        state.Intent,
		QueryLanguage: state.QueryLanguage,
		Documents:     state.Documents,
		Retries:       state.Retries,
		Metadata:      state.ContextMetadata,
		Warnings:      warnings,
		Messages:      state.Messages,
	}
}
