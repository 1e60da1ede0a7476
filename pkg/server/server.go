// Package server exposes the pipeline over HTTP: a JSON chat endpoint,
// an SSE streaming variant, health, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ipoteka-ai/policyrag/pkg/agent"
	"github.com/ipoteka-ai/policyrag/pkg/config"
	"github.com/ipoteka-ai/policyrag/pkg/llms"
	"github.com/ipoteka-ai/policyrag/pkg/logger"
	"github.com/ipoteka-ai/policyrag/pkg/metrics"
	"github.com/ipoteka-ai/policyrag/pkg/vectorstore"
)

type Server struct {
	cfg      config.ServerConfig
	pipeline *agent.Pipeline
	store    vectorstore.Store
	threads  *ThreadStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
	httpSrv  *http.Server
}

func New(cfg config.ServerConfig, pipeline *agent.Pipeline, store vectorstore.Store, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		store:    store,
		threads:  NewThreadStore(),
		metrics:  m,
		logger:   logger.GetLogger().With("component", "server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Post("/chat", s.handleChat)
	r.Post("/chat/stream", s.handleChatStream)
	r.Delete("/threads/{threadID}", s.handleDeleteThread)

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: r,
	}
	return s
}

// Handler returns the HTTP handler, exported for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

type chatRequest struct {
	Query          string                `json:"query"`
	ThreadID       string                `json:"thread_id,omitempty"`
	Filters        map[string]any        `json:"filters,omitempty"`
	RuntimeContext *agent.RuntimeContext `json:"runtime_context,omitempty"`
}

type chatResponse struct {
	ThreadID string `json:"thread_id"`
	*agent.Response
}

type nodeEvent struct {
	Node  string            `json:"node"`
	State *agent.NodeUpdate `json:"state,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (chatRequest, string, []llms.Message, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return chatRequest{}, "", nil, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return chatRequest{}, "", nil, false
	}
	threadID, history := s.threads.Resolve(req.ThreadID)
	return req, threadID, history, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, threadID, history, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	response, err := s.pipeline.Answer(r.Context(), agent.Request{
		Query:          req.Query,
		History:        history,
		Filters:        req.Filters,
		RuntimeContext: runtimeContext(req),
	})
	if err != nil {
		s.writeChatError(w, err)
		s.metrics.ObserveRequest("error", time.Since(start))
		return
	}

	s.threads.Save(threadID, response.Messages)
	s.metrics.ObserveRequest("ok", time.Since(start))
	writeJSON(w, http.StatusOK, chatResponse{ThreadID: threadID, Response: response})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, threadID, history, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := s.pipeline.Stream(r.Context(), agent.Request{
		Query:          req.Query,
		History:        history,
		Filters:        req.Filters,
		RuntimeContext: runtimeContext(req),
	})

	for event := range events {
		switch {
		case event.Err != nil:
			writeSSE(w, "error", map[string]string{"error": event.Err.Error()})
			flusher.Flush()
			s.metrics.ObserveRequest("error", time.Since(start))
			return
		case event.Response != nil:
			s.threads.Save(threadID, event.Response.Messages)
			writeSSE(w, "message", chatResponse{ThreadID: threadID, Response: event.Response})
			flusher.Flush()
			s.metrics.ObserveRequest("ok", time.Since(start))
		default:
			writeSSE(w, "node_end", nodeEvent{Node: event.Node, State: event.Update})
			flusher.Flush()
		}
	}
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	s.threads.Delete(chi.URLParam(r, "threadID"))
	w.WriteHeader(http.StatusNoContent)
}

func runtimeContext(req chatRequest) agent.RuntimeContext {
	if req.RuntimeContext != nil {
		return *req.RuntimeContext
	}
	return agent.DefaultRuntimeContext()
}

func (s *Server) writeChatError(w http.ResponseWriter, err error) {
	var violation *agent.GuardrailViolation
	if errors.As(err, &violation) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": violation.Reason})
		return
	}
	s.logger.Error("chat request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
