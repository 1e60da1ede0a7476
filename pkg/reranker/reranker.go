package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ipoteka-ai/policyrag/pkg/config"
	"github.com/ipoteka-ai/policyrag/pkg/httpclient"
)

// Result is one scored candidate. Index refers to the position in the
// texts slice passed to Rerank.
type Result struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Reranker scores query/text pairs with a cross-encoder service.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string, topK int) ([]Result, error)
	Close() error
}

// HTTPReranker calls a cross-encoder service:
//
//	POST /rerank {"query": "...", "texts": [...], "top_k": N}
//	          -> {"results": [{"index": i, "score": s}, ...]}
type HTTPReranker struct {
	baseURL    string
	httpClient *httpclient.Client
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
	TopK  int      `json:"top_k"`
}

type rerankResponse struct {
	Results []Result `json:"results"`
}

func NewHTTPReranker(cfg config.RerankerConfig) (*HTTPReranker, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for reranker")
	}

	return &HTTPReranker{
		baseURL: cfg.BaseURL,
		httpClient: httpclient.New(httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		})),
	}, nil
}

func (r *HTTPReranker) Rerank(ctx context.Context, query string, texts []string, topK int) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Query: query,
		Texts: texts,
		TopK:  topK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(texts) {
			return nil, fmt.Errorf("reranker returned out-of-range index %d", res.Index)
		}
	}
	return parsed.Results, nil
}

func (r *HTTPReranker) Close() error {
	return nil
}
