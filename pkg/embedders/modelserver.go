package embedders

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

// ModelServerEmbedder talks to the hosted embedding service:
//
//	POST /embed/documents {"texts": [...]}  -> {"embeddings": [[...], ...]}
//	POST /embed/query     {"text": "..."}   -> {"embedding": [...]}
type ModelServerEmbedder struct {
	baseURL     string
	dimension   int
	batchClient *httpclient.Client
	queryClient *httpclient.Client
}

type embedDocumentsRequest struct {
	Texts []string `json:"texts"`
}

type embedDocumentsResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type embedQueryRequest struct {
	Text string `json:"text"`
}

type embedQueryResponse struct {
	Embedding []float32 `json:"embedding"`
}

func NewModelServerEmbedder(cfg config.EmbedderConfig) (*ModelServerEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for model-server embedder")
	}

	return &ModelServerEmbedder{
		baseURL:   cfg.BaseURL,
		dimension: cfg.Dimension,
		batchClient: httpclient.New(httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.BatchTimeout) * time.Second,
		})),
		queryClient: httpclient.New(httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.QueryTimeout) * time.Second,
		})),
	}, nil
}

func (e *ModelServerEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var parsed embedDocumentsResponse
	err := e.post(ctx, e.batchClient, "/embed/documents", embedDocumentsRequest{Texts: texts}, &parsed)
	if err != nil {
		return nil, err
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts",
			len(parsed.Embeddings), len(texts))
	}
	return parsed.Embeddings, nil
}

func (e *ModelServerEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var parsed embedQueryResponse
	err := e.post(ctx, e.queryClient, "/embed/query", embedQueryRequest{Text: text}, &parsed)
	if err != nil {
		return nil, err
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return parsed.Embedding, nil
}

func (e *ModelServerEmbedder) post(ctx context.Context, client *httpclient.Client, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode embedding response: %w", err)
	}
	return nil
}

func (e *ModelServerEmbedder) Dimension() int {
	return e.dimension
}

func (e *ModelServerEmbedder) Close() error {
	return nil
}
