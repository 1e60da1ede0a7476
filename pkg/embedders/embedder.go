package embedders

import (
	"context"
	"fmt"

	"github.com/ipoteka-ai/policyrag/pkg/config"
)

// Embedder produces dense vectors for documents and queries.
// EmbedDocuments batches every input into a single request.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Close() error
}

// NewFromConfig constructs the embedder named by cfg.Type.
func NewFromConfig(cfg config.EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "modelserver":
		return NewModelServerEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedder type: %s", cfg.Type)
	}
}
