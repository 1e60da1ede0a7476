package vectorstore

import "context"

// Point is a chunk to be written to the store.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint is a retrieved chunk. Text is lifted out of the payload;
// Payload holds the remaining fields.
type ScoredPoint struct {
	ID      string
	Text    string
	Score   float64
	Payload map[string]interface{}
}

// Store is the retrieval surface the agent depends on.
type Store interface {
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []Point) error
	HybridSearch(ctx context.Context, vector []float32, queryText string, opts SearchOptions) ([]ScoredPoint, error)
	DenseSearch(ctx context.Context, vector []float32, opts SearchOptions) ([]ScoredPoint, error)
	SurroundingChunks(ctx context.Context, documentID string, chunkIndex int) ([]ScoredPoint, error)
	DeleteByDocumentID(ctx context.Context, documentID string) error
	FindByFileHash(ctx context.Context, fileHash string) ([]ScoredPoint, error)
	Count(ctx context.Context) (uint64, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// SearchOptions controls a single search call.
type SearchOptions struct {
	TopK          int
	PrefetchLimit int
	RRFK          int
	// Filter uses the simplified map form accepted by BuildFilter.
	Filter map[string]interface{}
}
