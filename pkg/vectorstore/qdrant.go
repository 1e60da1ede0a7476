package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/errgroup"

	"github.com/ipoteka-ai/policyrag/pkg/config"
	"github.com/ipoteka-ai/policyrag/pkg/logger"
)

// payloadTextField is the payload key holding chunk text. It carries a
// full-text index so lexical search can run server side.
const payloadTextField = "text"

type QdrantStore struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

func NewQdrantStore(cfg config.VectorStoreConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		logger:     logger.GetLogger().With("component", "vectorstore"),
	}, nil
}

// EnsureCollection creates the collection and its payload indexes if
// they do not exist yet. Safe to call on every startup.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check if collection exists: %w", err)
	}

	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		s.logger.Info("created collection", "collection", s.collection, "dimension", dimension)
	}

	return s.ensureIndexes(ctx)
}

func (s *QdrantStore) ensureIndexes(ctx context.Context) error {
	keywordFields := []string{
		"document_id", "source", "file_type", "language",
		"file_hash", "section_header", "element_types", "point_type",
	}
	integerFields := []string{"page_number", "chunk_index", "parent_chunk_index"}

	for _, field := range keywordFields {
		if err := s.createIndex(ctx, field, qdrant.FieldType_FieldTypeKeyword, nil); err != nil {
			return err
		}
	}
	for _, field := range integerFields {
		if err := s.createIndex(ctx, field, qdrant.FieldType_FieldTypeInteger, nil); err != nil {
			return err
		}
	}
	if err := s.createIndex(ctx, "created_at", qdrant.FieldType_FieldTypeDatetime, nil); err != nil {
		return err
	}

	lowercase := true
	textParams := &qdrant.PayloadIndexParams{
		IndexParams: &qdrant.PayloadIndexParams_TextIndexParams{
			TextIndexParams: &qdrant.TextIndexParams{
				Tokenizer: qdrant.TokenizerType_Multilingual,
				Lowercase: &lowercase,
			},
		},
	}
	return s.createIndex(ctx, payloadTextField, qdrant.FieldType_FieldTypeText, textParams)
}

func (s *QdrantStore) createIndex(ctx context.Context, field string, fieldType qdrant.FieldType, params *qdrant.PayloadIndexParams) error {
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName:   s.collection,
		FieldName:        field,
		FieldType:        &fieldType,
		FieldIndexParams: params,
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create payload index for %s: %w", field, err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload := make(map[string]*qdrant.Value, len(p.Payload))
		for key, value := range p.Payload {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return fmt.Errorf("failed to convert payload value for key %s: %w", key, err)
			}
			payload[key] = val
		}
		qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// HybridSearch runs a dense vector search and a full-text scroll
// concurrently, then fuses both rankings with reciprocal rank fusion.
func (s *QdrantStore) HybridSearch(ctx context.Context, vector []float32, queryText string, opts SearchOptions) ([]ScoredPoint, error) {
	var dense, lexical []ScoredPoint

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = s.denseSearch(gctx, vector, opts.PrefetchLimit, opts.Filter)
		return err
	})
	g.Go(func() error {
		var err error
		lexical, err = s.lexicalSearch(gctx, queryText, opts.PrefetchLimit, opts.Filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return FuseRRF([][]ScoredPoint{dense, lexical}, opts.RRFK, opts.TopK), nil
}

func (s *QdrantStore) DenseSearch(ctx context.Context, vector []float32, opts SearchOptions) ([]ScoredPoint, error) {
	return s.denseSearch(ctx, vector, opts.TopK, opts.Filter)
}

func (s *QdrantStore) denseSearch(ctx context.Context, vector []float32, limit int, filter map[string]interface{}) ([]ScoredPoint, error) {
	request := &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         BuildFilter(filter),
	}

	response, err := s.client.GetPointsClient().Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("dense search failed: %w", err)
	}

	results := make([]ScoredPoint, 0, len(response.Result))
	for _, point := range response.Result {
		text, payload := splitPayload(point.Payload)
		results = append(results, ScoredPoint{
			ID:      pointID(point.Id),
			Text:    text,
			Score:   float64(point.Score),
			Payload: payload,
		})
	}
	return results, nil
}

func (s *QdrantStore) lexicalSearch(ctx context.Context, queryText string, limit int, filter map[string]interface{}) ([]ScoredPoint, error) {
	qdrantFilter := BuildFilter(filter)
	if qdrantFilter == nil {
		qdrantFilter = &qdrant.Filter{}
	}
	qdrantFilter.Must = append(qdrantFilter.Must, textCondition(payloadTextField, queryText))

	scrollLimit := uint32(limit)
	response, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         qdrantFilter,
		Limit:          &scrollLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}

	results := make([]ScoredPoint, 0, len(response.Result))
	for _, point := range response.Result {
		text, payload := splitPayload(point.Payload)
		results = append(results, ScoredPoint{
			ID:      pointID(point.Id),
			Text:    text,
			Payload: payload,
		})
	}
	return results, nil
}

// SurroundingChunks returns the chunks adjacent to chunkIndex within
// the same document, ordered by chunk index. The chunk itself is
// included when present.
func (s *QdrantStore) SurroundingChunks(ctx context.Context, documentID string, chunkIndex int) ([]ScoredPoint, error) {
	low := float64(chunkIndex - 1)
	high := float64(chunkIndex + 1)
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			keywordCondition("document_id", documentID),
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "chunk_index",
						Range: &qdrant.Range{Gte: &low, Lte: &high},
					},
				},
			},
		},
	}

	scrollLimit := uint32(3)
	response, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Limit:          &scrollLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch surrounding chunks: %w", err)
	}

	results := make([]ScoredPoint, 0, len(response.Result))
	for _, point := range response.Result {
		text, payload := splitPayload(point.Payload)
		results = append(results, ScoredPoint{
			ID:      pointID(point.Id),
			Text:    text,
			Payload: payload,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return payloadInt(results[i].Payload, "chunk_index") < payloadInt(results[j].Payload, "chunk_index")
	})
	return results, nil
}

func (s *QdrantStore) DeleteByDocumentID(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{keywordCondition("document_id", documentID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return nil
}

// FindByFileHash returns points belonging to an already ingested file,
// used to skip re-indexing unchanged documents.
func (s *QdrantStore) FindByFileHash(ctx context.Context, fileHash string) ([]ScoredPoint, error) {
	scrollLimit := uint32(1)
	response, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{keywordCondition("file_hash", fileHash)},
		},
		Limit:       &scrollLimit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up file hash: %w", err)
	}

	results := make([]ScoredPoint, 0, len(response.Result))
	for _, point := range response.Result {
		text, payload := splitPayload(point.Payload)
		results = append(results, ScoredPoint{
			ID:      pointID(point.Id),
			Text:    text,
			Payload: payload,
		})
	}
	return results, nil
}

func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	exact := true
	response, err := s.client.GetPointsClient().Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return response.Result.Count, nil
}

func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("vector store unreachable: %w", err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func pointID(id *qdrant.PointId) string {
	if id == nil || id.PointIdOptions == nil {
		return ""
	}
	switch idType := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return idType.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", idType.Num)
	}
	return ""
}

// splitPayload converts a Qdrant payload to a plain map and lifts the
// text field out of it.
func splitPayload(payload map[string]*qdrant.Value) (string, map[string]interface{}) {
	metadata := make(map[string]interface{}, len(payload))
	text := ""
	for key, value := range payload {
		converted := convertValue(value)
		if key == payloadTextField {
			if str, ok := converted.(string); ok {
				text = str
				continue
			}
		}
		metadata[key] = converted
	}
	return text, metadata
}

func convertValue(value *qdrant.Value) interface{} {
	if value == nil {
		return nil
	}
	switch v := value.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		if v.ListValue == nil {
			return nil
		}
		list := make([]interface{}, len(v.ListValue.Values))
		for i, item := range v.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		if v.StructValue == nil {
			return nil
		}
		nested := make(map[string]interface{}, len(v.StructValue.Fields))
		for key, item := range v.StructValue.Fields {
			nested[key] = convertValue(item)
		}
		return nested
	}
	return nil
}

func payloadInt(payload map[string]interface{}, key string) int64 {
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
