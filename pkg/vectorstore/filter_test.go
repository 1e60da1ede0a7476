package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldCondition(t *testing.T, cond *qdrant.Condition) *qdrant.FieldCondition {
	t.Helper()
	field, ok := cond.ConditionOneOf.(*qdrant.Condition_Field)
	require.True(t, ok)
	return field.Field
}

func TestBuildFilter(t *testing.T) {
	t.Run("empty map", func(t *testing.T) {
		assert.Nil(t, BuildFilter(nil))
		assert.Nil(t, BuildFilter(map[string]interface{}{}))
	})

	t.Run("string becomes keyword match", func(t *testing.T) {
		filter := BuildFilter(map[string]interface{}{"language": "uz"})
		require.NotNil(t, filter)
		require.Len(t, filter.Must, 1)

		field := fieldCondition(t, filter.Must[0])
		assert.Equal(t, "language", field.Key)
		match, ok := field.Match.MatchValue.(*qdrant.Match_Keyword)
		require.True(t, ok)
		assert.Equal(t, "uz", match.Keyword)
	})

	t.Run("integer match", func(t *testing.T) {
		filter := BuildFilter(map[string]interface{}{"page_number": 3})
		field := fieldCondition(t, filter.Must[0])
		match, ok := field.Match.MatchValue.(*qdrant.Match_Integer)
		require.True(t, ok)
		assert.Equal(t, int64(3), match.Integer)
	})

	t.Run("whole float treated as integer", func(t *testing.T) {
		// JSON decoding turns numbers into float64.
		filter := BuildFilter(map[string]interface{}{"chunk_index": float64(7)})
		field := fieldCondition(t, filter.Must[0])
		match, ok := field.Match.MatchValue.(*qdrant.Match_Integer)
		require.True(t, ok)
		assert.Equal(t, int64(7), match.Integer)
	})

	t.Run("fractional float dropped", func(t *testing.T) {
		assert.Nil(t, BuildFilter(map[string]interface{}{"score": 0.5}))
	})

	t.Run("bool match", func(t *testing.T) {
		filter := BuildFilter(map[string]interface{}{"archived": true})
		field := fieldCondition(t, filter.Must[0])
		match, ok := field.Match.MatchValue.(*qdrant.Match_Boolean)
		require.True(t, ok)
		assert.True(t, match.Boolean)
	})

	t.Run("range condition", func(t *testing.T) {
		filter := BuildFilter(map[string]interface{}{
			"chunk_index": map[string]interface{}{"gte": 2, "lte": 4},
		})
		require.NotNil(t, filter)
		field := fieldCondition(t, filter.Must[0])
		require.NotNil(t, field.Range)
		require.NotNil(t, field.Range.Gte)
		require.NotNil(t, field.Range.Lte)
		assert.Equal(t, float64(2), *field.Range.Gte)
		assert.Equal(t, float64(4), *field.Range.Lte)
	})

	t.Run("range with unknown operator only", func(t *testing.T) {
		assert.Nil(t, BuildFilter(map[string]interface{}{
			"chunk_index": map[string]interface{}{"between": 2},
		}))
	})

	t.Run("multiple conditions", func(t *testing.T) {
		filter := BuildFilter(map[string]interface{}{
			"language":    "ru",
			"document_id": "doc-1",
		})
		require.NotNil(t, filter)
		assert.Len(t, filter.Must, 2)
	})
}
