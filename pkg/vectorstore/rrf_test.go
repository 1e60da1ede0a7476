package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func points(ids ...string) []ScoredPoint {
	result := make([]ScoredPoint, len(ids))
	for i, id := range ids {
		result[i] = ScoredPoint{ID: id, Text: "text-" + id}
	}
	return result
}

func TestFuseRRF(t *testing.T) {
	dense := points("A", "B", "C")
	lexical := points("B", "D", "A")

	fused := FuseRRF([][]ScoredPoint{dense, lexical}, 40, 0)
	require.Len(t, fused, 4)

	// B ranks first: 1/42 + 1/41 beats A's 1/41 + 1/43.
	assert.Equal(t, "B", fused[0].ID)
	assert.Equal(t, "A", fused[1].ID)
	// C and D tie at 1/43; insertion order breaks the tie.
	assert.Equal(t, "C", fused[2].ID)
	assert.Equal(t, "D", fused[3].ID)

	assert.InDelta(t, 1.0/42+1.0/41, fused[0].Score, 1e-12)
	assert.InDelta(t, 1.0/41+1.0/43, fused[1].Score, 1e-12)
	assert.InDelta(t, 1.0/43, fused[2].Score, 1e-12)
	assert.InDelta(t, 1.0/43, fused[3].Score, 1e-12)
}

func TestFuseRRFTopK(t *testing.T) {
	dense := points("A", "B", "C")
	lexical := points("B", "D", "A")

	fused := FuseRRF([][]ScoredPoint{dense, lexical}, 40, 2)
	require.Len(t, fused, 2)
	assert.Equal(t, "B", fused[0].ID)
	assert.Equal(t, "A", fused[1].ID)
}

func TestFuseRRFKeepsFirstAppearance(t *testing.T) {
	dense := []ScoredPoint{{ID: "A", Text: "dense text", Payload: map[string]interface{}{"source": "dense"}}}
	lexical := []ScoredPoint{{ID: "A", Text: "lexical text"}}

	fused := FuseRRF([][]ScoredPoint{dense, lexical}, 40, 0)
	require.Len(t, fused, 1)
	assert.Equal(t, "dense text", fused[0].Text)
	assert.Equal(t, "dense", fused[0].Payload["source"])
}

func TestFuseRRFEmpty(t *testing.T) {
	assert.Empty(t, FuseRRF(nil, 40, 10))
	assert.Empty(t, FuseRRF([][]ScoredPoint{{}, {}}, 40, 10))
}
