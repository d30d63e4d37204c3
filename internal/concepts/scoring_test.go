package concepts

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolabs/mnemo/internal/llm"
)

func TestFindSimilar_IdenticalEmbeddingAlwaysReturned(t *testing.T) {
	ctx := context.Background()
	g, emb := newTestGraph(t)

	// The concept and the query embed to the same vector, so cosine
	// similarity is exactly 1.0 and the concept must be returned even at the
	// strictest threshold.
	vec := []float32{0.6, 0.8, 0}
	emb.vectors["target: the one we want"] = vec
	emb.vectors["the query"] = vec

	c, err := g.AddConcept(ctx, "target", "the one we want", "")
	require.NoError(t, err)

	results, err := g.FindSimilar(ctx, "the query", 5, 1.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, c.ID, results[0].Concept.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
}

func TestFindSimilar_FiltersAndSortsDescending(t *testing.T) {
	ctx := context.Background()
	g, emb := newTestGraph(t)

	emb.vectors["near: close match"] = []float32{1, 0, 0}
	emb.vectors["mid: partial match"] = []float32{1, 1, 0}
	emb.vectors["far: opposite"] = []float32{-1, 0, 0}
	emb.vectors["query"] = []float32{1, 0, 0}

	g.AddConcept(ctx, "near", "close match", "")
	g.AddConcept(ctx, "mid", "partial match", "")
	g.AddConcept(ctx, "far", "opposite", "")

	results, err := g.FindSimilar(ctx, "query", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 2, "far (similarity -1) must be filtered out")
	assert.Equal(t, "near", results[0].Concept.Name)
	assert.Equal(t, "mid", results[1].Concept.Name)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestFindSimilar_TopKTruncation(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGraph(t)

	// All concepts share the stub's fallback vector, so all score 1.0.
	g.AddConcept(ctx, "one", "a", "")
	g.AddConcept(ctx, "two", "b", "")
	g.AddConcept(ctx, "three", "c", "")

	results, err := g.FindSimilar(ctx, "query", 2, 0.0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFindSimilar_TieBreaksOnAscendingID(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGraph(t)

	g.AddConcept(ctx, "one", "a", "")
	g.AddConcept(ctx, "two", "b", "")
	g.AddConcept(ctx, "three", "c", "")

	first, err := g.FindSimilar(ctx, "query", 10, 0.0)
	require.NoError(t, err)
	second, err := g.FindSimilar(ctx, "query", 10, 0.0)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Concept.ID, second[i].Concept.ID, "tied results must order stably")
	}
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].Concept.ID, first[i].Concept.ID)
	}
}

func TestFindSimilar_EmbeddingFailureDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	g, emb := newTestGraph(t)
	g.AddConcept(ctx, "present", "exists", "")

	emb.err = errors.New("embedding backend down")

	results, err := g.FindSimilar(ctx, "query", 5, 0.0)
	require.NoError(t, err, "read-path embedding failures are swallowed")
	assert.Empty(t, results)
}

func TestFindSimilar_DimensionMismatchIsHardFailure(t *testing.T) {
	ctx := context.Background()
	g, emb := newTestGraph(t)

	emb.vectors["wide: stored with a wider vector"] = []float32{1, 0, 0, 0, 0}
	g.AddConcept(ctx, "wide", "stored with a wider vector", "")

	// Query embeds with the 3-dimensional fallback vector.
	_, err := g.FindSimilar(ctx, "query", 5, 0.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrDimensionMismatch))
}

func TestComputeStrength_Formula(t *testing.T) {
	g, _ := newTestGraph(t)
	now := time.Now()

	// Fresh access with a full usage boost scores 1.0.
	assert.InDelta(t, 1.0, g.computeStrength(now, 10, now), 1e-9)

	// Fresh access with a single use scores the usage boost alone.
	assert.InDelta(t, 0.1, g.computeStrength(now, 1, now), 1e-9)

	// One decay window with full usage: exp(-1) ~ 0.368.
	assert.InDelta(t, math.Exp(-1), g.computeStrength(now.Add(-30*24*time.Hour), 10, now), 1e-3)
}
