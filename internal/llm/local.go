package llm

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// LocalEmbedder is a deterministic, dependency-free embedding generator.
// Each token is hashed into a handful of dimensions of a fixed-length vector,
// and the result is L2-normalised. Texts sharing tokens land near each other,
// which is good enough for offline demos and for running the full pipeline
// without an embedding service. It is not a substitute for a real model.
type LocalEmbedder struct {
	dimension int
}

// DefaultLocalDimension matches the dimensionality commonly produced by small
// embedding models so that configs can swap backends without re-indexing.
const DefaultLocalDimension = 256

// NewLocalEmbedder creates a local embedder with the given vector dimension.
// Dimensions below 8 are raised to the default.
func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension < 8 {
		dimension = DefaultLocalDimension
	}
	return &LocalEmbedder{dimension: dimension}
}

// Embed produces the deterministic vector for text.
func (l *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, l.dimension)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		seed := h.Sum32()

		// Spread each token across three dimensions with alternating sign so
		// distinct token sets produce distinct directions.
		for i := uint32(0); i < 3; i++ {
			idx := int((seed + i*2654435761) % uint32(l.dimension))
			if (seed>>i)&1 == 0 {
				vec[idx] += 1
			} else {
				vec[idx] -= 1
			}
		}
	}
	return Normalize(vec), nil
}

// EmbedBatch embeds each text independently.
func (l *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := l.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// GetModel identifies the embedder.
func (l *LocalEmbedder) GetModel() string {
	return "local-hash"
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

var _ EmbeddingGenerator = (*LocalEmbedder)(nil)
