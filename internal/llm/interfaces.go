// Package llm provides the embedding gateway and response generator contracts
// the memory tiers depend on, plus the Ollama-backed implementations.
// The tiers only ever see these interfaces, never a specific provider.
package llm

import "context"

// EmbeddingGenerator turns text into fixed-length vectors.
// Implementations must return vectors of a single consistent dimension.
type EmbeddingGenerator interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// GetModel identifies the embedding model in use.
	GetModel() string
}

// TextGenerator produces a response from an assembled prompt context.
// The orchestrator treats it as a black box.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}
