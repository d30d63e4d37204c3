// Package types defines the shared data model for the mnemo memory tiers:
// interactions, concepts with their relationship edges, and episodic events.
// Every tier owns independent copies of the values it stores; the same logical
// turn may legitimately exist in several tiers at once.
package types

import "time"

// Interaction is a single conversational turn. It is created once per turn by
// the orchestrator and is immutable after creation, except for the Importance
// annotation that is set when the turn is promoted to long-term storage.
type Interaction struct {
	ID        string    `json:"id"`        // Unique identifier (UUID)
	Timestamp time.Time `json:"timestamp"` // When the turn occurred
	Input     string    `json:"input"`     // User input text
	Output    string    `json:"output"`    // Generated response text

	// Context carries arbitrary per-turn metadata supplied by the caller
	// (priority flags, session hints, source markers).
	Context map[string]interface{} `json:"context,omitempty"`

	// Embedding is the vector for this turn's text. Populated lazily: the
	// recency buffer never embeds, the long-term store embeds on write when
	// the vector is missing.
	Embedding []float32 `json:"embedding,omitempty"`

	// Importance is the promotion score in [0,1]. Zero until scored.
	Importance float64 `json:"importance,omitempty"`
}

// Clone returns a deep copy of the interaction so that tiers never share
// mutable state.
func (i Interaction) Clone() Interaction {
	out := i
	if i.Context != nil {
		out.Context = make(map[string]interface{}, len(i.Context))
		for k, v := range i.Context {
			out.Context[k] = v
		}
	}
	if i.Embedding != nil {
		out.Embedding = make([]float32, len(i.Embedding))
		copy(out.Embedding, i.Embedding)
	}
	return out
}
