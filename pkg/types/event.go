package types

import "time"

// EpisodicEvent is a significant moment worth remembering on its own, separate
// from the raw interaction log. Events are created only when a turn crosses
// the episodic importance threshold. After creation only the importance score
// and summary may be patched; events are destroyed by the retention sweep or
// by explicit deletion.
type EpisodicEvent struct {
	ID          string                 `json:"id"`                  // Unique identifier (UUID)
	Timestamp   time.Time              `json:"timestamp"`           // When the event occurred
	Title       string                 `json:"title"`               // Short event title
	Description string                 `json:"description"`         // Full event description
	Context     map[string]interface{} `json:"context,omitempty"`   // Arbitrary event metadata
	Tags        []string               `json:"tags,omitempty"`      // Concept tags for retrieval
	Importance  float64                `json:"importance"`          // Importance score (0.0-1.0)
	Summary     string                 `json:"summary,omitempty"`   // Optional condensed summary
	Embedding   []float32              `json:"embedding,omitempty"` // Vector for "{title}: {description}"
}

// Clone returns a deep copy of the event.
func (e EpisodicEvent) Clone() EpisodicEvent {
	out := e
	if e.Context != nil {
		out.Context = make(map[string]interface{}, len(e.Context))
		for k, v := range e.Context {
			out.Context[k] = v
		}
	}
	if e.Tags != nil {
		out.Tags = make([]string, len(e.Tags))
		copy(out.Tags, e.Tags)
	}
	if e.Embedding != nil {
		out.Embedding = make([]float32, len(e.Embedding))
		copy(out.Embedding, e.Embedding)
	}
	return out
}
