package types

import "time"

// RelationType classifies a directed edge between two concepts.
type RelationType string

const (
	RelationRelated RelationType = "related"
	RelationParent  RelationType = "parent"
	RelationChild   RelationType = "child"
	RelationSynonym RelationType = "synonym"
	RelationAntonym RelationType = "antonym"
)

// Valid reports whether t is one of the known relation types.
func (t RelationType) Valid() bool {
	switch t {
	case RelationRelated, RelationParent, RelationChild, RelationSynonym, RelationAntonym:
		return true
	}
	return false
}

// Inverse returns the paired relation type for hierarchy edges. Parent and
// child invert into each other so the hierarchy stays traversable from both
// ends; every other type is its own inverse.
func (t RelationType) Inverse() RelationType {
	switch t {
	case RelationParent:
		return RelationChild
	case RelationChild:
		return RelationParent
	}
	return t
}

// Relationship is a directed edge owned by its source concept.
// At most one edge exists per (source, target, type) triple; re-adding the
// same triple averages the strengths instead of duplicating the edge.
type Relationship struct {
	TargetID string       `json:"target_id"` // Destination concept ID
	Type     RelationType `json:"type"`      // Edge classification
	Strength float64      `json:"strength"`  // Edge strength (0.0-1.0)
}

// Concept is a node in the concept graph. Concept names are unique
// case-insensitively: inserting an existing name bumps the access counters
// on the stored concept instead of creating a duplicate.
type Concept struct {
	ID           string         `json:"id"`                  // Unique identifier (UUID)
	Name         string         `json:"name"`                // Display name (unique, case-insensitive)
	Description  string         `json:"description"`         // Short description used for embedding
	Embedding    []float32      `json:"embedding,omitempty"` // Vector for "{name}: {description}"
	Strength     float64        `json:"strength"`            // Current strength (0.0-1.0)
	CreatedAt    time.Time      `json:"created_at"`          // Insertion time
	LastAccessed time.Time      `json:"last_accessed"`       // Last re-encounter or access
	AccessCount  int            `json:"access_count"`        // Number of times encountered
	Relations    []Relationship `json:"relations,omitempty"` // Outgoing edges
}

// Clone returns a deep copy of the concept, including edges and embedding.
func (c Concept) Clone() Concept {
	out := c
	if c.Embedding != nil {
		out.Embedding = make([]float32, len(c.Embedding))
		copy(out.Embedding, c.Embedding)
	}
	if c.Relations != nil {
		out.Relations = make([]Relationship, len(c.Relations))
		copy(out.Relations, c.Relations)
	}
	return out
}
