// Package concepts implements the concept graph tier: a small in-memory
// knowledge graph of deduplicated concepts connected by typed, weighted edges.
// Concepts gain strength through use and lose it through time decay; weak
// concepts are pruned by a periodic sweep.
//
// Concurrency: every mutating method takes the write lock, so a single graph
// may be shared by multiple orchestrator instances.
package concepts

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnemolabs/mnemo/internal/llm"
	"github.com/mnemolabs/mnemo/internal/storage"
	"github.com/mnemolabs/mnemo/pkg/types"
)

// Config tunes graph scoring and traversal.
type Config struct {
	// MaxDepth bounds relationship traversal depth (default: 5).
	MaxDepth int

	// DecayDays is the e-folding window of the time-decay term: a concept
	// untouched for DecayDays days decays to 1/e of full strength (default: 30).
	DecayDays float64

	// UsageBoostDivisor scales the access-count boost; accessing a concept
	// UsageBoostDivisor times earns the full boost (default: 10).
	UsageBoostDivisor float64

	// StrengthFloor is the minimum strength decay can reach; pruning below it
	// requires an explicit threshold (default: 0.1).
	StrengthFloor float64

	// PruneThreshold is the default cutoff used by maintenance sweeps
	// (default: 0.3).
	PruneThreshold float64
}

// DefaultConfig returns the standard graph tuning.
func DefaultConfig() Config {
	return Config{
		MaxDepth:          5,
		DecayDays:         30,
		UsageBoostDivisor: 10,
		StrengthFloor:     0.1,
		PruneThreshold:    0.3,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.DecayDays <= 0 {
		c.DecayDays = d.DecayDays
	}
	if c.UsageBoostDivisor <= 0 {
		c.UsageBoostDivisor = d.UsageBoostDivisor
	}
	if c.StrengthFloor <= 0 {
		c.StrengthFloor = d.StrengthFloor
	}
	if c.PruneThreshold <= 0 {
		c.PruneThreshold = d.PruneThreshold
	}
}

// Graph holds the concept set. It exclusively owns its concepts and their
// relationship lists; all accessors return deep copies.
type Graph struct {
	mu       sync.RWMutex
	cfg      Config
	embedder llm.EmbeddingGenerator

	byID   map[string]*types.Concept
	byName map[string]string // lowercase name -> concept ID
}

// NewGraph creates an empty concept graph.
func NewGraph(cfg Config, embedder llm.EmbeddingGenerator) *Graph {
	cfg.normalize()
	return &Graph{
		cfg:      cfg,
		embedder: embedder,
		byID:     make(map[string]*types.Concept),
		byName:   make(map[string]string),
	}
}

// AddConcept inserts a concept or, when a case-insensitive name match already
// exists, bumps the existing concept's access counters instead. New concepts
// are embedded from "{name}: {description}" and start at full strength;
// embedding failure propagates since an unembedded concept would be invisible
// to similarity search. When parentID resolves to an existing concept, the
// paired parent/child edges are created at strength 0.8.
func (g *Graph) AddConcept(ctx context.Context, name, description, parentID string) (types.Concept, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Concept{}, fmt.Errorf("%w: concept name is required", storage.ErrInvalidInput)
	}

	key := normalizeName(name)

	// Access bump path: no re-embedding, no strength change outside the sweep.
	g.mu.Lock()
	if id, ok := g.byName[key]; ok {
		concept := g.byID[id]
		concept.AccessCount++
		concept.LastAccessed = time.Now()
		out := concept.Clone()
		g.mu.Unlock()
		return out, nil
	}
	g.mu.Unlock()

	// Embed outside the lock; embedding is the slow external call.
	embedding, err := g.embedder.Embed(ctx, fmt.Sprintf("%s: %s", name, description))
	if err != nil {
		return types.Concept{}, fmt.Errorf("failed to embed concept %q: %w", name, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Re-check under the lock in case a concurrent writer inserted the name
	// while we were embedding.
	if id, ok := g.byName[key]; ok {
		concept := g.byID[id]
		concept.AccessCount++
		concept.LastAccessed = time.Now()
		return concept.Clone(), nil
	}

	now := time.Now()
	concept := &types.Concept{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  description,
		Embedding:    embedding,
		Strength:     1.0,
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  1,
	}
	g.byID[concept.ID] = concept
	g.byName[key] = concept.ID

	if parentID != "" {
		if _, ok := g.byID[parentID]; ok {
			g.linkLocked(concept.ID, parentID, types.RelationParent, 0.8)
		} else {
			log.Printf("concepts: parent %s not found for new concept %q, skipping hierarchy link", parentID, name)
		}
	}

	return concept.Clone(), nil
}

// AddRelationship creates or reinforces a directed edge. Re-adding an existing
// (source, target, type) triple averages the old and new strengths. Parent and
// child edges are always written as a linked pair so the hierarchy stays
// traversable from both ends.
func (g *Graph) AddRelationship(sourceID, targetID string, relType types.RelationType, strength float64) error {
	if !relType.Valid() {
		return fmt.Errorf("%w: unknown relation type %q", storage.ErrInvalidInput, relType)
	}
	if sourceID == targetID {
		return fmt.Errorf("%w: self-relationships are not allowed", storage.ErrInvalidInput)
	}
	strength = clamp01(strength)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.byID[sourceID]; !ok {
		return fmt.Errorf("source concept %s: %w", sourceID, storage.ErrNotFound)
	}
	if _, ok := g.byID[targetID]; !ok {
		return fmt.Errorf("target concept %s: %w", targetID, storage.ErrNotFound)
	}

	g.linkLocked(sourceID, targetID, relType, strength)
	return nil
}

// linkLocked writes the edge and, for hierarchy types, its inverse.
// Callers must hold the write lock and have validated both endpoints.
func (g *Graph) linkLocked(sourceID, targetID string, relType types.RelationType, strength float64) {
	g.upsertEdgeLocked(sourceID, targetID, relType, strength)
	if inverse := relType.Inverse(); inverse != relType {
		g.upsertEdgeLocked(targetID, sourceID, inverse, strength)
	}
}

// upsertEdgeLocked adds a single directed edge, averaging the strength when
// the (source, target, type) triple already exists.
func (g *Graph) upsertEdgeLocked(sourceID, targetID string, relType types.RelationType, strength float64) {
	source := g.byID[sourceID]
	for i := range source.Relations {
		rel := &source.Relations[i]
		if rel.TargetID == targetID && rel.Type == relType {
			rel.Strength = (rel.Strength + strength) / 2
			return
		}
	}
	source.Relations = append(source.Relations, types.Relationship{
		TargetID: targetID,
		Type:     relType,
		Strength: strength,
	})
}

// FindByName returns the concept with the given case-insensitive name.
func (g *Graph) FindByName(name string) (types.Concept, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.byName[normalizeName(name)]
	if !ok {
		return types.Concept{}, false
	}
	return g.byID[id].Clone(), true
}

// GetByID returns the concept with the given ID.
func (g *Graph) GetByID(id string) (types.Concept, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	concept, ok := g.byID[id]
	if !ok {
		return types.Concept{}, false
	}
	return concept.Clone(), true
}

// Count returns the number of concepts currently in the graph.
func (g *Graph) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byID)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
