package concepts

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"github.com/mnemolabs/mnemo/internal/llm"
	"github.com/mnemolabs/mnemo/pkg/types"
)

// computeStrength recomputes a concept's strength from its decay and usage
// terms: max(floor, exp(-daysSinceAccess/decayDays) * min(accessCount/divisor, 1)).
// The floor means decay alone never drives a concept to exactly zero; only
// pruning removes it.
func (g *Graph) computeStrength(lastAccessed time.Time, accessCount int, now time.Time) float64 {
	days := now.Sub(lastAccessed).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	timeDecay := math.Exp(-days / g.cfg.DecayDays)
	usageBoost := math.Min(float64(accessCount)/g.cfg.UsageBoostDivisor, 1.0)
	return math.Max(g.cfg.StrengthFloor, timeDecay*usageBoost)
}

// UpdateStrengths sweeps every concept and recomputes its strength. Intended
// to run after each turn's concept updates and from periodic maintenance.
func (g *Graph) UpdateStrengths() {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, concept := range g.byID {
		concept.Strength = g.computeStrength(concept.LastAccessed, concept.AccessCount, now)
	}
}

// PruneWeakConcepts deletes every concept with strength below minStrength,
// then strips relationship edges that reference a deleted target so the graph
// never holds dangling edges. Returns the number of concepts pruned.
func (g *Graph) PruneWeakConcepts(minStrength float64) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	var doomed []string
	for id, concept := range g.byID {
		if concept.Strength < minStrength {
			doomed = append(doomed, id)
		}
	}

	for _, id := range doomed {
		concept := g.byID[id]
		delete(g.byName, normalizeName(concept.Name))
		delete(g.byID, id)
	}

	if len(doomed) > 0 {
		// Referential integrity pass: drop edges pointing at pruned concepts.
		for _, concept := range g.byID {
			kept := concept.Relations[:0]
			for _, rel := range concept.Relations {
				if _, ok := g.byID[rel.TargetID]; ok {
					kept = append(kept, rel)
				}
			}
			concept.Relations = kept
		}
	}

	return len(doomed)
}

// ScoredConcept pairs a concept with its similarity to a query.
type ScoredConcept struct {
	Concept    types.Concept `json:"concept"`
	Similarity float64       `json:"similarity"`
}

// FindSimilar embeds the query and ranks every concept by cosine similarity,
// keeping those at or above minSimilarity, sorted descending and truncated to
// topK. Exact similarity ties break on ascending concept ID so the ordering
// is stable. An embedding failure degrades to an empty result (logged); a
// dimension mismatch between query and stored vectors is a hard failure.
func (g *Graph) FindSimilar(ctx context.Context, query string, topK int, minSimilarity float64) ([]ScoredConcept, error) {
	if topK <= 0 {
		topK = 5
	}

	queryVec, err := g.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("concepts: query embedding failed, returning no matches: %v", err)
		return []ScoredConcept{}, nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	scored := make([]ScoredConcept, 0, len(g.byID))
	for _, concept := range g.byID {
		if len(concept.Embedding) == 0 {
			continue
		}
		sim, err := llm.CosineSimilarity(queryVec, concept.Embedding)
		if err != nil {
			return nil, err
		}
		if sim >= minSimilarity {
			scored = append(scored, ScoredConcept{Concept: concept.Clone(), Similarity: sim})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Concept.ID < scored[j].Concept.ID
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}
