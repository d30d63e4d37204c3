package concepts

import (
	"sort"

	"github.com/mnemolabs/mnemo/pkg/types"
)

// ExportAll returns a deep copy of every concept, sorted by ID for stable
// output. Intended for snapshots and debugging dumps.
func (g *Graph) ExportAll() []types.Concept {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]types.Concept, 0, len(g.byID))
	for _, concept := range g.byID {
		out = append(out, concept.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ImportAll replaces the entire concept set with the given concepts. This is
// a bulk replacement, not a merge: existing concepts are discarded first.
// When two imported concepts collide on a case-insensitive name, the later
// one wins, mirroring map-restore semantics.
func (g *Graph) ImportAll(concepts []types.Concept) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.byID = make(map[string]*types.Concept, len(concepts))
	g.byName = make(map[string]string, len(concepts))

	for _, concept := range concepts {
		clone := concept.Clone()
		if prev, ok := g.byName[normalizeName(clone.Name)]; ok {
			delete(g.byID, prev)
		}
		g.byID[clone.ID] = &clone
		g.byName[normalizeName(clone.Name)] = clone.ID
	}
}

// TreeStats summarises the graph for dashboards and the stats tool.
type TreeStats struct {
	Concepts     int     `json:"concepts"`
	Edges        int     `json:"edges"`
	MeanStrength float64 `json:"mean_strength"`
	MaxDepth     int     `json:"max_depth"` // configured traversal bound

	StrongestID      string `json:"strongest_id,omitempty"`
	StrongestName    string `json:"strongest_name,omitempty"`
	MostAccessedID   string `json:"most_accessed_id,omitempty"`
	MostAccessedName string `json:"most_accessed_name,omitempty"`
}

// TreeStats reports aggregate counts plus the strongest and most-accessed
// concepts. Ties break on the lowest concept ID so repeated calls over the
// same graph always report the same winners.
func (g *Graph) TreeStats() TreeStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := TreeStats{
		Concepts: len(g.byID),
		MaxDepth: g.cfg.MaxDepth,
	}
	if len(g.byID) == 0 {
		return stats
	}

	ids := make([]string, 0, len(g.byID))
	for id := range g.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var totalStrength float64
	var strongest, mostAccessed *types.Concept
	for _, id := range ids {
		concept := g.byID[id]
		stats.Edges += len(concept.Relations)
		totalStrength += concept.Strength

		if strongest == nil || concept.Strength > strongest.Strength {
			strongest = concept
		}
		if mostAccessed == nil || concept.AccessCount > mostAccessed.AccessCount {
			mostAccessed = concept
		}
	}

	stats.MeanStrength = totalStrength / float64(len(g.byID))
	stats.StrongestID = strongest.ID
	stats.StrongestName = strongest.Name
	stats.MostAccessedID = mostAccessed.ID
	stats.MostAccessedName = mostAccessed.Name
	return stats
}
