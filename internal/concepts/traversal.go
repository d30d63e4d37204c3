package concepts

import (
	"sort"

	"github.com/mnemolabs/mnemo/pkg/types"
)

// Related walks outgoing edges from the given concept, depth-first, and
// returns every concept reachable within maxDepth hops over edges whose type
// is in allowedTypes (nil or empty allows every type). A visited set guards
// against cycles, so traversal terminates on any graph shape. maxDepth values
// outside (0, cfg.MaxDepth] are clamped to the configured maximum.
func (g *Graph) Related(id string, allowedTypes []types.RelationType, maxDepth int) []types.Concept {
	if maxDepth <= 0 || maxDepth > g.cfg.MaxDepth {
		maxDepth = g.cfg.MaxDepth
	}

	allowed := map[types.RelationType]bool{}
	for _, t := range allowedTypes {
		allowed[t] = true
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.byID[id]
	if !ok {
		return nil
	}

	visited := map[string]bool{start.ID: true}
	var results []types.Concept

	var walk func(concept *types.Concept, depth int)
	walk = func(concept *types.Concept, depth int) {
		if depth >= maxDepth {
			return
		}
		for _, rel := range concept.Relations {
			if len(allowed) > 0 && !allowed[rel.Type] {
				continue
			}
			target, ok := g.byID[rel.TargetID]
			if !ok || visited[target.ID] {
				continue
			}
			visited[target.ID] = true
			results = append(results, target.Clone())
			walk(target, depth+1)
		}
	}
	walk(start, 0)

	return results
}

// HierarchyNode is one node of the exported concept tree.
type HierarchyNode struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Strength float64          `json:"strength"`
	Children []*HierarchyNode `json:"children,omitempty"`
}

// Hierarchy builds the concept tree by following child-typed edges
// recursively from the given root. With an empty rootID it returns a forest
// rooted at every concept that has no parent-typed edge. Cycles are guarded
// by a per-call visited set; a concept appears at most once in the result.
func (g *Graph) Hierarchy(rootID string) []*HierarchyNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]bool)

	if rootID != "" {
		root, ok := g.byID[rootID]
		if !ok {
			return nil
		}
		return []*HierarchyNode{g.buildSubtreeLocked(root, visited)}
	}

	// Roots are concepts with no parent edge, in stable ID order.
	var roots []*types.Concept
	for _, concept := range g.byID {
		if !hasEdgeOfType(concept, types.RelationParent) {
			roots = append(roots, concept)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })

	forest := make([]*HierarchyNode, 0, len(roots))
	for _, root := range roots {
		if visited[root.ID] {
			continue
		}
		forest = append(forest, g.buildSubtreeLocked(root, visited))
	}
	return forest
}

// buildSubtreeLocked expands child edges recursively. Callers hold the read lock.
func (g *Graph) buildSubtreeLocked(concept *types.Concept, visited map[string]bool) *HierarchyNode {
	visited[concept.ID] = true
	node := &HierarchyNode{
		ID:       concept.ID,
		Name:     concept.Name,
		Strength: concept.Strength,
	}

	for _, rel := range concept.Relations {
		if rel.Type != types.RelationChild {
			continue
		}
		child, ok := g.byID[rel.TargetID]
		if !ok || visited[child.ID] {
			continue
		}
		node.Children = append(node.Children, g.buildSubtreeLocked(child, visited))
	}
	return node
}

func hasEdgeOfType(concept *types.Concept, relType types.RelationType) bool {
	for _, rel := range concept.Relations {
		if rel.Type == relType {
			return true
		}
	}
	return false
}
