package concepts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolabs/mnemo/pkg/types"
)

// buildChain imports a linear related-chain c-0 -> c-1 -> ... -> c-n.
func buildChain(g *Graph, n int) {
	concepts := make([]types.Concept, n)
	for i := 0; i < n; i++ {
		concepts[i] = types.Concept{
			ID:       chainID(i),
			Name:     chainID(i),
			Strength: 1.0,
		}
		if i+1 < n {
			concepts[i].Relations = []types.Relationship{
				{TargetID: chainID(i + 1), Type: types.RelationRelated, Strength: 0.5},
			}
		}
	}
	g.ImportAll(concepts)
}

func chainID(i int) string {
	return string(rune('a'+i)) + "-node"
}

func TestRelated_DepthBound(t *testing.T) {
	g, _ := newTestGraph(t)
	buildChain(g, 5)

	got := g.Related(chainID(0), nil, 2)
	require.Len(t, got, 2, "depth 2 reaches exactly two hops down a chain")
	assert.Equal(t, chainID(1), got[0].ID)
	assert.Equal(t, chainID(2), got[1].ID)
}

func TestRelated_TypeFilter(t *testing.T) {
	g, _ := newTestGraph(t)
	g.ImportAll([]types.Concept{
		{ID: "root", Name: "root", Relations: []types.Relationship{
			{TargetID: "syn", Type: types.RelationSynonym, Strength: 0.9},
			{TargetID: "ant", Type: types.RelationAntonym, Strength: 0.9},
		}},
		{ID: "syn", Name: "syn"},
		{ID: "ant", Name: "ant"},
	})

	got := g.Related("root", []types.RelationType{types.RelationSynonym}, 3)
	require.Len(t, got, 1)
	assert.Equal(t, "syn", got[0].ID)
}

func TestRelated_CycleTerminates(t *testing.T) {
	g, _ := newTestGraph(t)
	g.ImportAll([]types.Concept{
		{ID: "a", Name: "a", Relations: []types.Relationship{{TargetID: "b", Type: types.RelationRelated, Strength: 0.5}}},
		{ID: "b", Name: "b", Relations: []types.Relationship{{TargetID: "a", Type: types.RelationRelated, Strength: 0.5}}},
	})

	got := g.Related("a", nil, 10)
	assert.Len(t, got, 1, "cycle must not revisit the start node or loop")
}

func TestRelated_UnknownStart(t *testing.T) {
	g, _ := newTestGraph(t)
	assert.Nil(t, g.Related("ghost", nil, 3))
}

func TestHierarchy_FromRoot(t *testing.T) {
	g, _ := newTestGraph(t)
	g.ImportAll([]types.Concept{
		{ID: "animal", Name: "animal", Relations: []types.Relationship{
			{TargetID: "dog", Type: types.RelationChild, Strength: 0.8},
			{TargetID: "cat", Type: types.RelationChild, Strength: 0.8},
		}},
		{ID: "dog", Name: "dog", Relations: []types.Relationship{
			{TargetID: "animal", Type: types.RelationParent, Strength: 0.8},
		}},
		{ID: "cat", Name: "cat", Relations: []types.Relationship{
			{TargetID: "animal", Type: types.RelationParent, Strength: 0.8},
		}},
	})

	trees := g.Hierarchy("animal")
	require.Len(t, trees, 1)
	assert.Equal(t, "animal", trees[0].ID)
	assert.Len(t, trees[0].Children, 2)
}

func TestHierarchy_ForestFromParentlessRoots(t *testing.T) {
	g, _ := newTestGraph(t)
	g.ImportAll([]types.Concept{
		{ID: "r1", Name: "r1", Relations: []types.Relationship{
			{TargetID: "leaf", Type: types.RelationChild, Strength: 0.8},
		}},
		{ID: "leaf", Name: "leaf", Relations: []types.Relationship{
			{TargetID: "r1", Type: types.RelationParent, Strength: 0.8},
		}},
		{ID: "r2", Name: "r2"},
	})

	forest := g.Hierarchy("")
	require.Len(t, forest, 2, "only parentless concepts are forest roots")
	assert.Equal(t, "r1", forest[0].ID, "forest order is stable by id")
	assert.Equal(t, "r2", forest[1].ID)
	require.Len(t, forest[0].Children, 1)
	assert.Equal(t, "leaf", forest[0].Children[0].ID)
}

func TestHierarchy_CycleGuarded(t *testing.T) {
	// Malformed data: two nodes claiming each other as children. The visited
	// set must keep the build finite.
	g, _ := newTestGraph(t)
	g.ImportAll([]types.Concept{
		{ID: "x", Name: "x", Relations: []types.Relationship{{TargetID: "y", Type: types.RelationChild, Strength: 0.5}}},
		{ID: "y", Name: "y", Relations: []types.Relationship{{TargetID: "x", Type: types.RelationChild, Strength: 0.5}}},
	})

	trees := g.Hierarchy("x")
	require.Len(t, trees, 1)
	require.Len(t, trees[0].Children, 1)
	assert.Empty(t, trees[0].Children[0].Children, "cycle back to the root must be cut")
}

func TestHierarchy_UnknownRoot(t *testing.T) {
	g, _ := newTestGraph(t)
	assert.Nil(t, g.Hierarchy("ghost"))
}
