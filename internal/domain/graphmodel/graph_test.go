package graphmodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graflow/graflow/internal/domain/graphmodel"
)

func linear(t *testing.T) *graphmodel.Graph {
	t.Helper()
	g := graphmodel.New()
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "a"}))
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "b"}))
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "c"}))
	require.NoError(t, g.AddEdge(&graphmodel.Edge{ID: "ab", Source: "a", Target: "b", EdgeType: graphmodel.Blocking}))
	require.NoError(t, g.AddEdge(&graphmodel.Edge{ID: "bc", Source: "b", Target: "c", EdgeType: graphmodel.Blocking}))
	return g
}

func TestAddEdge_RejectsUnknownEndpoints(t *testing.T) {
	g := graphmodel.New()
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "a"}))
	err := g.AddEdge(&graphmodel.Edge{ID: "e1", Source: "a", Target: "missing"})
	assert.Error(t, err)
}

func TestAddEdge_DefaultsEdgeTypeToBlocking(t *testing.T) {
	g := graphmodel.New()
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "a"}))
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "b"}))
	require.NoError(t, g.AddEdge(&graphmodel.Edge{ID: "e1", Source: "a", Target: "b"}))

	e, ok := g.Edge("e1")
	require.True(t, ok)
	assert.Equal(t, graphmodel.Blocking, e.EdgeType)
}

func TestRemoveNode_CascadesIncidentEdges(t *testing.T) {
	g := linear(t)
	require.NoError(t, g.RemoveNode("b"))

	_, ok := g.Edge("ab")
	assert.False(t, ok)
	_, ok = g.Edge("bc")
	assert.False(t, ok)
	assert.Empty(t, g.Predecessors("c"))
}

func TestZeroIndegreeRoots(t *testing.T) {
	g := linear(t)
	within := map[string]bool{"a": true, "b": true, "c": true}
	assert.Equal(t, []string{"a"}, g.ZeroIndegreeRoots(within))
}

func TestZeroIndegreeRoots_IgnoresEdgesLeavingTheSubset(t *testing.T) {
	g := linear(t)
	within := map[string]bool{"b": true, "c": true}
	// a->b leaves the subset, so b has no visible predecessor inside it.
	assert.Equal(t, []string{"b"}, g.ZeroIndegreeRoots(within))
}

func TestHasBlockingCycle_DetectsCycle(t *testing.T) {
	g := graphmodel.New()
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "a"}))
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "b"}))
	require.NoError(t, g.AddEdge(&graphmodel.Edge{ID: "ab", Source: "a", Target: "b", EdgeType: graphmodel.Blocking}))
	require.NoError(t, g.AddEdge(&graphmodel.Edge{ID: "ba", Source: "b", Target: "a", EdgeType: graphmodel.Blocking}))

	within := map[string]bool{"a": true, "b": true}
	assert.True(t, g.HasBlockingCycle(within))
}

func TestHasBlockingCycle_NonBlockingEdgeNeverCreatesACycle(t *testing.T) {
	g := graphmodel.New()
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "a"}))
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "b"}))
	require.NoError(t, g.AddEdge(&graphmodel.Edge{ID: "ab", Source: "a", Target: "b", EdgeType: graphmodel.Blocking}))
	require.NoError(t, g.AddEdge(&graphmodel.Edge{ID: "ba", Source: "b", Target: "a", EdgeType: graphmodel.NonBlocking}))

	within := map[string]bool{"a": true, "b": true}
	assert.False(t, g.HasBlockingCycle(within))
}

func TestInducedPredecessors_SplitByEdgeType(t *testing.T) {
	g := graphmodel.New()
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "a"}))
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "b"}))
	require.NoError(t, g.AddNode(&graphmodel.Node{ID: "c"}))
	require.NoError(t, g.AddEdge(&graphmodel.Edge{ID: "ac", Source: "a", Target: "c", EdgeType: graphmodel.Blocking}))
	require.NoError(t, g.AddEdge(&graphmodel.Edge{ID: "bc", Source: "b", Target: "c", EdgeType: graphmodel.NonBlocking}))

	within := map[string]bool{"a": true, "b": true, "c": true}
	assert.Len(t, g.InducedBlockingPredecessors("c", within), 1)
	assert.Len(t, g.InducedNonBlockingPredecessors("c", within), 1)
}

func TestRemoveEdgeByEndpoints(t *testing.T) {
	g := linear(t)
	require.NoError(t, g.RemoveEdgeByEndpoints("a", "b"))
	_, ok := g.Edge("ab")
	assert.False(t, ok)

	err := g.RemoveEdgeByEndpoints("a", "b")
	assert.Error(t, err)
}
