package taskgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGraph_UnknownPrerequisiteIsError(t *testing.T) {
	_, err := buildGraph([]string{"a"}, map[string][]string{"a": {"ghost"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestDetectCycle_FindsBackEdge(t *testing.T) {
	g, err := buildGraph([]string{"a", "b", "c"}, map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	})
	require.NoError(t, err)
	cycle := g.detectCycle()
	assert.NotEmpty(t, cycle)
}

func TestDetectCycle_AcyclicReturnsNil(t *testing.T) {
	g, err := buildGraph([]string{"a", "b"}, map[string][]string{"b": {"a"}})
	require.NoError(t, err)
	assert.Nil(t, g.detectCycle())
}

func TestTransitiveReduction_DropsRedundantEdge(t *testing.T) {
	// c depends on b and a, but b already depends on a, so c->a is redundant.
	g, err := buildGraph([]string{"a", "b", "c"}, map[string][]string{
		"b": {"a"},
		"c": {"a", "b"},
	})
	require.NoError(t, err)
	g.transitiveReduction()
	assert.ElementsMatch(t, []string{"b"}, g.edges["c"])
}

func TestStableTopologicalSort_PrefersDocumentOrderAmongReady(t *testing.T) {
	g, err := buildGraph([]string{"x", "y", "z"}, map[string][]string{
		"z": {"x", "y"},
	})
	require.NoError(t, err)
	sorted, err := g.stableTopologicalSort(map[string]int{"y": 0, "x": 1, "z": 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x", "z"}, sorted)
}

func TestStableTopologicalSort_CyclicIsError(t *testing.T) {
	g, err := buildGraph([]string{"a", "b"}, map[string][]string{"a": {"b"}, "b": {"a"}})
	require.NoError(t, err)
	_, err = g.stableTopologicalSort(map[string]int{"a": 0, "b": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}
