package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestGraph(t *testing.T) *Graph {
	t.Helper()

	g := NewGraph()
	nodes := []Node{
		{ID: "agent", Type: "concept", Label: "Agent"},
		{ID: "handoff", Type: "concept", Label: "Handoff"},
		{ID: "registry", Type: "component", Label: "Handoff Registry"},
		{ID: "graph", Type: "component", Label: "Knowledge Graph"},
	}
	for _, n := range nodes {
		_, err := g.AddNode(n)
		require.NoError(t, err)
	}

	edges := []Edge{
		{ID: "e1", From: "agent", To: "handoff", Type: "initiates"},
		{ID: "e2", From: "handoff", To: "registry", Type: "recorded_in"},
		{ID: "e3", From: "registry", To: "graph", Type: "feeds"},
	}
	for _, e := range edges {
		_, err := g.AddEdge(e)
		require.NoError(t, err)
	}
	return g
}

func TestGraphAddNodeAssignsID(t *testing.T) {
	g := NewGraph()

	node, err := g.AddNode(Node{Type: "concept", Label: "Taxonomy"})
	require.NoError(t, err)
	assert.NotEmpty(t, node.ID)
	assert.False(t, node.CreatedAt.IsZero())

	got, ok := g.GetNode(node.ID)
	require.True(t, ok)
	assert.Equal(t, "Taxonomy", got.Label)
}

func TestGraphAddNodeRejectsDuplicate(t *testing.T) {
	g := NewGraph()

	_, err := g.AddNode(Node{ID: "dup", Label: "first"})
	require.NoError(t, err)

	_, err = g.AddNode(Node{ID: "dup", Label: "second"})
	assert.ErrorIs(t, err, ErrNodeExists)
}

func TestGraphUpdateNode(t *testing.T) {
	g := buildTestGraph(t)

	original, _ := g.GetNode("agent")
	updated, err := g.UpdateNode(Node{ID: "agent", Type: "concept", Label: "Autonomous Agent"})
	require.NoError(t, err)

	assert.Equal(t, "Autonomous Agent", updated.Label)
	assert.Equal(t, original.CreatedAt, updated.CreatedAt)

	_, err = g.UpdateNode(Node{ID: "missing"})
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestGraphAddEdgeValidatesEndpoints(t *testing.T) {
	g := buildTestGraph(t)

	_, err := g.AddEdge(Edge{From: "agent", To: "nowhere", Type: "related_to"})
	assert.ErrorIs(t, err, ErrMissingEndpoint)

	_, err = g.AddEdge(Edge{From: "nowhere", To: "agent", Type: "related_to"})
	assert.ErrorIs(t, err, ErrMissingEndpoint)
}

func TestGraphRemoveNodeCascades(t *testing.T) {
	g := buildTestGraph(t)

	// handoff has one incoming edge (e1) and one outgoing edge (e2).
	require.NoError(t, g.RemoveNode("handoff"))

	_, ok := g.GetNode("handoff")
	assert.False(t, ok)
	_, ok = g.GetEdge("e1")
	assert.False(t, ok)
	_, ok = g.GetEdge("e2")
	assert.False(t, ok)
	_, ok = g.GetEdge("e3")
	assert.True(t, ok, "unrelated edge must survive")

	assert.ErrorIs(t, g.RemoveNode("handoff"), ErrNodeNotFound)
}

func TestGraphRemoveEdge(t *testing.T) {
	g := buildTestGraph(t)

	require.NoError(t, g.RemoveEdge("e2"))
	_, ok := g.GetEdge("e2")
	assert.False(t, ok)

	// The endpoints stay.
	_, ok = g.GetNode("handoff")
	assert.True(t, ok)

	assert.ErrorIs(t, g.RemoveEdge("e2"), ErrEdgeNotFound)
}

func TestGraphNeighborsRespectsDepth(t *testing.T) {
	g := buildTestGraph(t)

	// agent -e1-> handoff -e2-> registry -e3-> graph
	oneHop := g.Neighbors("agent", 1)
	require.Len(t, oneHop, 1)
	assert.Equal(t, "handoff", oneHop[0].ID)

	twoHop := g.Neighbors("agent", 2)
	ids := make([]string, len(twoHop))
	for i, n := range twoHop {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{"handoff", "registry"}, ids)

	assert.Nil(t, g.Neighbors("agent", 0))
	assert.Nil(t, g.Neighbors("missing", 3))
}

func TestGraphNeighborsFollowsBothDirections(t *testing.T) {
	g := buildTestGraph(t)

	neighbors := g.Neighbors("handoff", 1)
	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}
	assert.ElementsMatch(t, []string{"agent", "registry"}, ids)
}

func TestGraphNodesByType(t *testing.T) {
	g := buildTestGraph(t)

	components := g.NodesByType("component")
	require.Len(t, components, 2)
	assert.Equal(t, "graph", components[0].ID)
	assert.Equal(t, "registry", components[1].ID)

	assert.Empty(t, g.NodesByType("unknown"))
}

func TestGraphFindNodes(t *testing.T) {
	g := buildTestGraph(t)

	matches := g.FindNodes("handoff")
	require.Len(t, matches, 2)
	assert.Equal(t, "handoff", matches[0].ID)
	assert.Equal(t, "registry", matches[1].ID)

	assert.Nil(t, g.FindNodes(""))
	assert.Empty(t, g.FindNodes("zzz"))
}

func TestGraphTriples(t *testing.T) {
	g := buildTestGraph(t)

	triples := g.Triples()
	require.Len(t, triples, 3)
	assert.Contains(t, triples, Triple{Subject: "Agent", Predicate: "initiates", Object: "Handoff"})
	assert.Contains(t, triples, Triple{Subject: "Handoff Registry", Predicate: "feeds", Object: "Knowledge Graph"})
}

func TestGraphStats(t *testing.T) {
	g := buildTestGraph(t)

	stats := g.Stats()
	assert.Equal(t, 4, stats.Nodes)
	assert.Equal(t, 3, stats.Edges)
	assert.Equal(t, 2, stats.NodeTypes["concept"])
	assert.Equal(t, 2, stats.NodeTypes["component"])
	assert.Equal(t, 1, stats.EdgeTypes["initiates"])
}

func TestGraphSnapshotRoundTrip(t *testing.T) {
	g := buildTestGraph(t)

	rebuilt, err := FromDocument(g.Snapshot())
	require.NoError(t, err)

	assert.Equal(t, g.Stats(), rebuilt.Stats())
	assert.Equal(t, g.Triples(), rebuilt.Triples())
}

func TestFromDocumentRejectsDanglingEdge(t *testing.T) {
	doc := Document{
		Nodes: map[string]Node{"a": {ID: "a"}},
		Edges: map[string]Edge{"e": {ID: "e", From: "a", To: "ghost"}},
	}

	_, err := FromDocument(doc)
	assert.ErrorIs(t, err, ErrMissingEndpoint)
}
