package layout

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/reportflow/internal/blueprint"
)

func scenarioGraph() ([]blueprint.Node, []blueprint.Edge) {
	nodes := []blueprint.Node{
		{ID: "1", Type: blueprint.NodeTypeInput, Data: blueprint.NodeData{Label: "a.pdf"}},
		{ID: "2", Type: blueprint.NodeTypeOutput, Data: blueprint.NodeData{Label: "Summary"}},
	}
	edges := []blueprint.Edge{{Source: "1", Target: "2"}}
	return nodes, edges
}

func reportGraph() ([]blueprint.Node, []blueprint.Edge) {
	nodes := []blueprint.Node{
		{ID: "f1", Type: blueprint.NodeTypeInput, Data: blueprint.NodeData{Label: "sales.xlsx", Pages: []blueprint.Page{blueprint.PageNumber(1), blueprint.PageNumber(2)}}},
		{ID: "f2", Type: blueprint.NodeTypeInput, Data: blueprint.NodeData{Label: "notes.pdf"}},
		{ID: "f3", Type: blueprint.NodeTypeInput, Data: blueprint.NodeData{Label: "survey.csv"}},
		{ID: "ag", Type: blueprint.NodeTypeAgent, Data: blueprint.NodeData{Label: "Analyst"}},
		{ID: "o1", Type: blueprint.NodeTypeOutput, Data: blueprint.NodeData{Label: "Overview"}},
		{ID: "o2", Type: blueprint.NodeTypeOutput, Data: blueprint.NodeData{Label: "Risks"}},
	}
	edges := []blueprint.Edge{
		{Source: "f1", Target: "ag"},
		{Source: "f2", Target: "ag"},
		{Source: "ag", Target: "o1"},
		{Source: "f3", Target: "o2"},
		{Source: "f1", Target: "o2"},
		{ID: "explicit", Source: "f2", Target: "o1"},
	}
	return nodes, edges
}

func TestLayoutScenario(t *testing.T) {
	nodes, edges := scenarioGraph()
	result, err := Layout(nodes, edges)
	require.NoError(t, err)
	require.Len(t, result.Nodes, 2)
	require.Len(t, result.Edges, 1)
	assert.Equal(t, "e-1-2-0", result.Edges[0].ID)

	first, second := result.Nodes[0].Position, result.Nodes[1].Position
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, blueprint.Position{X: 0, Y: 0}, *first)
	assert.Equal(t, blueprint.Position{X: 0, Y: 180}, *second)
	assert.Equal(t, 220.0, result.Width)
	assert.Equal(t, 260.0, result.Height)
	assert.Equal(t, []blueprint.Position{{X: 110, Y: 80}, {X: 110, Y: 180}}, result.Edges[0].Points)
}

func TestLayoutDoesNotMutateInputs(t *testing.T) {
	nodes, edges := scenarioGraph()
	_, err := Layout(nodes, edges)
	require.NoError(t, err)
	assert.Nil(t, nodes[0].Position)
	assert.Empty(t, edges[0].ID)
	assert.Nil(t, edges[0].Points)
}

func TestLayoutIsIdempotent(t *testing.T) {
	nodes, edges := reportGraph()
	first, err := Layout(nodes, edges)
	require.NoError(t, err)
	second, err := Layout(nodes, edges)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second, cmp.AllowUnexported(blueprint.Page{}, blueprint.NodeData{})); diff != "" {
		t.Fatalf("layout not deterministic (-first +second):\n%s", diff)
	}
}

func TestLayoutWithoutEdges(t *testing.T) {
	nodes, _ := scenarioGraph()
	for _, tc := range []struct {
		name  string
		nodes []blueprint.Node
		edges []blueprint.Edge
	}{
		{"nil edges", nodes, nil},
		{"empty edges", nodes, []blueprint.Edge{}},
		{"no nodes", nil, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Layout(tc.nodes, tc.edges)
			assert.ErrorIs(t, err, ErrNoRenderableLayout)
		})
	}
}

func TestParallelEdgesGetDistinctIDs(t *testing.T) {
	nodes, _ := scenarioGraph()
	edges := []blueprint.Edge{
		{Source: "1", Target: "2"},
		{Source: "1", Target: "2"},
		{Source: "1", Target: "2"},
	}
	result, err := Layout(nodes, edges)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, edge := range result.Edges {
		assert.False(t, seen[edge.ID], "duplicate id %s", edge.ID)
		seen[edge.ID] = true
	}
	assert.Equal(t, []string{"e-1-2-0", "e-1-2-1", "e-1-2-2"},
		[]string{result.Edges[0].ID, result.Edges[1].ID, result.Edges[2].ID})
}

func TestSyntheticIDsNeverCollide(t *testing.T) {
	edges := []blueprint.Edge{
		{Source: "a", Target: "b-1"},
		{Source: "a-b", Target: "1"},
		{Source: "a", Target: "b"},
		{Source: "a", Target: "b"},
	}
	normalized := NormalizeEdgeIDs(edges)
	seen := map[string]int{}
	for i, edge := range normalized {
		if prev, ok := seen[edge.ID]; ok {
			t.Fatalf("edges %d and %d share id %s", prev, i, edge.ID)
		}
		seen[edge.ID] = i
	}
}

func TestLayoutKeepsExplicitIDs(t *testing.T) {
	nodes, edges := reportGraph()
	result, err := Layout(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, "explicit", result.Edges[5].ID)
	assert.Equal(t, "e-f1-ag-0", result.Edges[0].ID)
}

func TestLayoutRanksAndSeparation(t *testing.T) {
	nodes, edges := reportGraph()
	opts := DefaultOptions()
	result, err := Layout(nodes, edges)
	require.NoError(t, err)

	byID := map[string]blueprint.Position{}
	for _, node := range result.Nodes {
		require.NotNil(t, node.Position, node.ID)
		byID[node.ID] = *node.Position
	}
	step := opts.NodeHeight + opts.RankSep
	assert.Equal(t, 0.0, byID["f1"].Y)
	assert.Equal(t, 0.0, byID["f3"].Y)
	assert.Equal(t, step, byID["ag"].Y)
	assert.Equal(t, 2*step, byID["o1"].Y)
	assert.Equal(t, step, byID["o2"].Y)

	for i, a := range result.Nodes {
		for _, b := range result.Nodes[i+1:] {
			if a.Position.Y != b.Position.Y {
				continue
			}
			gap := math.Abs(a.Position.X - b.Position.X)
			assert.GreaterOrEqual(t, gap+1e-9, opts.NodeWidth+opts.NodeSep, "%s overlaps %s", a.ID, b.ID)
		}
	}
	minX := math.Inf(1)
	for _, pos := range byID {
		minX = math.Min(minX, pos.X)
	}
	for _, edge := range result.Edges {
		for _, p := range edge.Points {
			minX = math.Min(minX, p.X)
		}
	}
	assert.InDelta(t, 0, minX, 1e-9)
}

func TestLongEdgesAreRoutedThroughEveryRank(t *testing.T) {
	nodes, edges := reportGraph()
	result, err := Layout(nodes, edges)
	require.NoError(t, err)
	// f2 -> o1 spans two ranks and passes one dummy vertex.
	assert.Len(t, result.Edges[5].Points, 3)
}

func TestUnknownEndpointsAreDropped(t *testing.T) {
	nodes, edges := scenarioGraph()
	edges = append(edges, blueprint.Edge{Source: "1", Target: "ghost"})
	result, err := Layout(nodes, edges)
	require.NoError(t, err)
	require.Len(t, result.Edges, 1)
	require.Len(t, result.Dropped, 1)
	assert.Equal(t, "e-1-ghost-1", result.Dropped[0].ID)

	_, err = Layout(nodes, []blueprint.Edge{{Source: "x", Target: "y"}})
	assert.True(t, errors.Is(err, ErrNoRenderableLayout))
}

func TestCyclesAndSelfLoopsAreLaidOut(t *testing.T) {
	nodes := []blueprint.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	edges := []blueprint.Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "c"},
		{Source: "c", Target: "a"},
		{Source: "b", Target: "b"},
	}
	result, err := Layout(nodes, edges)
	require.NoError(t, err)
	ys := map[float64]bool{}
	for _, node := range result.Nodes {
		ys[node.Position.Y] = true
	}
	assert.Len(t, ys, 3)
	assert.Nil(t, result.Edges[3].Points)
	back := result.Edges[2].Points
	require.NotEmpty(t, back)
	// c -> a was reversed for ranking but its route still starts at c.
	assert.Greater(t, back[0].Y, back[len(back)-1].Y)
}

func TestBreakCyclesOnlyReversesArcsInsideComponents(t *testing.T) {
	g := newLayoutGraph(DefaultOptions())
	for _, id := range []string{"a", "b", "c", "d"} {
		g.addNode(id, 0)
	}
	g.addEdge("a", "b", 0)
	g.addEdge("b", "a", 1)
	g.addEdge("b", "c", 2)
	g.addEdge("c", "d", 3)
	g.addEdge("d", "c", 4)
	g.breakCycles()

	var reversed []int
	for i, a := range g.arcs {
		if a.reversed {
			reversed = append(reversed, i)
		}
	}
	assert.Equal(t, []int{1, 4}, reversed)

	require.NoError(t, g.assignRanks())
	ranks := map[string]int{}
	for _, id := range []string{"a", "b", "c", "d"} {
		ranks[id] = g.vertexFor(id).rank
	}
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2, "d": 3}, ranks)
}

func TestIsolatedNodesArePositioned(t *testing.T) {
	nodes := []blueprint.Node{{ID: "1"}, {ID: "2"}, {ID: "lonely"}}
	edges := []blueprint.Edge{{Source: "1", Target: "2"}}
	result, err := Layout(nodes, edges)
	require.NoError(t, err)
	require.NotNil(t, result.Nodes[2].Position)
	assert.Equal(t, 0.0, result.Nodes[2].Position.Y)
}

func TestMinimizeCrossingsUntanglesLayers(t *testing.T) {
	g := newLayoutGraph(DefaultOptions())
	for _, id := range []string{"a", "b", "c", "d"} {
		g.addNode(id, 0)
	}
	g.addEdge("a", "c", 0)
	g.addEdge("b", "d", 1)
	g.breakCycles()
	require.NoError(t, g.assignRanks())
	g.splitLongArcs()
	g.initOrder()
	g.layers[1][0], g.layers[1][1] = g.layers[1][1], g.layers[1][0]
	g.refreshOrder()
	require.Equal(t, 1, g.crossings())

	g.minimizeCrossings()
	assert.Equal(t, 0, g.crossings())
}

func TestLayoutHandlesWideGraphs(t *testing.T) {
	var nodes []blueprint.Node
	var edges []blueprint.Edge
	for i := 0; i < 20; i++ {
		nodes = append(nodes, blueprint.Node{ID: fmt.Sprintf("in%d", i), Type: blueprint.NodeTypeInput})
	}
	for i := 0; i < 5; i++ {
		out := fmt.Sprintf("out%d", i)
		nodes = append(nodes, blueprint.Node{ID: out, Type: blueprint.NodeTypeOutput})
		for j := i; j < 20; j += 5 {
			edges = append(edges, blueprint.Edge{Source: fmt.Sprintf("in%d", j), Target: out})
		}
	}
	result, err := Layout(nodes, edges)
	require.NoError(t, err)
	assert.Len(t, result.Nodes, 25)
	assert.Greater(t, result.Width, 20*DefaultOptions().NodeWidth)
}

func TestRendererFor(t *testing.T) {
	assert.Equal(t, RendererFile, RendererFor(blueprint.NodeTypeInput))
	assert.Equal(t, RendererTarget, RendererFor(blueprint.NodeTypeOutput))
	assert.Equal(t, RendererDefault, RendererFor(blueprint.NodeTypeAgent))
	assert.Equal(t, RendererDefault, RendererFor("made-up"))
	assert.Equal(t, RendererDefault, RendererFor(""))
}
