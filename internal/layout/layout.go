// Package layout turns a blueprint graph into a layered, top-to-bottom
// drawing: every node receives a top-left position and every edge a stable
// identifier plus a route. Layout is deterministic for identical input order.
package layout

import (
	"errors"
	"fmt"

	"github.com/kingrea/reportflow/internal/blueprint"
)

// ErrNoRenderableLayout signals a graph without usable connections.
var ErrNoRenderableLayout = errors.New("layout: graph has no edges to lay out")

// Options fixes the node footprint and spacing.
type Options struct {
	NodeWidth  float64
	NodeHeight float64
	NodeSep    float64
	RankSep    float64
	EdgeSep    float64
	// Sweeps bounds the crossing-minimisation passes.
	Sweeps int
	// Passes bounds the coordinate-assignment passes.
	Passes int
}

// DefaultOptions matches the canvas node cards.
func DefaultOptions() Options {
	return Options{
		NodeWidth:  220,
		NodeHeight: 80,
		NodeSep:    100,
		RankSep:    100,
		EdgeSep:    20,
		Sweeps:     24,
		Passes:     8,
	}
}

// Result is a laid-out graph.
type Result struct {
	Nodes []blueprint.Node
	Edges []blueprint.Edge
	// Dropped holds edges whose endpoints do not name a node.
	Dropped []blueprint.Edge
	Width   float64
	Height  float64
}

// Graph returns the laid-out nodes and edges as a blueprint graph.
func (r Result) Graph() blueprint.Graph {
	return blueprint.Graph{Nodes: r.Nodes, Edges: r.Edges}
}

// Engine runs layouts with fixed options.
type Engine struct {
	opts Options
}

// NewEngine creates an engine; zero option fields take their defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.NodeWidth <= 0 {
		opts.NodeWidth = def.NodeWidth
	}
	if opts.NodeHeight <= 0 {
		opts.NodeHeight = def.NodeHeight
	}
	if opts.NodeSep <= 0 {
		opts.NodeSep = def.NodeSep
	}
	if opts.RankSep <= 0 {
		opts.RankSep = def.RankSep
	}
	if opts.EdgeSep <= 0 {
		opts.EdgeSep = def.EdgeSep
	}
	if opts.Sweeps <= 0 {
		opts.Sweeps = def.Sweeps
	}
	if opts.Passes <= 0 {
		opts.Passes = def.Passes
	}
	return &Engine{opts: opts}
}

// Options returns the engine's effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// Layout lays out the graph using the default options.
func Layout(nodes []blueprint.Node, edges []blueprint.Edge) (Result, error) {
	return NewEngine(DefaultOptions()).Layout(nodes, edges)
}

// EdgeID is the synthetic identifier of the edge at index in its sequence.
func EdgeID(source, target string, index int) string {
	return fmt.Sprintf("e-%s-%s-%d", source, target, index)
}

// NormalizeEdgeIDs returns a copy of edges where every missing id is
// replaced by EdgeID(source, target, index).
func NormalizeEdgeIDs(edges []blueprint.Edge) []blueprint.Edge {
	out := blueprint.CloneEdges(edges)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = EdgeID(out[i].Source, out[i].Target, i)
		}
	}
	return out
}

// Layout assigns positions to copies of nodes and identifiers to copies of
// edges. The inputs are never modified. A graph without edges, or whose
// edges all reference unknown nodes, yields ErrNoRenderableLayout.
func (e *Engine) Layout(nodes []blueprint.Node, edges []blueprint.Edge) (Result, error) {
	if len(edges) == 0 {
		return Result{}, ErrNoRenderableLayout
	}
	workNodes := blueprint.CloneNodes(nodes)
	workEdges := NormalizeEdgeIDs(edges)

	g := newLayoutGraph(e.opts)
	for i := range workNodes {
		g.addNode(workNodes[i].ID, i)
	}
	kept := make([]blueprint.Edge, 0, len(workEdges))
	var dropped []blueprint.Edge
	for _, edge := range workEdges {
		if !g.hasNode(edge.Source) || !g.hasNode(edge.Target) {
			dropped = append(dropped, edge)
			continue
		}
		g.addEdge(edge.Source, edge.Target, len(kept))
		kept = append(kept, edge)
	}
	if len(kept) == 0 {
		return Result{Dropped: dropped}, ErrNoRenderableLayout
	}

	if err := g.run(); err != nil {
		return Result{Dropped: dropped}, err
	}

	for i := range workNodes {
		v := g.vertexFor(workNodes[i].ID)
		workNodes[i].Position = &blueprint.Position{
			X: v.x - e.opts.NodeWidth/2,
			Y: v.y - e.opts.NodeHeight/2,
		}
	}
	for i := range kept {
		kept[i].Points = g.route(i)
	}
	width, height := g.extent()
	return Result{
		Nodes:   workNodes,
		Edges:   kept,
		Dropped: dropped,
		Width:   width,
		Height:  height,
	}, nil
}
