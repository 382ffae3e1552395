package layout

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/kingrea/reportflow/internal/blueprint"
)

type vertex struct {
	id    string
	dummy bool
	width float64
	rank  int
	order int
	x     float64
	y     float64
}

// arc is a connection between two distinct vertices. chain lists the
// vertices the arc passes through in rank order, dummies included.
type arc struct {
	from     int
	to       int
	reversed bool
	chain    []int
}

func (a arc) src() int {
	if a.reversed {
		return a.to
	}
	return a.from
}

func (a arc) dst() int {
	if a.reversed {
		return a.from
	}
	return a.to
}

type layoutGraph struct {
	opts    Options
	verts   []*vertex
	index   map[string]int
	arcs    []arc
	edgeArc map[int]int
	up      [][]int
	down    [][]int
	layers  [][]int
}

func newLayoutGraph(opts Options) *layoutGraph {
	return &layoutGraph{
		opts:    opts,
		index:   map[string]int{},
		edgeArc: map[int]int{},
	}
}

// addNode registers a node once; repeated ids share the first vertex.
func (g *layoutGraph) addNode(id string, _ int) {
	if _, ok := g.index[id]; ok {
		return
	}
	g.index[id] = len(g.verts)
	g.verts = append(g.verts, &vertex{id: id, width: g.opts.NodeWidth})
}

func (g *layoutGraph) hasNode(id string) bool {
	_, ok := g.index[id]
	return ok
}

func (g *layoutGraph) vertexFor(id string) *vertex {
	return g.verts[g.index[id]]
}

// addEdge registers a kept edge. Self loops take no part in ranking.
func (g *layoutGraph) addEdge(source, target string, edge int) {
	from, to := g.index[source], g.index[target]
	if from == to {
		return
	}
	g.edgeArc[edge] = len(g.arcs)
	g.arcs = append(g.arcs, arc{from: from, to: to})
}

func (g *layoutGraph) run() error {
	g.breakCycles()
	if err := g.assignRanks(); err != nil {
		return err
	}
	g.splitLongArcs()
	g.initOrder()
	g.minimizeCrossings()
	g.assignX()
	g.assignY()
	g.translate()
	return nil
}

// directed builds a gonum graph over the real vertices. Parallel arcs
// collapse into one gonum edge.
func (g *layoutGraph) directed(reversed bool) *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for v := range g.verts {
		dg.AddNode(simple.Node(v))
	}
	for _, a := range g.arcs {
		from, to := a.from, a.to
		if reversed {
			from, to = a.src(), a.dst()
		}
		dg.SetEdge(dg.NewEdge(simple.Node(from), simple.Node(to)))
	}
	return dg
}

// breakCycles reverses the arcs that close a cycle. Tarjan's algorithm finds
// the strongly connected components; inside each one a depth-first walk in
// declaration order reverses the arcs that point back onto the walk.
func (g *layoutGraph) breakCycles() {
	component := make([]int, len(g.verts))
	for i, scc := range topo.TarjanSCC(g.directed(false)) {
		for _, n := range scc {
			component[n.ID()] = i
		}
	}
	out := make([][]int, len(g.verts))
	for i, a := range g.arcs {
		if component[a.from] == component[a.to] {
			out[a.from] = append(out[a.from], i)
		}
	}
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(g.verts))
	var visit func(v int)
	visit = func(v int) {
		state[v] = onStack
		for _, ai := range out[v] {
			w := g.arcs[ai].to
			switch state[w] {
			case onStack:
				g.arcs[ai].reversed = true
			case unvisited:
				visit(w)
			}
		}
		state[v] = done
	}
	for v := range g.verts {
		if state[v] == unvisited {
			visit(v)
		}
	}
}

// assignRanks places every vertex on the longest path from a source,
// relaxing arcs in a stable topological order.
func (g *layoutGraph) assignRanks() error {
	dag := g.directed(true)
	order, err := topo.SortStabilized(dag, nil)
	if err != nil {
		return fmt.Errorf("layout: rank assignment: %w", err)
	}
	for _, n := range order {
		v := int(n.ID())
		for it := dag.From(n.ID()); it.Next(); {
			w := int(it.Node().ID())
			if r := g.verts[v].rank + 1; r > g.verts[w].rank {
				g.verts[w].rank = r
			}
		}
	}
	return nil
}

// splitLongArcs inserts one dummy vertex per rank crossed so that every
// segment joins adjacent ranks.
func (g *layoutGraph) splitLongArcs() {
	for i := range g.arcs {
		a := &g.arcs[i]
		s, t := a.src(), a.dst()
		chain := []int{s}
		for r := g.verts[s].rank + 1; r < g.verts[t].rank; r++ {
			g.verts = append(g.verts, &vertex{dummy: true, rank: r})
			chain = append(chain, len(g.verts)-1)
		}
		chain = append(chain, t)
		a.chain = chain
	}
	g.up = make([][]int, len(g.verts))
	g.down = make([][]int, len(g.verts))
	for _, a := range g.arcs {
		for k := 0; k+1 < len(a.chain); k++ {
			u, w := a.chain[k], a.chain[k+1]
			g.down[u] = append(g.down[u], w)
			g.up[w] = append(g.up[w], u)
		}
	}
}

// initOrder seeds each layer by a depth-first walk that starts from the
// lowest ranks in declaration order.
func (g *layoutGraph) initOrder() {
	maxRank := 0
	for _, v := range g.verts {
		if v.rank > maxRank {
			maxRank = v.rank
		}
	}
	g.layers = make([][]int, maxRank+1)
	starts := make([]int, len(g.verts))
	for i := range starts {
		starts[i] = i
	}
	sort.SliceStable(starts, func(i, j int) bool {
		return g.verts[starts[i]].rank < g.verts[starts[j]].rank
	})
	visited := make([]bool, len(g.verts))
	var visit func(v int)
	visit = func(v int) {
		if visited[v] {
			return
		}
		visited[v] = true
		r := g.verts[v].rank
		g.layers[r] = append(g.layers[r], v)
		for _, w := range g.down[v] {
			visit(w)
		}
	}
	for _, v := range starts {
		visit(v)
	}
	g.refreshOrder()
}

func (g *layoutGraph) refreshOrder() {
	for _, layer := range g.layers {
		for i, v := range layer {
			g.verts[v].order = i
		}
	}
}

// minimizeCrossings alternates downward and upward barycenter sweeps and
// keeps the ordering with the fewest crossings seen.
func (g *layoutGraph) minimizeCrossings() {
	best := cloneLayers(g.layers)
	bestCrossings := g.crossings()
	for i := 0; i < g.opts.Sweeps && bestCrossings > 0; i++ {
		if i%2 == 0 {
			for r := 1; r < len(g.layers); r++ {
				g.reorder(r, g.up)
			}
		} else {
			for r := len(g.layers) - 2; r >= 0; r-- {
				g.reorder(r, g.down)
			}
		}
		if c := g.crossings(); c < bestCrossings {
			bestCrossings = c
			best = cloneLayers(g.layers)
		}
	}
	g.layers = best
	g.refreshOrder()
}

// reorder sorts one layer by the barycenter of each vertex's neighbours in
// the adjacent layer. Vertices without neighbours keep their slot.
func (g *layoutGraph) reorder(r int, neighbours [][]int) {
	layer := g.layers[r]
	type candidate struct {
		v    int
		bary float64
	}
	movable := make([]candidate, 0, len(layer))
	fixed := make([]bool, len(layer))
	for i, v := range layer {
		nb := neighbours[v]
		if len(nb) == 0 {
			fixed[i] = true
			continue
		}
		sum := 0.0
		for _, n := range nb {
			sum += float64(g.verts[n].order)
		}
		movable = append(movable, candidate{v: v, bary: sum / float64(len(nb))})
	}
	sort.SliceStable(movable, func(i, j int) bool {
		return movable[i].bary < movable[j].bary
	})
	next := make([]int, len(layer))
	k := 0
	for i, v := range layer {
		if fixed[i] {
			next[i] = v
			continue
		}
		next[i] = movable[k].v
		k++
	}
	g.layers[r] = next
	for i, v := range next {
		g.verts[v].order = i
	}
}

func (g *layoutGraph) crossings() int {
	total := 0
	for r := 0; r+1 < len(g.layers); r++ {
		type segment struct{ a, b int }
		var segs []segment
		for _, u := range g.layers[r] {
			for _, w := range g.down[u] {
				segs = append(segs, segment{a: g.verts[u].order, b: g.verts[w].order})
			}
		}
		for i := 0; i < len(segs); i++ {
			for j := i + 1; j < len(segs); j++ {
				if (segs[i].a < segs[j].a && segs[i].b > segs[j].b) ||
					(segs[i].a > segs[j].a && segs[i].b < segs[j].b) {
					total++
				}
			}
		}
	}
	return total
}

func (g *layoutGraph) gap(v *vertex) float64 {
	if v.dummy {
		return g.opts.EdgeSep
	}
	return g.opts.NodeSep
}

func (g *layoutGraph) sep(a, b *vertex) float64 {
	return (a.width+b.width)/2 + g.gap(a)/2 + g.gap(b)/2
}

// assignX packs each layer around a shared axis, then repeatedly pulls
// vertices toward the mean of their neighbours while keeping the minimum
// separation and the crossing-minimised order.
func (g *layoutGraph) assignX() {
	for _, layer := range g.layers {
		x := 0.0
		for i, v := range layer {
			if i > 0 {
				x += g.sep(g.verts[layer[i-1]], g.verts[v])
			}
			g.verts[v].x = x
		}
		if len(layer) > 0 {
			mid := (g.verts[layer[0]].x + g.verts[layer[len(layer)-1]].x) / 2
			for _, v := range layer {
				g.verts[v].x -= mid
			}
		}
	}
	for p := 0; p < g.opts.Passes; p++ {
		if p%2 == 0 {
			for r := 1; r < len(g.layers); r++ {
				g.place(r, g.up)
			}
		} else {
			for r := len(g.layers) - 2; r >= 0; r-- {
				g.place(r, g.down)
			}
		}
	}
}

func (g *layoutGraph) place(r int, neighbours [][]int) {
	layer := g.layers[r]
	n := len(layer)
	if n == 0 {
		return
	}
	desired := make([]float64, n)
	for i, v := range layer {
		nb := neighbours[v]
		if len(nb) == 0 {
			desired[i] = g.verts[v].x
			continue
		}
		sum := 0.0
		for _, w := range nb {
			sum += g.verts[w].x
		}
		desired[i] = sum / float64(len(nb))
	}
	forward := make([]float64, n)
	backward := make([]float64, n)
	for i := 0; i < n; i++ {
		forward[i] = desired[i]
		if i > 0 {
			forward[i] = math.Max(desired[i], forward[i-1]+g.sep(g.verts[layer[i-1]], g.verts[layer[i]]))
		}
	}
	for i := n - 1; i >= 0; i-- {
		backward[i] = desired[i]
		if i < n-1 {
			backward[i] = math.Min(desired[i], backward[i+1]-g.sep(g.verts[layer[i]], g.verts[layer[i+1]]))
		}
	}
	for i, v := range layer {
		g.verts[v].x = (forward[i] + backward[i]) / 2
	}
}

func (g *layoutGraph) assignY() {
	step := g.opts.NodeHeight + g.opts.RankSep
	for _, v := range g.verts {
		v.y = float64(v.rank)*step + g.opts.NodeHeight/2
	}
}

// translate moves the drawing so its left edge sits at x=0.
func (g *layoutGraph) translate() {
	if len(g.verts) == 0 {
		return
	}
	minX := math.Inf(1)
	for _, v := range g.verts {
		minX = math.Min(minX, v.x-v.width/2)
	}
	for _, v := range g.verts {
		v.x -= minX
	}
}

func (g *layoutGraph) extent() (float64, float64) {
	width, height := 0.0, 0.0
	for _, v := range g.verts {
		width = math.Max(width, v.x+v.width/2)
		if !v.dummy {
			height = math.Max(height, v.y+g.opts.NodeHeight/2)
		}
	}
	return width, height
}

// route returns the polyline of a kept edge from its source's boundary to
// its target's boundary. Self loops have no route.
func (g *layoutGraph) route(edge int) []blueprint.Position {
	ai, ok := g.edgeArc[edge]
	if !ok {
		return nil
	}
	a := g.arcs[ai]
	half := g.opts.NodeHeight / 2
	points := make([]blueprint.Position, 0, len(a.chain))
	for k, vi := range a.chain {
		v := g.verts[vi]
		p := blueprint.Position{X: v.x, Y: v.y}
		switch k {
		case 0:
			p.Y += half
		case len(a.chain) - 1:
			p.Y -= half
		}
		points = append(points, p)
	}
	if a.reversed {
		for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
			points[i], points[j] = points[j], points[i]
		}
	}
	return points
}

func cloneLayers(layers [][]int) [][]int {
	out := make([][]int, len(layers))
	for i, layer := range layers {
		out[i] = append([]int(nil), layer...)
	}
	return out
}
