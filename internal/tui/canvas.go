package tui

import (
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/reportflow/internal/blueprint"
	"github.com/kingrea/reportflow/internal/layout"
)

const (
	// World units covered by one terminal cell at zoom 1.
	cellWidth  = 10.0
	cellHeight = 20.0

	minZoom  = 0.25
	maxZoom  = 2.0
	zoomStep = 0.25
	// dragStep is how far one shift+arrow moves the selected node.
	dragStep = 20.0
)

// Canvas draws a laid-out blueprint on a character grid and supports
// panning, zooming, node selection and dragging.
type Canvas struct {
	result   layout.Result
	opts     layout.Options
	err      error
	zoom     float64
	offsetX  float64
	offsetY  float64
	selected int
	width    int
	height   int
}

// NewCanvas lays out graph with engine. A graph that cannot be laid out
// still yields a canvas that renders the failure.
func NewCanvas(engine *layout.Engine, graph blueprint.Graph) *Canvas {
	c := &Canvas{opts: engine.Options(), zoom: 1, selected: -1, width: 80, height: 24}
	c.result, c.err = engine.Layout(graph.Nodes, graph.Edges)
	return c
}

// Err returns the layout failure, if any.
func (c *Canvas) Err() error {
	return c.err
}

// Result returns the current drawing including any dragged positions.
func (c *Canvas) Result() layout.Result {
	return c.result
}

// SetSize sets the drawable area in cells.
func (c *Canvas) SetSize(width, height int) {
	c.width = max(10, width)
	c.height = max(4, height)
}

// Zoom returns the current zoom factor.
func (c *Canvas) Zoom() float64 {
	return c.zoom
}

// Offset returns the world coordinate shown at the top-left cell.
func (c *Canvas) Offset() (float64, float64) {
	return c.offsetX, c.offsetY
}

// Pan scrolls the view by whole cells.
func (c *Canvas) Pan(dCols, dRows int) {
	c.offsetX += float64(dCols) * cellWidth / c.zoom
	c.offsetY += float64(dRows) * cellHeight / c.zoom
}

// ZoomBy changes the zoom factor within [minZoom, maxZoom].
func (c *Canvas) ZoomBy(delta float64) {
	c.zoom = math.Min(maxZoom, math.Max(minZoom, c.zoom+delta))
}

// Fit resets pan and zoom.
func (c *Canvas) Fit() {
	c.zoom = 1
	c.offsetX, c.offsetY = 0, 0
}

// SelectNext moves the selection to the next node, wrapping around.
func (c *Canvas) SelectNext() {
	if len(c.result.Nodes) == 0 {
		return
	}
	c.selected = (c.selected + 1) % len(c.result.Nodes)
}

// Selected returns the selected node.
func (c *Canvas) Selected() (blueprint.Node, bool) {
	if c.selected < 0 || c.selected >= len(c.result.Nodes) {
		return blueprint.Node{}, false
	}
	return c.result.Nodes[c.selected], true
}

// MoveSelected drags the selected node by (dx, dy) world units. The end
// points of its edges follow it.
func (c *Canvas) MoveSelected(dx, dy float64) {
	node, ok := c.Selected()
	if !ok || node.Position == nil {
		return
	}
	moved := blueprint.Position{X: node.Position.X + dx, Y: node.Position.Y + dy}
	c.result.Nodes[c.selected].Position = &moved
	for i := range c.result.Edges {
		edge := &c.result.Edges[i]
		if len(edge.Points) == 0 {
			continue
		}
		if edge.Source == node.ID {
			edge.Points[0].X += dx
			edge.Points[0].Y += dy
		}
		if edge.Target == node.ID {
			last := len(edge.Points) - 1
			edge.Points[last].X += dx
			edge.Points[last].Y += dy
		}
	}
}

// Update applies canvas key bindings and reports whether the key was used.
func (c *Canvas) Update(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "up", "k":
		c.Pan(0, -1)
	case "down", "j":
		c.Pan(0, 1)
	case "left", "h":
		c.Pan(-2, 0)
	case "right", "l":
		c.Pan(2, 0)
	case "+", "=":
		c.ZoomBy(zoomStep)
	case "-", "_":
		c.ZoomBy(-zoomStep)
	case "0":
		c.Fit()
	case "tab":
		c.SelectNext()
	case "shift+up":
		c.MoveSelected(0, -dragStep)
	case "shift+down":
		c.MoveSelected(0, dragStep)
	case "shift+left":
		c.MoveSelected(-dragStep, 0)
	case "shift+right":
		c.MoveSelected(dragStep, 0)
	default:
		return false
	}
	return true
}

// View renders the visible part of the drawing.
func (c *Canvas) View() string {
	if c.err != nil {
		return failedStyle.Render("Layout failed: " + c.err.Error())
	}
	grid := newGrid(c.width, c.height)
	for _, edge := range c.result.Edges {
		c.drawEdge(grid, edge)
	}
	for i, node := range c.result.Nodes {
		c.drawNode(grid, node, i == c.selected)
	}
	return grid.String()
}

func (c *Canvas) toCell(x, y float64) (int, int) {
	col := int(math.Round((x - c.offsetX) * c.zoom / cellWidth))
	row := int(math.Round((y - c.offsetY) * c.zoom / cellHeight))
	return col, row
}

func (c *Canvas) drawEdge(g *grid, edge blueprint.Edge) {
	if len(edge.Points) < 2 {
		return
	}
	for i := 1; i < len(edge.Points); i++ {
		x0, y0 := c.toCell(edge.Points[i-1].X, edge.Points[i-1].Y)
		x1, y1 := c.toCell(edge.Points[i].X, edge.Points[i].Y)
		g.line(x0, y0, x1, y1, '·')
	}
	end := edge.Points[len(edge.Points)-1]
	col, row := c.toCell(end.X, end.Y)
	g.set(col, row-1, '▾')
}

func (c *Canvas) drawNode(g *grid, node blueprint.Node, selected bool) {
	if node.Position == nil {
		return
	}
	left, top := c.toCell(node.Position.X, node.Position.Y)
	right, bottom := c.toCell(node.Position.X+c.opts.NodeWidth, node.Position.Y+c.opts.NodeHeight)
	right, bottom = max(right-1, left+2), max(bottom-1, top)

	lines := cardLines(node)
	if bottom-top < 2 {
		g.text(left, top, truncate(lines[0], right-left+1))
		return
	}
	h, v, corners := '─', '│', [4]rune{'┌', '┐', '└', '┘'}
	if selected {
		h, v, corners = '═', '║', [4]rune{'╔', '╗', '╚', '╝'}
	}
	for col := left; col <= right; col++ {
		g.set(col, top, h)
		g.set(col, bottom, h)
	}
	for row := top; row <= bottom; row++ {
		g.set(left, row, v)
		g.set(right, row, v)
	}
	g.set(left, top, corners[0])
	g.set(right, top, corners[1])
	g.set(left, bottom, corners[2])
	g.set(right, bottom, corners[3])
	for row := top + 1; row < bottom; row++ {
		for col := left + 1; col < right; col++ {
			g.set(col, row, ' ')
		}
	}
	inner := right - left - 1
	for i, line := range lines {
		row := top + 1 + i
		if row >= bottom {
			break
		}
		g.text(left+1, row, truncate(line, inner))
	}
}

// cardLines renders a node's card content according to its renderer.
func cardLines(node blueprint.Node) []string {
	label := node.Data.Label
	if label == "" {
		label = node.ID
	}
	switch layout.RendererFor(node.Type) {
	case layout.RendererFile:
		lines := []string{"▤ " + label}
		if len(node.Data.Pages) > 0 {
			pages := make([]string, len(node.Data.Pages))
			for i, p := range node.Data.Pages {
				pages[i] = p.String()
			}
			lines = append(lines, "pages "+strings.Join(pages, ", "))
		}
		return lines
	case layout.RendererTarget:
		return []string{"◎ " + label}
	default:
		return []string{label}
	}
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}

type grid struct {
	cells  [][]rune
	width  int
	height int
}

func newGrid(width, height int) *grid {
	cells := make([][]rune, height)
	for i := range cells {
		cells[i] = []rune(strings.Repeat(" ", width))
	}
	return &grid{cells: cells, width: width, height: height}
}

func (g *grid) set(col, row int, r rune) {
	if col < 0 || row < 0 || col >= g.width || row >= g.height {
		return
	}
	g.cells[row][col] = r
}

func (g *grid) text(col, row int, s string) {
	for i, r := range []rune(s) {
		g.set(col+i, row, r)
	}
}

// line draws a Bresenham line between two cells.
func (g *grid) line(x0, y0, x1, y1 int, r rune) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		g.set(x0, y0, r)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func (g *grid) String() string {
	rows := make([]string, len(g.cells))
	for i, row := range g.cells {
		rows[i] = strings.TrimRight(string(row), " ")
	}
	return strings.Join(rows, "\n")
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
