package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/reportflow/internal/layout"
)

func newTestCanvas(t *testing.T) *Canvas {
	t.Helper()
	c := NewCanvas(layout.NewEngine(layout.DefaultOptions()), connectedGraph())
	if c.Err() != nil {
		t.Fatalf("layout: %v", c.Err())
	}
	c.SetSize(60, 20)
	return c
}

func TestCanvasDrawsCards(t *testing.T) {
	view := newTestCanvas(t).View()
	lines := strings.Split(view, "\n")
	if !strings.HasPrefix(lines[0], "┌") {
		t.Fatalf("expected a card border on the first row:\n%s", view)
	}
	for _, want := range []string{"▤ a.pdf", "pages 1, 2", "◎ Summary", "▾"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestCanvasPanAndZoom(t *testing.T) {
	c := newTestCanvas(t)
	c.Update(tea.KeyMsg{Type: tea.KeyDown})
	if _, y := c.Offset(); y != cellHeight {
		t.Fatalf("offset y = %v, want %v", y, cellHeight)
	}
	if strings.HasPrefix(c.View(), "┌") {
		t.Fatalf("panning down should scroll the first card's top border away")
	}

	for i := 0; i < 20; i++ {
		c.Update(runes("+"))
	}
	if c.Zoom() != maxZoom {
		t.Fatalf("zoom = %v, want clamp at %v", c.Zoom(), maxZoom)
	}
	for i := 0; i < 20; i++ {
		c.Update(runes("-"))
	}
	if c.Zoom() != minZoom {
		t.Fatalf("zoom = %v, want clamp at %v", c.Zoom(), minZoom)
	}
	c.Update(runes("0"))
	if x, y := c.Offset(); x != 0 || y != 0 || c.Zoom() != 1 {
		t.Fatalf("fit did not reset view")
	}
}

func TestCanvasSelectAndDrag(t *testing.T) {
	c := newTestCanvas(t)
	if _, ok := c.Selected(); ok {
		t.Fatalf("nothing should be selected initially")
	}
	c.Update(tea.KeyMsg{Type: tea.KeyTab})
	node, ok := c.Selected()
	if !ok || node.ID != "1" {
		t.Fatalf("selected %+v", node)
	}
	if !strings.Contains(c.View(), "╔") {
		t.Fatalf("selected card should be highlighted")
	}

	before := c.Result().Edges[0].Points
	startY := before[0].Y
	c.Update(tea.KeyMsg{Type: tea.KeyShiftDown})
	node, _ = c.Selected()
	if node.Position.Y != dragStep {
		t.Fatalf("node y = %v, want %v", node.Position.Y, dragStep)
	}
	points := c.Result().Edges[0].Points
	if points[0].Y != startY+dragStep {
		t.Fatalf("edge start did not follow the node: %v", points[0])
	}
	if points[len(points)-1].Y != 180 {
		t.Fatalf("edge end should stay on the target: %v", points[len(points)-1])
	}

	c.Update(tea.KeyMsg{Type: tea.KeyTab})
	c.Update(tea.KeyMsg{Type: tea.KeyTab})
	if node, _ := c.Selected(); node.ID != "1" {
		t.Fatalf("selection should wrap, got %s", node.ID)
	}
}

func TestTruncate(t *testing.T) {
	cases := map[string]struct {
		in    string
		width int
		want  string
	}{
		"fits":  {"abc", 5, "abc"},
		"cut":   {"abcdef", 4, "abc…"},
		"one":   {"abcdef", 1, "…"},
		"zero":  {"abc", 0, ""},
		"runes": {"▤ a.pdf", 3, "▤ …"},
	}
	for name, tc := range cases {
		if got := truncate(tc.in, tc.width); got != tc.want {
			t.Fatalf("%s: truncate(%q, %d) = %q, want %q", name, tc.in, tc.width, got, tc.want)
		}
	}
}
