// Package blueprint defines the records exchanged between the workflow
// orchestrator, the backend collaborators and the layout engine.
package blueprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Task is one writing task produced by template parsing.
type Task struct {
	TaskName          string `json:"task_name"`
	Description       string `json:"description"`
	Requirements      string `json:"requirements,omitempty"`
	SourceTextSnippet string `json:"source_text_snippet,omitempty"`
}

// DataSource describes one file extracted from a data bundle. Fields beyond
// name and snippet are preserved so the record round-trips unchanged.
type DataSource struct {
	Name    string
	Snippet string
	fields  map[string]json.RawMessage
}

// NewDataSource builds a data source record carrying only a name.
func NewDataSource(name string) DataSource {
	return DataSource{Name: name}
}

// Field returns a raw extra field by key.
func (d DataSource) Field(key string) (json.RawMessage, bool) {
	raw, ok := d.fields[key]
	return raw, ok
}

// UnmarshalJSON accepts any JSON object; name and snippet must be strings
// when present.
func (d *DataSource) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("data source must be an object: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("data source must be an object")
	}
	out := DataSource{}
	if raw, ok := fields["name"]; ok {
		if err := json.Unmarshal(raw, &out.Name); err != nil {
			return fmt.Errorf("data source name: %w", err)
		}
		delete(fields, "name")
	}
	if raw, ok := fields["snippet"]; ok {
		if err := json.Unmarshal(raw, &out.Snippet); err != nil {
			return fmt.Errorf("data source snippet: %w", err)
		}
		delete(fields, "snippet")
	}
	if len(fields) > 0 {
		out.fields = fields
	}
	*d = out
	return nil
}

// MarshalJSON writes the known fields alongside every preserved extra field.
func (d DataSource) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.fields)+2)
	for key, raw := range d.fields {
		out[key] = raw
	}
	out["name"] = d.Name
	if d.Snippet != "" {
		out["snippet"] = d.Snippet
	}
	return json.Marshal(out)
}

// NodeType selects how a node is rendered downstream.
type NodeType string

const (
	NodeTypeInput  NodeType = "input"
	NodeTypeOutput NodeType = "output"
	NodeTypeAgent  NodeType = "agent"
)

// Position is a top-left canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Page is one entry of a node's page list: a page number or a label such as
// "1-3". It marshals back to the JSON kind it was decoded from.
type Page struct {
	text   string
	quoted bool
}

// PageNumber builds a numeric page entry.
func PageNumber(n int) Page {
	return Page{text: strconv.Itoa(n)}
}

// PageLabel builds a string page entry.
func PageLabel(label string) Page {
	return Page{text: label, quoted: true}
}

func (p Page) String() string {
	return p.text
}

// UnmarshalJSON accepts a JSON number or string.
func (p *Page) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return fmt.Errorf("page label: %w", err)
		}
		*p = PageLabel(label)
		return nil
	}
	var n json.Number
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("page must be a number or a string")
	}
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("page must be a number or a string: %w", err)
	}
	*p = Page{text: n.String()}
	return nil
}

// MarshalJSON writes numbers unquoted and labels as strings.
func (p Page) MarshalJSON() ([]byte, error) {
	if p.quoted || p.text == "" {
		return json.Marshal(p.text)
	}
	return []byte(p.text), nil
}

// NodeData is the display payload carried by a node. Keys other than label
// and pages are preserved so the node round-trips unchanged.
type NodeData struct {
	Label  string
	Pages  []Page
	fields map[string]json.RawMessage
}

// Field returns a raw extra data field by key.
func (d NodeData) Field(key string) (json.RawMessage, bool) {
	raw, ok := d.fields[key]
	return raw, ok
}

func (d *NodeData) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("node data must be an object: %w", err)
	}
	out := NodeData{}
	if raw, ok := fields["label"]; ok {
		if err := json.Unmarshal(raw, &out.Label); err != nil {
			return fmt.Errorf("node label: %w", err)
		}
		delete(fields, "label")
	}
	if raw, ok := fields["pages"]; ok {
		if err := json.Unmarshal(raw, &out.Pages); err != nil {
			return fmt.Errorf("node pages: %w", err)
		}
		delete(fields, "pages")
	}
	if len(fields) > 0 {
		out.fields = fields
	}
	*d = out
	return nil
}

func (d NodeData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.fields)+2)
	for key, raw := range d.fields {
		out[key] = raw
	}
	out["label"] = d.Label
	if len(d.Pages) > 0 {
		out["pages"] = d.Pages
	}
	return json.Marshal(out)
}

// Node is a vertex of a blueprint graph.
type Node struct {
	ID       string    `json:"id"`
	Type     NodeType  `json:"type"`
	Data     NodeData  `json:"data"`
	Position *Position `json:"position,omitempty"`
}

// Edge connects two nodes by id. ID may be empty until the layout engine
// assigns one.
type Edge struct {
	ID       string     `json:"id,omitempty"`
	Source   string     `json:"source"`
	Target   string     `json:"target"`
	Label    string     `json:"label,omitempty"`
	Animated *bool      `json:"animated,omitempty"`
	Points   []Position `json:"points,omitempty"`
}

// Graph is the generated blueprint.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (g Graph) Clone() Graph {
	return Graph{Nodes: CloneNodes(g.Nodes), Edges: CloneEdges(g.Edges)}
}

// CloneNodes copies nodes including their positions and page lists.
func CloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, node := range nodes {
		out[i] = node
		if node.Position != nil {
			pos := *node.Position
			out[i].Position = &pos
		}
		if node.Data.Pages != nil {
			out[i].Data.Pages = append([]Page(nil), node.Data.Pages...)
		}
		if node.Data.fields != nil {
			fields := make(map[string]json.RawMessage, len(node.Data.fields))
			for key, raw := range node.Data.fields {
				fields[key] = append(json.RawMessage(nil), raw...)
			}
			out[i].Data.fields = fields
		}
	}
	return out
}

// CloneEdges copies edges including their route points.
func CloneEdges(edges []Edge) []Edge {
	if edges == nil {
		return nil
	}
	out := make([]Edge, len(edges))
	for i, edge := range edges {
		out[i] = edge
		if edge.Animated != nil {
			animated := *edge.Animated
			out[i].Animated = &animated
		}
		if edge.Points != nil {
			out[i].Points = append([]Position(nil), edge.Points...)
		}
	}
	return out
}

// BlueprintResult is the reply of the blueprint-generation collaborator.
type BlueprintResult struct {
	Graph            Graph              `json:"-"`
	ConfidenceScores map[string]float64 `json:"confidence_scores,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// YamlArtifact is a generated YAML document together with its inputs.
type YamlArtifact struct {
	YAML        string `json:"yaml"`
	UserRequest string `json:"user_request"`
	Context     string `json:"context"`
	Valid       bool   `json:"valid"`
	ParseError  string `json:"parse_error,omitempty"`
}

// Empty reports whether no YAML has been generated.
func (a YamlArtifact) Empty() bool {
	return strings.TrimSpace(a.YAML) == ""
}
