package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kingrea/reportflow/internal/blueprint"
	"github.com/kingrea/reportflow/internal/layout"
)

type layoutOutput struct {
	Nodes   []blueprint.Node `json:"nodes"`
	Edges   []blueprint.Edge `json:"edges"`
	Dropped []blueprint.Edge `json:"dropped,omitempty"`
	Width   float64          `json:"width"`
	Height  float64          `json:"height"`
}

// runLayout reads a blueprint reply (nodes and edges) from path, or stdin
// when path is "-", and writes the laid-out graph.
func runLayout(engine *layout.Engine, path string, out io.Writer) error {
	var body []byte
	var err error
	if path == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read graph: %w", err)
	}
	reply, err := blueprint.DecodeBlueprintResponse(body)
	if err != nil {
		return fmt.Errorf("decode graph: %w", err)
	}
	result, err := engine.Layout(reply.Graph.Nodes, reply.Graph.Edges)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(layoutOutput{
		Nodes:   result.Nodes,
		Edges:   result.Edges,
		Dropped: result.Dropped,
		Width:   result.Width,
		Height:  result.Height,
	})
}
