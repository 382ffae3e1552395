package layout

import "github.com/kingrea/reportflow/internal/blueprint"

// Renderer names the card style used to draw a node.
type Renderer string

const (
	// RendererFile shows the label and the optional page list.
	RendererFile Renderer = "file"
	// RendererTarget shows the label only.
	RendererTarget Renderer = "target"
	// RendererDefault covers every type without a dedicated card.
	RendererDefault Renderer = "default"
)

// RendererFor maps a node type to its renderer. Unknown types never fail.
func RendererFor(t blueprint.NodeType) Renderer {
	switch t {
	case blueprint.NodeTypeInput:
		return RendererFile
	case blueprint.NodeTypeOutput:
		return RendererTarget
	default:
		return RendererDefault
	}
}
