package blueprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTemplateResponseKeepsOrder(t *testing.T) {
	body := []byte(`{"filename":"t.docx","total_tasks":2,"tasks":[
		{"task_name":"Summarize","description":"first"},
		{"task_name":"Compare","description":"second","requirements":null}
	]}`)
	tasks, err := DecodeTemplateResponse(body)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Summarize", tasks[0].TaskName)
	assert.Equal(t, "Compare", tasks[1].TaskName)
}

func TestDecodeTemplateResponseRejectsShapes(t *testing.T) {
	cases := map[string]string{
		"missing tasks":     `{"filename":"t.docx"}`,
		"tasks not array":   `{"tasks":{"a":1}}`,
		"task missing name": `{"tasks":[{"description":"x"}]}`,
		"not json":          `<html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeTemplateResponse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestDecodeDataSourcesRequiresArray(t *testing.T) {
	_, err := DecodeDataSources([]byte(`{"name":"a.pdf"}`))
	require.Error(t, err)

	sources, err := DecodeDataSources([]byte(`[{"name":"a.pdf","snippet":"hello","size":12}]`))
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "a.pdf", sources[0].Name)
	raw, ok := sources[0].Field("size")
	require.True(t, ok)
	assert.JSONEq(t, `12`, string(raw))
}

func TestDataSourceRoundTripPreservesExtraFields(t *testing.T) {
	var src DataSource
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a.pdf","kind":"pdf"}`), &src))
	out, err := json.Marshal(src)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a.pdf","kind":"pdf"}`, string(out))
}

func TestDecodeBlueprintResponse(t *testing.T) {
	body := []byte(`{"nodes":[{"id":"1","type":"input","data":{"label":"a.pdf","pages":[1,2]}},
		{"id":"2","type":"output","data":{"label":"Summary"}}],
		"edges":[{"source":"1","target":"2"}]}`)
	result, err := DecodeBlueprintResponse(body)
	require.NoError(t, err)
	require.Len(t, result.Graph.Nodes, 2)
	assert.Equal(t, NodeTypeInput, result.Graph.Nodes[0].Type)
	assert.Equal(t, []Page{PageNumber(1), PageNumber(2)}, result.Graph.Nodes[0].Data.Pages)
	require.Len(t, result.Graph.Edges, 1)
	assert.Empty(t, result.Graph.Edges[0].ID)
	assert.Empty(t, result.Error)
}

func TestDecodeBlueprintResponseKeepsNodeData(t *testing.T) {
	body := []byte(`{"nodes":[{"id":"1","type":"input",
		"data":{"label":"a.pdf","pages":["1-3",7,2.5],"sheet":"Q1","confidence":0.8}}],
		"edges":[]}`)
	result, err := DecodeBlueprintResponse(body)
	require.NoError(t, err)
	data := result.Graph.Nodes[0].Data
	require.Len(t, data.Pages, 3)
	assert.Equal(t, "1-3", data.Pages[0].String())
	assert.Equal(t, "7", data.Pages[1].String())
	assert.Equal(t, "2.5", data.Pages[2].String())
	sheet, ok := data.Field("sheet")
	require.True(t, ok)
	assert.JSONEq(t, `"Q1"`, string(sheet))

	out, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"a.pdf","pages":["1-3",7,2.5],"sheet":"Q1","confidence":0.8}`, string(out))

	_, err = DecodeBlueprintResponse([]byte(`{"nodes":[{"id":"1","data":{"pages":[true]}}]}`))
	assert.Error(t, err)
}

func TestDecodeBlueprintResponseReportedError(t *testing.T) {
	result, err := DecodeBlueprintResponse([]byte(`{"nodes":[],"error":"no mapping found"}`))
	require.NoError(t, err)
	assert.Empty(t, result.Graph.Nodes)
	assert.Equal(t, "no mapping found", result.Error)
}

func TestDecodeBlueprintResponseRejectsEdgeWithoutTarget(t *testing.T) {
	_, err := DecodeBlueprintResponse([]byte(`{"nodes":[{"id":"1"}],"edges":[{"source":"1"}]}`))
	assert.Error(t, err)
}

func TestDecodeYamlResponse(t *testing.T) {
	text, err := DecodeYamlResponse([]byte(`{"yaml":"a: 1\n"}`))
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", text)

	_, err = DecodeYamlResponse([]byte(`{"result":"a: 1"}`))
	assert.Error(t, err)
}

func TestDecodeErrorDetail(t *testing.T) {
	assert.Equal(t, "bad zip", DecodeErrorDetail([]byte(`{"detail":"bad zip"}`)))
	assert.Equal(t, `[{"loc":["body"]}]`, DecodeErrorDetail([]byte(`{"detail":[{"loc":["body"]}]}`)))
	assert.Equal(t, "", DecodeErrorDetail([]byte(`oops`)))
	assert.Equal(t, "", DecodeErrorDetail([]byte(`{"detail":null}`)))
}

func TestGraphCloneIsDeep(t *testing.T) {
	g := Graph{
		Nodes: []Node{{ID: "1", Position: &Position{X: 1}, Data: NodeData{Pages: []Page{PageNumber(3)}}}},
		Edges: []Edge{{Source: "1", Target: "1", Points: []Position{{X: 2}}}},
	}
	clone := g.Clone()
	clone.Nodes[0].Position.X = 99
	clone.Nodes[0].Data.Pages[0] = PageLabel("99")
	clone.Edges[0].Points[0].X = 99
	assert.Equal(t, 1.0, g.Nodes[0].Position.X)
	assert.Equal(t, PageNumber(3), g.Nodes[0].Data.Pages[0])
	assert.Equal(t, 2.0, g.Edges[0].Points[0].X)
}
