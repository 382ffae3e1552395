package blueprint

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const templateResponseSchema = `{
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "filename": {"type": "string"},
    "total_tasks": {"type": "integer"},
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["task_name", "description"],
        "properties": {
          "task_name": {"type": "string"},
          "description": {"type": "string"},
          "requirements": {"type": ["string", "null"]},
          "source_text_snippet": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

const dataSourcesSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "name": {"type": "string"},
      "snippet": {"type": "string"}
    }
  }
}`

const blueprintResponseSchema = `{
  "type": "object",
  "properties": {
    "nodes": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string"},
          "type": {"type": "string"},
          "data": {
            "type": "object",
            "properties": {
              "label": {"type": "string"},
              "pages": {"type": "array", "items": {"type": ["integer", "number", "string"]}}
            }
          }
        }
      }
    },
    "edges": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["source", "target"],
        "properties": {
          "id": {"type": ["string", "null"]},
          "source": {"type": "string"},
          "target": {"type": "string"},
          "label": {"type": ["string", "null"]}
        }
      }
    },
    "confidence_scores": {"type": ["object", "null"]},
    "error": {"type": ["string", "null"]}
  }
}`

const yamlResponseSchema = `{
  "type": "object",
  "required": ["yaml"],
  "properties": {
    "yaml": {"type": "string"}
  }
}`

type schemaSet struct {
	once    sync.Once
	err     error
	schemas map[string]*gojsonschema.Schema
}

var compiled schemaSet

func schemaFor(name string) (*gojsonschema.Schema, error) {
	compiled.once.Do(func() {
		sources := map[string]string{
			"template":   templateResponseSchema,
			"datasource": dataSourcesSchema,
			"blueprint":  blueprintResponseSchema,
			"yaml":       yamlResponseSchema,
		}
		compiled.schemas = make(map[string]*gojsonschema.Schema, len(sources))
		for key, src := range sources {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
			if err != nil {
				compiled.err = fmt.Errorf("blueprint: compile %s schema: %w", key, err)
				return
			}
			compiled.schemas[key] = schema
		}
	})
	if compiled.err != nil {
		return nil, compiled.err
	}
	return compiled.schemas[name], nil
}

func validate(name string, body []byte) error {
	schema, err := schemaFor(name)
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}

// DecodeTemplateResponse validates and decodes the template-parse reply.
func DecodeTemplateResponse(body []byte) ([]Task, error) {
	if err := validate("template", body); err != nil {
		return nil, err
	}
	var payload struct {
		Tasks []Task `json:"tasks"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.Tasks == nil {
		payload.Tasks = []Task{}
	}
	return payload.Tasks, nil
}

// DecodeDataSources validates and decodes the data-bundle reply, which must
// be a bare array of objects.
func DecodeDataSources(body []byte) ([]DataSource, error) {
	if err := validate("datasource", body); err != nil {
		return nil, err
	}
	var sources []DataSource
	if err := json.Unmarshal(body, &sources); err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []DataSource{}
	}
	return sources, nil
}

// DecodeBlueprintResponse validates and decodes the blueprint reply.
func DecodeBlueprintResponse(body []byte) (BlueprintResult, error) {
	if err := validate("blueprint", body); err != nil {
		return BlueprintResult{}, err
	}
	var payload struct {
		Nodes            []Node             `json:"nodes"`
		Edges            []Edge             `json:"edges"`
		ConfidenceScores map[string]float64 `json:"confidence_scores"`
		Error            *string            `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return BlueprintResult{}, err
	}
	result := BlueprintResult{
		Graph:            Graph{Nodes: payload.Nodes, Edges: payload.Edges},
		ConfidenceScores: payload.ConfidenceScores,
	}
	if payload.Error != nil {
		result.Error = strings.TrimSpace(*payload.Error)
	}
	return result, nil
}

// DecodeYamlResponse validates and decodes the YAML-generation reply.
func DecodeYamlResponse(body []byte) (string, error) {
	if err := validate("yaml", body); err != nil {
		return "", err
	}
	var payload struct {
		YAML string `json:"yaml"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	return payload.YAML, nil
}

// DecodeErrorDetail extracts the human readable detail of an error body.
// Non-string details are rendered as compact JSON.
func DecodeErrorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}
	if string(payload.Detail) == "null" {
		return ""
	}
	return string(payload.Detail)
}
