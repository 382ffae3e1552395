package pipeline

import (
	"fmt"
	"strings"

	"github.com/kingrea/reportflow/internal/blueprint"
	"gopkg.in/yaml.v3"
)

const (
	filesHeading = "Available files:"
	tasksHeading = "Tasks to complete:"
)

// BuildYamlContext enumerates data sources and tasks for the YAML
// generator, each indexed from 0.
func BuildYamlContext(sources []blueprint.DataSource, tasks []blueprint.Task) string {
	var b strings.Builder
	b.WriteString(filesHeading)
	for i, src := range sources {
		fmt.Fprintf(&b, "\n- item #%d: %s", i, src.Name)
	}
	b.WriteString("\n\n")
	b.WriteString(tasksHeading)
	for i, task := range tasks {
		fmt.Fprintf(&b, "\n- item #%d: %s", i, task.TaskName)
	}
	return b.String()
}

// newYamlArtifact records the generated text and whether it parses. Text
// that does not parse is kept so the user can still inspect it.
func newYamlArtifact(text, userRequest, promptContext string) blueprint.YamlArtifact {
	artifact := blueprint.YamlArtifact{
		YAML:        text,
		UserRequest: userRequest,
		Context:     promptContext,
		Valid:       true,
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		artifact.Valid = false
		artifact.ParseError = err.Error()
	}
	return artifact
}
