package pipeline

import (
	"errors"
	"fmt"
)

// Stage names one independently tracked pipeline step.
type Stage string

const (
	StageTemplate  Stage = "template"
	StageBundle    Stage = "bundle"
	StageBlueprint Stage = "blueprint"
	StageYaml      Stage = "yaml"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageTemplate, StageBundle, StageBlueprint, StageYaml}

// Status is a stage's position in the idle → in_flight → ready|failed cycle.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusInFlight Status = "in_flight"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
)

// StageState is the observable state of one stage.
type StageState struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
	// Generation counts calls; only the newest call's response is applied.
	Generation uint64 `json:"generation"`
}

// User-facing failure messages.
const (
	MsgTemplateFailed  = "template parsing failed"
	MsgBundleFailed    = "data bundle parsing failed"
	MsgBlueprintFailed = "blueprint planning failed"
	MsgRequestFailed   = "request failed"
	MsgYamlFailed      = "YAML generation failed"
)

// ErrSuperseded is returned when a response arrives after a newer call or a
// reset and is therefore discarded.
var ErrSuperseded = errors.New("pipeline: response superseded")

// ReportedError is a semantic failure the backend reported in a successful
// reply.
type ReportedError struct {
	Stage   Stage
	Message string
}

func (e *ReportedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}
