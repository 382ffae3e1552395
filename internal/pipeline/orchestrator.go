package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kingrea/reportflow/internal/backend"
	"github.com/kingrea/reportflow/internal/blueprint"
	"github.com/kingrea/reportflow/internal/session"
	"github.com/kingrea/reportflow/internal/upload"
)

// Collaborator is the backend the pipeline delegates every stage to.
type Collaborator interface {
	ParseTemplate(ctx context.Context, file upload.File) ([]blueprint.Task, error)
	ParseDataBundle(ctx context.Context, file upload.File) ([]blueprint.DataSource, error)
	GenerateBlueprint(ctx context.Context, tasks []blueprint.Task, sources []blueprint.DataSource) (blueprint.BlueprintResult, error)
	GenerateYaml(ctx context.Context, userRequest, promptContext string) (string, error)
}

// Journal records human-readable stage transitions.
type Journal interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopJournal struct{}

func (nopJournal) Info(string, ...any)  {}
func (nopJournal) Warn(string, ...any)  {}
func (nopJournal) Error(string, ...any) {}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithJournal sets the activity journal.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) {
		if j != nil {
			o.journal = j
		}
	}
}

// Snapshot is a copy of everything the pipeline currently holds.
type Snapshot struct {
	Tasks       []blueprint.Task       `json:"tasks"`
	FileName    string                 `json:"fileName"`
	DataSources []blueprint.DataSource `json:"dataSources"`
	ZipName     string                 `json:"zipName"`
	Blueprint   *blueprint.Graph       `json:"blueprint,omitempty"`
	Yaml        blueprint.YamlArtifact `json:"yaml"`
	Error       string                 `json:"error,omitempty"`
	Stages      map[Stage]StageState   `json:"stages"`
}

// Stage returns the state of one stage.
func (s Snapshot) Stage(stage Stage) StageState {
	return s.Stages[stage]
}

// Orchestrator owns the upload, blueprint and YAML state and sequences the
// backend calls that change it. Its methods are safe for concurrent use.
type Orchestrator struct {
	backend Collaborator
	store   session.Store
	logger  *slog.Logger
	journal Journal

	tasksSlot   *session.Slot[[]blueprint.Task]
	fileSlot    *session.Slot[string]
	sourcesSlot *session.Slot[[]blueprint.DataSource]
	zipSlot     *session.Slot[string]

	mu         sync.Mutex
	tasks      []blueprint.Task
	fileName   string
	sources    []blueprint.DataSource
	zipName    string
	graph      *blueprint.Graph
	yaml       blueprint.YamlArtifact
	errMsg     string
	errStage   Stage
	stages     map[Stage]*StageState
	listeners  map[int]func(Snapshot)
	nextListen int
}

// New builds an orchestrator and hydrates tasks, data sources and their
// file names from the session store.
func New(ctx context.Context, collab Collaborator, store session.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   collab,
		store:     store,
		logger:    slog.Default(),
		journal:   nopJournal{},
		stages:    make(map[Stage]*StageState, len(Stages)),
		listeners: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, stage := range Stages {
		o.stages[stage] = &StageState{Status: StatusIdle}
	}
	o.tasksSlot = session.NewSlot(store, session.KeyTasks, []blueprint.Task{}, o.logger)
	o.fileSlot = session.NewSlot(store, session.KeyFileName, "", o.logger)
	o.sourcesSlot = session.NewSlot(store, session.KeyDataSources, []blueprint.DataSource{}, o.logger)
	o.zipSlot = session.NewSlot(store, session.KeyZipName, "", o.logger)

	o.tasks = o.tasksSlot.Load(ctx)
	o.fileName = o.fileSlot.Load(ctx)
	o.sources = o.sourcesSlot.Load(ctx)
	o.zipName = o.zipSlot.Load(ctx)
	if len(o.tasks) > 0 {
		o.stages[StageTemplate].Status = StatusReady
	}
	if len(o.sources) > 0 {
		o.stages[StageBundle].Status = StatusReady
	}
	return o
}

// Subscribe registers fn to receive a snapshot after every state change.
// The returned func removes the subscription.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) func() {
	o.mu.Lock()
	id := o.nextListen
	o.nextListen++
	o.listeners[id] = fn
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// CanGenerateBlueprint reports whether tasks and data sources are both
// present and no planning request is outstanding.
func (o *Orchestrator) CanGenerateBlueprint() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canGenerateLocked()
}

func (o *Orchestrator) canGenerateLocked() bool {
	return len(o.tasks) > 0 && len(o.sources) > 0 && o.stages[StageBlueprint].Status != StatusInFlight
}

// IngestTemplate records the file name immediately and replaces the task
// list with the parsed result. On failure both are cleared.
func (o *Orchestrator) IngestTemplate(ctx context.Context, file upload.File) error {
	o.mu.Lock()
	gen := o.beginLocked(StageTemplate)
	o.fileName = file.Name
	o.fileSlot.Save(ctx, o.fileName)
	o.mu.Unlock()
	o.journal.Info("template %s submitted", file.Name)
	o.notify()

	tasks, err := o.backend.ParseTemplate(ctx, file)

	o.mu.Lock()
	if !o.currentLocked(StageTemplate, gen) {
		o.mu.Unlock()
		o.logger.Debug("discarding stale response", "stage", StageTemplate, "generation", gen)
		return ErrSuperseded
	}
	if err != nil {
		o.tasks = []blueprint.Task{}
		o.fileName = ""
		o.tasksSlot.Save(ctx, o.tasks)
		o.fileSlot.Save(ctx, o.fileName)
		o.failLocked(StageTemplate, MsgTemplateFailed)
		o.mu.Unlock()
		o.logger.Error("template parsing failed", "file", file.Name, "error", err)
		o.journal.Error("template %s failed: %v", file.Name, err)
		o.notify()
		return err
	}
	if tasks == nil {
		tasks = []blueprint.Task{}
	}
	o.tasks = tasks
	o.tasksSlot.Save(ctx, o.tasks)
	o.stages[StageTemplate].Status = StatusReady
	o.mu.Unlock()
	o.logger.Info("template parsed", "file", file.Name, "tasks", len(tasks))
	o.journal.Info("template %s parsed into %d tasks", file.Name, len(tasks))
	o.notify()
	return nil
}

// IngestDataBundle mirrors IngestTemplate for the data bundle.
func (o *Orchestrator) IngestDataBundle(ctx context.Context, file upload.File) error {
	o.mu.Lock()
	gen := o.beginLocked(StageBundle)
	o.zipName = file.Name
	o.zipSlot.Save(ctx, o.zipName)
	o.mu.Unlock()
	o.journal.Info("data bundle %s submitted", file.Name)
	o.notify()

	sources, err := o.backend.ParseDataBundle(ctx, file)

	o.mu.Lock()
	if !o.currentLocked(StageBundle, gen) {
		o.mu.Unlock()
		o.logger.Debug("discarding stale response", "stage", StageBundle, "generation", gen)
		return ErrSuperseded
	}
	if err != nil {
		o.sources = []blueprint.DataSource{}
		o.zipName = ""
		o.sourcesSlot.Save(ctx, o.sources)
		o.zipSlot.Save(ctx, o.zipName)
		o.failLocked(StageBundle, MsgBundleFailed)
		o.mu.Unlock()
		o.logger.Error("data bundle parsing failed", "file", file.Name, "error", err)
		o.journal.Error("data bundle %s failed: %v", file.Name, err)
		o.notify()
		return err
	}
	if sources == nil {
		sources = []blueprint.DataSource{}
	}
	o.sources = sources
	o.sourcesSlot.Save(ctx, o.sources)
	o.stages[StageBundle].Status = StatusReady
	o.mu.Unlock()
	o.logger.Info("data bundle parsed", "file", file.Name, "sources", len(sources))
	o.journal.Info("data bundle %s parsed into %d sources", file.Name, len(sources))
	o.notify()
	return nil
}

// GenerateBlueprint asks the backend to plan a graph from the current tasks
// and data sources. It does nothing while either list is empty or another
// planning request is outstanding. Any previous blueprint is dropped when the
// request starts, so only a reply with nodes leaves one in place.
func (o *Orchestrator) GenerateBlueprint(ctx context.Context) error {
	o.mu.Lock()
	if !o.canGenerateLocked() {
		o.mu.Unlock()
		return nil
	}
	gen := o.beginLocked(StageBlueprint)
	// A re-plan never leaves the previous graph behind.
	o.graph = nil
	tasks := append([]blueprint.Task(nil), o.tasks...)
	sources := append([]blueprint.DataSource(nil), o.sources...)
	o.mu.Unlock()
	o.journal.Info("planning blueprint for %d tasks and %d sources", len(tasks), len(sources))
	o.notify()

	result, err := o.backend.GenerateBlueprint(ctx, tasks, sources)

	o.mu.Lock()
	if !o.currentLocked(StageBlueprint, gen) {
		o.mu.Unlock()
		o.logger.Debug("discarding stale response", "stage", StageBlueprint, "generation", gen)
		return ErrSuperseded
	}
	var reported error
	switch {
	case err != nil:
		o.failLocked(StageBlueprint, MsgRequestFailed)
		o.logger.Error("blueprint request failed", "error", err)
		o.journal.Error("blueprint request failed: %v", err)
	case len(result.Graph.Nodes) > 0:
		graph := result.Graph.Clone()
		o.graph = &graph
		o.stages[StageBlueprint].Status = StatusReady
		o.logger.Info("blueprint planned", "nodes", len(graph.Nodes), "edges", len(graph.Edges))
		o.journal.Info("blueprint planned with %d nodes and %d edges", len(graph.Nodes), len(graph.Edges))
	case result.Error != "":
		o.failLocked(StageBlueprint, MsgBlueprintFailed+": "+result.Error)
		reported = &ReportedError{Stage: StageBlueprint, Message: result.Error}
		o.logger.Warn("blueprint planning reported an error", "error", result.Error)
		o.journal.Warn("blueprint planning failed: %s", result.Error)
	default:
		o.stages[StageBlueprint].Status = StatusIdle
		o.logger.Warn("blueprint reply carried no nodes")
		o.journal.Warn("blueprint reply carried no nodes")
	}
	o.mu.Unlock()
	o.notify()
	if err != nil {
		return err
	}
	return reported
}

// GenerateYaml submits userRequest with a context built from the current
// data sources and tasks. The previous artifact is cleared first.
func (o *Orchestrator) GenerateYaml(ctx context.Context, userRequest string) error {
	o.mu.Lock()
	gen := o.beginLocked(StageYaml)
	o.yaml = blueprint.YamlArtifact{}
	promptContext := BuildYamlContext(o.sources, o.tasks)
	o.mu.Unlock()
	o.journal.Info("YAML requested")
	o.notify()

	text, err := o.backend.GenerateYaml(ctx, userRequest, promptContext)

	o.mu.Lock()
	if !o.currentLocked(StageYaml, gen) {
		o.mu.Unlock()
		o.logger.Debug("discarding stale response", "stage", StageYaml, "generation", gen)
		return ErrSuperseded
	}
	if err != nil {
		msg := backend.Detail(err)
		if msg == "" {
			msg = MsgYamlFailed
		}
		o.failLocked(StageYaml, msg)
		o.mu.Unlock()
		o.logger.Error("YAML generation failed", "error", err)
		o.journal.Error("YAML generation failed: %s", msg)
		o.notify()
		return err
	}
	o.yaml = newYamlArtifact(text, userRequest, promptContext)
	o.stages[StageYaml].Status = StatusReady
	artifact := o.yaml
	o.mu.Unlock()
	if !artifact.Valid {
		o.logger.Warn("generated YAML does not parse", "error", artifact.ParseError)
	}
	o.journal.Info("YAML generated (%d bytes)", len(text))
	o.notify()
	return nil
}

// Reset clears every stage, the session store and the in-memory results.
// Responses to calls made before the reset are discarded.
func (o *Orchestrator) Reset(ctx context.Context) {
	o.mu.Lock()
	o.tasks = []blueprint.Task{}
	o.fileName = ""
	o.sources = []blueprint.DataSource{}
	o.zipName = ""
	o.graph = nil
	o.yaml = blueprint.YamlArtifact{}
	o.errMsg = ""
	o.errStage = ""
	for _, st := range o.stages {
		st.Generation++
		st.Status = StatusIdle
		st.Error = ""
	}
	if err := o.store.Clear(ctx); err != nil {
		o.logger.Warn("session clear failed", "error", err)
	}
	o.mu.Unlock()
	o.logger.Info("pipeline reset")
	o.journal.Info("pipeline reset")
	o.notify()
}

// DismissError hides the shared error message. Stage errors are kept.
func (o *Orchestrator) DismissError() {
	o.mu.Lock()
	if o.errMsg == "" {
		o.mu.Unlock()
		return
	}
	o.errMsg = ""
	o.errStage = ""
	o.mu.Unlock()
	o.notify()
}

// beginLocked moves stage to in-flight and clears only that stage's error.
func (o *Orchestrator) beginLocked(stage Stage) uint64 {
	st := o.stages[stage]
	st.Generation++
	st.Status = StatusInFlight
	st.Error = ""
	if o.errStage == stage {
		o.errMsg = ""
		o.errStage = ""
	}
	return st.Generation
}

func (o *Orchestrator) currentLocked(stage Stage, gen uint64) bool {
	return o.stages[stage].Generation == gen
}

func (o *Orchestrator) failLocked(stage Stage, msg string) {
	st := o.stages[stage]
	st.Status = StatusFailed
	st.Error = msg
	o.errMsg = msg
	o.errStage = stage
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Tasks:       append([]blueprint.Task{}, o.tasks...),
		FileName:    o.fileName,
		DataSources: append([]blueprint.DataSource{}, o.sources...),
		ZipName:     o.zipName,
		Yaml:        o.yaml,
		Error:       o.errMsg,
		Stages:      make(map[Stage]StageState, len(o.stages)),
	}
	if o.graph != nil {
		graph := o.graph.Clone()
		snap.Blueprint = &graph
	}
	for stage, st := range o.stages {
		snap.Stages[stage] = *st
	}
	return snap
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	if len(o.listeners) == 0 {
		o.mu.Unlock()
		return
	}
	snap := o.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// IsSuperseded reports whether err marks a discarded response.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}
