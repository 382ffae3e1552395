// internal/tui/app.go
//
// This is the main TUI for reportflow. It follows The Elm Architecture:
// state lives in App, Update turns messages into new state and View renders
// it. Long-running pipeline calls run as tea.Cmds and report back as
// messages; the pipeline's own change feed arrives as snapshotMsg.

package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/reportflow/internal/layout"
	"github.com/kingrea/reportflow/internal/logbook"
	"github.com/kingrea/reportflow/internal/pipeline"
	"github.com/kingrea/reportflow/internal/upload"
)

// appState represents which screen we're on
type appState int

const (
	stateDashboard appState = iota // uploads, task outline and YAML
	stateCanvas                    // laid-out blueprint
)

// focus names the dashboard input receiving keystrokes.
type focus int

const (
	focusTemplate focus = iota
	focusBundle
	focusYaml
	focusCount
)

// Pipeline is the orchestrator surface the TUI drives.
type Pipeline interface {
	Snapshot() pipeline.Snapshot
	Subscribe(fn func(pipeline.Snapshot)) func()
	CanGenerateBlueprint() bool
	IngestTemplate(ctx context.Context, file upload.File) error
	IngestDataBundle(ctx context.Context, file upload.File) error
	GenerateBlueprint(ctx context.Context) error
	GenerateYaml(ctx context.Context, userRequest string) error
	Reset(ctx context.Context)
	DismissError()
}

type snapshotMsg pipeline.Snapshot

// uploadDoneMsg reports one upload attempt, accepted or not.
type uploadDoneMsg struct {
	stage pipeline.Stage
	err   error
}

// opDoneMsg reports a finished blueprint or YAML request.
type opDoneMsg struct {
	stage pipeline.Stage
	err   error
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithEngine sets the layout engine used by the canvas.
func WithEngine(e *layout.Engine) AppOption {
	return func(a *App) {
		if e != nil {
			a.engine = e
		}
	}
}

// WithLogbook shows the activity journal tail and records rejected files.
func WithLogbook(book *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = book
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) AppOption {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithContext sets the context pipeline calls run under.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

// App is the main application model.
type App struct {
	ctx      context.Context
	pipeline Pipeline
	engine   *layout.Engine
	logbook  *logbook.Logbook
	logger   *slog.Logger

	templateUpload *upload.Uploader
	bundleUpload   *upload.Uploader

	state     appState
	focus     focus
	snap      pipeline.Snapshot
	updates   chan pipeline.Snapshot
	stop      func()
	canvas    *Canvas
	statusMsg string

	templateInput textinput.Model
	bundleInput   textinput.Model
	yamlInput     textinput.Model
	yamlView      viewport.Model
	spinner       spinner.Model

	width  int
	height int
}

// NewApp builds the TUI around p and subscribes to its changes.
func NewApp(p Pipeline, opts ...AppOption) *App {
	a := &App{
		ctx:      context.Background(),
		pipeline: p,
		engine:   layout.NewEngine(layout.DefaultOptions()),
		logger:   slog.Default(),
		updates:  make(chan pipeline.Snapshot, 16),
		width:    100,
		height:   40,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.templateInput = newPathInput("path to report template (.docx)")
	a.bundleInput = newPathInput("path to data bundle (.zip)")
	a.yamlInput = textinput.New()
	a.yamlInput.Placeholder = "describe the pipeline you want"
	a.yamlInput.CharLimit = 2000
	a.yamlView = viewport.New(60, 10)
	a.spinner = spinner.New(spinner.WithSpinner(spinner.Dot))

	a.templateUpload = &upload.Uploader{
		Accept:   upload.AcceptTemplate,
		Consumer: p.IngestTemplate,
		OnReject: a.recordRejection,
	}
	a.bundleUpload = &upload.Uploader{
		Accept:   upload.AcceptBundle,
		Consumer: p.IngestDataBundle,
		OnReject: a.recordRejection,
	}

	a.snap = p.Snapshot()
	a.stop = p.Subscribe(a.enqueue)
	a.setFocus(focusTemplate)
	a.refreshYaml()
	return a
}

func newPathInput(placeholder string) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = 4096
	return in
}

// Close stops listening to the pipeline.
func (a *App) Close() {
	if a.stop != nil {
		a.stop()
		a.stop = nil
	}
}

// Run starts the program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, a *App) error {
	defer a.Close()
	program := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// enqueue keeps only the newest snapshots when the UI falls behind.
func (a *App) enqueue(snap pipeline.Snapshot) {
	for {
		select {
		case a.updates <- snap:
			return
		default:
		}
		select {
		case <-a.updates:
		default:
		}
	}
}

func (a *App) recordRejection(file upload.File, err error) {
	a.logger.Warn("upload rejected", "file", file.Name, "error", err)
	if a.logbook != nil {
		a.logbook.Warn("rejected %s: not an accepted file type", file.Name)
	}
}

func (a *App) listen() tea.Cmd {
	updates := a.updates
	return func() tea.Msg {
		return snapshotMsg(<-updates)
	}
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.listen(), a.spinner.Tick, textinput.Blink)
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case snapshotMsg:
		a.applySnapshot(pipeline.Snapshot(msg))
		return a, a.listen()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case uploadDoneMsg:
		a.handleUploadDone(msg)
		return a, nil

	case opDoneMsg:
		a.handleOpDone(msg)
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.state == stateCanvas {
			return a.updateCanvas(msg)
		}
		return a.updateDashboard(msg)
	}

	return a, a.updateFocused(msg)
}

func (a *App) updateCanvas(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "esc":
		a.state = stateDashboard
		return a, nil
	case "r":
		return a.reset()
	}
	if a.canvas != nil {
		a.canvas.Update(msg)
	}
	return a, nil
}

func (a *App) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab":
		a.setFocus((a.focus + 1) % focusCount)
		return a, nil
	case "shift+tab":
		a.setFocus((a.focus + focusCount - 1) % focusCount)
		return a, nil
	case "esc":
		a.pipeline.DismissError()
		a.snap = a.pipeline.Snapshot()
		return a, nil
	case "ctrl+g":
		return a, a.generateBlueprint()
	case "ctrl+o":
		a.openCanvas()
		return a, nil
	case "ctrl+r":
		return a.reset()
	case "enter":
		return a, a.submitFocused()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		a.yamlView, cmd = a.yamlView.Update(msg)
		return a, cmd
	}
	return a, a.updateFocused(msg)
}

func (a *App) updateFocused(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch a.focus {
	case focusTemplate:
		a.templateInput, cmd = a.templateInput.Update(msg)
	case focusBundle:
		a.bundleInput, cmd = a.bundleInput.Update(msg)
	case focusYaml:
		a.yamlInput, cmd = a.yamlInput.Update(msg)
	}
	return cmd
}

func (a *App) setFocus(f focus) {
	a.focus = f
	inputs := []*textinput.Model{&a.templateInput, &a.bundleInput, &a.yamlInput}
	for i, in := range inputs {
		if focus(i) == f {
			in.Focus()
		} else {
			in.Blur()
		}
	}
}

func (a *App) submitFocused() tea.Cmd {
	switch a.focus {
	case focusTemplate:
		return a.selectFile(pipeline.StageTemplate, a.templateUpload, a.templateInput.Value())
	case focusBundle:
		return a.selectFile(pipeline.StageBundle, a.bundleUpload, a.bundleInput.Value())
	case focusYaml:
		return a.generateYaml(a.yamlInput.Value())
	}
	return nil
}

func (a *App) selectFile(stage pipeline.Stage, u *upload.Uploader, path string) tea.Cmd {
	if path == "" {
		return nil
	}
	ctx := a.ctx
	return func() tea.Msg {
		return uploadDoneMsg{stage: stage, err: u.SelectPath(ctx, path)}
	}
}

func (a *App) generateBlueprint() tea.Cmd {
	if !a.pipeline.CanGenerateBlueprint() {
		a.statusMsg = "Upload a template and a data bundle first."
		return nil
	}
	ctx := a.ctx
	p := a.pipeline
	a.statusMsg = "Planning blueprint..."
	return func() tea.Msg {
		return opDoneMsg{stage: pipeline.StageBlueprint, err: p.GenerateBlueprint(ctx)}
	}
}

func (a *App) generateYaml(request string) tea.Cmd {
	if request == "" {
		return nil
	}
	ctx := a.ctx
	p := a.pipeline
	a.statusMsg = "Generating YAML..."
	return func() tea.Msg {
		return opDoneMsg{stage: pipeline.StageYaml, err: p.GenerateYaml(ctx, request)}
	}
}

// handleUploadDone clears the input after every attempt so the same path
// can be submitted again.
func (a *App) handleUploadDone(msg uploadDoneMsg) {
	switch msg.stage {
	case pipeline.StageTemplate:
		a.templateInput.Reset()
	case pipeline.StageBundle:
		a.bundleInput.Reset()
	}
	a.snap = a.pipeline.Snapshot()
	a.refreshYaml()
	switch {
	case msg.err == nil:
		a.statusMsg = fmt.Sprintf("%s uploaded.", stageTitle(msg.stage))
	case errors.Is(msg.err, upload.ErrRejected):
		a.statusMsg = fmt.Sprintf("Only %s files are accepted here.", acceptFor(msg.stage))
	case pipeline.IsSuperseded(msg.err):
		a.statusMsg = ""
	default:
		a.statusMsg = fmt.Sprintf("%s upload failed.", stageTitle(msg.stage))
	}
}

func (a *App) handleOpDone(msg opDoneMsg) {
	a.snap = a.pipeline.Snapshot()
	a.refreshYaml()
	if pipeline.IsSuperseded(msg.err) {
		a.statusMsg = ""
		return
	}
	switch msg.stage {
	case pipeline.StageBlueprint:
		if msg.err != nil {
			a.statusMsg = "Blueprint planning failed."
			return
		}
		if a.snap.Blueprint == nil {
			a.statusMsg = "The planner returned an empty blueprint."
			return
		}
		a.statusMsg = ""
		a.openCanvas()
	case pipeline.StageYaml:
		if msg.err != nil {
			a.statusMsg = "YAML generation failed."
			return
		}
		a.yamlInput.Reset()
		a.statusMsg = "YAML ready."
		if !a.snap.Yaml.Valid {
			a.statusMsg = "YAML ready, but it does not parse: " + a.snap.Yaml.ParseError
		}
	}
}

func (a *App) openCanvas() {
	if a.snap.Blueprint == nil {
		a.statusMsg = "No blueprint yet."
		return
	}
	a.canvas = NewCanvas(a.engine, *a.snap.Blueprint)
	a.resize()
	a.state = stateCanvas
}

func (a *App) reset() (tea.Model, tea.Cmd) {
	a.pipeline.Reset(a.ctx)
	a.snap = a.pipeline.Snapshot()
	a.canvas = nil
	a.state = stateDashboard
	a.templateInput.Reset()
	a.bundleInput.Reset()
	a.yamlInput.Reset()
	a.refreshYaml()
	a.setFocus(focusTemplate)
	a.statusMsg = "Workflow reset."
	return a, nil
}

func (a *App) applySnapshot(snap pipeline.Snapshot) {
	a.snap = snap
	a.refreshYaml()
	if a.state == stateCanvas && snap.Blueprint == nil {
		a.canvas = nil
		a.state = stateDashboard
	}
}

func (a *App) refreshYaml() {
	a.yamlView.SetContent(a.snap.Yaml.YAML)
}

func (a *App) resize() {
	inputWidth := max(20, a.width/2-8)
	a.templateInput.Width = inputWidth
	a.bundleInput.Width = inputWidth
	a.yamlInput.Width = max(20, a.width-12)
	a.yamlView.Width = max(20, a.width-6)
	a.yamlView.Height = max(4, a.height/4)
	if a.canvas != nil {
		a.canvas.SetSize(a.width-2, a.height-6)
	}
}

// View renders the current screen.
func (a *App) View() string {
	if a.state == stateCanvas && a.canvas != nil {
		return a.renderCanvas()
	}
	return a.renderDashboard()
}

func stageTitle(stage pipeline.Stage) string {
	switch stage {
	case pipeline.StageTemplate:
		return "Template"
	case pipeline.StageBundle:
		return "Data bundle"
	case pipeline.StageBlueprint:
		return "Blueprint"
	case pipeline.StageYaml:
		return "YAML"
	}
	return string(stage)
}

func acceptFor(stage pipeline.Stage) string {
	if stage == pipeline.StageBundle {
		return upload.AcceptBundle
	}
	return upload.AcceptTemplate
}
