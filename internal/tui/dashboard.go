package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/reportflow/internal/blueprint"
	"github.com/kingrea/reportflow/internal/logbook"
	"github.com/kingrea/reportflow/internal/pipeline"
)

const (
	outlineLimit = 8
	logTailLines = 6
)

func (a *App) renderDashboard() string {
	width := max(40, a.width)
	half := max(30, width/2-2)

	sections := []string{headerStyle.Render("⬡ REPORTFLOW")}
	if banner := a.renderErrorBanner(width - 2); banner != "" {
		sections = append(sections, banner)
	}
	uploads := lipgloss.JoinHorizontal(lipgloss.Top,
		a.renderTemplatePanel(half),
		a.renderBundlePanel(half),
	)
	sections = append(sections,
		uploads,
		a.renderBlueprintBar(width-2),
		a.renderYamlPanel(width-2),
	)
	if logPanel := a.renderLogPanel(width - 2); logPanel != "" {
		sections = append(sections, logPanel)
	}
	sections = append(sections, a.renderFooter())
	return strings.Join(sections, "\n")
}

func (a *App) renderErrorBanner(width int) string {
	if a.snap.Error == "" {
		return ""
	}
	return errorBannerStyle.Width(max(20, width)).
		Render("✖ " + a.snap.Error + hintStyle.Render("   esc to dismiss"))
}

func (a *App) renderTemplatePanel(width int) string {
	lines := []string{
		titleStyle.Render("Report template") + "  " + a.stageBadge(pipeline.StageTemplate),
		a.templateInput.View(),
	}
	if a.snap.FileName != "" {
		lines = append(lines, detailTextStyle.Render("file: "+a.snap.FileName))
	}
	lines = append(lines, "")
	lines = append(lines, renderOutline(a.snap.Tasks)...)
	return a.panel(focusTemplate, width, lines)
}

func (a *App) renderBundlePanel(width int) string {
	lines := []string{
		titleStyle.Render("Data bundle") + "  " + a.stageBadge(pipeline.StageBundle),
		a.bundleInput.View(),
	}
	if a.snap.ZipName != "" {
		lines = append(lines, detailTextStyle.Render("file: "+a.snap.ZipName))
	}
	lines = append(lines, "")
	lines = append(lines, renderSources(a.snap.DataSources)...)
	return a.panel(focusBundle, width, lines)
}

func (a *App) panel(f focus, width int, lines []string) string {
	style := panelStyle
	if a.focus == f && a.state == stateDashboard {
		style = focusedPanelStyle
	}
	return style.Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func renderOutline(tasks []blueprint.Task) []string {
	if len(tasks) == 0 {
		return []string{hintStyle.Render("No tasks yet.")}
	}
	lines := []string{titleStyle.Render(fmt.Sprintf("Tasks (%d)", len(tasks)))}
	for i, task := range tasks {
		if i == outlineLimit {
			lines = append(lines, hintStyle.Render(fmt.Sprintf("…and %d more", len(tasks)-outlineLimit)))
			break
		}
		line := fmt.Sprintf("%d. %s", i+1, task.TaskName)
		if task.Description != "" {
			line += detailTextStyle.Render(": " + task.Description)
		}
		lines = append(lines, line)
	}
	return lines
}

func renderSources(sources []blueprint.DataSource) []string {
	if len(sources) == 0 {
		return []string{hintStyle.Render("No data sources yet.")}
	}
	lines := []string{titleStyle.Render(fmt.Sprintf("Sources (%d)", len(sources)))}
	for i, src := range sources {
		if i == outlineLimit {
			lines = append(lines, hintStyle.Render(fmt.Sprintf("…and %d more", len(sources)-outlineLimit)))
			break
		}
		lines = append(lines, "• "+src.Name)
	}
	return lines
}

func (a *App) stageBadge(stage pipeline.Stage) string {
	st := a.snap.Stage(stage)
	switch st.Status {
	case pipeline.StatusInFlight:
		return runningStyle.Render(a.spinner.View() + " working")
	case pipeline.StatusReady:
		return readyStyle.Render("✓ ready")
	case pipeline.StatusFailed:
		return failedStyle.Render("✖ failed")
	default:
		return idleStyle.Render("idle")
	}
}

func (a *App) renderBlueprintBar(width int) string {
	button := disabledButtonStyle.Render("ctrl+g  Generate blueprint")
	if a.pipeline.CanGenerateBlueprint() {
		button = buttonStyle.Render("ctrl+g  Generate blueprint")
	}
	parts := []string{button, a.stageBadge(pipeline.StageBlueprint)}
	if g := a.snap.Blueprint; g != nil {
		parts = append(parts, detailTextStyle.Render(
			fmt.Sprintf("%d nodes, %d edges", len(g.Nodes), len(g.Edges))),
			hintStyle.Render("ctrl+o to open the canvas"))
	}
	return panelStyle.Width(max(20, width)).Render(strings.Join(parts, "  "))
}

func (a *App) renderYamlPanel(width int) string {
	lines := []string{
		titleStyle.Render("Pipeline YAML") + "  " + a.stageBadge(pipeline.StageYaml),
		a.yamlInput.View(),
	}
	yaml := a.snap.Yaml
	if !yaml.Empty() {
		note := readyStyle.Render("valid YAML")
		if !yaml.Valid {
			note = failedStyle.Render("does not parse: " + yaml.ParseError)
		}
		lines = append(lines, "", note, a.yamlView.View())
	}
	return a.panel(focusYaml, width, lines)
}

func (a *App) renderLogPanel(width int) string {
	if a.logbook == nil {
		return ""
	}
	entries, total := a.logbook.Recent(logTailLines)
	if len(entries) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := titleStyle.Render(fmt.Sprintf("LOG · %s (%d)", fileName, total))
	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = logLineStyle(entry.Level).Render(fmt.Sprintf("%s %-5s %s",
			entry.Time.Local().Format("15:04:05"), entry.Level, entry.Message))
	}
	return panelStyle.Width(max(20, width)).Render(head + "\n" + strings.Join(lines, "\n"))
}

func logLineStyle(level logbook.Level) lipgloss.Style {
	switch level {
	case logbook.LevelError:
		return failedStyle
	case logbook.LevelWarn:
		return warnStyle
	default:
		return logTextStyle
	}
}

func (a *App) renderFooter() string {
	help := "tab focus · enter submit · ctrl+g blueprint · ctrl+r reset · ctrl+c quit"
	if a.statusMsg == "" {
		return hintStyle.MarginTop(1).Render(help)
	}
	return hintStyle.MarginTop(1).Render(a.statusMsg + "\n" + help)
}

func (a *App) renderCanvas() string {
	header := headerStyle.Render("⬡ REPORTFLOW · blueprint")
	body := canvasStyle.Render(a.canvas.View())
	status := fmt.Sprintf("zoom %.0f%%", a.canvas.Zoom()*100)
	if node, ok := a.canvas.Selected(); ok {
		status += " · selected " + node.Data.Label
	}
	if dropped := len(a.canvas.Result().Dropped); dropped > 0 {
		status += fmt.Sprintf(" · %d edges skipped", dropped)
	}
	help := "arrows pan · +/- zoom · 0 fit · tab select · shift+arrows drag · esc back · r reset · q quit"
	return strings.Join([]string{header, body, hintStyle.Render(status), hintStyle.Render(help)}, "\n")
}
