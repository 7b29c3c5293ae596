package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/autohub/internal/workflow"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --output value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

var (
	headingStyle  = lipgloss.NewStyle().Bold(true)
	categoryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#54A0FF"))
	idStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#73F59F"))
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8787"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FECA57"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#73F59F"))
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	format Format
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer, format Format) *Formatter {
	if format == "" {
		format = FormatText
	}
	return &Formatter{
		writer: writer,
		format: format,
	}
}

// encode writes v as JSON or YAML. It reports false for text output.
func (f *Formatter) encode(v any) (bool, error) {
	switch f.format {
	case FormatJSON:
		encoder := json.NewEncoder(f.writer)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(v)
	case FormatYAML:
		encoder := yaml.NewEncoder(f.writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return true, err
		}
		return true, encoder.Close()
	default:
		return false, nil
	}
}

func (f *Formatter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(f.writer, format, args...)
}

// FormatWorkflows lists workflows grouped by category, in the order given.
func (f *Formatter) FormatWorkflows(workflows []WorkflowDTO) error {
	if done, err := f.encode(workflows); done {
		return err
	}
	if len(workflows) == 0 {
		f.printf("%s\n", subtleStyle.Render("No workflows found."))
		return nil
	}
	width := 0
	for _, w := range workflows {
		width = max(width, len(w.ID))
	}
	category := ""
	for i, w := range workflows {
		if i == 0 || w.Category != category {
			if i > 0 {
				f.printf("\n")
			}
			category = w.Category
			f.printf("%s\n", categoryStyle.Render(category))
		}
		line := fmt.Sprintf("  %s  %s", idStyle.Render(fmt.Sprintf("%-*s", width, w.ID)), w.Name)
		if w.Source != string(workflow.SourceUser) {
			line += " " + subtleStyle.Render("("+w.Source+")")
		}
		f.printf("%s\n", line)
	}
	return nil
}

// FormatCategories prints the category names, one per line.
func (f *Formatter) FormatCategories(categories []string) error {
	if done, err := f.encode(nonNil(categories)); done {
		return err
	}
	for _, c := range categories {
		f.printf("%s\n", categoryStyle.Render(c))
	}
	return nil
}

// FormatWorkflow prints one workflow with its parameters.
func (f *Formatter) FormatWorkflow(w WorkflowDTO) error {
	if done, err := f.encode(w); done {
		return err
	}
	f.printf("%s %s\n", headingStyle.Render(w.Name), subtleStyle.Render("("+w.ID+")"))
	if w.Description != "" {
		f.printf("%s\n", w.Description)
	}
	f.printf("\n")
	f.printf("  Category: %s\n", w.Category)
	if w.Version != "" {
		f.printf("  Version:  %s\n", w.Version)
	}
	if w.Author != "" {
		f.printf("  Author:   %s\n", w.Author)
	}
	if len(w.Tags) > 0 {
		f.printf("  Tags:     %s\n", strings.Join(w.Tags, ", "))
	}
	f.printf("  Source:   %s\n", w.Source)
	f.printf("  Path:     %s\n", w.Path)

	if len(w.Parameters) == 0 {
		return nil
	}
	f.printf("\n%s\n", headingStyle.Render("Parameters"))
	for _, p := range w.Parameters {
		flags := p.Type
		if p.Required {
			flags += ", required"
		}
		f.printf("  %s (%s)\n", idStyle.Render(p.Name), flags)
		if p.Description != "" {
			f.printf("      %s\n", p.Description)
		}
		if p.Default != nil {
			f.printf("      default: %v\n", p.Default)
		}
		if len(p.Choices) > 0 {
			f.printf("      choices: %s\n", strings.Join(p.Choices, ", "))
		}
	}
	return nil
}

// FormatScan prints a scan summary.
func (f *Formatter) FormatScan(s ScanDTO) error {
	if done, err := f.encode(s); done {
		return err
	}
	f.printf("%s %d workflows (version %d)\n", headingStyle.Render("Scanned"), s.Workflows, s.Version)
	for _, r := range s.Roots {
		f.printf("  root: %s\n", r)
	}
	for _, e := range s.Errors {
		f.printf("%s %s: %s\n", errorStyle.Render("error"), e.Path, e.Message)
	}
	for _, w := range s.Warnings {
		f.printf("%s %s\n", warnStyle.Render("warning"), w)
	}
	return nil
}

// FormatChanges prints the ids a rescan added, removed or changed.
func (f *Formatter) FormatChanges(c ChangesDTO) error {
	if done, err := f.encode(c); done {
		return err
	}
	if len(c.Added)+len(c.Removed)+len(c.Changed) == 0 {
		f.printf("%s\n", subtleStyle.Render(fmt.Sprintf("version %d: no changes", c.Version)))
		return nil
	}
	f.printf("%s\n", headingStyle.Render(fmt.Sprintf("version %d", c.Version)))
	for _, id := range c.Added {
		f.printf("  %s %s\n", successStyle.Render("+"), id)
	}
	for _, id := range c.Removed {
		f.printf("  %s %s\n", errorStyle.Render("-"), id)
	}
	for _, id := range c.Changed {
		f.printf("  %s %s\n", warnStyle.Render("~"), id)
	}
	return nil
}

// FormatResult prints an execution result.
func (f *Formatter) FormatResult(r *workflow.Result) error {
	if done, err := f.encode(FromResult(r)); done {
		return err
	}
	if r.Succeeded() {
		f.printf("%s %s %s\n", successStyle.Render("success"), r.WorkflowID, subtleStyle.Render(r.Duration().Round(time.Millisecond).String()))
		if r.Payload != nil {
			payload, err := json.MarshalIndent(r.Payload, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding payload: %w", err)
			}
			f.printf("%s\n", payload)
		}
		return nil
	}
	f.printf("%s %s", errorStyle.Render("error"), r.WorkflowID)
	if r.Stage != "" {
		f.printf(" [%s]", r.Stage)
	}
	f.printf(": %s\n", r.ErrorMessage)
	for _, fe := range r.FieldErrors {
		f.printf("  %s: %s\n", fe.Param, fe.Msg)
	}
	return nil
}

// FormatGenerate prints a generation outcome.
func (f *Formatter) FormatGenerate(g GenerateDTO) error {
	if done, err := f.encode(g); done {
		return err
	}
	f.printf("%s %q via %s", headingStyle.Render("Generated"), g.Name, g.Strategy)
	if g.Path != "" {
		f.printf(" -> %s", g.Path)
	}
	f.printf("\n")
	if g.FallbackUsed {
		for _, a := range g.Attempts {
			f.printf("  %s\n", subtleStyle.Render(a))
		}
	}
	if g.Message != "" {
		f.printf("%s\n", warnStyle.Render(g.Message))
	}
	return nil
}

// FormatTasks lists scheduled tasks.
func (f *Formatter) FormatTasks(tasks []TaskDTO) error {
	if done, err := f.encode(tasks); done {
		return err
	}
	if len(tasks) == 0 {
		f.printf("%s\n", subtleStyle.Render("No scheduled tasks."))
		return nil
	}
	for _, t := range tasks {
		state := successStyle.Render("enabled")
		if !t.Enabled {
			state = subtleStyle.Render("disabled")
		}
		f.printf("%s  %s  %s  %s  %s\n", idStyle.Render(t.ID), t.Name, t.Workflow, t.Schedule, state)
		if t.NextRun != nil {
			f.printf("    next: %s\n", t.NextRun.Format(time.RFC3339))
		}
		if t.LastRun != nil {
			f.printf("    last: %s (%s, %d runs)\n", t.LastRun.Format(time.RFC3339), t.LastStatus, t.RunCount)
		}
	}
	return nil
}

// FormatRuns lists run history.
func (f *Formatter) FormatRuns(runs []RunDTO) error {
	if done, err := f.encode(runs); done {
		return err
	}
	if len(runs) == 0 {
		f.printf("%s\n", subtleStyle.Render("No runs recorded."))
		return nil
	}
	for _, r := range runs {
		status := successStyle.Render(r.Status)
		if r.Status != string(workflow.StatusSuccess) {
			status = errorStyle.Render(r.Status)
		}
		f.printf("%s  %s  %dms", r.StartedAt.Format(time.RFC3339), status, r.DurationMS)
		if r.Error != "" {
			f.printf("  %s", r.Error)
		}
		f.printf("\n")
	}
	return nil
}
