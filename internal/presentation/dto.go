// Package presentation converts domain values into DTOs and renders them
// for the CLI.
package presentation

import (
	"time"

	"github.com/zjrosen/autohub/internal/catalog"
	"github.com/zjrosen/autohub/internal/generate"
	"github.com/zjrosen/autohub/internal/scheduler"
	"github.com/zjrosen/autohub/internal/workflow"
)

// WorkflowDTO represents a catalog descriptor for presentation
type WorkflowDTO struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string         `json:"category" yaml:"category"`
	Version     string         `json:"version,omitempty" yaml:"version,omitempty"`
	Author      string         `json:"author,omitempty" yaml:"author,omitempty"`
	Tags        []string       `json:"tags" yaml:"tags"`
	Source      string         `json:"source" yaml:"source"`
	Path        string         `json:"path" yaml:"path"`
	Parameters  []ParameterDTO `json:"parameters" yaml:"parameters"`
}

// ParameterDTO represents one declared input
type ParameterDTO struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool     `json:"required" yaml:"required"`
	Default     any      `json:"default,omitempty" yaml:"default,omitempty"`
	Choices     []string `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// FromDescriptor converts a descriptor to a DTO.
func FromDescriptor(d *workflow.Descriptor) WorkflowDTO {
	params := make([]ParameterDTO, 0, len(d.Parameters()))
	for _, p := range d.Parameters() {
		def, _ := p.Default()
		params = append(params, ParameterDTO{
			Name:        p.Name(),
			Type:        string(p.Type()),
			Description: p.Description(),
			Required:    p.Required(),
			Default:     def,
			Choices:     p.Choices(),
		})
	}
	tags := d.Tags()
	if tags == nil {
		tags = []string{}
	}
	return WorkflowDTO{
		ID:          d.ID(),
		Name:        d.Name(),
		Description: d.Description(),
		Category:    d.Category(),
		Version:     d.Version(),
		Author:      d.Author(),
		Tags:        tags,
		Source:      string(d.Source()),
		Path:        d.SourcePath(),
		Parameters:  params,
	}
}

// FromDescriptors converts a slice of descriptors to DTOs
func FromDescriptors(ds []*workflow.Descriptor) []WorkflowDTO {
	dtos := make([]WorkflowDTO, len(ds))
	for i, d := range ds {
		dtos[i] = FromDescriptor(d)
	}
	return dtos
}

// ScanDTO summarizes a catalog snapshot
type ScanDTO struct {
	Version   uint64     `json:"version" yaml:"version"`
	ScannedAt time.Time  `json:"scanned_at" yaml:"scanned_at"`
	Roots     []string   `json:"roots" yaml:"roots"`
	Workflows int        `json:"workflows" yaml:"workflows"`
	Errors    []ErrorDTO `json:"errors" yaml:"errors"`
	Warnings  []string   `json:"warnings" yaml:"warnings"`
}

// ErrorDTO is one file that could not be discovered
type ErrorDTO struct {
	Path    string `json:"path" yaml:"path"`
	Message string `json:"message" yaml:"message"`
}

// FromSnapshot converts a snapshot to a summary DTO.
func FromSnapshot(s *catalog.Snapshot) ScanDTO {
	dto := ScanDTO{
		Version:   s.Version,
		ScannedAt: s.ScannedAt,
		Roots:     append([]string{}, s.Roots...),
		Workflows: s.Len(),
		Errors:    make([]ErrorDTO, 0, len(s.Errors)),
		Warnings:  make([]string, 0, len(s.Warnings)),
	}
	for _, e := range s.Errors {
		msg := e.Error()
		if e.Err != nil {
			msg = e.Err.Error()
		}
		dto.Errors = append(dto.Errors, ErrorDTO{Path: e.Path, Message: msg})
	}
	for _, w := range s.Warnings {
		dto.Warnings = append(dto.Warnings, w.String())
	}
	return dto
}

// ChangesDTO lists what a rescan changed
type ChangesDTO struct {
	Version uint64   `json:"version" yaml:"version"`
	Added   []string `json:"added" yaml:"added"`
	Removed []string `json:"removed" yaml:"removed"`
	Changed []string `json:"changed" yaml:"changed"`
}

// FromChanges converts a Diff result, reported against the newer snapshot.
func FromChanges(version uint64, c catalog.Changes) ChangesDTO {
	return ChangesDTO{
		Version: version,
		Added:   nonNil(c.Added),
		Removed: nonNil(c.Removed),
		Changed: nonNil(c.Changed),
	}
}

// ResultDTO represents one execution result
type ResultDTO struct {
	RunID         string       `json:"run_id" yaml:"run_id"`
	WorkflowID    string       `json:"workflow_id" yaml:"workflow_id"`
	Status        string       `json:"status" yaml:"status"`
	Payload       any          `json:"payload,omitempty" yaml:"payload,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	ErrorCategory string       `json:"error_category,omitempty" yaml:"error_category,omitempty"`
	Stage         string       `json:"stage,omitempty" yaml:"stage,omitempty"`
	FieldErrors   []FieldError `json:"field_errors,omitempty" yaml:"field_errors,omitempty"`
	StartedAt     time.Time    `json:"started_at" yaml:"started_at"`
	DurationMS    int64        `json:"duration_ms" yaml:"duration_ms"`
}

// FieldError is one rejected argument
type FieldError struct {
	Param   string `json:"param" yaml:"param"`
	Message string `json:"message" yaml:"message"`
}

// FromResult converts an execution result to a DTO.
func FromResult(r *workflow.Result) ResultDTO {
	dto := ResultDTO{
		RunID:         r.RunID,
		WorkflowID:    r.WorkflowID,
		Status:        string(r.Status),
		Payload:       r.Payload,
		ErrorMessage:  r.ErrorMessage,
		ErrorCategory: string(r.ErrorCategory),
		Stage:         string(r.Stage),
		StartedAt:     r.StartedAt,
		DurationMS:    r.Duration().Milliseconds(),
	}
	for _, fe := range r.FieldErrors {
		dto.FieldErrors = append(dto.FieldErrors, FieldError{Param: fe.Param, Message: fe.Msg})
	}
	return dto
}

// GenerateDTO reports a generation outcome
type GenerateDTO struct {
	Path         string   `json:"path,omitempty" yaml:"path,omitempty"`
	Name         string   `json:"name" yaml:"name"`
	Strategy     string   `json:"strategy" yaml:"strategy"`
	FallbackUsed bool     `json:"fallback_used" yaml:"fallback_used"`
	Attempts     []string `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Message      string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// FromOutput converts a generator output written to path.
func FromOutput(path string, out *generate.Output) GenerateDTO {
	dto := GenerateDTO{
		Path:         path,
		Strategy:     out.Strategy,
		FallbackUsed: out.FallbackUsed,
		Message:      out.Message,
	}
	if out.Metadata != nil {
		dto.Name = out.Metadata.Name
	}
	for _, a := range out.Attempts {
		if a.Error == "" {
			dto.Attempts = append(dto.Attempts, a.Strategy+": ok")
			continue
		}
		dto.Attempts = append(dto.Attempts, a.Strategy+": "+a.Error)
	}
	return dto
}

// TaskDTO represents a scheduled task
type TaskDTO struct {
	ID         string         `json:"id" yaml:"id"`
	Name       string         `json:"name" yaml:"name"`
	Workflow   string         `json:"workflow" yaml:"workflow"`
	Schedule   string         `json:"schedule" yaml:"schedule"`
	Enabled    bool           `json:"enabled" yaml:"enabled"`
	Timeout    string         `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	NextRun    *time.Time     `json:"next_run,omitempty" yaml:"next_run,omitempty"`
	LastRun    *time.Time     `json:"last_run,omitempty" yaml:"last_run,omitempty"`
	RunCount   int            `json:"run_count" yaml:"run_count"`
	LastStatus string         `json:"last_status,omitempty" yaml:"last_status,omitempty"`
}

// FromTask converts a task to a DTO.
func FromTask(t *scheduler.Task) TaskDTO {
	dto := TaskDTO{
		ID:         t.ID,
		Name:       t.Name,
		Workflow:   t.WorkflowID,
		Schedule:   t.Schedule,
		Enabled:    t.Enabled,
		Arguments:  t.Arguments,
		NextRun:    timePtr(t.NextRun),
		LastRun:    timePtr(t.LastRun),
		RunCount:   t.RunCount,
		LastStatus: string(t.LastStatus),
	}
	if t.Timeout > 0 {
		dto.Timeout = t.Timeout.String()
	}
	return dto
}

// FromTasks converts a slice of tasks to DTOs
func FromTasks(ts []*scheduler.Task) []TaskDTO {
	dtos := make([]TaskDTO, len(ts))
	for i, t := range ts {
		dtos[i] = FromTask(t)
	}
	return dtos
}

// RunDTO represents one recorded run
type RunDTO struct {
	RunID      string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Status     string    `json:"status" yaml:"status"`
	Stage      string    `json:"stage,omitempty" yaml:"stage,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	DurationMS int64     `json:"duration_ms" yaml:"duration_ms"`
}

// FromRuns converts run history to DTOs
func FromRuns(runs []*scheduler.Run) []RunDTO {
	dtos := make([]RunDTO, len(runs))
	for i, r := range runs {
		dtos[i] = RunDTO{
			RunID:      r.RunID,
			Status:     string(r.Status),
			Stage:      string(r.Stage),
			Error:      r.ErrorMessage,
			StartedAt:  r.StartedAt,
			DurationMS: r.Duration().Milliseconds(),
		}
	}
	return dtos
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
