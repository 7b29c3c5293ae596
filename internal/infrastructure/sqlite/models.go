package sqlite

import (
	"encoding/json"
	"time"

	"github.com/zjrosen/autohub/internal/scheduler"
	"github.com/zjrosen/autohub/internal/workflow"
)

// taskModel is one row of the tasks table. Times are Unix milliseconds.
type taskModel struct {
	ID         string
	Name       string
	WorkflowID string
	Arguments  string // JSON object
	Schedule   string
	TimeoutMs  int64
	Enabled    bool
	CreatedAt  int64
	LastRunAt  *int64 // nullable
	NextRunAt  *int64 // nullable
	RunCount   int
	LastStatus *string // nullable
}

// runModel is one row of the runs table.
type runModel struct {
	ID            int64
	TaskID        string
	WorkflowID    string
	RunID         *string
	Status        string
	ErrorMessage  *string
	ErrorCategory *string
	Stage         *string
	StartedAt     int64
	FinishedAt    int64
}

func toTaskModel(t *scheduler.Task) (*taskModel, error) {
	args := t.Arguments
	if args == nil {
		args = map[string]any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return &taskModel{
		ID:         t.ID,
		Name:       t.Name,
		WorkflowID: t.WorkflowID,
		Arguments:  string(encoded),
		Schedule:   t.Schedule,
		TimeoutMs:  t.Timeout.Milliseconds(),
		Enabled:    t.Enabled,
		CreatedAt:  t.CreatedAt.UnixMilli(),
		LastRunAt:  millisPtr(t.LastRun),
		NextRunAt:  millisPtr(t.NextRun),
		RunCount:   t.RunCount,
		LastStatus: stringPtr(string(t.LastStatus)),
	}, nil
}

func (m *taskModel) toDomain() (*scheduler.Task, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(m.Arguments), &args); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		args = nil
	}
	return &scheduler.Task{
		ID:         m.ID,
		Name:       m.Name,
		WorkflowID: m.WorkflowID,
		Arguments:  args,
		Schedule:   m.Schedule,
		Timeout:    time.Duration(m.TimeoutMs) * time.Millisecond,
		Enabled:    m.Enabled,
		CreatedAt:  time.UnixMilli(m.CreatedAt),
		LastRun:    fromMillis(m.LastRunAt),
		NextRun:    fromMillis(m.NextRunAt),
		RunCount:   m.RunCount,
		LastStatus: workflow.Status(deref(m.LastStatus)),
	}, nil
}

func toRunModel(r *scheduler.Run) *runModel {
	return &runModel{
		ID:            r.ID,
		TaskID:        r.TaskID,
		WorkflowID:    r.WorkflowID,
		RunID:         stringPtr(r.RunID),
		Status:        string(r.Status),
		ErrorMessage:  stringPtr(r.ErrorMessage),
		ErrorCategory: stringPtr(string(r.ErrorCategory)),
		Stage:         stringPtr(string(r.Stage)),
		StartedAt:     r.StartedAt.UnixMilli(),
		FinishedAt:    r.FinishedAt.UnixMilli(),
	}
}

func (m *runModel) toDomain() *scheduler.Run {
	return &scheduler.Run{
		ID:            m.ID,
		TaskID:        m.TaskID,
		WorkflowID:    m.WorkflowID,
		RunID:         deref(m.RunID),
		Status:        workflow.Status(m.Status),
		ErrorMessage:  deref(m.ErrorMessage),
		ErrorCategory: workflow.ErrorCategory(deref(m.ErrorCategory)),
		Stage:         workflow.Stage(deref(m.Stage)),
		StartedAt:     time.UnixMilli(m.StartedAt),
		FinishedAt:    time.UnixMilli(m.FinishedAt),
	}
}

func millisPtr(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms *int64) time.Time {
	if ms == nil {
		return time.Time{}
	}
	return time.UnixMilli(*ms)
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
