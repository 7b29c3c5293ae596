package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/zjrosen/autohub/internal/workflow"
)

// ErrTaskNotFound is returned for an unknown task id.
var ErrTaskNotFound = errors.New("scheduled task not found")

// Task is a workflow invocation repeated on a schedule.
type Task struct {
	ID         string
	Name       string
	WorkflowID string
	Arguments  map[string]any
	// Schedule is a 5-field cron expression, "@every <duration>", a
	// descriptor such as "@daily", or "@once <RFC3339 time>".
	Schedule string
	// Timeout bounds one run. Zero uses the scheduler default.
	Timeout    time.Duration
	Enabled    bool
	CreatedAt  time.Time
	LastRun    time.Time
	NextRun    time.Time
	RunCount   int
	LastStatus workflow.Status
}

// Run is the recorded outcome of one scheduled firing.
type Run struct {
	ID            int64
	TaskID        string
	WorkflowID    string
	RunID         string
	Status        workflow.Status
	ErrorMessage  string
	ErrorCategory workflow.ErrorCategory
	Stage         workflow.Stage
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Duration returns FinishedAt - StartedAt.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func runFromResult(taskID string, res *workflow.Result) *Run {
	return &Run{
		TaskID:        taskID,
		WorkflowID:    res.WorkflowID,
		RunID:         res.RunID,
		Status:        res.Status,
		ErrorMessage:  res.ErrorMessage,
		ErrorCategory: res.ErrorCategory,
		Stage:         res.Stage,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
	}
}

// Store persists tasks and their run history.
type Store interface {
	SaveTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context) ([]*Task, error)
	DeleteTask(ctx context.Context, id string) error
	RecordRun(ctx context.Context, r *Run) error
	// ListRuns returns the newest runs of a task first. A limit <= 0 means
	// no limit.
	ListRuns(ctx context.Context, taskID string, limit int) ([]*Run, error)
}
