package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zjrosen/autohub/internal/scheduler"
)

const taskColumns = `id, name, workflow_id, arguments, schedule, timeout_ms, enabled,
	created_at, last_run_at, next_run_at, run_count, last_status`

const runColumns = `id, task_id, workflow_id, run_id, status, error_message, error_category,
	stage, started_at, finished_at`

// TaskStore implements scheduler.Store.
type TaskStore struct {
	db *sql.DB
}

var _ scheduler.Store = (*TaskStore)(nil)

func newTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(scanner interface{ Scan(...any) error }) (*taskModel, error) {
	var m taskModel
	err := scanner.Scan(
		&m.ID, &m.Name, &m.WorkflowID, &m.Arguments, &m.Schedule, &m.TimeoutMs, &m.Enabled,
		&m.CreatedAt, &m.LastRunAt, &m.NextRunAt, &m.RunCount, &m.LastStatus,
	)
	return &m, err
}

func scanRun(scanner interface{ Scan(...any) error }) (*runModel, error) {
	var m runModel
	err := scanner.Scan(
		&m.ID, &m.TaskID, &m.WorkflowID, &m.RunID, &m.Status, &m.ErrorMessage, &m.ErrorCategory,
		&m.Stage, &m.StartedAt, &m.FinishedAt,
	)
	return &m, err
}

// SaveTask inserts or replaces a task by id.
func (s *TaskStore) SaveTask(ctx context.Context, t *scheduler.Task) error {
	m, err := toTaskModel(t)
	if err != nil {
		return fmt.Errorf("encode task arguments: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, workflow_id = excluded.workflow_id, arguments = excluded.arguments,
			schedule = excluded.schedule, timeout_ms = excluded.timeout_ms, enabled = excluded.enabled,
			last_run_at = excluded.last_run_at, next_run_at = excluded.next_run_at,
			run_count = excluded.run_count, last_status = excluded.last_status`,
		m.ID, m.Name, m.WorkflowID, m.Arguments, m.Schedule, m.TimeoutMs, m.Enabled,
		m.CreatedAt, m.LastRunAt, m.NextRunAt, m.RunCount, m.LastStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// GetTask returns scheduler.ErrTaskNotFound for an unknown id.
func (s *TaskStore) GetTask(ctx context.Context, id string) (*scheduler.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	m, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", scheduler.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return m.toDomain()
}

// ListTasks returns tasks ordered by creation time.
func (s *TaskStore) ListTasks(ctx context.Context) ([]*scheduler.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*scheduler.Task
	for rows.Next() {
		m, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t, err := m.toDomain()
		if err != nil {
			return nil, fmt.Errorf("decode task %s: %w", m.ID, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task; its runs go with it.
func (s *TaskStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", scheduler.ErrTaskNotFound, id)
	}
	return nil
}

// RecordRun appends a run and sets r.ID.
func (s *TaskStore) RecordRun(ctx context.Context, r *scheduler.Run) error {
	m := toRunModel(r)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (task_id, workflow_id, run_id, status, error_message, error_category, stage, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TaskID, m.WorkflowID, m.RunID, m.Status, m.ErrorMessage, m.ErrorCategory, m.Stage, m.StartedAt, m.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	return nil
}

// ListRuns returns runs of taskID, newest first.
func (s *TaskStore) ListRuns(ctx context.Context, taskID string, limit int) ([]*scheduler.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE task_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		taskID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*scheduler.Run
	for rows.Next() {
		m, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, m.toDomain())
	}
	return runs, rows.Err()
}
