// Package scheduler fires catalog workflows on cron, interval and one-shot
// schedules and records every run in a Store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/autohub/internal/log"
	"github.com/zjrosen/autohub/internal/tracing"
	"github.com/zjrosen/autohub/internal/workflow"
)

// DefaultTimeout bounds a run when neither the task nor the scheduler
// configures one.
const DefaultTimeout = 30 * time.Minute

// Catalog resolves workflow ids against the current snapshot.
type Catalog interface {
	Lookup(id string) (*workflow.Descriptor, error)
}

// Runner executes a workflow.
type Runner interface {
	Execute(ctx context.Context, d *workflow.Descriptor, args map[string]any) *workflow.Result
}

// Scheduler owns a cron instance with one entry per enabled task.
type Scheduler struct {
	store          Store
	catalog        Catalog
	runner         Runner
	defaultTimeout time.Duration
	tracer         trace.Tracer
	now            func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	started bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDefaultTimeout sets the timeout for tasks without their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.defaultTimeout = d
		}
	}
}

// WithTracer sets the tracer for firing spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithLocation sets the time zone cron expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.cron = newCron(loc)
		}
	}
}

// New creates a stopped Scheduler.
func New(store Store, catalog Catalog, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:          store,
		catalog:        catalog,
		runner:         runner,
		defaultTimeout: DefaultTimeout,
		tracer:         noop.NewTracerProvider().Tracer("scheduler"),
		now:            time.Now,
		cron:           newCron(time.Local),
		entries:        map[string]cron.EntryID{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newCron(loc *time.Location) *cron.Cron {
	logger := cronLogger{}
	return cron.New(
		cron.WithLocation(loc),
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
}

// cronLogger forwards robfig/cron diagnostics to the scheduler log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	log.Debug(log.CatScheduler, "cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	log.ErrorErr(log.CatScheduler, "cron: "+msg, err, kv...)
}

// Start schedules every enabled task and starts ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	for _, t := range tasks {
		if !t.Enabled {
			continue
		}
		if err := s.scheduleLocked(t); err != nil {
			log.ErrorErr(log.CatScheduler, "Skipping task with invalid schedule", err, "task", t.ID)
		}
	}
	s.cron.Start()
	s.started = true
	log.Info(log.CatScheduler, "Scheduler started", "tasks", len(s.entries))
	return nil
}

// Stop stops ticking and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		log.Info(log.CatScheduler, "Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add validates and stores a new task, scheduling it when enabled.
func (s *Scheduler) Add(ctx context.Context, t *Task) (*Task, error) {
	if strings.TrimSpace(t.WorkflowID) == "" {
		return nil, errors.New("task needs a workflow id")
	}
	sched, err := ParseSchedule(t.Schedule)
	if err != nil {
		return nil, err
	}
	if t.Timeout < 0 {
		return nil, fmt.Errorf("negative timeout %s", t.Timeout)
	}

	task := *t
	task.Arguments = maps.Clone(t.Arguments)
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Name == "" {
		task.Name = task.WorkflowID
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}
	task.NextRun = sched.Next(s.now())

	if err := s.store.SaveTask(ctx, &task); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if task.Enabled {
		if err := s.scheduleLocked(&task); err != nil {
			return nil, err
		}
	}
	log.Info(log.CatScheduler, "Task added", "task", task.ID, "workflow", task.WorkflowID, "schedule", task.Schedule)
	return &task, nil
}

// Remove deletes a task and its history.
func (s *Scheduler) Remove(ctx context.Context, id string) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	s.unscheduleLocked(id)
	s.mu.Unlock()
	log.Info(log.CatScheduler, "Task removed", "task", id)
	return nil
}

// SetEnabled enables or disables a task.
func (s *Scheduler) SetEnabled(ctx context.Context, id string, enabled bool) (*Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Enabled = enabled
	if enabled {
		if sched, err := ParseSchedule(t.Schedule); err == nil {
			t.NextRun = sched.Next(s.now())
		}
	} else {
		t.NextRun = time.Time{}
	}
	if err := s.store.SaveTask(ctx, t); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.unscheduleLocked(id)
	if enabled {
		if err := s.scheduleLocked(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// List returns every stored task.
func (s *Scheduler) List(ctx context.Context) ([]*Task, error) {
	return s.store.ListTasks(ctx)
}

// History returns a task's newest runs first.
func (s *Scheduler) History(ctx context.Context, id string, limit int) ([]*Run, error) {
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListRuns(ctx, id, limit)
}

// RunNow fires a task immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, id string) (*Run, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.fire(ctx, t)
}

// scheduleLocked registers t with cron. The caller holds s.mu.
func (s *Scheduler) scheduleLocked(t *Task) error {
	sched, err := ParseSchedule(t.Schedule)
	if err != nil {
		return err
	}
	id := t.ID
	s.entries[id] = s.cron.Schedule(sched, cron.FuncJob(func() {
		s.fireByID(id)
	}))
	return nil
}

func (s *Scheduler) unscheduleLocked(id string) {
	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
}

func (s *Scheduler) fireByID(id string) {
	ctx := context.Background()
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		log.ErrorErr(log.CatScheduler, "Load task for firing", err, "task", id)
		return
	}
	if !t.Enabled {
		return
	}
	if _, err := s.fire(ctx, t); err != nil {
		log.ErrorErr(log.CatScheduler, "Record scheduled run", err, "task", id)
	}
}

// fire runs t once and records the outcome. A workflow missing from the
// catalog is recorded as a failed run.
func (s *Scheduler) fire(ctx context.Context, t *Task) (*Run, error) {
	ctx, span := s.tracer.Start(ctx, tracing.SpanSchedulerFire, trace.WithAttributes(
		attribute.String(tracing.AttrTaskID, t.ID),
		attribute.String(tracing.AttrTaskSchedule, t.Schedule),
		attribute.String(tracing.AttrWorkflowID, t.WorkflowID),
	))
	defer span.End()

	var run *Run
	d, err := s.catalog.Lookup(t.WorkflowID)
	if err != nil {
		now := s.now()
		run = &Run{
			TaskID:        t.ID,
			WorkflowID:    t.WorkflowID,
			Status:        workflow.StatusError,
			ErrorMessage:  fmt.Sprintf("workflow %q: %v", t.WorkflowID, err),
			ErrorCategory: workflow.CategoryLifecycle,
			Stage:         workflow.StageLoad,
			StartedAt:     now,
			FinishedAt:    now,
		}
	} else {
		timeout := t.Timeout
		if timeout <= 0 {
			timeout = s.defaultTimeout
		}
		rctx, cancel := context.WithTimeout(ctx, timeout)
		res := s.runner.Execute(rctx, d, maps.Clone(t.Arguments))
		cancel()
		run = runFromResult(t.ID, res)
	}
	span.SetAttributes(attribute.String(tracing.AttrRunStatus, string(run.Status)))
	if run.Status != workflow.StatusSuccess {
		tracing.RecordError(span, errors.New(run.ErrorMessage))
		log.Warn(log.CatScheduler, "Scheduled run failed", "task", t.ID, "workflow", t.WorkflowID, "error", run.ErrorMessage)
	} else {
		log.Info(log.CatScheduler, "Scheduled run succeeded", "task", t.ID, "workflow", t.WorkflowID)
	}

	if err := s.store.RecordRun(ctx, run); err != nil {
		return run, fmt.Errorf("record run: %w", err)
	}

	t.LastRun = run.StartedAt
	t.RunCount++
	t.LastStatus = run.Status
	if IsOnce(t.Schedule) {
		t.Enabled = false
		t.NextRun = time.Time{}
		s.mu.Lock()
		s.unscheduleLocked(t.ID)
		s.mu.Unlock()
	} else if sched, err := ParseSchedule(t.Schedule); err == nil {
		t.NextRun = sched.Next(s.now())
	}
	if err := s.store.SaveTask(ctx, t); err != nil {
		return run, fmt.Errorf("update task: %w", err)
	}
	return run, nil
}
