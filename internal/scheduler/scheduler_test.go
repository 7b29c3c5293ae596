package scheduler_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/autohub/internal/catalog"
	"github.com/zjrosen/autohub/internal/infrastructure/sqlite"
	"github.com/zjrosen/autohub/internal/scheduler"
	"github.com/zjrosen/autohub/internal/workflow"
)

type fakeCatalog map[string]*workflow.Descriptor

func (c fakeCatalog) Lookup(id string) (*workflow.Descriptor, error) {
	if d, ok := c[id]; ok {
		return d, nil
	}
	return nil, catalog.ErrNotFound
}

// recordingRunner returns success and remembers the arguments and deadline
// of each call.
type recordingRunner struct {
	mu        sync.Mutex
	args      []map[string]any
	deadlines []time.Duration
	calls     chan struct{}
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{calls: make(chan struct{}, 16)}
}

func (r *recordingRunner) Execute(ctx context.Context, d *workflow.Descriptor, args map[string]any) *workflow.Result {
	r.mu.Lock()
	r.args = append(r.args, args)
	if dl, ok := ctx.Deadline(); ok {
		r.deadlines = append(r.deadlines, time.Until(dl))
	}
	r.mu.Unlock()
	r.calls <- struct{}{}

	now := time.Now()
	return &workflow.Result{RunID: "run-1", WorkflowID: d.ID(), Status: workflow.StatusSuccess, StartedAt: now, FinishedAt: now}
}

func descriptor(t *testing.T, id string) *workflow.Descriptor {
	t.Helper()
	d, err := workflow.NewDescriptor(workflow.DescriptorParams{
		ID:       id,
		Metadata: &workflow.Metadata{Name: id, Category: "Testing"},
		EntryPoint: workflow.EntryPointFunc(func(context.Context) (workflow.Instance, error) {
			return nil, nil
		}),
	})
	require.NoError(t, err)
	return d
}

func newStore(t *testing.T) scheduler.Store {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.TaskStore()
}

func TestAdd_ValidatesAndPersists(t *testing.T) {
	ctx := context.Background()
	s := scheduler.New(newStore(t), fakeCatalog{}, newRecordingRunner())

	_, err := s.Add(ctx, &scheduler.Task{WorkflowID: "echo", Schedule: "every tuesday"})
	require.ErrorContains(t, err, "invalid schedule")

	_, err = s.Add(ctx, &scheduler.Task{Schedule: "@daily"})
	require.ErrorContains(t, err, "workflow id")

	task, err := s.Add(ctx, &scheduler.Task{WorkflowID: "echo", Schedule: "*/5 * * * *", Enabled: true})
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)
	require.Equal(t, "echo", task.Name)
	require.False(t, task.NextRun.IsZero())

	tasks, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, task.ID, tasks[0].ID)
}

func TestRunNow_RecordsRunWithTimeout(t *testing.T) {
	ctx := context.Background()
	runner := newRecordingRunner()
	s := scheduler.New(newStore(t), fakeCatalog{"echo": descriptor(t, "echo")}, runner,
		scheduler.WithDefaultTimeout(time.Hour))

	task, err := s.Add(ctx, &scheduler.Task{
		WorkflowID: "echo",
		Arguments:  map[string]any{"msg": "hi"},
		Schedule:   "@every 1h",
		Timeout:    2 * time.Minute,
		Enabled:    true,
	})
	require.NoError(t, err)

	run, err := s.RunNow(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSuccess, run.Status)
	require.Equal(t, []map[string]any{{"msg": "hi"}}, runner.args)
	require.LessOrEqual(t, runner.deadlines[0], 2*time.Minute)
	require.Greater(t, runner.deadlines[0], time.Minute)

	history, err := s.History(ctx, task.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "run-1", history[0].RunID)

	tasks, err := s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, tasks[0].RunCount)
	require.Equal(t, workflow.StatusSuccess, tasks[0].LastStatus)
	require.False(t, tasks[0].LastRun.IsZero())
}

func TestRunNow_MissingWorkflowRecordsError(t *testing.T) {
	ctx := context.Background()
	runner := newRecordingRunner()
	s := scheduler.New(newStore(t), fakeCatalog{}, runner)

	task, err := s.Add(ctx, &scheduler.Task{WorkflowID: "gone", Schedule: "@hourly", Enabled: true})
	require.NoError(t, err)

	run, err := s.RunNow(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusError, run.Status)
	require.Equal(t, workflow.StageLoad, run.Stage)
	require.Contains(t, run.ErrorMessage, "workflow not found")
	require.Empty(t, runner.args)

	history, err := s.History(ctx, task.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, workflow.StatusError, history[0].Status)
}

func TestRunNow_OnceDisablesTask(t *testing.T) {
	ctx := context.Background()
	s := scheduler.New(newStore(t), fakeCatalog{"echo": descriptor(t, "echo")}, newRecordingRunner())

	at := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	task, err := s.Add(ctx, &scheduler.Task{WorkflowID: "echo", Schedule: "@once " + at, Enabled: true})
	require.NoError(t, err)

	_, err = s.RunNow(ctx, task.ID)
	require.NoError(t, err)

	tasks, err := s.List(ctx)
	require.NoError(t, err)
	require.False(t, tasks[0].Enabled)
	require.True(t, tasks[0].NextRun.IsZero())
}

func TestSetEnabledAndRemove(t *testing.T) {
	ctx := context.Background()
	s := scheduler.New(newStore(t), fakeCatalog{}, newRecordingRunner())

	task, err := s.Add(ctx, &scheduler.Task{WorkflowID: "echo", Schedule: "@daily", Enabled: true})
	require.NoError(t, err)

	off, err := s.SetEnabled(ctx, task.ID, false)
	require.NoError(t, err)
	require.False(t, off.Enabled)
	require.True(t, off.NextRun.IsZero())

	on, err := s.SetEnabled(ctx, task.ID, true)
	require.NoError(t, err)
	require.True(t, on.Enabled)
	require.False(t, on.NextRun.IsZero())

	require.NoError(t, s.Remove(ctx, task.ID))
	_, err = s.History(ctx, task.ID, 0)
	require.ErrorIs(t, err, scheduler.ErrTaskNotFound)
	require.ErrorIs(t, s.Remove(ctx, task.ID), scheduler.ErrTaskNotFound)
}

func TestStart_FiresScheduledTask(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a cron tick")
	}
	ctx := context.Background()
	runner := newRecordingRunner()
	store := newStore(t)
	s := scheduler.New(store, fakeCatalog{"echo": descriptor(t, "echo")}, runner)

	_, err := s.Add(ctx, &scheduler.Task{WorkflowID: "echo", Schedule: "@every 1s", Enabled: true})
	require.NoError(t, err)
	_, err = s.Add(ctx, &scheduler.Task{WorkflowID: "echo", Schedule: "@every 1s", Enabled: false})
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))
	select {
	case <-runner.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("task never fired")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Stop(stopCtx))
}
