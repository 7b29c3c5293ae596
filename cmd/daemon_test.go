package cmd

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/autohub/internal/builtin"
	"github.com/zjrosen/autohub/internal/catalog"
	"github.com/zjrosen/autohub/internal/loader"
	"github.com/zjrosen/autohub/internal/log"
	"github.com/zjrosen/autohub/internal/scheduler"
)

// lockedBuffer is written from log goroutines and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestOrphanedTasks(t *testing.T) {
	svc := catalog.NewService(loader.NewProcessLoader(loader.DefaultConfig()), catalog.WithBuiltins(builtin.Workflows))
	snap, err := svc.Scan(context.Background(), nil)
	require.NoError(t, err)

	tasks := []*scheduler.Task{
		{Name: "nightly", WorkflowID: "echo"},
		{Name: "stale", WorkflowID: "deleted_flow"},
	}
	orphans := orphanedTasks(snap, tasks)
	require.Len(t, orphans, 1)
	assert.Equal(t, "stale", orphans[0].Name)

	var buf bytes.Buffer
	warnOrphans(&buf, snap, tasks)
	assert.Contains(t, buf.String(), `task "stale" runs workflow "deleted_flow"`)
	assert.NotContains(t, buf.String(), "nightly")
}

func TestFollowLogs_WritesDirectlyWithoutLogFile(t *testing.T) {
	var buf lockedBuffer
	restore := followLogs(context.Background(), &buf)
	log.Info(log.CatScheduler, "Task fired", "task", "nightly")
	restore()
	log.Info(log.CatScheduler, "after restore")

	assert.Contains(t, buf.String(), "[INFO] [scheduler] Task fired task=nightly")
	assert.NotContains(t, buf.String(), "after restore")
}

func TestFollowLogs_CopiesEntriesFromLogFile(t *testing.T) {
	cleanup := log.InitWithWriter(io.Discard)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf lockedBuffer
	defer followLogs(ctx, &buf)()

	log.Warn(log.CatWatcher, "Watcher restarted")
	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "[WARN] [watcher] Watcher restarted")
	}, time.Second, 10*time.Millisecond)
}
