package log

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLog_FormatsCategoryAndFields(t *testing.T) {
	var buf bytes.Buffer
	cleanup := InitWithWriter(&buf)
	defer cleanup()

	Info(CatCatalog, "Catalog scanned", "version", 3, "workflows", 12)
	ErrorErr(CatEngine, "Run failed", errors.New("boom"), "workflow", "echo")
	Warn(CatWatcher, "odd", "orphan")

	out := buf.String()
	require.Contains(t, out, "[INFO] [catalog] Catalog scanned version=3 workflows=12\n")
	require.Contains(t, out, "[ERROR] [engine] Run failed workflow=echo error=boom\n")
	require.Contains(t, out, "[WARN] [watcher] odd orphan=<missing>\n")
}

func TestLog_MinLevelAndDisable(t *testing.T) {
	var buf bytes.Buffer
	cleanup := InitWithWriter(&buf)
	defer cleanup()

	SetMinLevel(LevelWarn)
	Debug(CatConfig, "hidden")
	Info(CatConfig, "hidden")
	Error(CatConfig, "shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")

	buf.Reset()
	SetEnabled(false)
	Error(CatConfig, "muted")
	require.Empty(t, buf.String())
}

func TestLog_NotInitializedIsNoop(t *testing.T) {
	cleanup := InitWithWriter(&bytes.Buffer{})
	cleanup()

	require.NotPanics(t, func() { Info(CatDB, "nobody listening") })
	require.Nil(t, Subscribe(context.Background()))
}

func TestLog_Subscribe(t *testing.T) {
	cleanup := InitWithWriter(&bytes.Buffer{})
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := Subscribe(ctx)
	require.NotNil(t, events)

	Info(CatScheduler, "Task fired", "task", "t1")
	select {
	case ev := <-events:
		require.Contains(t, ev.Payload, "[scheduler] Task fired task=t1")
	case <-time.After(time.Second):
		t.Fatal("no log event published")
	}
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelInfo, ParseLevel("INFO"))
	require.Equal(t, LevelWarn, ParseLevel("warning"))
	require.Equal(t, LevelError, ParseLevel("error"))
	require.Equal(t, LevelDebug, ParseLevel("verbose"))
	require.Equal(t, "WARN", LevelWarn.String())
	require.Equal(t, "UNKNOWN", Level(42).String())
}

func TestInit_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autohub.log")
	cleanup, err := Init(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanup()
		defaultLogger = nil
	})
	require.FileExists(t, path)
}
