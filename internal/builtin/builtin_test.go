package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/autohub/internal/metadata"
	"github.com/zjrosen/autohub/internal/workflow"
)

func TestWorkflows_MetadataParses(t *testing.T) {
	wfs := Workflows()
	require.Len(t, wfs, len(definitions))

	for _, wf := range wfs {
		t.Run(wf.ID, func(t *testing.T) {
			meta, err := metadata.Parse(wf.Path, wf.Content)
			require.NoError(t, err)
			require.NotEmpty(t, meta.Name)
			require.NotNil(t, wf.Entry)

			inst, err := wf.Entry.Open(context.Background())
			require.NoError(t, err)
			require.NoError(t, inst.Close())
		})
	}
}

func TestWorkflows_FreshInstancePerOpen(t *testing.T) {
	entry := Workflows()[0].Entry
	a, err := entry.Open(context.Background())
	require.NoError(t, err)
	b, err := entry.Open(context.Background())
	require.NoError(t, err)
	require.NotSame(t, a, b)
}

func run(t *testing.T, inst workflow.Instance, args map[string]any) (map[string]any, error) {
	t.Helper()
	ctx := context.Background()
	defer func() { require.NoError(t, inst.Close()) }()
	if err := inst.Configure(ctx, args); err != nil {
		return nil, err
	}
	if err := inst.Validate(ctx); err != nil {
		return nil, err
	}
	return inst.Execute(ctx)
}

func TestEcho(t *testing.T) {
	out, err := run(t, &echo{}, map[string]any{"msg": "hi"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"status": "success", "payload": "hi"}, out)

	_, err = run(t, &echo{}, map[string]any{"msg": ""})
	require.ErrorContains(t, err, "msg is empty")
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}
}

func TestOrganizer_DryRunPlansOnly(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "b.txt", "a.PDF", "README", ".hidden")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "existing"), 0o750))

	out, err := run(t, &organizer{}, map[string]any{"source_folder": dir, "mode": "by_extension", "dry_run": true})
	require.NoError(t, err)

	payload := out["payload"].(map[string]any)
	require.Equal(t, true, payload["dry_run"])
	require.Equal(t, 0, payload["moved"])
	require.Equal(t, []move{
		{From: filepath.Join(dir, "README"), To: filepath.Join(dir, "no_extension", "README")},
		{From: filepath.Join(dir, "a.PDF"), To: filepath.Join(dir, "pdf", "a.PDF")},
		{From: filepath.Join(dir, "b.txt"), To: filepath.Join(dir, "txt", "b.txt")},
	}, payload["planned"])

	require.FileExists(t, filepath.Join(dir, "b.txt"))
	require.NoDirExists(t, filepath.Join(dir, "txt"))
}

func TestOrganizer_MovesAndSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.txt", "b.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "txt"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "txt", "b.txt"), []byte("old"), 0o600))

	out, err := run(t, &organizer{}, map[string]any{"source_folder": dir, "dry_run": false})
	require.NoError(t, err)

	payload := out["payload"].(map[string]any)
	require.Equal(t, 1, payload["moved"])
	require.Equal(t, []string{filepath.Join(dir, "b.txt")}, payload["skipped"])
	require.FileExists(t, filepath.Join(dir, "txt", "a.txt"))
	require.FileExists(t, filepath.Join(dir, "b.txt"))
}

func TestOrganizer_ByDate(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "scan.png")
	stamp := time.Date(2024, time.March, 9, 12, 0, 0, 0, time.Local)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "scan.png"), stamp, stamp))

	out, err := run(t, &organizer{}, map[string]any{"source_folder": dir, "mode": "by_date", "dry_run": true})
	require.NoError(t, err)
	planned := out["payload"].(map[string]any)["planned"].([]move)
	require.Equal(t, filepath.Join(dir, "2024-03", "scan.png"), planned[0].To)
}

func TestOrganizer_ValidateFailures(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "missing folder", args: map[string]any{"source_folder": filepath.Join(t.TempDir(), "nope")}, want: "source folder"},
		{name: "not a directory", args: map[string]any{"source_folder": file}, want: "is not a directory"},
		{name: "bad mode", args: map[string]any{"source_folder": t.TempDir(), "mode": "by_size"}, want: "unknown mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, &organizer{}, tt.args)
			require.ErrorContains(t, err, tt.want)
		})
	}
}
