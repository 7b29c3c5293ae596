package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/autohub/internal/metadata"
	"github.com/zjrosen/autohub/internal/presentation"
	"github.com/zjrosen/autohub/internal/scheduler"
	"github.com/zjrosen/autohub/internal/testutil"
	"github.com/zjrosen/autohub/internal/workflow"
)

type cliEnv struct {
	configPath string
	root       string
	outputDir  string
}

// newCLIEnv writes a config pointing at temp directories and isolates HOME.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("AUTOHUB_HOME", filepath.Join(home, ".autohub"))
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("AUTOHUB_DEBUG", "")

	env := &cliEnv{
		configPath: filepath.Join(home, "config.yaml"),
		root:       t.TempDir(),
		outputDir:  t.TempDir(),
	}
	content := fmt.Sprintf(`roots:
  - %q
generation:
  disable_ai: true
  output_dir: %q
scheduler:
  database_path: %q
`, env.root, env.outputDir, filepath.Join(home, "autohub.db"))
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o600))

	testutil.EchoScript().Write(t, env.root, "hello.sh")
	return env
}

// execute runs the CLI with args, returning everything written to stdout
// and stderr.
func (e *cliEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default so package-level flag
// variables do not leak between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestParseKeyValues(t *testing.T) {
	got, err := parseKeyValues([]string{"a=1", " b =x=y", "c="})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1", "b": "x=y", "c": ""}, got)

	_, err = parseKeyValues([]string{"novalue"})
	require.ErrorContains(t, err, "must be key=value")
	_, err = parseKeyValues([]string{"=v"})
	require.ErrorContains(t, err, "must be key=value")
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 0, ExitCode(nil))
	require.Equal(t, 1, ExitCode(errRunFailed))
	require.Equal(t, 1, ExitCode(fmt.Errorf("wrapped: %w", errRunFailed)))
	require.Equal(t, 2, ExitCode(errors.New("bad flag")))
}

func TestScriptFileName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Move Old Pdf Files Workflow", "move_old_pdf_files_workflow.py"},
		{"  Sales -- Report!  ", "sales_report.py"},
		{"", "generated_workflow.py"},
		{"???", "generated_workflow.py"},
	}
	require.Equal(t, "generated_workflow.py", scriptFileName(nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, scriptFileName(&workflow.Metadata{Name: tt.name}))
		})
	}
}

func TestWorkflowList(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "workflow:list", "-o", "json")
	require.NoError(t, err)
	list := decode[[]presentation.WorkflowDTO](t, out)
	ids := make([]string, 0, len(list))
	for _, w := range list {
		ids = append(ids, w.ID)
	}
	require.ElementsMatch(t, []string{"echo", "hello", "organize_files"}, ids)

	out, err = env.execute(t, "workflow:list", "-o", "json", "-c", "Testing")
	require.NoError(t, err)
	list = decode[[]presentation.WorkflowDTO](t, out)
	require.Len(t, list, 1)
	require.Equal(t, "hello", list[0].ID)

	out, err = env.execute(t, "workflow:list", "--categories", "-o", "json")
	require.NoError(t, err)
	require.Equal(t, []string{"Files", "Testing", "Utilities"}, decode[[]string](t, out))

	_, err = env.execute(t, "workflow:list", "-c", "Nope")
	require.ErrorContains(t, err, `no workflows in category "Nope" (categories: Files, Testing, Utilities)`)
}

func TestWorkflowShow(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "workflow:show", "hello", "-o", "json")
	require.NoError(t, err)
	w := decode[presentation.WorkflowDTO](t, out)
	require.Equal(t, "Echo", w.Name)
	require.Len(t, w.Parameters, 1)
	require.Equal(t, "msg", w.Parameters[0].Name)

	out, err = env.execute(t, "workflow:show", "hello", "--form")
	require.NoError(t, err)
	require.Contains(t, out, `"msg"`)

	_, err = env.execute(t, "workflow:show", "missing")
	require.ErrorContains(t, err, "workflow not found")
}

func TestWorkflowRun(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "workflow:run", "hello", "-a", "msg=hi", "-o", "json")
	require.NoError(t, err)
	res := decode[presentation.ResultDTO](t, out)
	require.Equal(t, "success", res.Status)
	require.Equal(t, "hi", res.Payload)

	out, err = env.execute(t, "workflow:run", "hello", "--args-json", `{"msg":"from json"}`, "-o", "json")
	require.NoError(t, err)
	require.Equal(t, "from json", decode[presentation.ResultDTO](t, out).Payload)
}

func TestWorkflowRun_ValidationFailureExitsNonZero(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "workflow:run", "hello", "-o", "json")
	require.ErrorIs(t, err, errRunFailed)
	require.Contains(t, out, `"ValidationError"`)

	_, err = env.execute(t, "workflow:run", "hello", "-a", "oops")
	require.ErrorContains(t, err, "must be key=value")

	_, err = env.execute(t, "workflow:run", "hello", "--args-json", "{")
	require.ErrorContains(t, err, "--args-json")
}

func TestWorkflowGenerate(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "workflow:generate", "-d", "move old pdf files to the archive", "-o", "json")
	require.NoError(t, err)
	g := decode[presentation.GenerateDTO](t, out)
	require.Equal(t, "template", g.Strategy)
	require.Equal(t, filepath.Join(env.outputDir, "move_old_pdf_files_workflow.py"), g.Path)
	require.False(t, g.FallbackUsed)
	data, err := os.ReadFile(g.Path)
	require.NoError(t, err)
	meta, err := metadata.Parse(g.Path, data)
	require.NoError(t, err)
	require.Equal(t, "Move Old Pdf Files Workflow", meta.Name)

	_, err = env.execute(t, "workflow:generate")
	require.ErrorContains(t, err, "--description is required")
}

func TestWorkflowGenerate_ExistingFile(t *testing.T) {
	env := newCLIEnv(t)
	target := filepath.Join(t.TempDir(), "custom.py")
	require.NoError(t, os.WriteFile(target, []byte("# old script\n"), 0o600))

	out, err := env.execute(t, "workflow:generate", "-d", "weekly report", "--out", target)
	require.ErrorContains(t, err, "already exists")
	require.Contains(t, out, "--- "+target+" (existing)")
	require.Contains(t, out, "-# old script")
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "# old script\n", string(data))

	_, err = env.execute(t, "workflow:generate", "-d", "weekly report", "--out", target, "--force")
	require.NoError(t, err)
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	require.Contains(t, string(data), "WORKFLOW_META")
}

func TestWorkflowGenerate_DryRun(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "workflow:generate", "-d", "send email reminders", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "WORKFLOW_META")
	entries, err := os.ReadDir(env.outputDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCatalogScan(t *testing.T) {
	env := newCLIEnv(t)
	testutil.WriteFile(t, env.root, "broken.sh", testutil.MalformedScript)

	out, err := env.execute(t, "catalog:scan", "-o", "json")
	require.NoError(t, err)
	scan := decode[presentation.ScanDTO](t, out)
	require.Len(t, scan.Errors, 1)
	require.Contains(t, scan.Errors[0].Path, "broken.sh")
}

func TestCatalogRoots(t *testing.T) {
	env := newCLIEnv(t)
	extra := t.TempDir()

	_, err := env.execute(t, "catalog:add-root", extra)
	require.NoError(t, err)
	data, err := os.ReadFile(env.configPath)
	require.NoError(t, err)
	require.Contains(t, string(data), extra)
	require.Contains(t, string(data), "disable_ai: true", "other settings survive")

	_, err = env.execute(t, "catalog:remove-root", extra)
	require.NoError(t, err)
	data, err = os.ReadFile(env.configPath)
	require.NoError(t, err)
	require.NotContains(t, string(data), extra)

	_, err = env.execute(t, "catalog:remove-root", extra)
	require.ErrorContains(t, err, "not configured")
}

func TestSchedule_Lifecycle(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "schedule:add", "hello", "--schedule", "@daily", "-a", "msg=tick", "--name", "daily hello", "-o", "json")
	require.NoError(t, err)
	added := decode[[]presentation.TaskDTO](t, out)
	require.Len(t, added, 1)
	task := added[0]
	require.Equal(t, "daily hello", task.Name)
	require.True(t, task.Enabled)
	require.NotNil(t, task.NextRun)

	out, err = env.execute(t, "schedule:list", "-o", "json")
	require.NoError(t, err)
	require.Len(t, decode[[]presentation.TaskDTO](t, out), 1)

	out, err = env.execute(t, "schedule:run", task.ID, "-o", "json")
	require.NoError(t, err)
	runs := decode[[]presentation.RunDTO](t, out)
	require.Equal(t, "success", runs[0].Status)

	out, err = env.execute(t, "schedule:history", task.ID, "-o", "json")
	require.NoError(t, err)
	require.Len(t, decode[[]presentation.RunDTO](t, out), 1)

	out, err = env.execute(t, "schedule:disable", task.ID, "-o", "json")
	require.NoError(t, err)
	require.False(t, decode[[]presentation.TaskDTO](t, out)[0].Enabled)

	_, err = env.execute(t, "schedule:remove", task.ID)
	require.NoError(t, err)
	_, err = env.execute(t, "schedule:history", task.ID)
	require.ErrorIs(t, err, scheduler.ErrTaskNotFound)
}

func TestSchedule_AddRejectsBadInput(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.execute(t, "schedule:add", "hello", "--schedule", "every day")
	require.ErrorContains(t, err, "invalid schedule")

	_, err = env.execute(t, "schedule:add", "missing", "--schedule", "@daily")
	require.ErrorContains(t, err, "workflow not found")
}

func TestSchedule_ExportImport(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.execute(t, "schedule:add", "hello", "--schedule", "@every 1h", "-a", "msg=x", "--timeout", "5m")
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "tasks.yaml")
	_, err = env.execute(t, "schedule:export", "--file", file)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	tasks, err := scheduler.UnmarshalTasks(data)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "hello", tasks[0].WorkflowID)

	// Import into a fresh environment, plus one task for an unknown workflow.
	other := newCLIEnv(t)
	tasks = append(tasks, &scheduler.Task{WorkflowID: "ghost", Schedule: "@daily", Enabled: true})
	data, err = scheduler.MarshalTasks(tasks)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, data, 0o600))

	out, err := other.execute(t, "schedule:import", file)
	require.NoError(t, err)
	require.Contains(t, out, `workflow "ghost" is not in the catalog`)
	require.Contains(t, out, "Imported 2 task(s)")

	out, err = other.execute(t, "schedule:list", "-o", "json")
	require.NoError(t, err)
	require.Len(t, decode[[]presentation.TaskDTO](t, out), 2)
}
