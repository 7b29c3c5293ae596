package presentation

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/autohub/internal/catalog"
	"github.com/zjrosen/autohub/internal/scheduler"
	"github.com/zjrosen/autohub/internal/workflow"
)

func testDescriptor(t *testing.T) *workflow.Descriptor {
	t.Helper()
	folder, err := workflow.NewParameter("folder", workflow.ParamFilePath,
		workflow.Required(true), workflow.WithDescription("Folder to sort"))
	require.NoError(t, err)
	mode, err := workflow.NewParameter("mode", workflow.ParamChoice,
		workflow.WithChoices("by_type", "by_date"), workflow.WithDefault("by_type"))
	require.NoError(t, err)

	d, err := workflow.NewDescriptor(workflow.DescriptorParams{
		ID: "files_organize",
		Metadata: &workflow.Metadata{
			Name:        "Organize Files",
			Description: "Sort a folder | by type",
			Category:    "Files",
			Version:     "1.2",
			Tags:        []string{"files"},
			Parameters:  []*workflow.Parameter{folder, mode},
		},
		SourcePath: "/flows/files/organize.py",
		EntryPoint: workflow.EntryPointFunc(func(context.Context) (workflow.Instance, error) { return nil, nil }),
	})
	require.NoError(t, err)
	return d
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	require.ErrorContains(t, err, "unknown output format")
}

func TestFromDescriptor(t *testing.T) {
	dto := FromDescriptor(testDescriptor(t))

	assert.Equal(t, "files_organize", dto.ID)
	assert.Equal(t, "user", dto.Source)
	require.Len(t, dto.Parameters, 2)
	assert.Equal(t, ParameterDTO{Name: "folder", Type: "file-path", Description: "Folder to sort", Required: true}, dto.Parameters[0])
	assert.Equal(t, "by_type", dto.Parameters[1].Default)
	assert.Equal(t, []string{"by_type", "by_date"}, dto.Parameters[1].Choices)
}

func TestFormatWorkflows_JSON(t *testing.T) {
	var buf bytes.Buffer
	dtos := FromDescriptors([]*workflow.Descriptor{testDescriptor(t)})
	require.NoError(t, NewFormatter(&buf, FormatJSON).FormatWorkflows(dtos))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "files_organize", decoded[0]["id"])
	assert.Len(t, decoded[0]["parameters"], 2)
}

func TestFormatWorkflows_YAML(t *testing.T) {
	var buf bytes.Buffer
	dtos := FromDescriptors([]*workflow.Descriptor{testDescriptor(t)})
	require.NoError(t, NewFormatter(&buf, FormatYAML).FormatWorkflows(dtos))

	var decoded []WorkflowDTO
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "Organize Files", decoded[0].Name)
	assert.True(t, decoded[0].Parameters[0].Required)
}

func TestFormatWorkflows_Text(t *testing.T) {
	var buf bytes.Buffer
	dtos := []WorkflowDTO{
		{ID: "a", Name: "Alpha", Category: "Files", Source: "user"},
		{ID: "b", Name: "Beta", Category: "Files", Source: "built-in"},
		{ID: "c", Name: "Gamma", Category: "Testing", Source: "user"},
	}
	require.NoError(t, NewFormatter(&buf, FormatText).FormatWorkflows(dtos))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "Files"), "category heading printed once")
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "(built-in)")
	assert.Less(t, strings.Index(out, "Beta"), strings.Index(out, "Testing"))

	buf.Reset()
	require.NoError(t, NewFormatter(&buf, "").FormatWorkflows(nil))
	assert.Contains(t, buf.String(), "No workflows found.")
}

func TestFormatCategories(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatJSON).FormatCategories(nil))
	assert.JSONEq(t, `[]`, buf.String())

	buf.Reset()
	require.NoError(t, NewFormatter(&buf, FormatText).FormatCategories([]string{"Files", "Testing"}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Files")
	assert.Contains(t, lines[1], "Testing")
}

func TestFormatWorkflow_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatText).FormatWorkflow(FromDescriptor(testDescriptor(t))))

	out := buf.String()
	assert.Contains(t, out, "Organize Files")
	assert.Contains(t, out, "file-path, required")
	assert.Contains(t, out, "default: by_type")
	assert.Contains(t, out, "choices: by_type, by_date")
}

func TestFormatResult(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ok := &workflow.Result{
		RunID: "r1", WorkflowID: "echo", Status: workflow.StatusSuccess,
		Payload: map[string]any{"echo": "hi"}, StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond),
	}
	failed := &workflow.Result{
		RunID: "r2", WorkflowID: "echo", Status: workflow.StatusError,
		ErrorMessage: "invalid arguments", ErrorCategory: workflow.CategoryValidation,
		FieldErrors: []workflow.FieldError{{Param: "msg", Msg: "is required"}},
		StartedAt:   start, FinishedAt: start,
	}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatText).FormatResult(ok))
	assert.Contains(t, buf.String(), "success")
	assert.Contains(t, buf.String(), `"echo": "hi"`)

	buf.Reset()
	require.NoError(t, NewFormatter(&buf, FormatText).FormatResult(failed))
	assert.Contains(t, buf.String(), "invalid arguments")
	assert.Contains(t, buf.String(), "msg: is required")

	buf.Reset()
	require.NoError(t, NewFormatter(&buf, FormatJSON).FormatResult(ok))
	var decoded ResultDTO
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, int64(1500), decoded.DurationMS)
	assert.Equal(t, "success", decoded.Status)
}

func TestFormatChanges(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, FormatText)

	require.NoError(t, f.FormatChanges(FromChanges(3, catalog.Changes{})))
	assert.Contains(t, buf.String(), "version 3: no changes")

	buf.Reset()
	require.NoError(t, f.FormatChanges(FromChanges(4, catalog.Changes{Added: []string{"new"}, Removed: []string{"old"}, Changed: []string{"echo"}})))
	out := buf.String()
	assert.Contains(t, out, "+ new")
	assert.Contains(t, out, "- old")
	assert.Contains(t, out, "~ echo")

	dto := FromChanges(1, catalog.Changes{})
	assert.NotNil(t, dto.Added, "empty lists encode as [] not null")
}

func TestFormatTasksAndRuns(t *testing.T) {
	now := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	tasks := FromTasks([]*scheduler.Task{
		{ID: "t1", Name: "Nightly", WorkflowID: "echo", Schedule: "@daily", Enabled: true, NextRun: now, Timeout: time.Minute},
		{ID: "t2", Name: "Paused", WorkflowID: "echo", Schedule: "@hourly"},
	})
	assert.Equal(t, "1m0s", tasks[0].Timeout)
	assert.Nil(t, tasks[1].NextRun)

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatText).FormatTasks(tasks))
	assert.Contains(t, buf.String(), "Nightly")
	assert.Contains(t, buf.String(), "disabled")
	assert.Contains(t, buf.String(), "next: 2025-02-03T04:05:06Z")

	runs := FromRuns([]*scheduler.Run{{RunID: "r", Status: workflow.StatusError, ErrorMessage: "boom", StartedAt: now, FinishedAt: now.Add(time.Second)}})
	assert.Equal(t, int64(1000), runs[0].DurationMS)

	buf.Reset()
	require.NoError(t, NewFormatter(&buf, FormatText).FormatRuns(runs))
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	require.NoError(t, NewFormatter(&buf, FormatText).FormatRuns(nil))
	assert.Contains(t, buf.String(), "No runs recorded.")
}

func TestWorkflowMarkdown(t *testing.T) {
	md := WorkflowMarkdown(FromDescriptor(testDescriptor(t)))

	assert.True(t, strings.HasPrefix(md, "# Organize Files\n"))
	assert.Contains(t, md, "| `folder` | file-path | yes |  | Folder to sort |")
	assert.Contains(t, md, "(one of: by_type, by_date)")
	assert.Contains(t, md, "`files_organize`")

	r, err := NewRenderer(80, "notty")
	require.NoError(t, err)
	assert.Equal(t, 80, r.Width())
	rendered, err := r.Render(md)
	require.NoError(t, err)
	assert.Contains(t, rendered, "Organize Files")
}

func TestLineDiff(t *testing.T) {
	assert.Empty(t, LineDiff("a.py", "same\n", "same\n"))

	diff := LineDiff("a.py", "one\ntwo\nthree\n", "one\n2\nthree\n")
	assert.Contains(t, diff, "--- a.py (existing)")
	assert.Contains(t, diff, "-two\n")
	assert.Contains(t, diff, "+2\n")
	assert.Contains(t, diff, " one\n")
	assert.Contains(t, diff, " three\n")
}
