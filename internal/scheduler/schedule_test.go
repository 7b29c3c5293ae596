package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	from := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		spec string
		want time.Time
	}{
		{spec: "30 9 * * *", want: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)},
		{spec: "@every 90m", want: from.Add(90 * time.Minute)},
		{spec: "@daily", want: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
		{spec: "@once 2025-06-01T15:00:00Z", want: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)},
		{spec: "@once 2025-06-01T11:00:00Z", want: time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			sched, err := ParseSchedule(tt.spec)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(sched.Next(from)), "got %s", sched.Next(from))
		})
	}
}

func TestParseSchedule_Invalid(t *testing.T) {
	for _, spec := range []string{"", "* * *", "@once tomorrow", "@every banana", "0 0 0 0 0 0"} {
		_, err := ParseSchedule(spec)
		assert.Error(t, err, spec)
	}
}

func TestIsOnce(t *testing.T) {
	assert.True(t, IsOnce(" @once 2025-01-01T00:00:00Z"))
	assert.False(t, IsOnce("@daily"))
}

func TestMarshalTasks_RoundTrip(t *testing.T) {
	tasks := []*Task{
		{ID: "a", Name: "Morning", WorkflowID: "echo", Schedule: "0 8 * * *", Enabled: true,
			Timeout: 5 * time.Minute, Arguments: map[string]any{"msg": "hello"}},
		{ID: "b", Name: "Paused", WorkflowID: "organize_files", Schedule: "@weekly", Enabled: false},
	}

	data, err := MarshalTasks(tasks)
	require.NoError(t, err)

	got, err := UnmarshalTasks(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range tasks {
		assert.Equal(t, tasks[i].ID, got[i].ID)
		assert.Equal(t, tasks[i].WorkflowID, got[i].WorkflowID)
		assert.Equal(t, tasks[i].Schedule, got[i].Schedule)
		assert.Equal(t, tasks[i].Enabled, got[i].Enabled)
		assert.Equal(t, tasks[i].Timeout, got[i].Timeout)
		assert.Equal(t, tasks[i].Arguments, got[i].Arguments)
	}
}

func TestUnmarshalTasks_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "no workflow", doc: "tasks:\n  - schedule: '@daily'\n", want: "workflow is required"},
		{name: "bad schedule", doc: "tasks:\n  - workflow: echo\n    schedule: nope\n", want: "invalid schedule"},
		{name: "bad timeout", doc: "tasks:\n  - workflow: echo\n    schedule: '@daily'\n    timeout: soon\n", want: "invalid timeout"},
		{name: "not yaml", doc: "tasks: [", want: "parse tasks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalTasks([]byte(tt.doc))
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestUnmarshalTasks_DefaultsEnabled(t *testing.T) {
	got, err := UnmarshalTasks([]byte("tasks:\n  - workflow: echo\n    schedule: '@hourly'\n"))
	require.NoError(t, err)
	require.True(t, got[0].Enabled)
}
