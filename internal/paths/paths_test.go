package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHome_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)

	require.Equal(t, dir, Home())
	require.Equal(t, filepath.Join(dir, "workflows"), WorkflowsDir())
	require.Equal(t, filepath.Join(dir, "workflows", "generated"), GeneratedDir())
	require.Equal(t, filepath.Join(dir, "autohub.db"), DatabasePath())
	require.Equal(t, filepath.Join(dir, "traces", "traces.jsonl"), TracesPath())
}

func TestHome_Default(t *testing.T) {
	t.Setenv(EnvHome, "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".autohub"), Home())
	require.Equal(t, filepath.Join(home, ".config", "autohub"), UserConfigDir())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{in: "~", want: home},
		{in: "~/flows", want: filepath.Join(home, "flows")},
		{in: "~bob/flows", want: "~bob/flows"},
		{in: "/abs/path", want: "/abs/path"},
		{in: "rel/path", want: "rel/path"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, ExpandHome(tt.in))
		})
	}
}

func TestExpandAll(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(home, "a"), "/b"}, ExpandAll([]string{"~/a", "  ", "/b"}))
}
