// Package paths provides path resolution utilities.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvHome overrides the autohub home directory.
const EnvHome = "AUTOHUB_HOME"

// ProjectConfigPath is the config file looked up in the working directory.
const ProjectConfigPath = ".autohub/config.yaml"

// Home returns the autohub data directory: $AUTOHUB_HOME, or ~/.autohub.
// Falls back to ./.autohub when the home directory is unavailable.
func Home() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return ExpandHome(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autohub"
	}
	return filepath.Join(home, ".autohub")
}

// WorkflowsDir returns the default user workflow root.
func WorkflowsDir() string {
	return filepath.Join(Home(), "workflows")
}

// GeneratedDir returns where generated scripts are written by default.
// It sits inside the default root so new scripts are discovered.
func GeneratedDir() string {
	return filepath.Join(WorkflowsDir(), "generated")
}

// DatabasePath returns the default scheduler database path.
func DatabasePath() string {
	return filepath.Join(Home(), "autohub.db")
}

// TracesPath returns the default path for trace file export.
func TracesPath() string {
	return filepath.Join(Home(), "traces", "traces.jsonl")
}

// UserConfigDir returns ~/.config/autohub, or "" when the home directory
// is unavailable.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "autohub")
}

// ExpandHome replaces a leading "~" with the user's home directory.
//
//   - "~" -> "/home/me"
//   - "~/flows" -> "/home/me/flows"
//   - "~bob/flows" and other paths are returned unchanged
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// ExpandAll applies ExpandHome to every path and drops empty entries.
func ExpandAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, ExpandHome(p))
		}
	}
	return out
}
