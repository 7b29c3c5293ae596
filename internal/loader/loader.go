// Package loader turns workflow script files into runnable entry points.
//
// Scripts run as child processes that speak a line protocol on stdin and
// stdout (see protocol.go). Every Open starts a fresh process, so a rescan
// always observes the current file content and executions never share
// interpreter state.
package loader

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/zjrosen/autohub/internal/log"
	"github.com/zjrosen/autohub/internal/workflow"
)

//go:embed runner.py
var pythonRunner string

// CommandFactoryFunc creates an exec.Cmd. Tests use it to observe or replace
// the spawned command.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Config holds the process loader settings.
type Config struct {
	// Interpreters maps a lower-case file extension (".py") to the command
	// that runs it. The script path is appended as the last argument.
	Interpreters map[string][]string
	// VerifyOnLoad runs a describe handshake in a throwaway process at load.
	VerifyOnLoad bool
	// HandshakeTimeout bounds the describe handshake.
	HandshakeTimeout time.Duration
	// CloseTimeout is how long Close waits for a process to exit after its
	// stdin is closed before killing it.
	CloseTimeout time.Duration
	// StderrLines bounds the captured stderr tail.
	StderrLines int
	// Env is appended to os.Environ() for every process.
	Env []string
	// CommandFactory overrides exec.CommandContext.
	CommandFactory CommandFactoryFunc
}

// DefaultInterpreters returns the built-in extension to command mapping.
func DefaultInterpreters() map[string][]string {
	return map[string][]string{
		".py":  {"python3"},
		".sh":  {"sh"},
		".ps1": {"pwsh", "-NoProfile", "-File"},
	}
}

// DefaultConfig returns a Config with the default interpreters and timeouts.
func DefaultConfig() Config {
	return Config{
		Interpreters:     DefaultInterpreters(),
		VerifyOnLoad:     true,
		HandshakeTimeout: 10 * time.Second,
		CloseTimeout:     5 * time.Second,
		StderrLines:      50,
	}
}

// ProcessLoader loads script files as process-backed modules.
type ProcessLoader struct {
	cfg Config
}

// NewProcessLoader creates a loader. Zero values in cfg fall back to the
// defaults.
func NewProcessLoader(cfg Config) *ProcessLoader {
	def := DefaultConfig()
	if cfg.Interpreters == nil {
		cfg.Interpreters = def.Interpreters
	}
	normalized := make(map[string][]string, len(cfg.Interpreters))
	for ext, argv := range cfg.Interpreters {
		if len(argv) == 0 {
			continue
		}
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[ext] = slices.Clone(argv)
	}
	cfg.Interpreters = normalized
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = def.CloseTimeout
	}
	if cfg.StderrLines <= 0 {
		cfg.StderrLines = def.StderrLines
	}
	return &ProcessLoader{cfg: cfg}
}

// Extensions returns the candidate file extensions, sorted.
func (l *ProcessLoader) Extensions() []string {
	return slices.Sorted(maps.Keys(l.cfg.Interpreters))
}

// Supports reports whether path has a configured interpreter.
func (l *ProcessLoader) Supports(path string) bool {
	_, ok := l.cfg.Interpreters[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Load checks content and returns an entry point for path. Every failure is
// a *LoadError scoped to this file.
func (l *ProcessLoader) Load(ctx context.Context, path string, content []byte) (workflow.EntryPoint, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "resolve path", Err: err}
	}

	argv, err := l.command(abs)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "unsupported file type", Err: err}
	}

	if err := CheckSource(abs, content); err != nil {
		return nil, &LoadError{Path: path, Reason: "capability check failed", Err: err}
	}

	m := &Module{
		path:   abs,
		digest: Digest(content),
		argv:   argv,
		loader: l,
	}

	if l.cfg.VerifyOnLoad {
		if err := m.handshake(ctx); err != nil {
			return nil, err
		}
	}

	log.Debug(log.CatLoader, "Loaded workflow module", "path", abs, "interpreter", argv[0])
	return m, nil
}

func (l *ProcessLoader) command(path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	interp, ok := l.cfg.Interpreters[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoInterpreter, ext)
	}
	argv := slices.Clone(interp)
	if ext == ".py" {
		argv = append(argv, "-u", "-c", pythonRunner)
	}
	return append(argv, path), nil
}

// Digest returns the hex sha256 of content.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Module is a loaded script. It records the digest of the content it was
// loaded from and refuses to run a file that has changed since.
type Module struct {
	path   string
	digest string
	argv   []string
	loader *ProcessLoader
}

var _ workflow.EntryPoint = (*Module)(nil)

// Path returns the absolute script path.
func (m *Module) Path() string {
	return m.path
}

// Digest returns the content digest recorded at load.
func (m *Module) Digest() string {
	return m.digest
}

// Open starts a fresh process bound to ctx.
func (m *Module) Open(ctx context.Context) (workflow.Instance, error) {
	content, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", m.path, err)
	}
	if Digest(content) != m.digest {
		return nil, fmt.Errorf("%w: %s", ErrModuleChanged, m.path)
	}
	return m.loader.spawn(ctx, m.path, m.argv)
}

func (m *Module) handshake(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, m.loader.cfg.HandshakeTimeout)
	defer cancel()

	p, err := m.loader.spawn(hctx, m.path, m.argv)
	if err != nil {
		return &LoadError{Path: m.path, Reason: "start interpreter", Err: err}
	}
	defer func() { _ = p.Close() }()

	resp, err := p.call(hctx, request{Op: OpDescribe})
	if err != nil {
		return &LoadError{Path: m.path, Reason: "describe handshake failed", Err: err, Stderr: p.stderrTail()}
	}
	if !resp.OK {
		return &LoadError{Path: m.path, Reason: "describe handshake failed", Err: errors.New(resp.Error), Stderr: p.stderrTail()}
	}

	var missing []string
	for _, op := range lifecycleOps {
		if !slices.Contains(resp.Operations, op) {
			missing = append(missing, op)
		}
	}
	if len(missing) > 0 {
		return &LoadError{
			Path:   m.path,
			Reason: "describe handshake failed",
			Err:    fmt.Errorf("%w: missing %s", ErrMissingOperations, strings.Join(missing, ", ")),
		}
	}
	return nil
}
