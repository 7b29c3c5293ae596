package loader

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/autohub/internal/log"
	"github.com/zjrosen/autohub/internal/workflow"
)

// process is one running workflow script. It implements workflow.Instance.
type process struct {
	path         string
	cmd          *exec.Cmd
	cancel       context.CancelFunc
	stdin        io.WriteCloser
	closeTimeout time.Duration

	responses chan response
	stop      chan struct{}
	exited    chan struct{}
	waitErr   error

	mu          sync.Mutex
	stderr      []string
	stderrLimit int

	callMu    sync.Mutex
	closeOnce sync.Once
}

var _ workflow.Instance = (*process)(nil)

func (l *ProcessLoader) spawn(ctx context.Context, path string, argv []string) (*process, error) {
	procCtx, cancel := context.WithCancel(ctx)

	var cmd *exec.Cmd
	if l.cfg.CommandFactory != nil {
		cmd = l.cfg.CommandFactory(procCtx, argv[0], argv[1:]...)
	} else {
		// #nosec G204 -- argv comes from the interpreter configuration
		cmd = exec.CommandContext(procCtx, argv[0], argv[1:]...)
	}
	cmd.Dir = filepath.Dir(path)
	if len(l.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), l.cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	p := &process{
		path:         path,
		cmd:          cmd,
		cancel:       cancel,
		stdin:        stdin,
		closeTimeout: l.cfg.CloseTimeout,
		responses:    make(chan response, 1),
		stop:         make(chan struct{}),
		exited:       make(chan struct{}),
		stderrLimit:  l.cfg.StderrLines,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.readStdout(stdout)
	}()
	go func() {
		defer wg.Done()
		p.readStderr(stderr)
	}()
	go func() {
		wg.Wait()
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()

	log.Debug(log.CatLoader, "Started workflow process", "path", path, "pid", cmd.Process.Pid)
	return p, nil
}

func (p *process) readStdout(r io.Reader) {
	defer close(p.responses)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if resp, ok := decodeResponse(line); ok {
			select {
			case p.responses <- resp:
			case <-p.stop:
			}
			continue
		}
		log.Debug(log.CatLoader, "workflow output", "path", p.path, "line", line)
	}
	if err := scanner.Err(); err != nil {
		log.Debug(log.CatLoader, "stdout scanner error", "path", p.path, "error", err)
	}
}

func (p *process) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.mu.Lock()
		p.stderr = append(p.stderr, scanner.Text())
		if len(p.stderr) > p.stderrLimit {
			p.stderr = p.stderr[len(p.stderr)-p.stderrLimit:]
		}
		p.mu.Unlock()
	}
}

func (p *process) stderrTail() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.stderr, "\n")
}

// call sends one request and waits for its response.
func (p *process) call(ctx context.Context, req request) (response, error) {
	p.callMu.Lock()
	defer p.callMu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("encode %s request: %w", req.Op, err)
	}
	data = append(data, '\n')

	if _, err := p.stdin.Write(data); err != nil {
		return response{}, p.exitError()
	}

	select {
	case resp, ok := <-p.responses:
		if !ok {
			return response{}, p.exitError()
		}
		if resp.Traceback != "" {
			log.Debug(log.CatLoader, "workflow traceback", "path", p.path, "op", req.Op, "traceback", resp.Traceback)
		}
		return resp, nil
	case <-ctx.Done():
		p.cancel()
		return response{}, ctx.Err()
	}
}

// exitError describes a process that stopped answering.
func (p *process) exitError() error {
	select {
	case <-p.exited:
	case <-time.After(p.closeTimeout):
	}

	err := ErrProcessExited
	select {
	case <-p.exited:
		if p.waitErr != nil {
			err = fmt.Errorf("%w: %v", ErrProcessExited, p.waitErr)
		}
	default:
	}
	if tail := p.stderrTail(); tail != "" {
		err = fmt.Errorf("%w: %s", err, tail)
	}
	return err
}

func failure(resp response, fallback string) error {
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return errors.New(fallback)
}

func (p *process) invoke(ctx context.Context, req request) (response, error) {
	resp, err := p.call(ctx, req)
	if err != nil {
		return resp, err
	}
	if !resp.OK {
		return resp, failure(resp, string(stageOf(req.Op))+" failed")
	}
	return resp, nil
}

// Configure sends the resolved arguments.
func (p *process) Configure(ctx context.Context, args map[string]any) error {
	_, err := p.invoke(ctx, request{Op: OpConfigure, Arguments: args})
	return err
}

// Validate asks the workflow to check its configuration.
func (p *process) Validate(ctx context.Context) error {
	resp, err := p.invoke(ctx, request{Op: OpValidate})
	if err != nil {
		return err
	}
	if resp.Valid != nil && !*resp.Valid {
		return failure(resp, "validation returned false")
	}
	return nil
}

// Execute runs the workflow and returns its result mapping.
func (p *process) Execute(ctx context.Context) (map[string]any, error) {
	resp, err := p.invoke(ctx, request{Op: OpExecute})
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return map[string]any{}, nil
	}
	return resp.Result, nil
}

// Close closes stdin and waits for the process to exit, killing it after
// the close timeout. It is safe to call more than once.
func (p *process) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		_ = p.stdin.Close()

		select {
		case <-p.exited:
		case <-time.After(p.closeTimeout):
			log.Warn(log.CatLoader, "workflow process did not exit, killing", "path", p.path)
			p.cancel()
			select {
			case <-p.exited:
			case <-time.After(p.closeTimeout):
			}
		}
		p.cancel()
	})
	return nil
}
