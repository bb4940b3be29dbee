// Package shell provides the shell executor adapter.
package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Executor = (*Executor)(nil)

// Executor implements ports.Executor using os/exec.
type Executor struct {
	logger ports.Logger
}

// NewExecutor creates a new Executor.
func NewExecutor(logger ports.Logger) *Executor {
	return &Executor{
		logger: logger,
	}
}

// Execute runs the task's command with the specified environment.
// It merges environments with the following priority (low to high):
// 1. os.Environ()
// 2. env
// 3. task.Environment
//
// Output is logged line by line, stdout as info and stderr as warnings, and is
// also copied to the span carried by ctx when there is one.
func (e *Executor) Execute(ctx context.Context, task *domain.Task, env []string) error {
	if len(task.Command) == 0 {
		return nil
	}

	name := task.Command[0]
	args := task.Command[1:]

	cmdEnv := ResolveEnvironment(os.Environ(), env, task.Environment)

	// Resolve the executable with the command's own PATH.
	executable := name
	if !filepath.IsAbs(name) && !strings.ContainsRune(name, filepath.Separator) {
		if lp, err := lookPath(name, cmdEnv); err == nil {
			executable = lp
		}
	}

	cmd := exec.CommandContext(ctx, executable, args...) //nolint:gosec // user provided command

	// Keep the name as invoked in Args[0].
	if len(cmd.Args) > 0 {
		cmd.Args[0] = name
	}

	if task.WorkingDir != "" {
		cmd.Dir = task.WorkingDir
	}
	cmd.Env = cmdEnv

	stdout := &lineWriter{emit: e.logger.Info}
	stderr := &lineWriter{emit: e.logger.Warn}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if span, ok := ports.SpanFromContext(ctx); ok {
		sw := &syncWriter{w: span}
		cmd.Stdout = io.MultiWriter(stdout, sw)
		cmd.Stderr = io.MultiWriter(stderr, sw)
	}

	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return zerr.With(zerr.With(zerr.Wrap(errors.Join(domain.ErrTaskExecutionFailed, err), "command failed"), "exit_code", exitCode), "task", task.Name)
	}

	return nil
}

// lineWriter buffers partial writes and emits complete lines.
type lineWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	emit func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush emits any trailing output that did not end in a newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

// syncWriter serializes stdout and stderr copies into one writer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// ResolveEnvironment merges environment variables with the defined priority and
// returns them sorted by name.
func ResolveEnvironment(sysEnv, env []string, taskEnv map[string]string) []string {
	envMap := make(map[string]string)
	for _, layer := range [][]string{sysEnv, env} {
		for _, entry := range layer {
			if k, v, ok := strings.Cut(entry, "="); ok {
				envMap[k] = v
			}
		}
	}

	for k, v := range taskEnv {
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// lookPath searches for an executable in the directories named by the PATH environment variable.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = strings.TrimPrefix(e, "PATH=")
			break
		}
	}

	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
