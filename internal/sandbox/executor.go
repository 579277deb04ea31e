package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"sheetwright/internal/config"
	"sheetwright/internal/logging"
)

// RuntimeSource hands out the session runtime.
type RuntimeSource interface {
	Runtime(ctx context.Context) (Runtime, error)
}

// Executor runs one script per call against the session runtime.
type Executor struct {
	runtimes  RuntimeSource
	cfg       config.SandboxConfig
	timeout   time.Duration
	maxOutput int64
}

// NewExecutor creates an executor over runtimes.
func NewExecutor(runtimes RuntimeSource, cfg config.SandboxConfig) *Executor {
	maxOutput := cfg.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = 4 * 1024 * 1024
	}
	return &Executor{
		runtimes:  runtimes,
		cfg:       cfg,
		timeout:   cfg.GetExecTimeout(),
		maxOutput: maxOutput,
	}
}

// Execute writes input to the input file, runs script and returns the bytes
// of the output file. Every stdout line is passed to onLog.
func (e *Executor) Execute(ctx context.Context, script string, input []byte, onLog func(string)) ([]byte, error) {
	timer := logging.StartTimer(logging.CategorySandbox, "script execution")
	defer timer.Stop()

	rt, err := e.runtimes.Runtime(ctx)
	if err != nil {
		return nil, runtimeError("runtime unavailable", err)
	}
	ws := rt.Workspace()

	if err := ws.WriteFile(e.cfg.InputName, input); err != nil {
		return nil, runtimeError("write "+e.cfg.InputName, err)
	}
	if err := ws.Remove(e.cfg.OutputName); err != nil {
		return nil, runtimeError("remove stale "+e.cfg.OutputName, err)
	}
	if err := ws.WriteFile(e.cfg.ScriptName, []byte(script)); err != nil {
		return nil, runtimeError("write "+e.cfg.ScriptName, err)
	}
	scriptPath, err := ws.Path(e.cfg.ScriptName)
	if err != nil {
		return nil, runtimeError("resolve script", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd, err := rt.Command(execCtx, scriptPath)
	if err != nil {
		return nil, runtimeError("prepare interpreter", err)
	}
	stdout := &lineWriter{emit: onLog, max: e.maxOutput}
	var stderrBuf bytes.Buffer
	stderr := &limitedWriter{w: &stderrBuf, max: e.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 2 * time.Second

	logging.SandboxDebug("running %s (%d bytes, timeout %s)", e.cfg.ScriptName, len(script), e.timeout)
	runErr := cmd.Run()
	stdout.Flush()

	if stdout.truncated || stderr.truncated {
		logging.SandboxWarn("script output truncated at %d bytes (%d stdout and %d stderr bytes discarded)",
			e.maxOutput, stdout.discarded, stderr.discarded)
	}

	if runErr != nil {
		return nil, e.classify(ctx, execCtx, runErr, stderrBuf.String())
	}

	ok, err := ws.Exists(e.cfg.OutputName)
	if err != nil {
		return nil, runtimeError("check "+e.cfg.OutputName, err)
	}
	if !ok {
		logging.SandboxWarn("script exited cleanly without writing %s", e.cfg.OutputName)
		return nil, &ExecutionError{
			Kind:    KindNoOutput,
			Message: fmt.Sprintf("script finished without errors but did not create %s", e.cfg.OutputName),
			Stderr:  stderrBuf.String(),
		}
	}

	out, err := ws.ReadFile(e.cfg.OutputName)
	if err != nil {
		return nil, runtimeError("read "+e.cfg.OutputName, err)
	}
	logging.Sandbox("script produced %s (%d bytes)", e.cfg.OutputName, len(out))
	return out, nil
}

func (e *Executor) classify(parent, execCtx context.Context, err error, stderr string) error {
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		logging.SandboxWarn("script killed after %s", e.timeout)
		return &ExecutionError{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("script did not finish within %s", e.timeout),
			Stderr:  stderr,
			Err:     execCtx.Err(),
		}
	}
	if parent.Err() != nil {
		return runtimeError("execution interrupted", parent.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		reason := LastErrorLine(stderr)
		if reason == "" {
			reason = fmt.Sprintf("exit status %d", exitErr.ExitCode())
		}
		logging.SandboxWarn("script raised: %s", reason)
		return &ExecutionError{
			Kind:    KindScriptRaised,
			Message: "script raised an error: " + reason,
			Stderr:  stderr,
			Err:     err,
		}
	}
	return runtimeError("start interpreter", err)
}

func runtimeError(op string, err error) *ExecutionError {
	logging.SandboxError("%s: %v", op, err)
	return &ExecutionError{
		Kind:    KindRuntime,
		Message: fmt.Sprintf("%s: %v", op, err),
		Err:     err,
	}
}

// LastErrorLine returns the last non-blank line of a Python traceback,
// which names the exception ("KeyError: 'C'").
func LastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimRight(stderr, "\r\n\t "), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
