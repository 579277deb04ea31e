// Package sandbox runs generated Python scripts against an ephemeral,
// per-session working directory.
//
// A Runtime pairs a Workspace (the only directory scripts see as their
// current directory) with an interpreter. Two backends exist:
//   - embedded: a Python distribution unpacked by go-embed-python, with
//     pandas and openpyxl installed into a shared cache directory
//   - host: the python3 found on PATH, used as-is
//
// The Provider boots one Runtime per session and the Executor runs scripts
// inside it.
package sandbox

import (
	"context"
	"errors"
	"os/exec"
)

// ErrClosed is returned by a Provider after Close.
var ErrClosed = errors.New("sandbox closed")

// Runtime is a booted interpreter bound to a workspace.
type Runtime interface {
	// Workspace returns the directory scripts run in.
	Workspace() *Workspace

	// Command prepares the interpreter with args, running in the workspace.
	Command(ctx context.Context, args ...string) (*exec.Cmd, error)

	// Close releases the interpreter and removes the workspace.
	Close() error
}

// ErrorKind classifies execution failures.
type ErrorKind string

const (
	KindScriptRaised ErrorKind = "script_raised"
	KindNoOutput     ErrorKind = "no_output"
	KindTimeout      ErrorKind = "timeout"
	KindRuntime      ErrorKind = "runtime"
)

// ExecutionError reports why a script produced no artifact.
type ExecutionError struct {
	Kind    ErrorKind
	Message string
	Stderr  string
	Err     error
}

func (e *ExecutionError) Error() string {
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
