// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// ShellNative runs scripts with the host shell.
	ShellNative ShellType = "native"
	// ShellVirtual runs scripts with the embedded mvdan/sh interpreter.
	ShellVirtual ShellType = "virtual"
)

var (
	// ErrInterrupted is wrapped by errors of runs aborted by an interrupt.
	ErrInterrupted = errors.New("interrupted")
	// ErrTimeout is wrapped by errors of runs that exceeded their timeout.
	ErrTimeout = errors.New("timed out")
	// ErrInvalidShellType is returned for an unknown ShellType value.
	ErrInvalidShellType = errors.New("invalid shell type")
)

type (
	// Command is a program invoked directly with an ordered argument list.
	Command struct {
		// Program is the executable name or path.
		Program string
		// Args are passed to Program unmodified.
		Args []string
		// Dir is the working directory; empty means the current directory.
		Dir string
		// Env holds KEY=VALUE entries added to the inherited environment.
		Env []string
		// Stdin feeds the process; nil means no input.
		Stdin io.Reader
		// Timeout bounds the run; zero means no limit beyond the context.
		Timeout time.Duration
	}

	// Script is shell source text run by a Shell.
	Script struct {
		// Source is the script text.
		Source string
		// Name identifies the script in parse errors.
		Name string
		// Dir is the working directory; empty means the current directory.
		Dir string
		// Env holds KEY=VALUE entries added to the inherited environment.
		Env []string
		// Timeout bounds the run; zero means no limit beyond the context.
		Timeout time.Duration
	}

	// Result contains the result of a run.
	Result struct {
		// ExitCode is the exit code of the command.
		ExitCode ExitCode
		// Error is set when the tool could not be run at all, or timed out.
		Error error
		// Output contains captured stdout.
		Output string
		// ErrOutput contains captured stderr.
		ErrOutput string
		// Interrupted is true when the run was aborted by an interrupt.
		Interrupted bool
		// Duration is the wall time of the run.
		Duration time.Duration
	}

	// Executor runs argv-style commands.
	Executor interface {
		Run(ctx context.Context, cmd Command) *Result
	}

	// Shell runs shell scripts.
	Shell interface {
		// Name returns the shell name.
		Name() string
		// Available returns whether this shell can be used on the current system.
		Available() bool
		// Validate checks that a script parses.
		Validate(script Script) error
		// RunScript runs a script and captures its output.
		RunScript(ctx context.Context, script Script) *Result
	}

	// ShellType selects a Shell implementation.
	ShellType string

	// ToolError reports an external tool that failed.
	ToolError struct {
		// Tool names the program or script that ran.
		Tool string
		// ExitCode is the status the tool exited with.
		ExitCode ExitCode
		// Output is the combined captured output.
		Output string
		// Err is the underlying cause when the tool could not run or timed out.
		Err error
	}
)

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
}

// Unwrap returns the underlying cause, if any.
func (e *ToolError) Unwrap() error { return e.Err }

// Success returns true if the command executed successfully.
func (r *Result) Success() bool {
	return r.ExitCode.IsSuccess() && r.Error == nil && !r.Interrupted
}

// Combined returns stdout followed by stderr.
func (r *Result) Combined() string {
	return r.Output + r.ErrOutput
}

// Err converts r into an error for tool: nil on success, an error wrapping
// ErrInterrupted for an interrupted run, and a *ToolError otherwise.
func (r *Result) Err(tool string) error {
	switch {
	case r.Interrupted:
		return fmt.Errorf("%s: %w", tool, ErrInterrupted)
	case r.Success():
		return nil
	default:
		return &ToolError{Tool: tool, ExitCode: r.ExitCode, Output: r.Combined(), Err: r.Error}
	}
}

// Validate reports whether t is a known shell type.
func (t ShellType) Validate() error {
	switch t {
	case ShellNative, ShellVirtual:
		return nil
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidShellType, t, ShellNative, ShellVirtual)
	}
}

// NewShell returns the Shell for t.
func NewShell(t ShellType) (Shell, error) {
	switch t {
	case ShellNative:
		return NewNativeShell(), nil
	case ShellVirtual:
		return NewVirtualShell(), nil
	default:
		return nil, t.Validate()
	}
}

// withTimeout derives the context for a run bounded by timeout.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// classifyContext marks r as interrupted or timed out according to the
// state of the parent and run contexts after the run.
func classifyContext(r *Result, parent, run context.Context, timeout time.Duration) {
	switch {
	case parent.Err() != nil:
		r.Interrupted = true
	case errors.Is(run.Err(), context.DeadlineExceeded):
		if r.ExitCode.IsSuccess() {
			r.ExitCode = 1
		}
		r.Error = fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case r.ExitCode.IsInterrupt():
		r.Interrupted = true
	}
}
