// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bladebuild/synth/internal/coreutils"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// VirtualShell runs scripts with the embedded mvdan/sh interpreter, so that
// templates behave the same regardless of the host shell.
type VirtualShell struct {
	// Logger receives one debug line per external program started; may be nil.
	Logger *log.Logger
	// Builtins serves the utilities it registers in process; nil runs every
	// program from the host.
	Builtins *coreutils.Registry
}

// NewVirtualShell creates a new virtual shell
func NewVirtualShell() *VirtualShell {
	return &VirtualShell{}
}

// Name returns the shell name
func (r *VirtualShell) Name() string {
	return string(ShellVirtual)
}

// Available returns whether this shell is available
func (r *VirtualShell) Available() bool {
	// Virtual shell is always available as it's built-in
	return true
}

// Validate checks that script parses as POSIX shell.
func (r *VirtualShell) Validate(script Script) error {
	if strings.TrimSpace(script.Source) == "" {
		return fmt.Errorf("script has no content to execute")
	}
	_, err := ParseScript(script)
	return err
}

// RunScript runs script in the interpreter and captures its output.
func (r *VirtualShell) RunScript(ctx context.Context, script Script) *Result {
	if strings.TrimSpace(script.Source) == "" {
		return NewErrorResult(1, fmt.Errorf("script has no content to execute"))
	}
	prog, err := ParseScript(script)
	if err != nil {
		return NewErrorResult(1, err)
	}

	workDir := script.Dir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return NewErrorResult(1, fmt.Errorf("failed to get working directory: %w", err))
		}
	}

	captured := &capturedOutput{}
	opts := []interp.RunnerOption{
		interp.Dir(workDir),
		interp.Env(expand.ListEnviron(append(os.Environ(), script.Env...)...)),
		interp.StdIO(nil, &captured.stdout, &captured.stderr),
		interp.ExecHandlers(r.execHandler),
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return NewErrorResult(1, fmt.Errorf("failed to create interpreter: %w", err))
	}

	runCtx, cancel := withTimeout(ctx, script.Timeout)
	defer cancel()

	start := time.Now()
	err = runner.Run(runCtx, prog)

	result := &Result{
		Output:    captured.stdout.String(),
		ErrOutput: captured.stderr.String(),
		Duration:  time.Since(start),
	}
	if err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			result.ExitCode = ExitCode(exitStatus)
		} else {
			result.ExitCode = 1
			result.Error = fmt.Errorf("script execution failed: %w", err)
		}
	}
	classifyContext(result, ctx, runCtx, script.Timeout)
	return result
}

// ParseScript parses script as POSIX shell source.
func ParseScript(script Script) (*syntax.File, error) {
	name := script.Name
	if name == "" {
		name = "script"
	}
	prog, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(strings.NewReader(script.Source), name)
	if err != nil {
		return nil, fmt.Errorf("script syntax error: %w", err)
	}
	return prog, nil
}

// execHandler logs each program before handing it to the builtins, if any,
// and then to the default handler.
func (r *VirtualShell) execHandler(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	if r.Builtins != nil {
		next = r.Builtins.ExecHandler(next)
	}
	return func(ctx context.Context, args []string) error {
		if r.Logger != nil && len(args) > 0 {
			r.Logger.Debug("virtual shell exec",
				"program", args[0],
				"args", len(args)-1,
				"builtin", r.Builtins != nil && r.Builtins.Has(args[0]))
		}
		return next(ctx, args)
	}
}
