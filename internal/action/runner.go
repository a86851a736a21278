// SPDX-License-Identifier: MPL-2.0

package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bladebuild/synth/internal/diag"
	"github.com/bladebuild/synth/internal/runtime"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

type (
	// Invocation is one run of a build action.
	Invocation struct {
		// ID identifies the invocation in log lines.
		ID uuid.UUID
		// Action is a present-participle description such as "fast linking".
		Action string
		// Inputs are the input paths in the order given by the orchestrator.
		Inputs []string
		// Outputs are the paths the action produces.
		Outputs []string
		// Env is the key-value configuration view of the action.
		Env map[string]string
	}

	// Step performs the work of an invocation. The Result, when non-nil,
	// carries output captured from external tools.
	Step func(ctx context.Context, inv *Invocation) (*runtime.Result, error)

	// Runner runs build action steps and reports their outcome.
	Runner struct {
		// Stdout receives captured tool stdout.
		Stdout io.Writer
		// Stderr receives captured tool stderr and failure summaries.
		Stderr io.Writer
		// Colorizer renders echoed output; nil disables color.
		Colorizer *diag.Colorizer
		// Signatures is invalidated for every output of a failed action.
		Signatures SignatureCache
		// Logger receives action lifecycle messages.
		Logger *log.Logger
		// Describe renders the cause of a failure that produced no tool
		// output. Nil prints the error message.
		Describe func(err error) string
	}

	// FailedError reports a build action that did not complete.
	FailedError struct {
		// Action is the description of the failed action.
		Action string
		// Target is the first output of the action.
		Target string
		// Err is the underlying cause.
		Err error
	}
)

// NewInvocation creates an Invocation with a fresh ID.
func NewInvocation(action string, inputs, outputs []string) *Invocation {
	return &Invocation{
		ID:      uuid.New(),
		Action:  action,
		Inputs:  append([]string(nil), inputs...),
		Outputs: append([]string(nil), outputs...),
		Env:     map[string]string{},
	}
}

// Target returns the path the invocation is reported under.
func (inv *Invocation) Target() string {
	if len(inv.Outputs) > 0 {
		return inv.Outputs[0]
	}
	return inv.ID.String()
}

// Summary returns the one-line failure summary for inv.
func (inv *Invocation) Summary() string {
	return fmt.Sprintf("failed while %s: %s", inv.Action, inv.Target())
}

// Error implements the error interface.
func (e *FailedError) Error() string {
	return fmt.Sprintf("failed while %s: %s: %v", e.Action, e.Target, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FailedError) Unwrap() error { return e.Err }

// NewRunner creates a Runner writing to the process streams without color.
func NewRunner(logger *log.Logger) *Runner {
	return &Runner{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Colorizer:  diag.NewColorizer(false),
		Signatures: NopSignatures{},
		Logger:     logger,
	}
}

// Run executes step for inv.
//
// Captured output is echoed even when the step succeeds so that warnings stay
// visible. When the step fails, the signatures of all outputs are invalidated,
// the summary line is printed last, and a *FailedError is returned. A failure
// other than a failed tool has its cause printed before the summary. An interrupted step echoes nothing and returns an error wrapping
// runtime.ErrInterrupted.
func (r *Runner) Run(ctx context.Context, inv *Invocation, step Step) error {
	logger := r.logger().With("id", inv.ID.String())
	logger.Debug("action started", "action", inv.Action, "target", inv.Target(), "inputs", len(inv.Inputs))

	start := time.Now()
	result, err := step(ctx, inv)

	if interrupted(ctx, result, err) {
		r.invalidate(logger, inv)
		logger.Debug("action interrupted", "target", inv.Target())
		return fmt.Errorf("%s %s: %w", inv.Action, inv.Target(), runtime.ErrInterrupted)
	}

	r.echo(logger, result)

	if err == nil && result != nil && !result.Success() {
		err = result.Err(inv.Action)
	}
	if err != nil {
		r.invalidate(logger, inv)
		var toolErr *runtime.ToolError
		if !errors.As(err, &toolErr) {
			r.report(logger, r.describe(err))
		}
		r.report(logger, r.colorizer().Render(diag.Error, inv.Summary()))
		return &FailedError{Action: inv.Action, Target: inv.Target(), Err: err}
	}

	logger.Debug("action finished", "target", inv.Target(), "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (r *Runner) echo(logger *log.Logger, result *runtime.Result) {
	if result == nil {
		return
	}
	c := r.colorizer()
	if err := c.Echo(r.stdout(), result.Output); err != nil {
		logger.Debug("failed to echo output", "error", err)
	}
	if err := c.Echo(r.stderr(), result.ErrOutput); err != nil {
		logger.Debug("failed to echo output", "error", err)
	}
	if counts := diag.Count(result.Combined()); counts[diag.Warning] > 0 {
		logger.Debug("tool reported warnings", "warnings", counts[diag.Warning], "errors", counts[diag.Error])
	}
}

func (r *Runner) report(logger *log.Logger, line string) {
	if _, err := fmt.Fprintln(r.stderr(), strings.TrimRight(line, "\n")); err != nil {
		logger.Debug("failed to write failure report", "error", err)
	}
}

func (r *Runner) describe(err error) string {
	if r.Describe != nil {
		return r.Describe(err)
	}
	return r.colorizer().Render(diag.Error, err.Error())
}

func (r *Runner) invalidate(logger *log.Logger, inv *Invocation) {
	if r.Signatures == nil {
		return
	}
	for _, out := range inv.Outputs {
		if err := r.Signatures.Invalidate(out); err != nil {
			logger.Warn("signature not invalidated", "target", out, "error", err)
		}
	}
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.Default()
	}
	return r.Logger
}

func (r *Runner) colorizer() *diag.Colorizer {
	if r.Colorizer == nil {
		return diag.NewColorizer(false)
	}
	return r.Colorizer
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout == nil {
		return io.Discard
	}
	return r.Stdout
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr == nil {
		return io.Discard
	}
	return r.Stderr
}

// interrupted reports whether a step ended because of an interrupt rather
// than a failure of its own.
func interrupted(ctx context.Context, result *runtime.Result, err error) bool {
	switch {
	case result != nil && result.Interrupted:
		return true
	case errors.Is(err, runtime.ErrInterrupted):
		return true
	case err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled):
		return true
	default:
		return false
	}
}

