// SPDX-License-Identifier: MPL-2.0

package fastlink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bladebuild/synth/internal/runtime"
	"github.com/bladebuild/synth/internal/staging"

	"github.com/charmbracelet/log"
)

const (
	// TargetVar is replaced by the path the link command must write.
	TargetVar = "FL_TARGET"
	// SourceVar is replaced by the space-joined input paths.
	SourceVar = "FL_SOURCE"
)

var (
	// ErrEmptyTemplate is returned for a link job without a command template.
	ErrEmptyTemplate = errors.New("link template is empty")
	// ErrNoTarget is returned for a link job without a target path.
	ErrNoTarget = errors.New("link target is empty")
	// ErrAmbiguousCommand is returned for a link job with both a template and an argument list.
	ErrAmbiguousCommand = errors.New("link job has both a template and an argument list")
)

type (
	// Job describes one link action.
	Job struct {
		// Target is the final path of the linked artifact.
		Target string
		// Inputs are the object and library paths in link order.
		Inputs []string
		// Template is the shell command with $FL_TARGET and $FL_SOURCE placeholders.
		Template string
		// Argv runs a program directly instead of Template; see ExpandArgs.
		Argv []string
		// Dir is the working directory of the command.
		Dir string
		// Env holds extra KEY=VALUE entries for the command.
		Env []string
		// Timeout bounds the command; zero means no limit.
		Timeout time.Duration
	}

	// Linker runs link jobs through a staging Publisher.
	Linker struct {
		publisher *staging.Publisher
		shell     runtime.Shell
		exec      runtime.Executor
		logger    *log.Logger
	}
)

// Substitute expands the target and source placeholders of template. Both the
// $NAME and ${NAME} forms are recognized. Substitution is literal: paths are
// not quoted, so they must already be safe for the shell.
func Substitute(template, target string, inputs []string) string {
	source := strings.Join(inputs, " ")
	return strings.NewReplacer(
		"${"+TargetVar+"}", target,
		"${"+SourceVar+"}", source,
		"$"+TargetVar, target,
		"$"+SourceVar, source,
	).Replace(template)
}

// ExpandArgs expands the placeholders of an argument list. An argument that is
// exactly $FL_SOURCE (or ${FL_SOURCE}) becomes one argument per input; any
// other argument is substituted literally like a template.
func ExpandArgs(argv []string, target string, inputs []string) []string {
	out := make([]string, 0, len(argv)+len(inputs))
	for _, arg := range argv {
		if arg == "$"+SourceVar || arg == "${"+SourceVar+"}" {
			out = append(out, inputs...)
			continue
		}
		out = append(out, Substitute(arg, target, inputs))
	}
	return out
}

// ValidateTemplate checks that template is non-empty and parses as POSIX shell.
func ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return ErrEmptyTemplate
	}
	if _, err := runtime.ParseScript(runtime.Script{Source: template, Name: "link template"}); err != nil {
		return err
	}
	return nil
}

// NewLinker creates a Linker that stages into dir; an empty dir stages each
// artifact next to its target.
func NewLinker(dir string, shell runtime.Shell, logger *log.Logger) *Linker {
	if logger == nil {
		logger = log.Default()
	}
	if shell == nil {
		shell = runtime.NewVirtualShell()
	}
	return &Linker{
		publisher: staging.NewPublisher(dir, logger),
		shell:     shell,
		exec:      runtime.NewNativeShell(),
		logger:    logger,
	}
}

// Staged reports whether l builds in a dedicated staging area.
func (l *Linker) Staged() bool {
	return l.publisher.Dir() != ""
}

// Link runs job. The returned Result holds the command's captured output and
// is non-nil whenever the command was started, even when Link fails. On
// failure job.Target keeps its previous content, or stays absent.
func (l *Linker) Link(ctx context.Context, job Job) (*runtime.Result, error) {
	if job.Target == "" {
		return nil, ErrNoTarget
	}
	run, err := l.command(job)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", job.Target, err)
	}

	var result *runtime.Result
	err = l.publisher.Publish(ctx, job.Target, func(ctx context.Context, tmpPath string) error {
		l.logger.Debug("linking", "target", job.Target, "inputs", len(job.Inputs), "staged", l.Staged())
		result = run(ctx, tmpPath)
		return result.Err("link")
	})
	if err != nil {
		return result, fmt.Errorf("link %s: %w", job.Target, err)
	}
	return result, nil
}

// Install evaluates the staging area described by opts and returns the Linker
// to use for the rest of the process. With opts.DecisionFile set, the decision
// recorded by an earlier link of the same build is reused. A staging area that
// fails the check is reported as a warning and the default linker is returned
// instead; this never fails the build.
func Install(opts staging.Options, shell runtime.Shell, logger *log.Logger) (*Linker, staging.Decision) {
	if logger == nil {
		logger = log.Default()
	}
	decision, err := staging.EvaluateRecorded(opts)
	if err != nil {
		logger.Warn("fast link not installed, linking in place", "decision_file", opts.DecisionFile, "error", err)
		return NewLinker("", shell, logger), staging.Decision{Reason: err.Error()}
	}
	switch {
	case decision.Installed:
		logger.Info("fast link installed", "dir", decision.Dir, "detail", decision.Reason)
		return NewLinker(decision.Dir, shell, logger), decision
	case opts.Enabled:
		logger.Warn("fast link not installed, linking in place", "reason", decision.Reason)
	default:
		logger.Debug("fast link disabled")
	}
	return NewLinker("", shell, logger), decision
}

// command returns the runner of job's link command for a given output path.
func (l *Linker) command(job Job) (func(ctx context.Context, tmpPath string) *runtime.Result, error) {
	if len(job.Argv) > 0 {
		if job.Template != "" {
			return nil, ErrAmbiguousCommand
		}
		return func(ctx context.Context, tmpPath string) *runtime.Result {
			argv := ExpandArgs(job.Argv, tmpPath, job.Inputs)
			return l.exec.Run(ctx, runtime.Command{
				Program: argv[0],
				Args:    argv[1:],
				Dir:     job.Dir,
				Env:     job.Env,
				Timeout: job.Timeout,
			})
		}, nil
	}

	if err := ValidateTemplate(job.Template); err != nil {
		return nil, err
	}
	return func(ctx context.Context, tmpPath string) *runtime.Result {
		return l.shell.RunScript(ctx, runtime.Script{
			Source:  Substitute(job.Template, tmpPath, job.Inputs),
			Name:    "link " + job.Target,
			Dir:     job.Dir,
			Env:     job.Env,
			Timeout: job.Timeout,
		})
	}, nil
}
