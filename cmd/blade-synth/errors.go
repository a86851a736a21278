// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/bladebuild/synth/internal/action"
	"github.com/bladebuild/synth/internal/config"
	"github.com/bladebuild/synth/internal/issue"
	"github.com/bladebuild/synth/internal/runtime"
	"github.com/bladebuild/synth/internal/staging"
	"github.com/bladebuild/synth/pkg/pybin"
	"github.com/bladebuild/synth/pkg/pylib"
	"github.com/bladebuild/synth/pkg/resource"
	"github.com/bladebuild/synth/pkg/symbol"

	"github.com/spf13/cobra"
)

// classifyError maps a failure to its issue catalog ID, or 0 when the
// catalog has nothing for it.
func classifyError(err error) issue.Id {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.Issue != 0 {
		return ae.Issue
	}

	var toolErr *runtime.ToolError
	switch {
	case errors.Is(err, symbol.ErrSymbolCollision):
		return issue.SymbolCollisionId
	case errors.Is(err, resource.ErrSizeMismatch):
		return issue.ResourceSizeMismatchId
	case errors.Is(err, pylib.ErrInvalidManifest):
		return issue.InvalidManifestId
	case errors.Is(err, pybin.ErrBaseDirMissing):
		return issue.BaseDirMissingId
	case errors.Is(err, pybin.ErrDuplicateArcname):
		return issue.DuplicateArcnameId
	case errors.Is(err, staging.ErrStagingUnavailable):
		return issue.StagingUnavailableId
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.ConfigLoadFailedId
	case errors.As(err, &toolErr):
		return issue.LinkFailedId
	case errors.Is(err, fs.ErrNotExist):
		return issue.InputNotFoundId
	default:
		return 0
	}
}

// formatErrorForDisplay uses the ActionableError in err's chain, if any.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// describe renders err for stderr, followed in verbose mode by its catalog
// guidance.
func (a *App) describe(err error) string {
	var sb strings.Builder
	sb.WriteString(ErrorStyle.Render("Error:"))
	sb.WriteString(" ")
	sb.WriteString(formatErrorForDisplay(err, a.verbose))
	if guidance := a.guidance(err); guidance != "" {
		sb.WriteString("\n")
		sb.WriteString(guidance)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// guidance returns the rendered catalog entry for err in verbose mode.
func (a *App) guidance(err error) string {
	id := classifyError(err)
	if !a.verbose || id == 0 {
		return ""
	}
	rendered, renderErr := issue.Get(id).Render("dark")
	if renderErr != nil {
		if a.logger != nil {
			a.logger.Warn("failed to render issue catalog entry", "issue", id, "error", renderErr)
		}
		return ""
	}
	return rendered
}

// fail reports err on stderr and returns the error RunE should return.
//
// A failed action has already been reported by the action runner, cause
// first and summary last; a failed external tool only gets its catalog
// guidance added. An interrupt prints nothing.
func (a *App) fail(cmd *cobra.Command, err error) error {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	if errors.Is(err, runtime.ErrInterrupted) {
		return &ExitError{Code: runtime.ExitInterrupted, Err: err}
	}

	var failed *action.FailedError
	var toolErr *runtime.ToolError
	switch {
	case errors.As(err, &failed) && errors.As(err, &toolErr):
		if guidance := a.guidance(err); guidance != "" {
			fmt.Fprint(a.stderr, guidance)
		}
	case errors.As(err, &failed):
		// Reported by the action runner.
	default:
		fmt.Fprintln(a.stderr, a.describe(err))
	}

	return &ExitError{Code: 1, Err: err}
}
