// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/bladebuild/synth/internal/issue"
	"github.com/bladebuild/synth/internal/staging"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStagingCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect the fast link staging area",
	}
	cmd.AddCommand(newStagingCheckCommand(app))
	return cmd
}

func newStagingCheckCommand(app *App) *cobra.Command {
	var (
		require bool
		emit    string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether fast link would be installed",
		Long: `Run the staging area check used by fast link and report the decision,
without linking anything. With --require, exit non-zero when fast link
would not be installed.

With --emit, the decision is also written to FILE. Point
fast_link.decision_file at the same path and every later link of the
build follows this decision instead of checking again.`,
		Example: `  blade-synth staging check --emit build64_release/.fast_link`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			decision := staging.Evaluate(app.stagingOptions())
			renderDecision(app, decision)

			if emit != "" {
				if err := staging.SaveDecision(cmd.Context(), emit, decision); err != nil {
					return app.fail(cmd, issue.WrapWithContext(err, "record staging decision", emit))
				}
				app.logger.Debug("staging decision recorded", "file", emit, "installed", decision.Installed)
			}

			if require {
				if err := decision.Err(); err != nil {
					return app.fail(cmd, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&require, "require", false, "fail when fast link would not be installed")
	cmd.Flags().StringVar(&emit, "emit", "", "write the decision to `FILE` for later links of the build")

	return cmd
}

func renderDecision(app *App, d staging.Decision) {
	if d.Installed {
		fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("fast link: installed"), PathStyle.Render(d.Dir))
	} else {
		fmt.Fprintln(app.stdout, WarningStyle.Render("fast link: not installed"))
	}
	fmt.Fprintf(app.stdout, "  %s\n", d.Reason)

	if d.Usage.Total > 0 {
		fmt.Fprintf(app.stdout, "  used %s of %s (%d%%), %s available\n",
			humanize.IBytes(d.Usage.Used),
			humanize.IBytes(d.Usage.Total),
			d.Usage.Percent(),
			humanize.IBytes(d.Usage.Avail))
	}
}
