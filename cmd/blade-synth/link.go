// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"time"

	"github.com/bladebuild/synth/internal/action"
	"github.com/bladebuild/synth/internal/fastlink"
	"github.com/bladebuild/synth/internal/issue"
	"github.com/bladebuild/synth/internal/runtime"

	"github.com/spf13/cobra"
)

func newLinkCommand(app *App) *cobra.Command {
	var (
		output   string
		template string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "link (--template CMD | -- PROGRAM ARG...) -o TARGET INPUT...",
		Short: "Link a target, staging the output in memory when possible",
		Long: `Run the link command template with $FL_TARGET set to the output path and
$FL_SOURCE set to the inputs. When fast link is enabled and the staging area
passes its check, the linker writes into the staging area and the result is
moved into place once the command succeeds.

Instead of a template, the link command may follow "--" and is then run
directly without a shell. An argument that is exactly $FL_SOURCE expands to
one argument per input.`,
		Example: `  blade-synth link --template 'g++ -o $FL_TARGET $FL_SOURCE' -o out/app a.o b.o
  blade-synth link -o out/app a.o b.o -- g++ -o '$FL_TARGET' '$FL_SOURCE'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, argv := args, []string(nil)
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				inputs, argv = args[:dash], args[dash:]
			}
			if (template == "") == (len(argv) == 0) {
				cause := fastlink.ErrAmbiguousCommand
				if template == "" {
					cause = fastlink.ErrEmptyTemplate
				}
				return app.fail(cmd, issue.NewErrorContext().
					WithOperation("prepare link command").
					WithResource(output).
					WithSuggestion("Pass the command with --template, or after --, but not both").
					Wrap(cause).
					BuildError())
			}

			linker, err := app.fastLinker()
			if err != nil {
				return app.fail(cmd, issue.WrapWithOperation(err, "select link shell"))
			}

			name := "linking"
			if linker.Staged() {
				name = "fast linking"
			}
			inv := action.NewInvocation(name, inputs, []string{output})

			return app.runAction(cmd, inv, func(ctx context.Context, inv *action.Invocation) (*runtime.Result, error) {
				return linker.Link(ctx, fastlink.Job{
					Target:   inv.Outputs[0],
					Inputs:   inv.Inputs,
					Template: template,
					Argv:     argv,
					Timeout:  timeout,
				})
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "path of the linked target")
	f.StringVar(&template, "template", "", "link command with $FL_TARGET and $FL_SOURCE placeholders")
	f.DurationVar(&timeout, "timeout", 0, "abort the link command after this long (0 means no limit)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
