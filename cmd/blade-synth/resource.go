// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"

	"github.com/bladebuild/synth/internal/action"
	"github.com/bladebuild/synth/internal/issue"
	"github.com/bladebuild/synth/internal/runtime"
	"github.com/bladebuild/synth/pkg/resource"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newResourceFileCommand(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "resource-file INPUT",
		Short: "Encode a file as a C byte table",
		Long: `Encode INPUT as a generated C source file defining a byte table and a
length variable, both named after the input path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := action.NewInvocation("generating resource file", args, []string{output})
			return app.runAction(cmd, inv, func(ctx context.Context, inv *action.Invocation) (*runtime.Result, error) {
				res, err := resource.EncodeFile(ctx, app.publisher(), inv.Inputs[0], inv.Outputs[0])
				if err != nil {
					return nil, issue.NewErrorContext().
						WithOperation("encode resource").
						WithResource(inv.Inputs[0]).
						WithSuggestion("Check that the resource file exists and is not modified during the build").
						Wrap(err).
						BuildError()
				}
				app.logger.Debug("resource encoded",
					"symbol", res.TableSymbol(),
					"size", humanize.IBytes(uint64(res.Size())))
				return nil, nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "path of the generated C source file")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func newResourceIndexCommand(app *App) *cobra.Command {
	var opts resource.IndexOptions

	cmd := &cobra.Command{
		Use:   "resource-index FILE...",
		Short: "Generate the lookup table for a set of resources",
		Long: `Generate a header declaring every resource of a target and a source file
defining the lookup table that maps resource names to their data.

Resource names are the input paths relative to --source-path.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := action.NewInvocation("generating resource index", args, []string{opts.HeaderPath, opts.SourceFile})
			return app.runAction(cmd, inv, func(ctx context.Context, inv *action.Invocation) (*runtime.Result, error) {
				idx, err := resource.WriteIndex(ctx, app.publisher(), inv.Inputs, opts)
				if err != nil {
					return nil, issue.WrapWithContext(err, "generate resource index", opts.TargetName)
				}
				app.logger.Debug("resource index written", "index", idx.TableName(), "entries", len(idx.Entries))
				return nil, nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.SourcePath, "source-path", "", "directory resource names are relative to")
	f.StringVar(&opts.TargetName, "target-name", "", "name of the build target owning the resources")
	f.StringVar(&opts.HeaderPath, "header", "", "path of the generated header")
	f.StringVar(&opts.SourceFile, "source", "", "path of the generated source file")
	f.StringVar(&opts.Include, "include", "", "include path written into the source file (default: --header)")
	for _, name := range []string{"source-path", "target-name", "header", "source"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}
