// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"strings"

	"github.com/bladebuild/synth/internal/action"
	"github.com/bladebuild/synth/internal/issue"
	"github.com/bladebuild/synth/internal/runtime"
	"github.com/bladebuild/synth/pkg/pybin"
	"github.com/bladebuild/synth/pkg/pylib"

	"github.com/spf13/cobra"
)

func newPyLibraryCommand(app *App) *cobra.Command {
	var (
		output  string
		baseDir string
	)

	cmd := &cobra.Command{
		Use:   "py-library [SRC...]",
		Short: "Write a python library bundle",
		Long: `Write a library bundle recording the sources of a python library and the
base directory they are placed relative to inside an archive.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := action.NewInvocation("generating python library", args, []string{output})
			return app.runAction(cmd, inv, func(ctx context.Context, inv *action.Invocation) (*runtime.Result, error) {
				if _, err := pylib.WriteBundle(ctx, app.publisher(), inv.Outputs[0], baseDir, inv.Inputs); err != nil {
					return nil, issue.WrapWithContext(err, "write library bundle", inv.Outputs[0])
				}
				app.logger.Debug("library bundle written", "bundle", inv.Outputs[0], "srcs", len(inv.Inputs))
				return nil, nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "path of the library bundle")
	cmd.Flags().StringVar(&baseDir, "base-dir", "", "directory sources are placed relative to")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func newPyBinaryCommand(app *App) *cobra.Command {
	var (
		output      string
		entry       string
		interpreter string
	)

	cmd := &cobra.Command{
		Use:   "py-binary INPUT...",
		Short: "Package a self-executing python archive",
		Long: `Package library bundles (*.pylib) and compiled units into one archive that
runs --entry when executed. Package markers are added for every directory
that lacks one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := action.NewInvocation("generating python binary", args, []string{output})
			return app.runAction(cmd, inv, func(ctx context.Context, inv *action.Invocation) (*runtime.Result, error) {
				inputs, err := pybin.ClassifyInputs(inv.Inputs)
				if err != nil {
					return nil, issue.NewErrorContext().
						WithOperation("read archive inputs").
						WithResource(strings.Join(inv.Inputs, " ")).
						Wrap(err).
						BuildError()
				}

				opts := pybin.Options{
					Entry:       entry,
					Interpreter: app.cfg.Python.Interpreter,
					MarkerFile:  app.cfg.Python.MarkerFile,
					Duplicates:  pybin.DuplicatePolicy(app.cfg.Python.DuplicatePolicy),
					Logger:      app.logger,
				}
				if interpreter != "" {
					opts.Interpreter = interpreter
				}

				layout, err := pybin.Build(ctx, app.publisher(), inv.Outputs[0], inputs, opts)
				if err != nil {
					return nil, issue.NewErrorContext().
						WithOperation("build python archive").
						WithResource(inv.Outputs[0]).
						Wrap(err).
						BuildError()
				}
				app.logger.Debug("python archive built",
					"archive", inv.Outputs[0],
					"entries", len(layout.Entries),
					"markers", len(layout.Injected))
				return nil, nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "path of the archive")
	f.StringVar(&entry, "entry", "", "module run when the archive is executed")
	f.StringVar(&interpreter, "interpreter", "", "interpreter named by the bootstrap stanza (default: python.interpreter)")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("entry")

	return cmd
}
