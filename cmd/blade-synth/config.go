// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/bladebuild/synth/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the blade-synth configuration",
	}
	cmd.AddCommand(newConfigShowCommand(app))
	return cmd
}

func newConfigShowCommand(app *App) *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showSources {
				sources, err := config.Sources(config.LoadOptions{ConfigFilePath: app.flags.configPath})
				if err != nil {
					return app.fail(cmd, err)
				}
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("// Sources:"))
				if len(sources) == 0 {
					fmt.Fprintln(app.stdout, "//   (defaults only)")
				}
				for _, src := range sources {
					fmt.Fprintf(app.stdout, "//   %s\n", src)
				}
				fmt.Fprintln(app.stdout)
			}

			fmt.Fprint(app.stdout, config.GenerateCUE(app.cfg))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSources, "sources", false, "list the files the configuration was merged from")

	return cmd
}
