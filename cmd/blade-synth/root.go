// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the blade-synth command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand creates the blade-synth command tree bound to app.
func NewRootCommand(app *App) *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "blade-synth",
		Short: "Build artifact synthesis for blade build actions",
		Long: TitleStyle.Render("blade-synth") + SubtitleStyle.Render(" - build artifact synthesis") + `

blade-synth implements the artifact-producing steps of blade build actions:
embedding resource files into C++ objects, bundling python libraries,
packaging self-executing python binaries, and linking through a fast
in-memory staging area. Every artifact appears at its final path only
once it is complete.

` + SubtitleStyle.Render("Examples:") + `
  blade-synth resource-file res/logo.png -o logo.c
  blade-synth py-binary --entry app.main -o app lib.pylib main.py
  blade-synth link --template 'g++ -o $FL_TARGET $FL_SOURCE' -o app a.o b.o
  blade-synth staging check`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.configure(cmd.Context(), flags); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	pf.StringVar(&flags.configPath, "config", "", "config file (default: user config.cue, then ./blade.cue)")
	pf.BoolVar(&flags.noColor, "no-color", false, "do not colorize tool output")

	rootCmd.AddCommand(
		newResourceFileCommand(app),
		newResourceIndexCommand(app),
		newPyLibraryCommand(app),
		newPyBinaryCommand(app),
		newLinkCommand(app),
		newStagingCommand(app),
		newConfigCommand(app),
	)

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the command tree. This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}
