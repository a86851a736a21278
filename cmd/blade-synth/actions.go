// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/bladebuild/synth/internal/action"

	"github.com/spf13/cobra"
)

// runAction runs step as inv through the action runner and converts a
// failure into the command's exit error.
func (a *App) runAction(cmd *cobra.Command, inv *action.Invocation, step action.Step) error {
	if err := a.runner().Run(cmd.Context(), inv, step); err != nil {
		return a.fail(cmd, err)
	}
	return nil
}
