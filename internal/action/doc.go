// SPDX-License-Identifier: MPL-2.0

// Package action runs build actions on behalf of the build orchestrator.
//
// An action receives ordered inputs and outputs, runs one step that may start
// external tools, and reports success or failure. The Runner echoes the tools'
// captured output with severity colors, prints a one-line summary naming the
// failed target, and invalidates the target's incremental-build signature so a
// later build does not mistake it for up to date. An interrupted action is a
// clean abort: nothing is echoed and no summary is printed.
package action
