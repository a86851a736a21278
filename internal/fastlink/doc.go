// SPDX-License-Identifier: MPL-2.0

// Package fastlink runs link command templates so that the linked binary is
// built in a staging area and only appears at its final path when the link
// succeeds.
//
// The staged path is installed once per process by Install, which evaluates
// the staging area with the staging package, or reuses the decision an earlier
// link of the same build recorded in the decision file. When the area is unusable the
// linker falls back to staging next to each target, which keeps the same
// all-or-nothing publication without the speed benefit.
package fastlink
