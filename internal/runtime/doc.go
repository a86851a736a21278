// SPDX-License-Identifier: MPL-2.0

// Package runtime runs the external tools that build actions depend on.
//
// Two shapes of invocation are supported:
//   - Command: a program and an ordered argument list, executed directly
//     without a shell. This is the preferred form.
//   - Script: shell source text, for tools whose invocation relies on shell
//     semantics (globs, pipes, redirections). Scripts run either through the
//     host shell (NativeShell) or through an embedded POSIX interpreter
//     (VirtualShell, backed by mvdan/sh) that behaves the same on every host.
//
// Every run is synchronous, captures stdout and stderr, honors an optional
// timeout and reports a Result. A run aborted by an interrupt (canceled
// context, SIGINT, exit status 130) is flagged as Interrupted so that callers
// can treat it as a clean abort rather than a tool failure.
package runtime
