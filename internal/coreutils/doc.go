// SPDX-License-Identifier: MPL-2.0

// Package coreutils serves core file utilities (cat, cp, mv, rm, and a few
// more) to the virtual shell from the u-root implementations, so link
// templates that shuffle files do not depend on host programs.
//
// Only registered names are intercepted; every other program falls through
// to the host. A registered utility that fails reports on the script's
// stderr with a "[builtin]" prefix and exits with status 1; it is never
// retried with a host binary.
package coreutils
