// SPDX-License-Identifier: MPL-2.0

// Package diag colorizes captured compiler and linker output by severity.
//
// Classification is a heuristic on well-known marker substrings. It only
// affects how output is rendered and is never used to decide whether an
// action failed.
package diag
