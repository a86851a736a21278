// SPDX-License-Identifier: MPL-2.0

// Package issue turns build failures into user-facing messages.
//
// ActionableError names the failed operation, the file involved and what to
// try next. The Markdown issue catalog holds longer guidance per failure class
// and is rendered with glamour when verbose output is requested.
package issue
