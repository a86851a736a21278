// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates CUE documents against an embedded schema.
//
// A document is compiled, unified with a definition from the schema,
// validated, and decoded into a Go value. Errors name the offending field
// in JSON-path notation:
//
//	blade.cue: fast_link.high_water_percent: invalid value 120 (out of bound <=100)
package cueutil
