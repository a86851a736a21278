// SPDX-License-Identifier: MPL-2.0

// Package config loads the process-wide build configuration.
//
// Defaults are held by Viper. The user file (config.cue in the platform
// configuration directory) and then the project file (blade.cue in the
// working directory) are merged on top, each validated against the embedded
// CUE schema (config_schema.cue). Command-line overrides are applied last.
//
// The resulting Config is built once at process start and passed to every
// component; it is never modified afterwards.
package config
