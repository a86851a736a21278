// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ShellNative runs link templates with the host shell.
	ShellNative ShellMode = "native"
	// ShellVirtual runs link templates with the embedded mvdan/sh interpreter.
	ShellVirtual ShellMode = "virtual"

	// DuplicateReject fails an archive build that maps two inputs to one name.
	DuplicateReject DuplicatePolicy = "reject"
	// DuplicateOverride lets the later input replace the earlier one.
	DuplicateOverride DuplicatePolicy = "override"

	// DefaultInterpreter is the runtime named in archive bootstrap stanzas.
	DefaultInterpreter = "python"
	// DefaultMarkerFile is the package marker injected into archives.
	DefaultMarkerFile = "__init__.py"
	// DefaultHighWaterPercent is the fullest a staging area may be.
	DefaultHighWaterPercent = 90
)

var (
	// ErrInvalidShellMode is returned when a ShellMode value is not recognized.
	ErrInvalidShellMode = errors.New("invalid shell mode")
	// ErrInvalidDuplicatePolicy is returned when a DuplicatePolicy value is not recognized.
	ErrInvalidDuplicatePolicy = errors.New("invalid duplicate policy")
	// ErrInvalidHighWater is returned for a high water mark outside 1..100.
	ErrInvalidHighWater = errors.New("invalid high water percent")
	// ErrInvalidMarkerFile is returned for a marker file name that is empty or has directories.
	ErrInvalidMarkerFile = errors.New("invalid marker file")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ShellMode selects the shell that runs link templates.
	ShellMode string

	// DuplicatePolicy decides what happens when two archive inputs share a name.
	DuplicatePolicy string

	// Config is the complete build configuration.
	Config struct {
		// Verbose enables debug logging.
		Verbose bool `json:"verbose" mapstructure:"verbose"`
		// Color enables severity colors on echoed tool output.
		Color bool `json:"color" mapstructure:"color"`
		// Shell runs link templates.
		Shell ShellMode `json:"shell" mapstructure:"shell"`
		// FastLink configures staged linking.
		FastLink FastLinkConfig `json:"fast_link" mapstructure:"fast_link"`
		// Python configures library bundles and module archives.
		Python PythonConfig `json:"python" mapstructure:"python"`
		// VirtualShell configures the embedded shell interpreter.
		VirtualShell VirtualShellConfig `json:"virtual_shell" mapstructure:"virtual_shell"`
		// SignatureDir holds per-target signatures; empty disables invalidation.
		SignatureDir string `json:"signature_dir" mapstructure:"signature_dir"`
	}

	// FastLinkConfig configures staged linking. DecisionFile, when set, records
	// the staging decision of a build so every link process of it follows the
	// same decision.
	FastLinkConfig struct {
		Enabled          bool   `json:"enabled" mapstructure:"enabled"`
		StagingDir       string `json:"staging_dir" mapstructure:"staging_dir"`
		HighWaterPercent int    `json:"high_water_percent" mapstructure:"high_water_percent"`
		DecisionFile     string `json:"decision_file" mapstructure:"decision_file"`
	}

	// PythonConfig configures library bundles and module archives.
	PythonConfig struct {
		Interpreter     string          `json:"interpreter" mapstructure:"interpreter"`
		MarkerFile      string          `json:"marker_file" mapstructure:"marker_file"`
		DuplicatePolicy DuplicatePolicy `json:"duplicate_policy" mapstructure:"duplicate_policy"`
	}

	// VirtualShellConfig configures the embedded shell interpreter.
	VirtualShellConfig struct {
		// Builtins serves core utilities without host programs.
		Builtins bool `json:"builtins" mapstructure:"builtins"`
	}

	// InvalidShellModeError is returned when a ShellMode value is not recognized.
	// It wraps ErrInvalidShellMode for errors.Is() compatibility.
	InvalidShellModeError struct {
		Value ShellMode
	}

	// InvalidDuplicatePolicyError is returned when a DuplicatePolicy value is not recognized.
	InvalidDuplicatePolicyError struct {
		Value DuplicatePolicy
	}

	// InvalidConfigError collects the field errors of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the configuration used when no file sets a value.
func DefaultConfig() *Config {
	return &Config{
		Verbose: false,
		Color:   true,
		Shell:   ShellVirtual,
		FastLink: FastLinkConfig{
			Enabled:          false,
			StagingDir:       "", // first tmpfs mount
			HighWaterPercent: DefaultHighWaterPercent,
		},
		Python: PythonConfig{
			Interpreter:     DefaultInterpreter,
			MarkerFile:      DefaultMarkerFile,
			DuplicatePolicy: DuplicateReject,
		},
		VirtualShell: VirtualShellConfig{
			Builtins: true,
		},
	}
}

// IsValid returns whether c is valid, with every field error found.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Shell.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.FastLink.HighWaterPercent < 1 || c.FastLink.HighWaterPercent > 100 {
		errs = append(errs, fmt.Errorf("%w: %d (expected 1..100)", ErrInvalidHighWater, c.FastLink.HighWaterPercent))
	}
	if valid, fieldErrs := c.Python.DuplicatePolicy.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if m := c.Python.MarkerFile; strings.TrimSpace(m) == "" || strings.ContainsAny(m, `/\`) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidMarkerFile, m))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// String returns the string representation of the ShellMode.
func (m ShellMode) String() string { return string(m) }

// IsValid returns whether m is a known shell mode.
func (m ShellMode) IsValid() (bool, []error) {
	switch m {
	case ShellNative, ShellVirtual:
		return true, nil
	default:
		return false, []error{&InvalidShellModeError{Value: m}}
	}
}

// Error implements the error interface.
func (e *InvalidShellModeError) Error() string {
	return fmt.Sprintf("invalid shell mode %q (valid: native, virtual)", e.Value)
}

// Unwrap returns ErrInvalidShellMode.
func (e *InvalidShellModeError) Unwrap() error { return ErrInvalidShellMode }

// String returns the string representation of the DuplicatePolicy.
func (p DuplicatePolicy) String() string { return string(p) }

// IsValid returns whether p is a known duplicate policy.
func (p DuplicatePolicy) IsValid() (bool, []error) {
	switch p {
	case DuplicateReject, DuplicateOverride:
		return true, nil
	default:
		return false, []error{&InvalidDuplicatePolicyError{Value: p}}
	}
}

// Error implements the error interface.
func (e *InvalidDuplicatePolicyError) Error() string {
	return fmt.Sprintf("invalid duplicate policy %q (valid: reject, override)", e.Value)
}

// Unwrap returns ErrInvalidDuplicatePolicy.
func (e *InvalidDuplicatePolicyError) Unwrap() error { return ErrInvalidDuplicatePolicy }
