// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bladebuild/synth/internal/cueutil"
	"github.com/bladebuild/synth/internal/issue"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "blade-synth"
	// ConfigFileName is the name of the user config file (without extension).
	ConfigFileName = "config"
	// ProjectFileName is the name of the project config file (without extension).
	ProjectFileName = "blade"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
)

// Keys accepted in LoadOptions.Overrides.
const (
	KeyVerbose          = "verbose"
	KeyColor            = "color"
	KeyShell            = "shell"
	KeyFastLinkEnabled  = "fast_link.enabled"
	KeyStagingDir       = "fast_link.staging_dir"
	KeyHighWaterPercent = "fast_link.high_water_percent"
	KeyDecisionFile     = "fast_link.decision_file"
	KeyInterpreter      = "python.interpreter"
	KeyMarkerFile       = "python.marker_file"
	KeyDuplicatePolicy  = "python.duplicate_policy"
	KeySignatureDir     = "signature_dir"
	KeyVirtualBuiltins  = "virtual_shell.builtins"
)

//go:embed config_schema.cue
var configSchema []byte

// ConfigDir returns the user configuration directory: %APPDATA% on Windows,
// ~/Library/Application Support on macOS and $XDG_CONFIG_HOME (defaulting to
// ~/.config) elsewhere.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// Sources returns the config files opts would load, in merge order.
func Sources(opts LoadOptions) ([]string, error) {
	if opts.ConfigFilePath != "" {
		return []string{opts.ConfigFilePath}, nil
	}

	var files []string

	cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
	if err != nil {
		return nil, err
	}
	if userPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt); fileExists(userPath) {
		files = append(files, userPath)
	}

	projectPath := filepath.Join(opts.WorkDir, ProjectFileName+"."+ConfigFileExt)
	if fileExists(projectPath) {
		files = append(files, projectPath)
	}

	return files, nil
}

// loadWithOptions performs option-driven config loading and returns the
// files that contributed to the result.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, []string, error) {
	select {
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault(KeyVerbose, defaults.Verbose)
	v.SetDefault(KeyColor, defaults.Color)
	v.SetDefault(KeyShell, string(defaults.Shell))
	v.SetDefault(KeyFastLinkEnabled, defaults.FastLink.Enabled)
	v.SetDefault(KeyStagingDir, defaults.FastLink.StagingDir)
	v.SetDefault(KeyHighWaterPercent, defaults.FastLink.HighWaterPercent)
	v.SetDefault(KeyDecisionFile, defaults.FastLink.DecisionFile)
	v.SetDefault(KeyInterpreter, defaults.Python.Interpreter)
	v.SetDefault(KeyMarkerFile, defaults.Python.MarkerFile)
	v.SetDefault(KeyDuplicatePolicy, string(defaults.Python.DuplicatePolicy))
	v.SetDefault(KeySignatureDir, defaults.SignatureDir)
	v.SetDefault(KeyVirtualBuiltins, defaults.VirtualShell.Builtins)

	if opts.ConfigFilePath != "" && !fileExists(opts.ConfigFilePath) {
		return nil, nil, issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(opts.ConfigFilePath).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Use 'blade-synth config show' to see the default configuration").
			Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
			BuildError()
	}

	files, err := Sources(opts)
	if err != nil {
		return nil, nil, err
	}
	for _, path := range files {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("See 'blade-synth config show' for every key and its default").
				Wrap(err).
				BuildError()
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Check command-line overrides against 'blade-synth config show'").
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, files, nil
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper validates the CUE file at path against #Config and merges
// its values into v.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	result, err := cueutil.ParseAndDecode[map[string]any](configSchema, data, "#Config",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(*result.Value); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// blade-synth configuration\n\n")

	sb.WriteString(fmt.Sprintf("verbose: %v\n", cfg.Verbose))
	sb.WriteString(fmt.Sprintf("color:   %v\n", cfg.Color))
	sb.WriteString(fmt.Sprintf("shell:   %q\n", cfg.Shell))
	if cfg.SignatureDir != "" {
		sb.WriteString(fmt.Sprintf("signature_dir: %q\n", cfg.SignatureDir))
	}

	sb.WriteString("\nfast_link: {\n")
	sb.WriteString(fmt.Sprintf("\tenabled:            %v\n", cfg.FastLink.Enabled))
	if cfg.FastLink.StagingDir != "" {
		sb.WriteString(fmt.Sprintf("\tstaging_dir:        %q\n", cfg.FastLink.StagingDir))
	}
	sb.WriteString(fmt.Sprintf("\thigh_water_percent: %d\n", cfg.FastLink.HighWaterPercent))
	if cfg.FastLink.DecisionFile != "" {
		sb.WriteString(fmt.Sprintf("\tdecision_file:      %q\n", cfg.FastLink.DecisionFile))
	}
	sb.WriteString("}\n")

	sb.WriteString("\npython: {\n")
	sb.WriteString(fmt.Sprintf("\tinterpreter:      %q\n", cfg.Python.Interpreter))
	sb.WriteString(fmt.Sprintf("\tmarker_file:      %q\n", cfg.Python.MarkerFile))
	sb.WriteString(fmt.Sprintf("\tduplicate_policy: %q\n", cfg.Python.DuplicatePolicy))
	sb.WriteString("}\n")

	sb.WriteString("\nvirtual_shell: {\n")
	sb.WriteString(fmt.Sprintf("\tbuiltins: %v\n", cfg.VirtualShell.Builtins))
	sb.WriteString("}\n")

	return sb.String()
}
