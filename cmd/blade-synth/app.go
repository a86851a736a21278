// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/bladebuild/synth/internal/action"
	"github.com/bladebuild/synth/internal/config"
	"github.com/bladebuild/synth/internal/coreutils"
	"github.com/bladebuild/synth/internal/diag"
	"github.com/bladebuild/synth/internal/fastlink"
	"github.com/bladebuild/synth/internal/runtime"
	"github.com/bladebuild/synth/internal/staging"

	"github.com/charmbracelet/log"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// App is the composition root of the CLI. The configuration and logger are
	// set once by configure before any action runs and are read-only afterwards.
	App struct {
		Config ConfigProvider
		stdout io.Writer
		stderr io.Writer
		prober staging.Prober
		detect func() (string, error)

		flags   globalFlags
		verbose bool
		cfg     *config.Config
		logger  *log.Logger

		linkOnce sync.Once
		linker   *fastlink.Linker
		decision staging.Decision
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigProvider
		Stdout io.Writer
		Stderr io.Writer
		// Prober inspects staging areas; nil uses the host filesystem.
		Prober staging.Prober
		// DetectStaging finds a staging directory when none is configured.
		DetectStaging func() (string, error)
	}

	// globalFlags holds the persistent flags of the root command.
	globalFlags struct {
		verbose    bool
		configPath string
		noColor    bool
	}
)

// NewApp builds an App from deps.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config: deps.Config,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
		prober: deps.Prober,
		detect: deps.DetectStaging,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// configure loads the configuration, applying flag overrides, and builds the
// logger. It must run before any action.
func (a *App) configure(ctx context.Context, flags globalFlags) error {
	a.flags = flags
	a.verbose = flags.verbose

	overrides := map[string]any{}
	if flags.verbose {
		overrides[config.KeyVerbose] = true
	}
	if flags.noColor {
		overrides[config.KeyColor] = false
	}

	cfg, err := a.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: flags.configPath,
		Overrides:      overrides,
	})
	if err != nil {
		return err
	}

	level := log.InfoLevel
	if cfg.Verbose {
		level = log.DebugLevel
	}
	a.cfg = cfg
	a.verbose = cfg.Verbose
	a.logger = log.NewWithOptions(a.stderr, log.Options{Prefix: "blade", Level: level})
	return nil
}

// publisher returns a Publisher that stages next to each target.
func (a *App) publisher() *staging.Publisher {
	return staging.NewPublisher("", a.logger)
}

// runner returns the action runner for this process.
func (a *App) runner() *action.Runner {
	var sigs action.SignatureCache = action.NopSignatures{}
	if a.cfg.SignatureDir != "" {
		sigs = action.FileSignatures{Dir: a.cfg.SignatureDir}
	}
	r := action.NewRunner(a.logger)
	r.Stdout = a.stdout
	r.Stderr = a.stderr
	r.Colorizer = diag.NewColorizer(a.cfg.Color)
	r.Signatures = sigs
	r.Describe = a.describe
	return r
}

// stagingOptions returns the fast link staging check described by the config.
func (a *App) stagingOptions() staging.Options {
	return staging.Options{
		Enabled:          a.cfg.FastLink.Enabled,
		Dir:              a.cfg.FastLink.StagingDir,
		HighWaterPercent: a.cfg.FastLink.HighWaterPercent,
		Prober:           a.prober,
		Detect:           a.detect,
		DecisionFile:     a.cfg.FastLink.DecisionFile,
	}
}

// shell returns the configured shell for link templates.
func (a *App) shell() (runtime.Shell, error) {
	sh, err := runtime.NewShell(runtime.ShellType(a.cfg.Shell))
	if err != nil {
		return nil, err
	}
	if v, ok := sh.(*runtime.VirtualShell); ok {
		v.Logger = a.logger
		if a.cfg.VirtualShell.Builtins {
			v.Builtins = coreutils.Default()
		}
	}
	return sh, nil
}

// fastLinker installs the linker on first use. The staging check runs once
// per process, or once per build when fast_link.decision_file is set.
func (a *App) fastLinker() (*fastlink.Linker, error) {
	sh, err := a.shell()
	if err != nil {
		return nil, err
	}
	a.linkOnce.Do(func() {
		a.linker, a.decision = fastlink.Install(a.stagingOptions(), sh, a.logger)
	})
	return a.linker, nil
}
