// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/u-root/u-root/pkg/core"
	"github.com/u-root/u-root/pkg/core/cat"
	"github.com/u-root/u-root/pkg/core/chmod"
	"github.com/u-root/u-root/pkg/core/cp"
	"github.com/u-root/u-root/pkg/core/ls"
	"github.com/u-root/u-root/pkg/core/mkdir"
	"github.com/u-root/u-root/pkg/core/mv"
	"github.com/u-root/u-root/pkg/core/rm"
	"github.com/u-root/u-root/pkg/core/touch"
	"mvdan.cc/sh/v3/interp"
)

type (
	// Factory creates a fresh instance of a utility for one invocation.
	Factory func() core.Command

	// Registry maps utility names to their implementations. A Registry is
	// read-only once built and safe for concurrent use.
	Registry struct {
		utils map[string]Factory
	}

	// IO is the environment one utility runs in.
	IO struct {
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
		// Dir resolves relative paths.
		Dir string
		// LookupEnv reads the script's environment.
		LookupEnv func(string) (string, bool)
	}
)

// NewRegistry creates a Registry serving utils.
func NewRegistry(utils map[string]Factory) *Registry {
	r := &Registry{utils: make(map[string]Factory, len(utils))}
	for name, f := range utils {
		r.utils[name] = f
	}
	return r
}

// Default returns a Registry with the file utilities link templates use.
func Default() *Registry {
	return NewRegistry(map[string]Factory{
		"cat":   func() core.Command { return cat.New() },
		"chmod": func() core.Command { return chmod.New() },
		"cp":    func() core.Command { return cp.New() },
		"ls":    func() core.Command { return ls.New() },
		"mkdir": func() core.Command { return mkdir.New() },
		"mv":    func() core.Command { return mv.New() },
		"rm":    func() core.Command { return rm.New() },
		"touch": func() core.Command { return touch.New() },
	})
}

// Has reports whether name is served by r.
func (r *Registry) Has(name string) bool {
	_, ok := r.utils[name]
	return ok
}

// Names returns the registered utility names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.utils))
	for name := range r.utils {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run runs args[0] with the remaining arguments. The returned error carries
// the "[builtin] <name>:" prefix.
func (r *Registry) Run(ctx context.Context, env IO, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("[builtin] no utility named")
	}
	newCmd, ok := r.utils[args[0]]
	if !ok {
		return fmt.Errorf("[builtin] %s: not a builtin utility", args[0])
	}

	cmd := newCmd()
	cmd.SetIO(env.Stdin, env.Stdout, env.Stderr)
	cmd.SetWorkingDir(env.Dir)
	if env.LookupEnv != nil {
		cmd.SetLookupEnv(env.LookupEnv)
	}
	if err := cmd.RunContext(ctx, args[1:]...); err != nil {
		return fmt.Errorf("[builtin] %s: %w", args[0], err)
	}
	return nil
}

// ExecHandler returns interpreter middleware that runs registered utilities
// in process and passes every other program to next.
func (r *Registry) ExecHandler(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		if len(args) == 0 || !r.Has(args[0]) {
			return next(ctx, args)
		}

		hc := interp.HandlerCtx(ctx)
		env := IO{
			Stdin:  hc.Stdin,
			Stdout: hc.Stdout,
			Stderr: hc.Stderr,
			Dir:    hc.Dir,
			LookupEnv: func(name string) (string, bool) {
				v := hc.Env.Get(name)
				return v.Str, v.Set
			},
		}
		if err := r.Run(ctx, env, args); err != nil {
			fmt.Fprintln(hc.Stderr, err)
			return interp.ExitStatus(1)
		}
		return nil
	}
}
