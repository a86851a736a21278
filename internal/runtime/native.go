// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// NativeShell runs commands and scripts as host processes.
type NativeShell struct {
	// Shell overrides the default shell
	Shell string
	// ShellArgs are arguments passed to the shell before the script
	ShellArgs []string
}

// NewNativeShell creates a new native shell
func NewNativeShell() *NativeShell {
	return &NativeShell{}
}

// Name returns the shell name
func (r *NativeShell) Name() string {
	return string(ShellNative)
}

// Available returns whether a host shell can be found
func (r *NativeShell) Available() bool {
	_, err := r.getShell()
	return err == nil
}

// Validate checks if a script can be executed
func (r *NativeShell) Validate(script Script) error {
	if strings.TrimSpace(script.Source) == "" {
		return fmt.Errorf("script has no content to execute")
	}
	return nil
}

// Run executes cmd directly and captures its output.
func (r *NativeShell) Run(ctx context.Context, cmd Command) *Result {
	if cmd.Program == "" {
		return NewErrorResult(1, fmt.Errorf("no program to execute"))
	}

	runCtx, cancel := withTimeout(ctx, cmd.Timeout)
	defer cancel()

	c := exec.CommandContext(runCtx, cmd.Program, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdin = cmd.Stdin
	interruptOnCancel(c)

	captured := &capturedOutput{}
	c.Stdout = &captured.stdout
	c.Stderr = &captured.stderr

	start := time.Now()
	err := c.Run()
	result := extractExitCode(err, captured)
	result.Duration = time.Since(start)
	classifyContext(result, ctx, runCtx, cmd.Timeout)
	return result
}

// RunScript runs script with the host shell and captures its output.
func (r *NativeShell) RunScript(ctx context.Context, script Script) *Result {
	if err := r.Validate(script); err != nil {
		return NewErrorResult(1, err)
	}
	shell, err := r.getShell()
	if err != nil {
		return NewErrorResult(1, err)
	}

	args := append(r.getShellArgs(shell), script.Source)
	return r.Run(ctx, Command{
		Program: shell,
		Args:    args,
		Dir:     script.Dir,
		Env:     script.Env,
		Timeout: script.Timeout,
	})
}

// getShell determines which shell to use
func (r *NativeShell) getShell() (string, error) {
	if r.Shell != "" {
		return r.Shell, nil
	}

	switch runtime.GOOS {
	case "windows":
		if pwsh, err := exec.LookPath("pwsh"); err == nil {
			return pwsh, nil
		}
		if ps, err := exec.LookPath("powershell"); err == nil {
			return ps, nil
		}
		return exec.LookPath("cmd")
	default:
		// Link templates are written for a POSIX shell, so prefer sh over $SHELL.
		if sh, err := exec.LookPath("sh"); err == nil {
			return sh, nil
		}
		if bash, err := exec.LookPath("bash"); err == nil {
			return bash, nil
		}
		return "", fmt.Errorf("no shell found")
	}
}

// getShellArgs returns the arguments to pass to the shell
func (r *NativeShell) getShellArgs(shell string) []string {
	if len(r.ShellArgs) > 0 {
		return append([]string(nil), r.ShellArgs...)
	}

	base := filepath.Base(shell)
	base = strings.TrimSuffix(base, ".exe")

	switch base {
	case "cmd":
		return []string{"/C"}
	case "powershell", "pwsh":
		return []string{"-NoProfile", "-Command"}
	default:
		// Assume POSIX shell
		return []string{"-c"}
	}
}
