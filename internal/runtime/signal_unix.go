// SPDX-License-Identifier: MPL-2.0

//go:build unix

package runtime

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// interruptGrace is how long a canceled tool may take to exit after SIGINT
// before it is killed.
const interruptGrace = 5 * time.Second

// signalOf returns the signal that terminated the process, if any.
func signalOf(exitErr *exec.ExitError) (int, bool) {
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return 0, false
	}
	return int(status.Signal()), true
}

// interruptOnCancel sends SIGINT to cmd when its context is canceled; the
// process is killed if it has not exited after interruptGrace.
func interruptOnCancel(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(unix.SIGINT)
	}
	cmd.WaitDelay = interruptGrace
}
