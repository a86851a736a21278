// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package runtime

import "os/exec"

func signalOf(*exec.ExitError) (int, bool) { return 0, false }

func interruptOnCancel(*exec.Cmd) {}
