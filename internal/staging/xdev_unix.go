// SPDX-License-Identifier: MPL-2.0

//go:build unix

package staging

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isCrossDevice reports whether err is a rename failure across filesystems.
func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
