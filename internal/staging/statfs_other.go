// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package staging

import (
	"errors"
	"runtime"
)

type hostProber struct{}

func (hostProber) Usage(string) (Usage, error) {
	return Usage{}, errors.New("staging area inspection is not supported on " + runtime.GOOS)
}
