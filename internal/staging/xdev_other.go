// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package staging

// isCrossDevice always reports false where EXDEV does not exist.
func isCrossDevice(error) bool {
	return false
}
