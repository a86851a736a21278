// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bytes"
	"errors"
	"os/exec"
)

// capturedOutput holds the captured stdout and stderr buffers of one run.
type capturedOutput struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// extractExitCode determines the exit code from a command execution error.
// Returns a Result with exit code, output strings, and any error.
func extractExitCode(err error, captured *capturedOutput) *Result {
	result := &Result{}

	if captured != nil {
		result.Output = captured.stdout.String()
		result.ErrOutput = captured.stderr.String()
	}

	if err == nil {
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Command executed but returned non-zero exit code or was killed
		if sig, ok := signalOf(exitErr); ok {
			result.ExitCode = ExitCode(128 + sig)
			return result
		}
		exitCode := ExitCode(exitErr.ExitCode())
		if validateErr := exitCode.Validate(); validateErr != nil {
			result.ExitCode = 1
			result.Error = validateErr
			return result
		}
		result.ExitCode = exitCode
		return result
	}

	// Some other error (e.g., command not found, permission denied)
	result.ExitCode = 1
	result.Error = err
	return result
}
