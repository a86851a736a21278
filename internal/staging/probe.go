// SPDX-License-Identifier: MPL-2.0

package staging

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// DefaultHighWaterPercent is the utilization above which a staging area is refused.
const DefaultHighWaterPercent = 90

// ErrStagingUnavailable is returned when no staging area passes the precondition check.
var ErrStagingUnavailable = errors.New("staging area unavailable")

type (
	// Usage describes the filesystem backing a staging directory.
	Usage struct {
		// Ephemeral is true for in-memory filesystems (tmpfs, ramfs).
		Ephemeral bool
		// Total is the filesystem size in bytes.
		Total uint64
		// Used is the number of bytes in use.
		Used uint64
		// Avail is the number of bytes available to unprivileged users.
		Avail uint64
	}

	// Prober inspects the filesystem that holds a directory.
	Prober interface {
		Usage(dir string) (Usage, error)
	}

	// Options controls Evaluate.
	Options struct {
		// Enabled turns the fast path on; when false Evaluate always declines.
		Enabled bool
		// Dir is the configured staging directory; empty means auto-detect.
		Dir string
		// HighWaterPercent is the maximum accepted utilization (default 90).
		HighWaterPercent int
		// Prober inspects Dir; defaults to the host filesystem.
		Prober Prober
		// Detect finds a staging directory when Dir is empty; defaults to DetectTmpfs.
		Detect func() (string, error)
		// DecisionFile, when set, records the first decision of a build so
		// every later link reuses it; see EvaluateRecorded.
		DecisionFile string
	}

	// Decision is the outcome of the once-per-build staging check.
	Decision struct {
		// Installed is true when the fast path may be used.
		Installed bool
		// Dir is the staging directory that was examined.
		Dir string
		// Reason explains the decision in one human-readable sentence.
		Reason string
		// Usage is the observed filesystem usage, when available.
		Usage Usage
	}
)

// Percent returns utilization the way df reports it, rounded up.
func (u Usage) Percent() int {
	denom := u.Used + u.Avail
	if denom == 0 {
		return 0
	}
	return int((u.Used*100 + denom - 1) / denom)
}

// Err returns nil for an installed decision and an error wrapping
// ErrStagingUnavailable otherwise.
func (d Decision) Err() error {
	if d.Installed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrStagingUnavailable, d.Reason)
}

// Evaluate decides whether the fast staging path can be installed.
func Evaluate(opts Options) Decision {
	if !opts.Enabled {
		return Decision{Reason: "fast link is disabled"}
	}

	highWater := opts.HighWaterPercent
	if highWater <= 0 {
		highWater = DefaultHighWaterPercent
	}
	prober := opts.Prober
	if prober == nil {
		prober = hostProber{}
	}
	detect := opts.Detect
	if detect == nil {
		detect = DetectTmpfs
	}

	dir := opts.Dir
	if dir == "" {
		found, err := detect()
		if err != nil {
			return Decision{Reason: fmt.Sprintf("no staging directory configured and none detected: %v", err)}
		}
		dir = found
	}

	usage, err := prober.Usage(dir)
	if err != nil {
		return Decision{Dir: dir, Reason: fmt.Sprintf("cannot inspect %s: %v", dir, err)}
	}
	if !usage.Ephemeral {
		return Decision{Dir: dir, Usage: usage, Reason: fmt.Sprintf("%s is not an in-memory filesystem", dir)}
	}
	if pct := usage.Percent(); pct > highWater {
		return Decision{
			Dir:    dir,
			Usage:  usage,
			Reason: fmt.Sprintf("%s is %d%% used, above the %d%% limit", dir, pct, highWater),
		}
	}

	return Decision{
		Installed: true,
		Dir:       dir,
		Usage:     usage,
		Reason: fmt.Sprintf("staging on %s (%d%% used, %s free)",
			dir, usage.Percent(), humanize.IBytes(usage.Avail)),
	}
}
