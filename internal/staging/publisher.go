// SPDX-License-Identifier: MPL-2.0

package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

const (
	// tempPrefix starts every staged file name so stray files are easy to spot.
	tempPrefix = "blade_"
	// tempSuffix ends every staged file name.
	tempSuffix = ".tmp"
	// maxSanitizedLen bounds the target-derived part of a staged file name.
	maxSanitizedLen = 120
)

var (
	// ErrProduceFailed is wrapped by every error returned from a failed produce step.
	ErrProduceFailed = errors.New("produce step failed")

	sanitizer = strings.NewReplacer("/", "_", "\\", "_", ".", "_")
)

type (
	// ProduceFunc writes an artifact to tmpPath. The file already exists and is
	// empty when ProduceFunc is called; it may be truncated or replaced.
	ProduceFunc func(ctx context.Context, tmpPath string) error

	// Output is one artifact of a PublishAll call.
	Output struct {
		// Target is the final path.
		Target string
		// Produce writes the artifact to the staged file.
		Produce ProduceFunc
	}

	staged struct {
		target  string
		tmpPath string
		size    int64
	}

	// Publisher builds artifacts in a staging directory and promotes them onto
	// their final path only when the produce step succeeds.
	//
	// A Publisher holds no mutable state and is safe for concurrent use; every
	// staged output gets its own uniquely named temporary file.
	Publisher struct {
		dir    string
		logger *log.Logger
	}
)

// NewPublisher creates a Publisher staging into dir. An empty dir stages every
// artifact next to its final target, which keeps promotion a same-device rename.
func NewPublisher(dir string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{dir: dir, logger: logger}
}

// Dir returns the staging directory, or "" when staging next to targets.
func (p *Publisher) Dir() string {
	return p.dir
}

// TempPattern returns the os.CreateTemp pattern used for target.
func TempPattern(target string) string {
	sanitized := sanitizer.Replace(target)
	if len(sanitized) > maxSanitizedLen {
		sanitized = sanitized[len(sanitized)-maxSanitizedLen:]
	}
	return tempPrefix + sanitized + "_*" + tempSuffix
}

// Publish runs produce against a fresh temporary file and moves the result
// onto target. When produce fails or ctx is canceled, the temporary file is
// removed and target is left exactly as it was.
func (p *Publisher) Publish(ctx context.Context, target string, produce ProduceFunc) error {
	return p.PublishAll(ctx, Output{Target: target, Produce: produce})
}

// PublishAll publishes a group of artifacts that only make sense together.
// Every output is produced into its own staged file first; no target is
// touched until all of them succeeded. Promotion then runs in order.
func (p *Publisher) PublishAll(ctx context.Context, outputs ...Output) error {
	if len(outputs) == 0 {
		return nil
	}

	var pending []staged
	defer func() {
		for _, s := range pending {
			_ = os.Remove(s.tmpPath) // Best-effort cleanup on error path
		}
	}()

	for _, out := range outputs {
		s, err := p.stage(ctx, out)
		if err != nil {
			return err
		}
		pending = append(pending, s)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish %s: %w", outputs[0].Target, err)
	}

	for len(pending) > 0 {
		s := pending[0]
		if err := promote(s.tmpPath, s.target); err != nil {
			return fmt.Errorf("failed to publish %s: %w", s.target, err)
		}
		pending = pending[1:]
		p.logger.Debug("published artifact", "target", s.target, "size", humanize.IBytes(uint64(s.size)))
	}
	return nil
}

// stage allocates the temporary file for out and runs its produce step.
// The temporary file is removed when stage fails.
func (p *Publisher) stage(ctx context.Context, out Output) (staged, error) {
	target := out.Target
	if err := ctx.Err(); err != nil {
		return staged{}, fmt.Errorf("publish %s: %w", target, err)
	}

	targetDir := filepath.Dir(target)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return staged{}, fmt.Errorf("failed to create output directory %s: %w", targetDir, err)
	}

	stageDir := p.dir
	if stageDir == "" {
		stageDir = targetDir
	}

	tmpFile, err := os.CreateTemp(stageDir, TempPattern(target))
	if err != nil {
		return staged{}, fmt.Errorf("failed to allocate staged file in %s: %w", stageDir, err)
	}
	tmpPath := tmpFile.Name()
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return staged{}, fmt.Errorf("failed to close staged file: %w", err)
	}

	p.logger.Debug("staging artifact", "target", target, "staged", tmpPath)

	if err := out.Produce(ctx, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return staged{}, fmt.Errorf("%w for %s: %w", ErrProduceFailed, target, err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmpPath)
		return staged{}, fmt.Errorf("publish %s: %w", target, err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return staged{}, fmt.Errorf("%w for %s: staged output missing: %w", ErrProduceFailed, target, err)
	}
	return staged{target: target, tmpPath: tmpPath, size: info.Size()}, nil
}

// promote moves src onto dst. A same-device move is a single rename; across
// devices the content is copied to a sibling of dst first and renamed there,
// so dst is never observed half written.
func promote(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return err
	}
	if err := copyBeside(src, dst); err != nil {
		return err
	}
	_ = os.Remove(src) // Already published; leftover staging file is harmless
	return nil
}

// copyBeside copies src to a temporary sibling of dst and renames it onto dst.
func copyBeside(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open staged file: %w", err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat staged file: %w", err)
	}

	out, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("failed to create sibling file: %w", err)
	}
	siblingPath := out.Name()
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(siblingPath) // Best-effort cleanup on error path
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy staged file: %w", err)
	}
	if err = out.Chmod(info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set mode on sibling file: %w", err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("failed to sync sibling file: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("failed to close sibling file: %w", err)
	}
	if err = os.Rename(siblingPath, dst); err != nil {
		return fmt.Errorf("failed to rename sibling file: %w", err)
	}
	return nil
}

// WriteFile returns a ProduceFunc that writes data to the staged file and
// gives it mode perm.
func WriteFile(data []byte, perm os.FileMode) ProduceFunc {
	return func(_ context.Context, tmpPath string) error {
		if err := os.WriteFile(tmpPath, data, perm); err != nil {
			return err
		}
		return os.Chmod(tmpPath, perm)
	}
}
