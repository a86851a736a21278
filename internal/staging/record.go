// SPDX-License-Identifier: MPL-2.0

package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
)

// decisionRecord is the on-disk form of a Decision.
type decisionRecord struct {
	Installed bool   `toml:"installed"`
	Dir       string `toml:"dir"`
	Reason    string `toml:"reason"`
	Ephemeral bool   `toml:"ephemeral"`
	Total     uint64 `toml:"total"`
	Used      uint64 `toml:"used"`
	Avail     uint64 `toml:"avail"`
}

func newDecisionRecord(d Decision) decisionRecord {
	return decisionRecord{
		Installed: d.Installed,
		Dir:       d.Dir,
		Reason:    d.Reason,
		Ephemeral: d.Usage.Ephemeral,
		Total:     d.Usage.Total,
		Used:      d.Usage.Used,
		Avail:     d.Usage.Avail,
	}
}

func (r decisionRecord) decision() Decision {
	return Decision{
		Installed: r.Installed,
		Dir:       r.Dir,
		Reason:    r.Reason,
		Usage:     Usage{Ephemeral: r.Ephemeral, Total: r.Total, Used: r.Used, Avail: r.Avail},
	}
}

func marshalDecision(d Decision) ([]byte, error) {
	data, err := toml.Marshal(newDecisionRecord(d))
	if err != nil {
		return nil, fmt.Errorf("failed to encode staging decision: %w", err)
	}
	return data, nil
}

// SaveDecision writes d to path, replacing any earlier decision atomically.
func SaveDecision(ctx context.Context, path string, d Decision) error {
	data, err := marshalDecision(d)
	if err != nil {
		return err
	}
	pub := NewPublisher("", log.New(io.Discard))
	return pub.Publish(ctx, path, WriteFile(data, 0o644))
}

// LoadDecision reads a decision written by SaveDecision or EvaluateRecorded.
func LoadDecision(path string) (Decision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read staging decision: %w", err)
	}
	var rec decisionRecord
	if err := toml.Unmarshal(data, &rec); err != nil {
		return Decision{}, fmt.Errorf("failed to parse staging decision %s: %w", path, err)
	}
	return rec.decision(), nil
}

// EvaluateRecorded returns the decision recorded at opts.DecisionFile, making
// and recording it first when no link of this build has done so yet. The
// first recorded decision wins; concurrent callers all observe it. Without a
// decision file, or with fast link disabled, it is Evaluate.
func EvaluateRecorded(opts Options) (Decision, error) {
	path := opts.DecisionFile
	if path == "" || !opts.Enabled {
		return Evaluate(opts), nil
	}

	d, err := LoadDecision(path)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return Decision{}, err
	}

	d = Evaluate(opts)
	data, err := marshalDecision(d)
	if err != nil {
		return Decision{}, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Decision{}, fmt.Errorf("failed to create decision directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, TempPattern(path))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to record staging decision: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Decision{}, fmt.Errorf("failed to record staging decision: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Decision{}, fmt.Errorf("failed to record staging decision: %w", err)
	}

	// A hard link never replaces an existing name, so exactly one caller wins.
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return LoadDecision(path)
		}
		return Decision{}, fmt.Errorf("failed to record staging decision: %w", err)
	}
	return d, nil
}
