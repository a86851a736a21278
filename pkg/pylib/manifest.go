// SPDX-License-Identifier: MPL-2.0

// Package pylib reads and writes Python library bundles: manifests naming a
// base directory and the ordered list of compiled members that a module
// archive later packs under paths relative to that base.
package pylib

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bladebuild/synth/internal/staging"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/exp/slices"
)

// Ext is the file extension of a library bundle.
const Ext = ".pylib"

// ErrInvalidManifest is returned when a bundle cannot be decoded.
var ErrInvalidManifest = errors.New("invalid library manifest")

// Manifest lists the members of one library bundle. Member order is kept
// exactly as given.
type Manifest struct {
	BaseDir string   `toml:"base_dir"`
	Srcs    []string `toml:"srcs"`
}

// New returns a manifest over a copy of srcs.
func New(baseDir string, srcs []string) *Manifest {
	return &Manifest{BaseDir: baseDir, Srcs: slices.Clone(srcs)}
}

// IsBundle reports whether path names a library bundle.
func IsBundle(path string) bool {
	return strings.HasSuffix(path, Ext)
}

// Marshal encodes m.
func (m *Manifest) Marshal() ([]byte, error) {
	srcs := m.Srcs
	if srcs == nil {
		// srcs is always written, even when empty.
		srcs = []string{}
	}
	data, err := toml.Marshal(Manifest{BaseDir: m.BaseDir, Srcs: srcs})
	if err != nil {
		return nil, fmt.Errorf("failed to encode library manifest: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a manifest written by Marshal. Unknown keys are rejected.
func Unmarshal(data []byte) (*Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if m.Srcs == nil {
		m.Srcs = []string{}
	}
	return &m, nil
}

// Read loads the manifest stored at path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read library bundle %s: %w", path, err)
	}
	m, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// WriteBundle serializes baseDir and srcs to target and returns the encoded
// manifest. No member is read or compiled.
func WriteBundle(ctx context.Context, pub *staging.Publisher, target, baseDir string, srcs []string) ([]byte, error) {
	data, err := New(baseDir, srcs).Marshal()
	if err != nil {
		return nil, err
	}
	if err := pub.Publish(ctx, target, staging.WriteFile(data, 0o644)); err != nil {
		return nil, err
	}
	return data, nil
}
