// SPDX-License-Identifier: MPL-2.0

package action

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bladebuild/synth/pkg/symbol"
)

// SignatureExt is the extension of signature files kept by FileSignatures.
const SignatureExt = ".sig"

type (
	// SignatureCache records which targets are up to date.
	SignatureCache interface {
		// Invalidate forgets the signature of target. Forgetting a target
		// with no signature is not an error.
		Invalidate(target string) error
	}

	// FileSignatures is a SignatureCache storing one file per target in Dir.
	FileSignatures struct {
		Dir string
	}

	// NopSignatures is a SignatureCache with nothing to invalidate.
	NopSignatures struct{}
)

// Path returns the signature file of target.
func (f FileSignatures) Path(target string) string {
	return filepath.Join(f.Dir, symbol.Identifier(target)+SignatureExt)
}

// Invalidate removes the signature file of target.
func (f FileSignatures) Invalidate(target string) error {
	if err := os.Remove(f.Path(target)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to invalidate signature of %s: %w", target, err)
	}
	return nil
}

// Invalidate does nothing.
func (NopSignatures) Invalidate(string) error { return nil }
