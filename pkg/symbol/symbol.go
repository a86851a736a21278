// SPDX-License-Identifier: MPL-2.0

// Package symbol maps file paths to identifiers that can be used as symbol
// names in generated C/C++ declarations.
//
// Two flavors are provided:
//   - Identifier is the readable form: every byte that is not an ASCII letter,
//     digit or underscore becomes an underscore. It is used for names that
//     users reference by hand, such as resource index tables.
//   - Name appends a short BLAKE3 digest of the raw path to the readable form,
//     so that paths differing only in separators or extensions ("a/b.txt",
//     "a_b.txt", "a/b_txt") still yield distinct symbols.
//
// Both are pure functions of their input. Callers that emit many symbols into
// one translation unit should register them in a Table, which rejects
// collisions instead of silently reusing a name.
package symbol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// digestLen is the number of digest bytes rendered into a Name suffix.
const digestLen = 4

// ErrSymbolCollision is the sentinel error wrapped by CollisionError.
var ErrSymbolCollision = errors.New("symbol collision")

type (
	// CollisionError reports two distinct paths that map to the same symbol.
	CollisionError struct {
		Symbol string
		First  string
		Second string
	}

	// Table tracks symbols emitted into a single generated unit.
	// The zero value is not usable; call NewTable.
	Table struct {
		owners map[string]string
	}
)

// Error implements the error interface.
func (e *CollisionError) Error() string {
	if e.First == e.Second {
		return fmt.Sprintf("symbol %s: path %q listed more than once", e.Symbol, e.First)
	}
	return fmt.Sprintf("symbol %s is produced by both %q and %q", e.Symbol, e.First, e.Second)
}

// Unwrap returns ErrSymbolCollision for errors.Is.
func (e *CollisionError) Unwrap() error { return ErrSymbolCollision }

// Identifier returns the readable identifier for path.
func Identifier(path string) string {
	var sb strings.Builder
	sb.Grow(len(path) + 1)
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
			sb.WriteByte(c)
		case c >= '0' && c <= '9':
			if sb.Len() == 0 {
				sb.WriteByte('_')
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}

// Name returns the collision-resistant identifier for path.
func Name(path string) string {
	sum := blake3.Sum256([]byte(path))
	return Identifier(path) + "_" + hex.EncodeToString(sum[:digestLen])
}

// NewTable creates an empty symbol table.
func NewTable() *Table {
	return &Table{owners: make(map[string]string)}
}

// Add registers sym as produced by path. It fails with a *CollisionError when
// sym was already registered, including when the same path is added twice.
func (t *Table) Add(sym, path string) error {
	if owner, ok := t.owners[sym]; ok {
		return &CollisionError{Symbol: sym, First: owner, Second: path}
	}
	t.owners[sym] = path
	return nil
}

// Len returns the number of registered symbols.
func (t *Table) Len() int { return len(t.owners) }
