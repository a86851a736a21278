// SPDX-License-Identifier: MPL-2.0

package pybin

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bladebuild/synth/pkg/pylib"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	// DuplicateReject fails the build when two inputs share an arcname.
	DuplicateReject DuplicatePolicy = "reject"
	// DuplicateOverride keeps the first position and the last content.
	DuplicateOverride DuplicatePolicy = "override"
)

var (
	// ErrBaseDirMissing is returned when a library bundle names a base
	// directory that does not exist.
	ErrBaseDirMissing = errors.New("library base directory does not exist")
	// ErrDuplicateArcname is returned when two inputs map to the same archive path.
	ErrDuplicateArcname = errors.New("duplicate archive entry")
	// ErrInvalidArcname is returned when an input cannot be placed inside the archive.
	ErrInvalidArcname = errors.New("invalid archive entry name")
	// ErrInvalidDuplicatePolicy is returned for an unknown DuplicatePolicy value.
	ErrInvalidDuplicatePolicy = errors.New("invalid duplicate policy")
)

type (
	// DuplicatePolicy decides what happens when two inputs share an arcname.
	DuplicatePolicy string

	// Input is one archive input: either a *LibraryInput or a *UnitInput.
	Input interface {
		input()
	}

	// LibraryInput is a library bundle whose members are placed relative to
	// the bundle's base directory.
	LibraryInput struct {
		// Bundle is the path the manifest was read from, used in messages.
		Bundle   string
		Manifest *pylib.Manifest
	}

	// UnitInput is a single compiled unit placed at its own path.
	UnitInput struct {
		Path string
	}

	// Entry is one member of the archive.
	Entry struct {
		// Arcname is the slash-separated path inside the archive.
		Arcname string
		// Source is the file providing the content; empty for injected markers.
		Source string
	}

	// Layout is the ordered content of an archive after package-marker repair.
	Layout struct {
		Entries []Entry
		// Injected lists the markers added during repair, in archive order.
		Injected []string
	}

	layoutBuilder struct {
		marker   string
		policy   DuplicatePolicy
		logger   *log.Logger
		entries  []Entry
		index    map[string]int
		allDirs  map[string]struct{}
		withMark map[string]struct{}
	}
)

func (*LibraryInput) input() {}
func (*UnitInput) input()    {}

// Validate reports whether p is a known policy.
func (p DuplicatePolicy) Validate() error {
	switch p {
	case DuplicateReject, DuplicateOverride:
		return nil
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidDuplicatePolicy, p, DuplicateReject, DuplicateOverride)
	}
}

// ClassifyInputs turns command-line paths into archive inputs: paths ending in
// the library bundle extension are read as manifests, everything else is a unit.
func ClassifyInputs(paths []string) ([]Input, error) {
	inputs := make([]Input, 0, len(paths))
	for _, p := range paths {
		if !pylib.IsBundle(p) {
			inputs = append(inputs, &UnitInput{Path: p})
			continue
		}
		m, err := pylib.Read(p)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, &LibraryInput{Bundle: p, Manifest: m})
	}
	return inputs, nil
}

// PlanLayout computes the archive entries for inputs, in input order,
// followed by the package markers needed to make every directory importable.
func PlanLayout(inputs []Input, opts Options) (*Layout, error) {
	opts = opts.withDefaults()
	if err := opts.Duplicates.Validate(); err != nil {
		return nil, err
	}

	b := &layoutBuilder{
		marker:   opts.MarkerFile,
		policy:   opts.Duplicates,
		logger:   opts.Logger,
		index:    make(map[string]int),
		allDirs:  make(map[string]struct{}),
		withMark: make(map[string]struct{}),
	}

	for _, in := range inputs {
		switch in := in.(type) {
		case *LibraryInput:
			if err := b.addLibrary(in); err != nil {
				return nil, err
			}
		case *UnitInput:
			arcname, err := normalizeArcname(in.Path)
			if err != nil {
				return nil, err
			}
			if err := b.add(arcname, in.Path); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unsupported archive input %T", in)
		}
	}

	return b.repair(), nil
}

func (b *layoutBuilder) addLibrary(in *LibraryInput) error {
	m := in.Manifest
	if m.BaseDir != "" {
		info, err := os.Stat(m.BaseDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: %s (from %s)", ErrBaseDirMissing, m.BaseDir, in.Bundle)
		}
	}

	for _, member := range m.Srcs {
		rel := member
		if m.BaseDir != "" {
			var err error
			rel, err = filepath.Rel(m.BaseDir, member)
			if err != nil {
				return fmt.Errorf("%w: %s is not under %s: %w", ErrInvalidArcname, member, m.BaseDir, err)
			}
		}
		arcname, err := normalizeArcname(rel)
		if err != nil {
			return fmt.Errorf("%s: %w", in.Bundle, err)
		}
		if err := b.add(arcname, member); err != nil {
			return err
		}
	}
	return nil
}

func (b *layoutBuilder) add(arcname, source string) error {
	if i, dup := b.index[arcname]; dup {
		prev := b.entries[i].Source
		if b.policy != DuplicateOverride {
			return fmt.Errorf("%w: %s is provided by both %s and %s", ErrDuplicateArcname, arcname, prev, source)
		}
		b.logger.Warn("archive entry overridden", "arcname", arcname, "previous", prev, "source", source)
		b.entries[i].Source = source
		return nil
	}

	b.index[arcname] = len(b.entries)
	b.entries = append(b.entries, Entry{Arcname: arcname, Source: source})

	dir := path.Dir(arcname)
	if path.Base(arcname) == b.marker {
		b.withMark[dir] = struct{}{}
	}
	for ; dir != "."; dir = path.Dir(dir) {
		b.allDirs[dir] = struct{}{}
	}
	return nil
}

// repair appends an empty marker to every directory that lacks one, and to
// the archive root.
func (b *layoutBuilder) repair() *Layout {
	missing := maps.Keys(b.allDirs)
	missing = slices.DeleteFunc(missing, func(dir string) bool {
		_, ok := b.withMark[dir]
		return ok
	})
	slices.Sort(missing)

	var injected []string
	for _, dir := range missing {
		injected = append(injected, dir+"/"+b.marker)
	}
	if _, ok := b.withMark["."]; !ok {
		injected = append(injected, b.marker)
	}

	for _, name := range injected {
		b.entries = append(b.entries, Entry{Arcname: name})
	}
	return &Layout{Entries: b.entries, Injected: injected}
}

// normalizeArcname converts p to a clean relative slash path that stays
// inside the archive.
func normalizeArcname(p string) (string, error) {
	name := path.Clean(filepath.ToSlash(p))
	name = strings.TrimLeft(name, "/")
	switch {
	case name == "" || name == ".":
		return "", fmt.Errorf("%w: %q names no file", ErrInvalidArcname, p)
	case name == ".." || strings.HasPrefix(name, "../"):
		return "", fmt.Errorf("%w: %q escapes the archive root", ErrInvalidArcname, p)
	}
	return name, nil
}
