// SPDX-License-Identifier: MPL-2.0

// Package pybin builds self-executing Python module archives.
//
// The output is a shell bootstrap stanza followed by a zip archive. The
// stanza puts the file itself on PYTHONPATH and runs the entry module, and
// zip readers still find the archive because they locate it from its
// trailing central directory. Every directory in the archive gets a package
// marker so that it is importable.
package pybin

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bladebuild/synth/internal/staging"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"
)

const (
	// DefaultInterpreter is the program the bootstrap stanza executes.
	DefaultInterpreter = "python"
	// DefaultMarkerFile is the package marker file name.
	DefaultMarkerFile = "__init__.py"

	// archiveMode is the permission of a published archive.
	archiveMode os.FileMode = 0o755
)

// markerTime stamps injected markers so that repeated builds are identical.
var markerTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Options configures Build.
type Options struct {
	// Entry is the module run by the bootstrap stanza, e.g. "pkg.main".
	Entry string
	// Interpreter is the runtime invoked by the stanza; defaults to DefaultInterpreter.
	Interpreter string
	// MarkerFile is the package marker name; defaults to DefaultMarkerFile.
	MarkerFile string
	// Duplicates decides how shared arcnames are handled; defaults to DuplicateReject.
	Duplicates DuplicatePolicy
	// Logger receives progress and override warnings; defaults to log.Default().
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Interpreter == "" {
		o.Interpreter = DefaultInterpreter
	}
	if o.MarkerFile == "" {
		o.MarkerFile = DefaultMarkerFile
	}
	if o.Duplicates == "" {
		o.Duplicates = DuplicateReject
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// Bootstrap returns the stanza prepended to an archive running entry with interpreter.
func Bootstrap(interpreter, entry string) string {
	return fmt.Sprintf("#!/bin/sh\nPYTHONPATH=\"$0:$PYTHONPATH\" exec %s -m \"%s\" \"$@\"\n", interpreter, entry)
}

// Build assembles inputs into an executable archive published at target.
// The previous target, if any, is replaced only when the whole archive was written.
func Build(ctx context.Context, pub *staging.Publisher, target string, inputs []Input, opts Options) (*Layout, error) {
	opts = opts.withDefaults()
	if opts.Entry == "" {
		return nil, fmt.Errorf("archive %s: entry module is required", target)
	}

	layout, err := PlanLayout(inputs, opts)
	if err != nil {
		return nil, err
	}

	stanza := Bootstrap(opts.Interpreter, opts.Entry)
	var payload uint64
	err = pub.Publish(ctx, target, func(ctx context.Context, tmpPath string) error {
		n, err := writeArchive(ctx, tmpPath, stanza, layout)
		if err != nil {
			return err
		}
		payload = n
		return os.Chmod(tmpPath, archiveMode)
	})
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug("built module archive",
		"target", target,
		"entries", len(layout.Entries),
		"markers", len(layout.Injected),
		"uncompressed", humanize.IBytes(payload),
	)
	return layout, nil
}

// writeArchive writes stanza followed by the zip archive of layout to path
// and returns the number of member bytes stored.
func writeArchive(ctx context.Context, path, stanza string, layout *Layout) (total uint64, err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err = io.WriteString(f, stanza); err != nil {
		return 0, fmt.Errorf("failed to write bootstrap stanza: %w", err)
	}

	zw := zip.NewWriter(f)
	// Offsets in the archive are relative to the start of the file.
	zw.SetOffset(int64(len(stanza)))

	for _, e := range layout.Entries {
		if err = ctx.Err(); err != nil {
			return 0, err
		}
		n, addErr := addEntry(zw, e)
		if addErr != nil {
			_ = zw.Close()
			return 0, addErr
		}
		total += uint64(n)
	}

	if err = zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err = f.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync archive: %w", err)
	}
	return total, nil
}

func addEntry(zw *zip.Writer, e Entry) (int64, error) {
	if e.Source == "" {
		header := &zip.FileHeader{Name: e.Arcname, Method: zip.Deflate, Modified: markerTime}
		header.SetMode(0o644)
		if _, err := zw.CreateHeader(header); err != nil {
			return 0, fmt.Errorf("failed to create archive entry %s: %w", e.Arcname, err)
		}
		return 0, nil
	}

	src, err := os.Open(e.Source)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive member %s: %w", e.Source, err)
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat archive member %s: %w", e.Source, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("archive member %s is a directory", e.Source)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, fmt.Errorf("failed to create file header for %s: %w", e.Source, err)
	}
	header.Name = e.Arcname
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive entry %s: %w", e.Arcname, err)
	}
	n, err := io.Copy(w, src)
	if err != nil {
		return n, fmt.Errorf("failed to write archive member %s: %w", e.Source, err)
	}
	return n, nil
}
