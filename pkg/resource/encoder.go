// SPDX-License-Identifier: MPL-2.0

// Package resource turns arbitrary files into linkable C byte tables and
// aggregates them into a resource index: a header declaring every table plus
// a definition file holding a positional lookup array.
package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bladebuild/synth/internal/staging"
	"github.com/bladebuild/synth/pkg/symbol"
)

const (
	// symbolPrefix starts every generated byte-table symbol.
	symbolPrefix = "RESOURCE_"
	// bytesPerLine is the number of table bytes rendered on one source line.
	bytesPerLine = 12
	// generatedBanner opens every generated file.
	generatedBanner = "// This file was automatically generated by blade\n"
)

// ErrSizeMismatch is returned when a file changes size while it is being read.
var ErrSizeMismatch = errors.New("resource size mismatch")

// Resource is one file loaded for embedding.
type Resource struct {
	// Path is the path the file was loaded from, as given by the caller.
	Path string
	// Symbol is the collision-resistant identifier derived from Path.
	Symbol string
	// Data holds the file content.
	Data []byte
}

// TableSymbol returns the name of the generated byte array.
func (r *Resource) TableSymbol() string { return symbolPrefix + r.Symbol }

// LengthSymbol returns the name of the generated length constant.
func (r *Resource) LengthSymbol() string { return symbolPrefix + r.Symbol + "_len" }

// Size returns the number of embedded bytes.
func (r *Resource) Size() int { return len(r.Data) }

// Load reads path and verifies that its size did not change between the
// directory lookup and the read.
func Load(path string) (*Resource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat resource %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("resource %s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource %s: %w", path, err)
	}
	if int64(len(data)) != info.Size() {
		return nil, fmt.Errorf("%w: %s was %d bytes when listed but %d bytes when read",
			ErrSizeMismatch, path, info.Size(), len(data))
	}

	return &Resource{Path: path, Symbol: symbol.Name(path), Data: data}, nil
}

// Encode loads path and returns its byte-table symbol, length symbol and content.
func Encode(path string) (tableSymbol, lengthSymbol string, data []byte, err error) {
	r, err := Load(path)
	if err != nil {
		return "", "", nil, err
	}
	return r.TableSymbol(), r.LengthSymbol(), r.Data, nil
}

// Definition renders the C translation unit defining r's byte table and length.
func Definition(r *Resource) []byte {
	var buf bytes.Buffer
	buf.WriteString(generatedBanner)
	fmt.Fprintf(&buf, "// %s\n\n", r.Path)
	buf.WriteString(cppOpen)

	// Empty files still get a one-byte table so the array is complete in C;
	// the length constant stays zero.
	dim := max(r.Size(), 1)
	fmt.Fprintf(&buf, "extern const char %s[%d];\n", r.TableSymbol(), dim)
	fmt.Fprintf(&buf, "extern const unsigned int %s;\n\n", r.LengthSymbol())

	fmt.Fprintf(&buf, "const char %s[%d] = {\n", r.TableSymbol(), dim)
	writeHexTable(&buf, r.Data)
	buf.WriteString("};\n")
	fmt.Fprintf(&buf, "const unsigned int %s = %d;\n", r.LengthSymbol(), r.Size())

	buf.WriteString(cppClose)
	return buf.Bytes()
}

// EncodeFile encodes input into a C source file published at output.
func EncodeFile(ctx context.Context, pub *staging.Publisher, input, output string) (*Resource, error) {
	r, err := Load(input)
	if err != nil {
		return nil, err
	}
	if err := pub.Publish(ctx, output, staging.WriteFile(Definition(r), 0o644)); err != nil {
		return nil, err
	}
	return r, nil
}

func writeHexTable(buf *bytes.Buffer, data []byte) {
	if len(data) == 0 {
		buf.WriteString("  0x00\n")
		return
	}
	for i, b := range data {
		switch {
		case i%bytesPerLine == 0:
			buf.WriteString("  ")
		default:
			buf.WriteByte(' ')
		}
		fmt.Fprintf(buf, "0x%02x", b)
		if i < len(data)-1 {
			buf.WriteByte(',')
		}
		if i%bytesPerLine == bytesPerLine-1 || i == len(data)-1 {
			buf.WriteByte('\n')
		}
	}
}
