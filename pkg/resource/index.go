// SPDX-License-Identifier: MPL-2.0

package resource

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bladebuild/synth/internal/staging"
	"github.com/bladebuild/synth/pkg/symbol"
)

const (
	cppOpen  = "#ifdef __cplusplus\nextern \"C\" {\n#endif\n\n"
	cppClose = "\n#ifdef __cplusplus\n}\n#endif\n"

	entryType = `#ifndef BLADE_RESOURCE_TYPE_DEFINED
#define BLADE_RESOURCE_TYPE_DEFINED
struct BladeResourceEntry {
    const char* name;
    const char* data;
    unsigned int size;
};
#endif

`
)

type (
	// Entry is one row of a resource index.
	Entry struct {
		// Name is the path relative to the index source path, as exposed at runtime.
		Name string
		// Resource is the embedded file.
		Resource *Resource
	}

	// Index is an ordered set of resources exposed under one lookup table.
	Index struct {
		// FullName identifies the index; it is derived from the source path and target name.
		FullName string
		// Entries preserves the input order.
		Entries []Entry
	}

	// IndexOptions names the outputs of WriteIndex.
	IndexOptions struct {
		// SourcePath is the directory resource names are made relative to.
		SourcePath string
		// TargetName is the build target the index belongs to.
		TargetName string
		// HeaderPath is where the declaration file is published.
		HeaderPath string
		// SourceFile is where the definition file is published.
		SourceFile string
		// Include is the path written into the definition's #include line;
		// defaults to HeaderPath.
		Include string
	}
)

// IndexName returns the identifier shared by every symbol of the index for
// targetName declared under sourcePath.
func IndexName(sourcePath, targetName string) string {
	return symbol.Identifier(sourcePath + "/" + targetName)
}

// NewIndex loads files in order. Any unreadable file or symbol collision
// fails the whole index.
func NewIndex(files []string, sourcePath, targetName string) (*Index, error) {
	idx := &Index{FullName: IndexName(sourcePath, targetName), Entries: make([]Entry, 0, len(files))}
	symbols := symbol.NewTable()

	for _, f := range files {
		r, err := Load(f)
		if err != nil {
			return nil, err
		}
		if err := symbols.Add(r.Symbol, f); err != nil {
			return nil, fmt.Errorf("resource index %s: %w", idx.FullName, err)
		}
		idx.Entries = append(idx.Entries, Entry{Name: relativeName(f, sourcePath), Resource: r})
	}
	return idx, nil
}

// Guard returns the include guard macro of the declaration file.
func (idx *Index) Guard() string {
	return "BLADE_RESOURCE_" + strings.ToUpper(idx.FullName) + "_H"
}

// TableName returns the symbol of the lookup array.
func (idx *Index) TableName() string {
	return "RESOURCE_INDEX_" + idx.FullName
}

// Header renders the declaration file.
func (idx *Index) Header() []byte {
	var buf bytes.Buffer
	guard := idx.Guard()
	fmt.Fprintf(&buf, "#ifndef %s\n#define %s\n\n", guard, guard)
	buf.WriteString(generatedBanner + "\n")
	buf.WriteString(cppOpen)
	buf.WriteString(entryType)

	for _, e := range idx.Entries {
		r := e.Resource
		fmt.Fprintf(&buf, "// %s\n", e.Name)
		if r.Size() == 0 {
			fmt.Fprintf(&buf, "extern const char %s[];\n", r.TableSymbol())
		} else {
			fmt.Fprintf(&buf, "extern const char %s[%d];\n", r.TableSymbol(), r.Size())
		}
		fmt.Fprintf(&buf, "extern const unsigned %s;\n\n", r.LengthSymbol())
	}

	buf.WriteString("// Resource index\n")
	fmt.Fprintf(&buf, "extern const struct BladeResourceEntry %s[];\n", idx.TableName())
	fmt.Fprintf(&buf, "extern const unsigned %s_len;\n", idx.TableName())

	buf.WriteString(cppClose)
	fmt.Fprintf(&buf, "\n#endif  // %s\n", guard)
	return buf.Bytes()
}

// Source renders the definition file, including the header at include.
func (idx *Index) Source(include string) []byte {
	var buf bytes.Buffer
	buf.WriteString(generatedBanner + "\n")
	fmt.Fprintf(&buf, "#include %s\n\n", cString(include))

	fmt.Fprintf(&buf, "const struct BladeResourceEntry %s[] = {\n", idx.TableName())
	for _, e := range idx.Entries {
		fmt.Fprintf(&buf, "    { %s, %s, %d },\n", cString(e.Name), e.Resource.TableSymbol(), e.Resource.Size())
	}
	buf.WriteString("};\n")
	fmt.Fprintf(&buf, "const unsigned %s_len = %d;\n", idx.TableName(), len(idx.Entries))
	return buf.Bytes()
}

// BuildIndex loads files and renders the declaration and definition files.
func BuildIndex(files []string, sourcePath, targetName, include string) (header, source []byte, err error) {
	idx, err := NewIndex(files, sourcePath, targetName)
	if err != nil {
		return nil, nil, err
	}
	return idx.Header(), idx.Source(include), nil
}

// WriteIndex builds the index over files and publishes both outputs. Nothing
// is published unless every input was loaded and both outputs were staged.
func WriteIndex(ctx context.Context, pub *staging.Publisher, files []string, opts IndexOptions) (*Index, error) {
	include := opts.Include
	if include == "" {
		include = opts.HeaderPath
	}

	idx, err := NewIndex(files, opts.SourcePath, opts.TargetName)
	if err != nil {
		return nil, err
	}
	err = pub.PublishAll(ctx,
		staging.Output{Target: opts.HeaderPath, Produce: staging.WriteFile(idx.Header(), 0o644)},
		staging.Output{Target: opts.SourceFile, Produce: staging.WriteFile(idx.Source(include), 0o644)},
	)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// relativeName returns path relative to base in slash form, or path itself
// when it does not live under base.
func relativeName(path, base string) string {
	if base == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// cString renders s as a C string literal.
func cString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&sb, "\\%03o", c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
