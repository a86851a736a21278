// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	InputNotFoundId Id = iota + 1
	ResourceSizeMismatchId
	SymbolCollisionId
	InvalidManifestId
	BaseDirMissingId
	DuplicateArcnameId
	StagingUnavailableId
	LinkFailedId
	ConfigLoadFailedId
)

type (
	Id int

	MarkdownMsg string

	HttpLink string

	Renderer interface {
		Render(in string, stylePath string) (string, error)
	}

	Issue struct {
		id       Id          // ID used to lookup the issue
		mdMsg    MarkdownMsg // Markdown text that will be rendered
		docLinks []HttpLink  // project documentation about this class of failure
		extLinks []HttpLink  // external references
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
		for _, link := range i.extLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	inputNotFoundIssue = &Issue{
		id: InputNotFoundId,
		mdMsg: `
# Input file not found!

An action was given an input path that does not exist or is not a regular file.

## Things you can try:
- Check that the target producing this file is listed as a dependency
- Rebuild the dependency first, then retry
- Paths are resolved against the directory blade-synth runs in`,
	}

	resourceSizeMismatchIssue = &Issue{
		id: ResourceSizeMismatchId,
		mdMsg: `
# Resource changed while it was read!

The number of bytes read from a resource file differs from the size the
filesystem reported. The file is probably being written by another process,
or it is a special file such as one under /proc.

## Things you can try:
- Make sure no other build step writes the resource at the same time
- Copy generated or special files to a regular file before embedding them`,
	}

	symbolCollisionIssue = &Issue{
		id: SymbolCollisionId,
		mdMsg: `
# Two resources map to the same symbol!

Resource symbols are derived from file paths by replacing every character
that is not a letter or digit with '_' and appending a short hash. Two
different paths produced the same symbol, so the generated code would not
compile.

## Things you can try:
- Rename one of the files listed above
- Split the resources into two resource_library targets`,
	}

	invalidManifestIssue = &Issue{
		id: InvalidManifestId,
		mdMsg: `
# Invalid python library bundle!

A ` + "`.pylib`" + ` input could not be read. A bundle has exactly two keys:

~~~toml
base_dir = "src"
srcs = ["src/pkg/__init__.py", "src/pkg/util.py"]
~~~

## Things you can try:
- Rebuild the py_library target that produces the bundle
- Do not edit bundle files by hand`,
	}

	baseDirMissingIssue = &Issue{
		id: BaseDirMissingId,
		mdMsg: `
# Library base directory is missing!

A python library bundle names a base directory that does not exist, so the
archive names of its members cannot be computed.

## Things you can try:
- Check the ` + "`base`" + ` attribute of the py_library target
- Make sure the directory exists before the binary is built`,
	}

	duplicateArcnameIssue = &Issue{
		id: DuplicateArcnameId,
		mdMsg: `
# Two inputs map to the same archive entry!

Two inputs of a python binary would be stored under the same name. By
default this is an error because one of them would silently be lost.

## Things you can try:
- Remove the duplicate source from one of the libraries
- Let the later input win by setting the policy in blade.cue:
~~~cue
python: duplicate_policy: "override"
~~~`,
	}

	stagingUnavailableIssue = &Issue{
		id: StagingUnavailableId,
		mdMsg: `
# Fast link staging area unavailable!

Fast link builds binaries in an in-memory filesystem and moves them into
place afterwards. The configured staging area is missing, is not an
in-memory filesystem, or is too full. Linking continues in place.

## Things you can try:
- Inspect the staging area:
~~~
$ blade-synth staging check
~~~
- Free space in the staging area or raise the limit:
~~~cue
fast_link: high_water_percent: 95
~~~`,
		extLinks: []HttpLink{"https://www.kernel.org/doc/html/latest/filesystems/tmpfs.html"},
	}

	linkFailedIssue = &Issue{
		id: LinkFailedId,
		mdMsg: `
# Link command failed!

The link command exited with a non-zero status. Its output is shown above
with errors and warnings highlighted. The previous binary, if any, was left
unchanged.

## Things you can try:
- Look for "undefined reference" lines: a library is missing from deps
- Run with ` + "`--verbose`" + ` to see the exact command
- Check the link template for a typo in ` + "`$FL_TARGET`" + ` or ` + "`$FL_SOURCE`",
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

A configuration file could not be parsed or does not match the schema.

## Things you can try:
- Print every key with its default value:
~~~
$ blade-synth config show
~~~
- Check for unknown keys: the schema is closed`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	issues = map[Id]*Issue{
		inputNotFoundIssue.Id():        inputNotFoundIssue,
		resourceSizeMismatchIssue.Id(): resourceSizeMismatchIssue,
		symbolCollisionIssue.Id():      symbolCollisionIssue,
		invalidManifestIssue.Id():      invalidManifestIssue,
		baseDirMissingIssue.Id():       baseDirMissingIssue,
		duplicateArcnameIssue.Id():     duplicateArcnameIssue,
		stagingUnavailableIssue.Id():   stagingUnavailableIssue,
		linkFailedIssue.Id():           linkFailedIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
	}
)

func Values() []*Issue {
	values := maps.Values(issues)
	slices.SortFunc(values, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return values
}

func Get(id Id) *Issue {
	return issues[id]
}
