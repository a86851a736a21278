// SPDX-License-Identifier: MPL-2.0

package diag

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	// Plain is a line with no recognized marker.
	Plain Severity = iota
	// Error is a line reporting an error.
	Error
	// Warning is a line reporting a warning or note.
	Warning
	// Indicator is a column indicator line (starting with '^').
	Indicator
)

var (
	errorMarkers = []string{
		": error:",
		": fatal error:",
		": undefined reference to",
		": cannot find ",
		": ld returned 1 exit status",
		" is not defined",
	}
	warningMarkers = []string{
		": warning:",
		": note: ",
		"] Warning: ",
	}
)

type (
	// Severity is the rendering class of one output line.
	Severity int

	// Colorizer renders tool output with one style per severity.
	Colorizer struct {
		enabled bool
		styles  map[Severity]lipgloss.Style
	}
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Indicator:
		return "indicator"
	default:
		return "plain"
	}
}

// Classify returns the severity of a single output line. Error markers take
// precedence over warning markers.
func Classify(line string) Severity {
	for _, m := range errorMarkers {
		if strings.Contains(line, m) {
			return Error
		}
	}
	for _, m := range warningMarkers {
		if strings.Contains(line, m) {
			return Warning
		}
	}
	if strings.HasPrefix(strings.TrimSpace(line), "^") {
		return Indicator
	}
	return Plain
}

// NewColorizer returns a Colorizer; when enabled is false output is passed
// through unchanged.
func NewColorizer(enabled bool) *Colorizer {
	return &Colorizer{
		enabled: enabled,
		styles: map[Severity]lipgloss.Style{
			Error:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444")),
			Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
			Indicator: lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
			Plain:     lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")),
		},
	}
}

// Enabled reports whether c emits color.
func (c *Colorizer) Enabled() bool { return c.enabled }

// Line renders one line without its terminator.
func (c *Colorizer) Line(line string) string {
	return c.Render(Classify(line), line)
}

// Render renders s with the style of sev, ignoring its content.
func (c *Colorizer) Render(sev Severity, s string) string {
	if !c.enabled || s == "" {
		return s
	}
	return c.styles[sev].Render(s)
}

// Text renders multi-line output, keeping line breaks where they were.
func (c *Colorizer) Text(text string) string {
	if !c.enabled {
		return text
	}
	lines := strings.SplitAfter(text, "\n")
	var b strings.Builder
	for _, l := range lines {
		body, found := strings.CutSuffix(l, "\n")
		body, cr := strings.CutSuffix(body, "\r")
		b.WriteString(c.Line(body))
		if cr {
			b.WriteByte('\r')
		}
		if found {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Echo writes text to w rendered by c. Empty text writes nothing.
func (c *Colorizer) Echo(w io.Writer, text string) error {
	if text == "" {
		return nil
	}
	_, err := io.WriteString(w, c.Text(text))
	return err
}

// Count tallies the lines of text by severity.
func Count(text string) map[Severity]int {
	counts := make(map[Severity]int)
	for line := range strings.Lines(text) {
		counts[Classify(strings.TrimRight(line, "\r\n"))]++
	}
	return counts
}
