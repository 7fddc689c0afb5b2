package diagnostic

import (
	"fmt"
	"io"
	"strings"

	"github.com/calpha-lang/calpha/internal/position"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// Formatter renders diagnostics for a terminal.
type Formatter struct {
	// Source returns the file a diagnostic refers to; nil disables the
	// source excerpt.
	Source func(filename string) *position.SourceFile
	Color  bool
}

// Format writes every diagnostic followed by a summary line.
func (f *Formatter) Format(w io.Writer, list List) {
	for _, d := range list {
		io.WriteString(w, f.formatSingle(d))
	}
	if s := Summary(list); s != "" {
		fmt.Fprintln(w, s)
	}
}

func (f *Formatter) formatSingle(d Diagnostic) string {
	var b strings.Builder

	level := d.Level.String()
	if f.Color {
		switch d.Level {
		case Error:
			level = ansiBold + ansiRed + level + ansiReset
		case Warning:
			level = ansiBold + ansiYellow + level + ansiReset
		default:
			level = ansiBold + ansiCyan + level + ansiReset
		}
	}

	start := d.Range.Start
	fmt.Fprintf(&b, "%s:%d:%d: %s[%s]: %s\n", start.Filename, start.Line, start.Column, level, d.Code, d.Message)

	if f.Source != nil {
		if sf := f.Source(start.Filename); sf != nil {
			b.WriteString(sf.Highlight(d.Range))
		}
	}

	for _, rel := range d.Related {
		fmt.Fprintf(&b, "  note: %s:%d:%d: %s\n", rel.Range.Start.Filename, rel.Range.Start.Line, rel.Range.Start.Column, rel.Message)
	}

	return b.String()
}

// Summary returns "N error(s), M warning(s)" or an empty string.
func Summary(list List) string {
	errs, warns := len(list.Errors()), len(list.Warnings())
	var parts []string
	if errs > 0 {
		parts = append(parts, fmt.Sprintf("%d error(s)", errs))
	}
	if warns > 0 {
		parts = append(parts, fmt.Sprintf("%d warning(s)", warns))
	}
	return strings.Join(parts, ", ")
}
