package position

import (
	"fmt"
	"strings"
)

// Highlight renders the first line of r with a caret underline beneath the
// covered columns. Tabs in the source line are preserved in the padding so
// that the carets stay aligned in a terminal.
func (sf *SourceFile) Highlight(r Range) string {
	if !r.Start.IsValid() {
		return ""
	}
	line := sf.Line(r.Start.Line)
	if line == "" && r.Start.Line > sf.LineCount() {
		return ""
	}

	endCol := len(line) + 1
	if r.End.Line == r.Start.Line && r.End.Column > r.Start.Column {
		endCol = min(r.End.Column, endCol)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%4d | %s\n", r.Start.Line, line)
	b.WriteString("     | ")
	for i := 1; i < r.Start.Column && i <= len(line); i++ {
		if line[i-1] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteString(strings.Repeat("^", max(1, endCol-r.Start.Column)))
	b.WriteByte('\n')
	return b.String()
}
