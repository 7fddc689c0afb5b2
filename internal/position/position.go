// Package position provides source position tracking for the calpha
// compiler. Every syntax node carries a Range so that diagnostics can point
// back at the text that produced them.
package position

import (
	"fmt"
	"path/filepath"
	"sort"
)

// Position represents a single point in source code
type Position struct {
	Filename string // Source file name
	Line     int    // 1-based line number
	Column   int    // 1-based column number, in bytes
	Offset   int    // 0-based byte offset in source
}

// IsValid returns true if the position is valid
func (p Position) IsValid() bool {
	return p.Line > 0 && p.Column > 0 && p.Offset >= 0
}

// String returns a string representation of the position
func (p Position) String() string {
	if p.Filename != "" {
		return fmt.Sprintf("%s:%d:%d", filepath.Base(p.Filename), p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Before returns true if this position comes before other
func (p Position) Before(other Position) bool {
	if p.Filename != other.Filename {
		return p.Filename < other.Filename
	}
	return p.Offset < other.Offset
}

// Range represents a span of source code between two positions
type Range struct {
	Start Position // inclusive
	End   Position // exclusive
}

// IsValid returns true if the range is valid
func (r Range) IsValid() bool {
	return r.Start.IsValid() && r.End.IsValid() &&
		r.Start.Filename == r.End.Filename &&
		r.Start.Offset <= r.End.Offset
}

// String returns a string representation of the range
func (r Range) String() string {
	prefix := ""
	if r.Start.Filename != "" {
		prefix = filepath.Base(r.Start.Filename) + ":"
	}
	if r.Start.Line == r.End.Line {
		return fmt.Sprintf("%s%d:%d-%d", prefix, r.Start.Line, r.Start.Column, r.End.Column)
	}
	return fmt.Sprintf("%s%d:%d-%d:%d", prefix, r.Start.Line, r.Start.Column, r.End.Line, r.End.Column)
}

// Contains reports whether the offset lies within the range. The end is
// treated as inclusive so that a cursor placed just after an identifier
// still hits it.
func (r Range) Contains(offset int) bool {
	return r.IsValid() && r.Start.Offset <= offset && offset <= r.End.Offset
}

// Len returns the length of the range in bytes
func (r Range) Len() int {
	if !r.IsValid() {
		return 0
	}
	return r.End.Offset - r.Start.Offset
}

// Join returns the smallest range covering both a and b.
func Join(a, b Range) Range {
	if !a.IsValid() {
		return b
	}
	if !b.IsValid() || a.Start.Filename != b.Start.Filename {
		return a
	}
	out := a
	if b.Start.Before(out.Start) {
		out.Start = b.Start
	}
	if out.End.Before(b.End) {
		out.End = b.End
	}
	return out
}

// SourceFile represents a source file with a line index for offset
// conversions.
type SourceFile struct {
	Filename string
	Content  string
	lines    []int // byte offset of the start of each line
}

// NewSourceFile creates a new source file from content
func NewSourceFile(filename, content string) *SourceFile {
	lines := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &SourceFile{Filename: filename, Content: content, lines: lines}
}

// LineCount returns the number of lines in the file.
func (sf *SourceFile) LineCount() int { return len(sf.lines) }

// Line returns the specified line (1-based) without its terminator, or an
// empty string if out of range.
func (sf *SourceFile) Line(n int) string {
	if n < 1 || n > len(sf.lines) {
		return ""
	}
	start := sf.lines[n-1]
	end := len(sf.Content)
	if n < len(sf.lines) {
		end = sf.lines[n] - 1
	}
	if end > start && sf.Content[end-1] == '\r' {
		end--
	}
	return sf.Content[start:end]
}

// Text returns the text covered by the range
func (sf *SourceFile) Text(r Range) string {
	if !r.IsValid() || r.End.Offset > len(sf.Content) {
		return ""
	}
	return sf.Content[r.Start.Offset:r.End.Offset]
}

// PositionFor converts a byte offset to a Position
func (sf *SourceFile) PositionFor(offset int) Position {
	if offset < 0 || offset > len(sf.Content) {
		return Position{}
	}
	line := sort.Search(len(sf.lines), func(i int) bool { return sf.lines[i] > offset }) - 1
	return Position{
		Filename: sf.Filename,
		Line:     line + 1,
		Column:   offset - sf.lines[line] + 1,
		Offset:   offset,
	}
}

// OffsetFor converts a line and column (both 1-based, column in bytes) to a
// byte offset. Columns past the end of the line are clamped.
func (sf *SourceFile) OffsetFor(line, column int) int {
	if line < 1 || column < 1 {
		return -1
	}
	if line > len(sf.lines) {
		return len(sf.Content)
	}
	start := sf.lines[line-1]
	return min(start+column-1, start+len(sf.Line(line)))
}
