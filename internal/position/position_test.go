package position

import (
	"testing"
)

func TestPosition(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		pos      Position
		isValid  bool
	}{
		{
			name:     "Valid position with filename",
			pos:      Position{Filename: "dir/test.ca", Line: 10, Column: 5, Offset: 100},
			isValid:  true,
			expected: "test.ca:10:5",
		},
		{
			name:     "Valid position without filename",
			pos:      Position{Line: 1, Column: 1, Offset: 0},
			isValid:  true,
			expected: "1:1",
		},
		{
			name: "Invalid position - zero line",
			pos:  Position{Line: 0, Column: 1},
		},
		{
			name: "Invalid position - negative offset",
			pos:  Position{Line: 1, Column: 1, Offset: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pos.IsValid(); got != tt.isValid {
				t.Errorf("Position.IsValid() = %v, want %v", got, tt.isValid)
			}
			if tt.isValid {
				if got := tt.pos.String(); got != tt.expected {
					t.Errorf("Position.String() = %v, want %v", got, tt.expected)
				}
			}
		})
	}
}

func TestSourceFileConversions(t *testing.T) {
	sf := NewSourceFile("a.ca", "fn main() {\n\tx: int32 = 1;\n}\n")

	if got := sf.LineCount(); got != 4 {
		t.Fatalf("LineCount() = %d, want 4", got)
	}
	if got := sf.Line(2); got != "\tx: int32 = 1;" {
		t.Errorf("Line(2) = %q", got)
	}

	pos := sf.PositionFor(13)
	if pos.Line != 2 || pos.Column != 2 {
		t.Errorf("PositionFor(13) = %v, want 2:2", pos)
	}
	if off := sf.OffsetFor(2, 2); off != 13 {
		t.Errorf("OffsetFor(2, 2) = %d, want 13", off)
	}
	if off := sf.OffsetFor(1, 100); off != len("fn main() {") {
		t.Errorf("OffsetFor clamps to line end, got %d", off)
	}
}

func TestRangeJoinAndContains(t *testing.T) {
	sf := NewSourceFile("a.ca", "abc def ghi")
	a := Range{Start: sf.PositionFor(0), End: sf.PositionFor(3)}
	b := Range{Start: sf.PositionFor(8), End: sf.PositionFor(11)}

	j := Join(a, b)
	if j.Start.Offset != 0 || j.End.Offset != 11 {
		t.Fatalf("Join = %v", j)
	}
	if !a.Contains(3) || a.Contains(4) {
		t.Errorf("Contains should include the end offset only")
	}
	if got := sf.Text(b); got != "ghi" {
		t.Errorf("Text = %q", got)
	}
}

func TestHighlight(t *testing.T) {
	sf := NewSourceFile("a.ca", "x: int32 = ptr;\n")
	r := Range{Start: sf.PositionFor(11), End: sf.PositionFor(14)}

	want := "   1 | x: int32 = ptr;\n     |            ^^^\n"
	if got := sf.Highlight(r); got != want {
		t.Errorf("Highlight mismatch:\n%s\nwant:\n%s", got, want)
	}
}
