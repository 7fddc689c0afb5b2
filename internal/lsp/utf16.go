package lsp

import "unicode/utf8"

// utf16Units is the number of UTF-16 code units that encode r.
func utf16Units(r rune) int {
	if r > 0xFFFF {
		return 2
	}
	return 1
}

// positionAt converts a byte offset in text to a protocol position.
// Offsets past the end are clamped.
func positionAt(text string, offset int) Position {
	offset = max(0, min(offset, len(text)))
	var pos Position
	for i := 0; i < offset; {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == '\n' {
			pos.Line++
			pos.Character = 0
		} else {
			pos.Character += utf16Units(r)
		}
		i += size
	}
	return pos
}

// offsetAt converts a protocol position to a byte offset in text. A
// character past the end of its line resolves to the line end; a line
// past the end of text resolves to len(text).
func offsetAt(text string, pos Position) int {
	var line, char int
	for i := 0; i < len(text); {
		if line == pos.Line && char >= pos.Character {
			return i
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == '\n' {
			if line == pos.Line {
				return i
			}
			line++
			char = 0
		} else if line == pos.Line {
			char += utf16Units(r)
		}
		i += size
	}
	return len(text)
}
