// Package textpos converts between byte offsets and LSP positions.
package textpos

import (
	"sort"
	"unicode/utf8"

	"github.com/shinyvision/i18nlens/internal/utils"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Lines indexes the line starts of one text so that many offsets in the same
// text can be converted without rescanning it.
type Lines struct {
	text   string
	starts []int
}

func NewLines(text string) *Lines {
	starts := make([]int, 1, 64)
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Lines{text: text, starts: starts}
}

// Count returns the number of lines.
func (l *Lines) Count() int {
	return len(l.starts)
}

// Line returns the zero-based line of offset: the number of '\n' bytes
// before it.
func (l *Lines) Line(offset int) int {
	offset = l.clamp(offset)
	return sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset }) - 1
}

// Position converts a byte offset to an LSP position. Characters are counted
// in UTF-16 code units.
func (l *Lines) Position(offset int) protocol.Position {
	offset = l.clamp(offset)
	line := l.Line(offset)
	return protocol.Position{
		Line:      uint32(line),
		Character: utils.UTF16Len(l.text[l.starts[line]:offset]),
	}
}

// Range converts the byte span [start, end) to an LSP range.
func (l *Lines) Range(start, end int) protocol.Range {
	return protocol.Range{Start: l.Position(start), End: l.Position(end)}
}

// Offset converts an LSP position to a byte offset. It returns -1 when the
// line does not exist; characters past the end of the line clamp to it.
func (l *Lines) Offset(pos protocol.Position) int {
	if int(pos.Line) >= len(l.starts) {
		return -1
	}
	offset := l.starts[pos.Line]
	need := pos.Character
	for offset < len(l.text) {
		b := l.text[offset]
		if b == '\n' || b == '\r' {
			break
		}
		r, size := utf8.DecodeRuneInString(l.text[offset:])
		var u16len uint32 = 1
		if r > 0xFFFF {
			u16len = 2
		}
		if need < u16len {
			break
		}
		need -= u16len
		offset += size
	}
	return offset
}

func (l *Lines) clamp(offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > len(l.text) {
		return len(l.text)
	}
	return offset
}
