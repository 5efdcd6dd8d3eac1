package scanner

import (
	"regexp"
	"strings"
)

// keyExpr is a dotted locale key: at least two [A-Za-z0-9_-] segments.
const keyExpr = `(?:[\w-]+\.)+[\w-]+`

// space is the whitespace class of JavaScript regexes, which unlike RE2's \s
// includes the Unicode space separators.
const space = `[\s\x{00A0}\x{1680}\x{2000}-\x{200A}\x{2028}\x{2029}\x{202F}\x{205F}\x{3000}\x{FEFF}]`

// RE2 has no back references, so a literal closed "by the same quote" is
// spelled out as one alternative per delimiter.
var (
	keyValueRe = regexp.MustCompile(
		space + `+(?:"(` + keyExpr + `)"|'(` + keyExpr + `)')` + space + `*:` + space + `*(?:"(.*?)"|'(.*?)')`,
	)
	identifierRe = regexp.MustCompile(
		`"(` + keyExpr + `)"|'(` + keyExpr + `)'|` + "`(" + keyExpr + ")`",
	)
	keyRe = regexp.MustCompile(`^` + keyExpr + `$`)
)

// RawEntry is one key/value pair found in a dictionary file.
type RawEntry struct {
	Key   string
	Value string
	// Offset is where the match starts, i.e. the first whitespace byte before
	// the key literal.
	Offset int
	// KeyOffset is the byte offset of the first key character.
	KeyOffset int
}

// Occurrence is a quoted dotted identifier found in a source file.
type Occurrence struct {
	Key string
	// Start is the byte offset of the opening delimiter.
	Start int
	// Length is len(Key), delimiters excluded.
	Length int
}

// End returns the offset just past the closing delimiter.
func (o Occurrence) End() int {
	return o.Start + o.Length + 2
}

// ScanEntries extracts every `"key": "value"` pair from text. Offsets are
// strictly increasing. Escaped quotes inside a value are not understood: the
// value ends at the first quote matching its opening one.
func ScanEntries(text string) []RawEntry {
	matches := keyValueRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	entries := make([]RawEntry, 0, len(matches))
	for _, m := range matches {
		keyStart, keyEnd := firstGroup(m, 1, 2)
		valStart, valEnd := firstGroup(m, 3, 4)
		if keyStart < 0 || valStart < 0 {
			continue
		}
		entries = append(entries, RawEntry{
			Key:       text[keyStart:keyEnd],
			Value:     text[valStart:valEnd],
			Offset:    m[0],
			KeyOffset: keyStart,
		})
	}
	return entries
}

// Identifiers lists every quoted dotted identifier in text, using single,
// double or back-tick delimiters. Occurrences never overlap.
func Identifiers(text string) []Occurrence {
	matches := identifierRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	out := make([]Occurrence, 0, len(matches))
	for _, m := range matches {
		start, end := firstGroup(m, 1, 2, 3)
		if start < 0 {
			continue
		}
		out = append(out, Occurrence{
			Key:    text[start:end],
			Start:  m[0],
			Length: end - start,
		})
	}
	return out
}

// KeyAt returns the quoted identifier whose literal, delimiters included,
// encloses offset. Only the line holding offset is considered.
func KeyAt(text string, offset int) (Occurrence, bool) {
	if offset < 0 || offset > len(text) {
		return Occurrence{}, false
	}

	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	lineEnd := len(text)
	if i := strings.IndexByte(text[offset:], '\n'); i >= 0 {
		lineEnd = offset + i
	}

	for _, occ := range Identifiers(text[lineStart:lineEnd]) {
		occ.Start += lineStart
		if occ.Start <= offset && offset <= occ.End() {
			return occ, true
		}
	}
	return Occurrence{}, false
}

// IsKey reports whether s is a dotted locale key.
func IsKey(s string) bool {
	return keyRe.MatchString(s)
}

// QuotedKeyPattern is the search pattern handed to the editor's "find in
// files": the key as a quoted literal, dots escaped, closed by the same quote.
func QuotedKeyPattern(key string) string {
	return `(['"])` + strings.ReplaceAll(key, ".", `\.`) + `\1`
}

// QuotedKeyRegexp is the RE2 form of QuotedKeyPattern.
func QuotedKeyRegexp(key string) *regexp.Regexp {
	q := regexp.QuoteMeta(key)
	return regexp.MustCompile(`"` + q + `"|'` + q + `'`)
}

// firstGroup returns the bounds of the first participating capture group
// among groups.
func firstGroup(m []int, groups ...int) (int, int) {
	for _, g := range groups {
		if 2*g+1 < len(m) && m[2*g] >= 0 {
			return m[2*g], m[2*g+1]
		}
	}
	return -1, -1
}
