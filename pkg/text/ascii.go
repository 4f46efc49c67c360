// Package text implements the character encodings used by console ROM name
// tables: ASCII transliteration of accented names, custom per-game character
// sets, and the double-byte (Shift-JIS section) format used by PSX titles.
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Ligatures and special letters that do not decompose under NFKD.
var asciiSpecial = strings.NewReplacer(
	"ø", "o", "Ø", "O",
	"ß", "ss",
	"đ", "d", "Đ", "D",
	"ł", "l", "Ł", "L",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"þ", "th", "Þ", "TH",
)

var asciiStrip = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
)

// ToASCII converts a name to plain ASCII: accented Latin characters lose
// their diacritics (é→e, ñ→n, ü→u), known ligatures expand, and anything
// still outside 7-bit ASCII is dropped.
func ToASCII(s string) string {
	s = asciiSpecial.Replace(s)
	stripped, _, err := transform.String(asciiStrip, s)
	if err != nil {
		stripped = s
	}
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Fit shortens an ASCII string to at most max bytes. It first drops whole
// trailing words, then falls back to a hard cut when even the first word
// does not fit. Trailing spaces are trimmed either way.
func Fit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if i := strings.LastIndexByte(s[:max+1], ' '); i > 0 {
		return strings.TrimRight(s[:i], " ")
	}
	return strings.TrimRight(s[:max], " ")
}

// PadRight returns s truncated to size bytes and padded with pad up to size.
func PadRight(s string, size int, pad byte) []byte {
	buf := make([]byte, size)
	if pad != 0 {
		for i := range buf {
			buf[i] = pad
		}
	}
	copy(buf, s)
	return buf
}
