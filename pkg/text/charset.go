package text

// Table is a byte↔rune bijection for a game's custom character set.
// Runes without a mapping encode to the table's pad byte.
type Table struct {
	toByte map[rune]byte
	toRune map[byte]rune
	pad    byte
}

// NewTable builds a table from a byte→rune mapping. pad is the byte used
// for unmapped runes and for padding fixed-width fields.
func NewTable(mapping map[byte]rune, pad byte) *Table {
	t := &Table{
		toByte: make(map[rune]byte, len(mapping)),
		toRune: make(map[byte]rune, len(mapping)),
		pad:    pad,
	}
	for b, r := range mapping {
		t.toByte[r] = b
		t.toRune[b] = r
	}
	return t
}

// Pad returns the table's padding byte.
func (t *Table) Pad() byte { return t.pad }

// Encode converts a string to a fixed-width field of size bytes.
// The string is transliterated to ASCII first; unmapped characters and
// positions past the end of the string become the pad byte.
func (t *Table) Encode(s string, size int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = t.pad
	}
	for i, r := range ToASCII(s) {
		if i >= size {
			break
		}
		if b, ok := t.toByte[r]; ok {
			buf[i] = b
		}
	}
	return buf
}

// Decode converts an encoded field back to a string, trimming trailing pads.
func (t *Table) Decode(data []byte) string {
	end := len(data)
	for end > 0 && data[end-1] == t.pad {
		end--
	}
	out := make([]rune, 0, end)
	for _, b := range data[:end] {
		if r, ok := t.toRune[b]; ok {
			out = append(out, r)
		} else {
			out = append(out, ' ')
		}
	}
	return string(out)
}

// ISSTable returns the character set of the ISS Deluxe name tables.
// 0x00 doubles as space and field padding.
func ISSTable() *Table {
	m := map[byte]rune{
		0x00: ' ',
		0x53: '-',
		0x54: '.',
		0x56: '"',
		0x5C: '\'',
		0x5F: '/',
	}
	for i, r := range "0123456789" {
		m[byte(0x62+i)] = r
	}
	for i, r := range "ABCDEFGHIJKLMNOPQRSTUVWXYZ" {
		m[byte(0x6C+i)] = r
	}
	for i, r := range "abcdefghijklmnopqrstuvwxyz" {
		m[byte(0x86+i)] = r
	}
	return NewTable(m, 0x00)
}
