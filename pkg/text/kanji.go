package text

import "strings"

// EncodeDoubleByte encodes a name in the two-byte full-width format used by
// the PSX kanji name sections. budget is a character count; the output is
// budget*2 bytes with a 0x0000 terminator in the last used slot. The name is
// titlecased first (the in-ROM convention for these sections).
func EncodeDoubleByte(name string, budget int) []byte {
	text := titlecase(ToASCII(name))
	if max := budget - 1; len(text) > max {
		if max < 0 {
			max = 0
		}
		text = text[:max]
	}

	buf := make([]byte, budget*2)
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= 'A' && c <= 'Z':
			buf[i*2] = 0x82
			buf[i*2+1] = c + 31
		case c >= 'a' && c <= 'z':
			buf[i*2] = 0x82
			buf[i*2+1] = c + 32
		case c >= '0' && c <= '9':
			buf[i*2] = 0x82
			buf[i*2+1] = c + 31
		case c == '.':
			buf[i*2] = 0x81
			buf[i*2+1] = 0x42
		default: // space and anything unmapped
			buf[i*2] = 0x82
			buf[i*2+1] = 0x80
		}
	}
	// terminator slot already zero
	return buf
}

// DecodeDoubleByte reverses EncodeDoubleByte up to the 0x0000 terminator.
func DecodeDoubleByte(data []byte) string {
	var b strings.Builder
	for i := 0; i+1 < len(data); i += 2 {
		hi, lo := data[i], data[i+1]
		if hi == 0 && lo == 0 {
			break
		}
		switch {
		case hi == 0x81 && lo == 0x42:
			b.WriteByte('.')
		case hi == 0x82 && lo == 0x80:
			b.WriteByte(' ')
		case hi == 0x82 && lo >= '0'+31 && lo <= '9'+31:
			b.WriteByte(lo - 31)
		case hi == 0x82 && lo >= 'A'+31 && lo <= 'Z'+31:
			b.WriteByte(lo - 31)
		case hi == 0x82 && lo >= 'a'+32 && lo <= 'z'+32:
			b.WriteByte(lo - 32)
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}

func titlecase(s string) string {
	if len(s) > 1 {
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	}
	return strings.ToUpper(s)
}
