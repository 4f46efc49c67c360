package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/hiitsgabe/rompatch/pkg/text"
)

// Record holds one decoded entity: field name → int, string, or []byte
// depending on the field kind. Records round-trip exactly through
// Encode/Decode for every field the layout declares.
type Record map[string]any

// Int returns the named field as an int, or 0 when absent.
func (r Record) Int(name string) int {
	v, _ := r[name].(int)
	return v
}

// String returns the named field as a string, or "" when absent.
func (r Record) String(name string) string {
	v, _ := r[name].(string)
	return v
}

// Bytes returns the named field as a byte slice, or nil when absent.
func (r Record) Bytes(name string) []byte {
	v, _ := r[name].([]byte)
	return v
}

// StrideAt computes the record's total byte size at offset in image. For
// fixed layouts this is the declared stride; for variable layouts it reads
// the length field.
func (l *Layout) StrideAt(image []byte, offset int) (int, error) {
	if l.stride > 0 {
		return l.stride, nil
	}
	f, _ := l.Field(l.lengthField)
	if offset < 0 || offset+f.Offset+f.byteSize() > len(image) {
		return 0, fmt.Errorf("layout %q: length field at %#x: %w", l.name, offset, ErrRange)
	}
	n := decodeInt(image[offset+f.Offset:], &f)
	if n < f.byteSize() {
		return 0, fmt.Errorf("layout %q: length %d at %#x shorter than its own prefix: %w", l.name, n, offset, ErrValidation)
	}
	return n + l.lengthBias, nil
}

// Stride computes a record's encoded size. Variable layouts derive it from
// the record's variable text field.
func (l *Layout) Stride(r Record) int {
	if l.stride > 0 {
		return l.stride
	}
	return l.varLength(r) + l.lengthBias
}

// varLength is the extent covered by the length prefix: the prefix itself
// plus the variable text bytes.
func (l *Layout) varLength(r Record) int {
	for i := range l.fields {
		f := &l.fields[i]
		if f.Kind == VarString {
			return f.Offset + len(f.encodeText(r.String(f.Name), -1))
		}
	}
	lf, _ := l.Field(l.lengthField)
	return lf.byteSize()
}

// Decode reads one record at offset. Numeric fields are reported raw, never
// clamped, so out-of-range values in a malformed image stay visible.
func (l *Layout) Decode(image []byte, offset int) (Record, error) {
	stride, err := l.StrideAt(image, offset)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset+stride > len(image) {
		return nil, fmt.Errorf("layout %q: record [%#x,%#x) outside image of %d bytes: %w",
			l.name, offset, offset+stride, len(image), ErrRange)
	}
	buf := image[offset : offset+stride]

	r := make(Record, len(l.fields))
	for i := range l.fields {
		f := &l.fields[i]
		switch f.Kind {
		case Bytes:
			b := make([]byte, f.Size)
			copy(b, buf[f.start(stride):])
			r[f.Name] = b
		case String:
			r[f.Name] = f.decodeText(buf[f.start(stride) : f.start(stride)+f.Size])
		case VarString:
			r[f.Name] = f.decodeText(buf[f.Offset : stride-l.lengthBias])
		default:
			r[f.Name] = decodeIntAt(buf, f, stride)
		}
	}
	return r, nil
}

// EncodeTo writes a record into dst, which must already hold the record's
// current bytes (or zeros). Sub-byte fields mask and OR so sibling nibbles
// and bits outside the layout survive. Numeric fields with a declared range
// are clamped silently.
func (l *Layout) EncodeTo(dst []byte, r Record) error {
	stride := l.Stride(r)
	if len(dst) < stride {
		return fmt.Errorf("layout %q: buffer %d for stride %d: %w", l.name, len(dst), stride, ErrRange)
	}
	for i := range l.fields {
		f := &l.fields[i]
		switch f.Kind {
		case Bytes:
			src := r.Bytes(f.Name)
			field := dst[f.start(stride) : f.start(stride)+f.Size]
			n := copy(field, src)
			for ; n < f.Size; n++ {
				field[n] = f.Pad
			}
		case String:
			copy(dst[f.start(stride):], f.encodeText(r.String(f.Name), f.Size))
		case VarString:
			copy(dst[f.Offset:], f.encodeText(r.String(f.Name), -1))
		default:
			v := r.Int(f.Name)
			if f.Name == l.lengthField && l.stride == 0 {
				v = l.varLength(r)
			} else if f.Max > f.Min {
				v = clamp(v, f.Min, f.Max)
			}
			encodeIntAt(dst, f, stride, v)
		}
	}
	return nil
}

// Encode serializes a record into a fresh zeroed buffer.
func (l *Layout) Encode(r Record) ([]byte, error) {
	buf := make([]byte, l.Stride(r))
	if err := l.EncodeTo(buf, r); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeAt patches a record in place at offset, read-modify-writing the
// image bytes so everything the layout does not cover is preserved.
func (l *Layout) EncodeAt(image []byte, offset int, r Record) error {
	stride := l.Stride(r)
	if offset < 0 || offset+stride > len(image) {
		return fmt.Errorf("layout %q: record [%#x,%#x) outside image of %d bytes: %w",
			l.name, offset, offset+stride, len(image), ErrRange)
	}
	return l.EncodeTo(image[offset:offset+stride], r)
}

func (f *FieldSpec) decodeText(data []byte) string {
	if f.Table != nil {
		return f.Table.Decode(data)
	}
	end := len(data)
	for end > 0 && data[end-1] == f.Pad {
		end--
	}
	out := make([]byte, end)
	for i, b := range data[:end] {
		if b >= 0x20 && b < 0x7F {
			out[i] = b
		} else {
			out[i] = '?'
		}
	}
	return string(out)
}

// encodeText renders a string field. size < 0 means variable width: the
// text is emitted unpadded at whatever length it has after transliteration.
func (f *FieldSpec) encodeText(s string, size int) []byte {
	if f.Table != nil {
		if size < 0 {
			size = len(text.ToASCII(s))
		}
		return f.Table.Encode(s, size)
	}
	ascii := text.ToASCII(s)
	if size < 0 {
		return []byte(ascii)
	}
	return text.PadRight(text.Fit(ascii, size), size, f.Pad)
}

func decodeIntAt(buf []byte, f *FieldSpec, stride int) int {
	if f.Kind == Bits {
		v := 0
		for i := 0; i < f.BitWidth; i++ {
			bit := f.BitOffset + i
			if buf[bit/8]>>(bit%8)&1 == 1 {
				v |= 1 << i
			}
		}
		return v
	}
	return decodeInt(buf[f.start(stride):], f)
}

// decodeInt reads a numeric field from a buffer already positioned at the
// field's first byte.
func decodeInt(buf []byte, f *FieldSpec) int {
	switch f.Kind {
	case Uint8:
		return int(buf[0])
	case Uint16LE:
		return int(binary.LittleEndian.Uint16(buf))
	case Uint16BE:
		return int(binary.BigEndian.Uint16(buf))
	case NibbleHigh:
		return int(buf[0] >> 4)
	case NibbleLow:
		return int(buf[0] & 0x0F)
	case BCD:
		return int(buf[0]>>4)*10 + int(buf[0]&0x0F)
	}
	return 0
}

func encodeIntAt(dst []byte, f *FieldSpec, stride, v int) {
	switch f.Kind {
	case Bits:
		for i := 0; i < f.BitWidth; i++ {
			bit := f.BitOffset + i
			mask := byte(1) << (bit % 8)
			if v>>i&1 == 1 {
				dst[bit/8] |= mask
			} else {
				dst[bit/8] &^= mask
			}
		}
	case Uint8:
		dst[f.start(stride)] = byte(v)
	case Uint16LE:
		binary.LittleEndian.PutUint16(dst[f.start(stride):], uint16(v))
	case Uint16BE:
		binary.BigEndian.PutUint16(dst[f.start(stride):], uint16(v))
	case NibbleHigh:
		o := f.start(stride)
		dst[o] = dst[o]&0x0F | byte(v)<<4
	case NibbleLow:
		o := f.start(stride)
		dst[o] = dst[o]&0xF0 | byte(v)&0x0F
	case BCD:
		dst[f.start(stride)] = byte(v/10)<<4 | byte(v%10)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
