// Package layout declares binary record layouts and the codec over them.
// A Layout is an ordered set of FieldSpecs plus a stride rule: fixed-stride
// records are pure offset arithmetic, variable records derive their stride
// from a length-prefix field. Fields may be whole bytes, nibbles, BCD,
// bit-packed runs, or text translated through a character table.
package layout

import (
	"errors"
	"fmt"

	"github.com/hiitsgabe/rompatch/pkg/text"
)

var (
	// ErrValidation reports a layout or image that fails a structural check.
	ErrValidation = errors.New("validation failed")
	// ErrRange reports an extent falling outside the image or record bounds.
	ErrRange = errors.New("out of range")
)

// FieldKind selects how a field's bytes are interpreted.
type FieldKind int

const (
	// Bytes is a raw byte slice of Size bytes.
	Bytes FieldKind = iota
	// Uint8 is a single unsigned byte.
	Uint8
	// Uint16LE is a little-endian 16-bit value.
	Uint16LE
	// Uint16BE is a big-endian 16-bit value.
	Uint16BE
	// NibbleHigh is the high 4 bits of the byte at Offset.
	NibbleHigh
	// NibbleLow is the low 4 bits of the byte at Offset.
	NibbleLow
	// BCD is one byte holding two packed decimal digits (0-99).
	BCD
	// Bits is a run of BitWidth bits starting at BitOffset from the record
	// start, packed LSB-first and allowed to span byte boundaries.
	Bits
	// String is fixed-width text of Size bytes, translated through Table
	// when set, otherwise stored as padded ASCII.
	String
	// VarString is variable text filling the span covered by the layout's
	// length field, starting at Offset. Only valid in variable layouts.
	VarString
)

// FieldSpec describes one field of a record. Offsets are relative to the
// record start; FromEnd anchors Offset to the record's end instead, for
// fields that trail a variable-length span.
type FieldSpec struct {
	Name      string
	Kind      FieldKind
	Offset    int
	Size      int // byte length for Bytes/String
	BitOffset int // absolute bit position for Bits, LSB-first
	BitWidth  int
	Min, Max  int // clamp range applied on encode when Max > Min
	Table     *text.Table
	Pad       byte
	FromEnd   bool
}

func (f *FieldSpec) byteSize() int {
	switch f.Kind {
	case Uint8, NibbleHigh, NibbleLow, BCD:
		return 1
	case Uint16LE, Uint16BE:
		return 2
	case Bits:
		return (f.BitOffset+f.BitWidth+7)/8 - f.BitOffset/8
	default:
		return f.Size
	}
}

// start returns the field's first byte offset within a record of the given
// stride.
func (f *FieldSpec) start(stride int) int {
	if f.Kind == Bits {
		return f.BitOffset / 8
	}
	if f.FromEnd {
		return stride - f.Offset
	}
	return f.Offset
}

// Layout is an immutable record layout. Construct with New; a zero Stride
// with a LengthField makes the layout variable-stride.
type Layout struct {
	name   string
	stride int

	// variable-stride rule: record size = value(lengthField) + lengthBias
	lengthField string
	lengthBias  int

	fields []FieldSpec
	index  map[string]int
}

// New builds a fixed-stride layout and validates every field extent against
// the stride at construction time.
func New(name string, stride int, fields ...FieldSpec) (*Layout, error) {
	l := &Layout{name: name, stride: stride, fields: fields}
	if err := l.check(); err != nil {
		return nil, err
	}
	return l, nil
}

// NewVariable builds a variable-stride layout. The record's total size is
// the decoded value of lengthField plus bias; fields anchored FromEnd sit
// relative to that computed end.
func NewVariable(name, lengthField string, bias int, fields ...FieldSpec) (*Layout, error) {
	l := &Layout{name: name, lengthField: lengthField, lengthBias: bias, fields: fields}
	if err := l.check(); err != nil {
		return nil, err
	}
	if _, ok := l.index[lengthField]; !ok {
		return nil, fmt.Errorf("layout %q: length field %q not declared: %w", name, lengthField, ErrValidation)
	}
	return l, nil
}

func (l *Layout) check() error {
	l.index = make(map[string]int, len(l.fields))
	for i := range l.fields {
		f := &l.fields[i]
		if f.Name == "" {
			return fmt.Errorf("layout %q: field %d has no name: %w", l.name, i, ErrValidation)
		}
		if _, dup := l.index[f.Name]; dup {
			return fmt.Errorf("layout %q: duplicate field %q: %w", l.name, f.Name, ErrValidation)
		}
		l.index[f.Name] = i

		switch f.Kind {
		case Bits:
			if f.BitWidth < 1 || f.BitWidth > 32 {
				return fmt.Errorf("layout %q: field %q: bit width %d: %w", l.name, f.Name, f.BitWidth, ErrValidation)
			}
		case Bytes, String:
			if f.Size < 1 {
				return fmt.Errorf("layout %q: field %q: size %d: %w", l.name, f.Name, f.Size, ErrValidation)
			}
		case VarString:
			if l.lengthField == "" && l.stride == 0 {
				return fmt.Errorf("layout %q: field %q: variable text in fixed layout: %w", l.name, f.Name, ErrValidation)
			}
		}

		// extent check only possible for fixed strides
		if l.stride > 0 {
			start := f.start(l.stride)
			if start < 0 || start+f.byteSize() > l.stride {
				return fmt.Errorf("layout %q: field %q extent [%d,%d) exceeds stride %d: %w",
					l.name, f.Name, start, start+f.byteSize(), l.stride, ErrValidation)
			}
		}
	}
	return nil
}

// Name returns the layout's name.
func (l *Layout) Name() string { return l.name }

// Fixed reports whether the layout has a fixed stride.
func (l *Layout) Fixed() bool { return l.stride > 0 }

// Fields returns the layout's field specs in declaration order.
func (l *Layout) Fields() []FieldSpec { return l.fields }

// Field returns the spec for the named field.
func (l *Layout) Field(name string) (FieldSpec, bool) {
	i, ok := l.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return l.fields[i], true
}
