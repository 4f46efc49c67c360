// Package tdb reads and writes EA's TDB database files: a table directory
// followed by self-describing tables whose records pack integer fields at
// the bit level (LSB-first) and keep string fields byte-aligned. Tables
// carry an allocated capacity and a current record count; the game reads
// only the current count.
package tdb

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrValidation reports data failing the TDB structure checks.
	ErrValidation = errors.New("validation failed")
	// ErrRange reports a record index outside a table's capacity.
	ErrRange = errors.New("out of range")
	// ErrCapacity reports a table with no free record slots.
	ErrCapacity = errors.New("capacity exceeded")
)

// Magic opens every TDB file.
var Magic = [4]byte{'D', 'B', 0x00, 0x08}

// FieldType tags a field's interpretation.
type FieldType uint32

// Field types observed in the NHL database files.
const (
	TypeString FieldType = 0
	TypeBinary FieldType = 1
	TypeSInt   FieldType = 2
	TypeUInt   FieldType = 3
	TypeFloat  FieldType = 4
)

// Field is one column of a table. String fields are byte-aligned (both
// offset and width are multiples of 8); integer fields pack at arbitrary
// bit positions.
type Field struct {
	Name      string
	Type      FieldType
	BitOffset int
	BitWidth  int
}

// IsString reports whether the field holds byte-aligned text.
func (f Field) IsString() bool { return f.Type == TypeString }

// Table is one parsed table. Record mutations happen against the table's
// own data copy; File.Serialize writes them back.
type Table struct {
	Name       string
	fields     []Field
	recordSize int
	capacity   int
	current    int
	headerOff  int // table header position in the file
	dataOff    int // record data position in the file
	data       []byte
}

// Fields returns the table's columns in file order.
func (t *Table) Fields() []Field {
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// Field looks up a column by name.
func (t *Table) Field(name string) (Field, bool) {
	for _, f := range t.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Capacity is the allocated record count; Len the valid record count.
func (t *Table) Capacity() int { return t.capacity }

// Len returns the current (valid) record count.
func (t *Table) Len() int { return t.current }

// RecordSize returns the bytes per record.
func (t *Table) RecordSize() int { return t.recordSize }

// Allocate claims the next free record slot and returns its index.
func (t *Table) Allocate() (int, error) {
	if t.current >= t.capacity {
		return 0, fmt.Errorf("tdb: table %s full at %d records: %w", t.Name, t.capacity, ErrCapacity)
	}
	idx := t.current
	t.current++
	return idx, nil
}

// Read decodes one record: field name → string for text columns, int for
// everything else.
func (t *Table) Read(index int) (map[string]any, error) {
	if index < 0 || index >= t.capacity {
		return nil, fmt.Errorf("tdb: table %s record %d of %d: %w", t.Name, index, t.capacity, ErrRange)
	}
	rec := t.data[index*t.recordSize : (index+1)*t.recordSize]

	out := make(map[string]any, len(t.fields))
	for _, f := range t.fields {
		if f.IsString() {
			raw := rec[f.BitOffset/8 : f.BitOffset/8+f.BitWidth/8]
			if i := bytes.IndexByte(raw, 0); i >= 0 {
				raw = raw[:i]
			}
			out[f.Name] = string(raw)
		} else {
			out[f.Name] = readBits(rec, f.BitOffset, f.BitWidth)
		}
	}
	return out, nil
}

// Write updates the named fields of one record, leaving the rest of the
// record's bits untouched. Integer values saturate at the field width.
func (t *Table) Write(index int, values map[string]any) error {
	if index < 0 || index >= t.capacity {
		return fmt.Errorf("tdb: table %s record %d of %d: %w", t.Name, index, t.capacity, ErrRange)
	}
	rec := t.data[index*t.recordSize : (index+1)*t.recordSize]

	for _, f := range t.fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if f.IsString() {
			s, _ := v.(string)
			slot := rec[f.BitOffset/8 : f.BitOffset/8+f.BitWidth/8]
			n := copy(slot, s)
			for ; n < len(slot); n++ {
				slot[n] = 0
			}
		} else {
			i, _ := v.(int)
			writeBits(rec, f.BitOffset, f.BitWidth, i)
		}
	}
	return nil
}

// Find returns the first record index within Len whose field equals
// value, or -1.
func (t *Table) Find(field string, value any) int {
	for i := 0; i < t.current; i++ {
		rec, err := t.Read(i)
		if err != nil {
			return -1
		}
		if rec[field] == value {
			return i
		}
	}
	return -1
}

// FindAll returns every matching record index within Len.
func (t *Table) FindAll(field string, value any) []int {
	var out []int
	for i := 0; i < t.current; i++ {
		rec, err := t.Read(i)
		if err != nil {
			break
		}
		if rec[field] == value {
			out = append(out, i)
		}
	}
	return out
}

func readBits(rec []byte, offset, width int) int {
	v := 0
	for i := 0; i < width; i++ {
		pos := offset + i
		if pos/8 < len(rec) && rec[pos/8]>>(pos%8)&1 == 1 {
			v |= 1 << i
		}
	}
	return v
}

func writeBits(rec []byte, offset, width, v int) {
	max := 1<<width - 1
	if v < 0 {
		v = 0
	}
	if v > max {
		v = max
	}
	for i := 0; i < width; i++ {
		pos := offset + i
		if pos/8 >= len(rec) {
			return
		}
		mask := byte(1) << (pos % 8)
		if v>>i&1 == 1 {
			rec[pos/8] |= mask
		} else {
			rec[pos/8] &^= mask
		}
	}
}
