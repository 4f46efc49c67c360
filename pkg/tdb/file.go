package tdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// File header: magic, zeros, data size, zeros, table count. The table
// directory follows a 4-byte hash, one 8-byte entry per table (4-byte
// ASCII name + offset relative to the directory's end).
const (
	fileHeaderSize = 20
	dirStart       = 24
	tableHeader    = 20
	recordInfo     = 16
	fieldDefSize   = 16
)

// File is one parsed TDB database.
type File struct {
	raw    []byte
	order  []string
	tables map[string]*Table
}

// Parse reads a TDB file. The input is copied; mutations stay inside the
// File until Serialize.
func Parse(data []byte) (*File, error) {
	if len(data) < fileHeaderSize || !bytes.Equal(data[:4], Magic[:]) {
		return nil, fmt.Errorf("tdb: bad magic: %w", ErrValidation)
	}
	f := &File{raw: append([]byte(nil), data...), tables: make(map[string]*Table)}

	numTables := int(binary.LittleEndian.Uint32(f.raw[16:]))
	dirEnd := dirStart + numTables*8
	if dirEnd > len(f.raw) {
		return nil, fmt.Errorf("tdb: directory for %d tables exceeds %d bytes: %w", numTables, len(f.raw), ErrValidation)
	}

	for i := 0; i < numTables; i++ {
		pos := dirStart + i*8
		name := strings.TrimRight(string(f.raw[pos:pos+4]), "\x00")
		rel := int(binary.LittleEndian.Uint32(f.raw[pos+4:]))
		t, err := f.parseTable(name, dirEnd+rel)
		if err != nil {
			return nil, fmt.Errorf("tdb: table %s: %w", name, err)
		}
		f.tables[name] = t
		f.order = append(f.order, name)
	}
	return f, nil
}

func (f *File) parseTable(name string, offset int) (*Table, error) {
	if offset+tableHeader+recordInfo+4 > len(f.raw) {
		return nil, fmt.Errorf("header at %#x exceeds file: %w", offset, ErrValidation)
	}
	recSize := int(binary.LittleEndian.Uint32(f.raw[offset+8:]))

	info := offset + tableHeader
	capacity := int(binary.LittleEndian.Uint16(f.raw[info:]))
	current := int(binary.LittleEndian.Uint16(f.raw[info+2:]))
	numFields := int(binary.LittleEndian.Uint32(f.raw[info+8:])) & 0xFF

	pos := info + recordInfo + 4 // past the field name hash
	fields := make([]Field, 0, numFields)
	for i := 0; i < numFields; i++ {
		if pos+fieldDefSize > len(f.raw) {
			return nil, fmt.Errorf("field %d at %#x exceeds file: %w", i, pos, ErrValidation)
		}
		fields = append(fields, Field{
			Type:      FieldType(binary.LittleEndian.Uint32(f.raw[pos:])),
			BitOffset: int(binary.LittleEndian.Uint32(f.raw[pos+4:])),
			Name:      strings.TrimRight(string(f.raw[pos+8:pos+12]), "\x00"),
			BitWidth:  int(binary.LittleEndian.Uint32(f.raw[pos+12:])),
		})
		pos += fieldDefSize
	}

	dataOff := pos
	dataEnd := dataOff + capacity*recSize
	if dataEnd > len(f.raw) {
		return nil, fmt.Errorf("record data [%#x,%#x) exceeds file: %w", dataOff, dataEnd, ErrValidation)
	}
	if current > capacity {
		return nil, fmt.Errorf("current records %d above capacity %d: %w", current, capacity, ErrValidation)
	}

	return &Table{
		Name:       name,
		fields:     fields,
		recordSize: recSize,
		capacity:   capacity,
		current:    current,
		headerOff:  offset,
		dataOff:    dataOff,
		data:       append([]byte(nil), f.raw[dataOff:dataEnd]...),
	}, nil
}

// Tables lists table names in file order.
func (f *File) Tables() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Table looks up a table by its four-character name ("SPBT", "ROST").
func (f *File) Table(name string) (*Table, bool) {
	t, ok := f.tables[name]
	return t, ok
}

// Serialize writes every table's record data and record counts back into
// the file image and returns it. The file's overall size never changes:
// record data lives inside each table's fixed allocation.
func (f *File) Serialize() []byte {
	out := append([]byte(nil), f.raw...)
	for _, name := range f.order {
		t := f.tables[name]
		copy(out[t.dataOff:t.dataOff+t.capacity*t.recordSize], t.data)
		info := t.headerOff + tableHeader
		binary.LittleEndian.PutUint16(out[info:], uint16(t.capacity))
		binary.LittleEndian.PutUint16(out[info+2:], uint16(t.current))
	}
	return out
}
