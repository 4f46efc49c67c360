package tdb

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildTDB lays out a single-table file in the on-disk format: file
// header, directory, table header, record info, field defs, record data.
func buildTDB(t *testing.T, name string, fields []Field, recSize, capacity, current int, data []byte) []byte {
	t.Helper()
	require.Len(t, data, capacity*recSize)

	tableOff := dirStart + 8 // one directory entry
	total := tableOff + tableHeader + recordInfo + 4 + len(fields)*fieldDefSize + len(data)
	out := make([]byte, total)

	copy(out, Magic[:])
	binary.LittleEndian.PutUint32(out[8:], uint32(total))
	binary.LittleEndian.PutUint32(out[16:], 1)
	copy(out[dirStart:], name)
	binary.LittleEndian.PutUint32(out[dirStart+4:], 0) // relative offset

	binary.LittleEndian.PutUint32(out[tableOff+8:], uint32(recSize))
	binary.LittleEndian.PutUint32(out[tableOff+12:], uint32(capacity))

	info := tableOff + tableHeader
	binary.LittleEndian.PutUint16(out[info:], uint16(capacity))
	binary.LittleEndian.PutUint16(out[info+2:], uint16(current))
	binary.LittleEndian.PutUint32(out[info+8:], uint32(len(fields)))

	pos := info + recordInfo + 4
	for _, f := range fields {
		binary.LittleEndian.PutUint32(out[pos:], uint32(f.Type))
		binary.LittleEndian.PutUint32(out[pos+4:], uint32(f.BitOffset))
		copy(out[pos+8:pos+12], f.Name)
		binary.LittleEndian.PutUint32(out[pos+12:], uint32(f.BitWidth))
		pos += fieldDefSize
	}
	copy(out[pos:], data)
	return out
}

var bioFields = []Field{
	{Name: "INDX", Type: TypeUInt, BitOffset: 0, BitWidth: 10},
	{Name: "AGE", Type: TypeUInt, BitOffset: 10, BitWidth: 6},
	{Name: "NAME", Type: TypeString, BitOffset: 16, BitWidth: 96},
}

const bioRecSize = 14 // 16 bits packed + 12 string bytes

func bioFile(t *testing.T) *File {
	t.Helper()
	data := make([]byte, 4*bioRecSize)
	// record 0: INDX=513, AGE=28, NAME="OV"
	binary.LittleEndian.PutUint16(data[0:], 513|28<<10)
	copy(data[2:], "OV")
	f, err := Parse(buildTDB(t, "SPBT", bioFields, bioRecSize, 4, 2, data))
	require.NoError(t, err)
	return f
}

func TestParse(t *testing.T) {
	f := bioFile(t)
	require.Equal(t, []string{"SPBT"}, f.Tables())

	tab, ok := f.Table("SPBT")
	require.True(t, ok)
	require.Equal(t, 4, tab.Capacity())
	require.Equal(t, 2, tab.Len())
	require.Equal(t, bioRecSize, tab.RecordSize())
	require.Len(t, tab.Fields(), 3)

	rec, err := tab.Read(0)
	require.NoError(t, err)
	require.Equal(t, 513, rec["INDX"])
	require.Equal(t, 28, rec["AGE"])
	require.Equal(t, "OV", rec["NAME"])
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("XXYYZZ"))
	require.ErrorIs(t, err, ErrValidation)

	// record data overrunning the file
	raw := buildTDB(t, "SPBT", bioFields, bioRecSize, 4, 2, make([]byte, 4*bioRecSize))
	_, err = Parse(raw[:len(raw)-10])
	require.ErrorIs(t, err, ErrValidation)
}

func TestWriteRoundTrip(t *testing.T) {
	tab, _ := bioFile(t).Table("SPBT")

	require.NoError(t, tab.Write(1, map[string]any{"INDX": 77, "AGE": 35, "NAME": "CROSBY"}))
	rec, err := tab.Read(1)
	require.NoError(t, err)
	require.Equal(t, 77, rec["INDX"])
	require.Equal(t, 35, rec["AGE"])
	require.Equal(t, "CROSBY", rec["NAME"])
}

func TestWritePreservesSiblingBits(t *testing.T) {
	tab, _ := bioFile(t).Table("SPBT")

	// INDX and AGE share bytes 0-1; updating one must not clobber the other
	require.NoError(t, tab.Write(0, map[string]any{"AGE": 33}))
	rec, err := tab.Read(0)
	require.NoError(t, err)
	require.Equal(t, 513, rec["INDX"])
	require.Equal(t, 33, rec["AGE"])
	require.Equal(t, "OV", rec["NAME"])
}

func TestWriteSaturatesAtFieldWidth(t *testing.T) {
	tab, _ := bioFile(t).Table("SPBT")

	require.NoError(t, tab.Write(0, map[string]any{"AGE": 1000}))
	rec, err := tab.Read(0)
	require.NoError(t, err)
	require.Equal(t, 63, rec["AGE"], "6-bit field saturates")
	require.Equal(t, 513, rec["INDX"])
}

func TestAllocate(t *testing.T) {
	tab, _ := bioFile(t).Table("SPBT")

	i, err := tab.Allocate()
	require.NoError(t, err)
	require.Equal(t, 2, i)
	_, err = tab.Allocate()
	require.NoError(t, err)
	_, err = tab.Allocate()
	require.ErrorIs(t, err, ErrCapacity)
	require.Equal(t, 4, tab.Len())
}

func TestRecordIndexOutOfRange(t *testing.T) {
	tab, _ := bioFile(t).Table("SPBT")
	_, err := tab.Read(4)
	require.ErrorIs(t, err, ErrRange)
	require.ErrorIs(t, tab.Write(-1, nil), ErrRange)
}

func TestSerialize(t *testing.T) {
	f := bioFile(t)
	tab, _ := f.Table("SPBT")

	require.NoError(t, tab.Write(1, map[string]any{"INDX": 42, "NAME": "NEW"}))
	idx, err := tab.Allocate()
	require.NoError(t, err)
	require.NoError(t, tab.Write(idx, map[string]any{"INDX": 99, "NAME": "THIRD"}))

	out := f.Serialize()

	f2, err := Parse(out)
	require.NoError(t, err)
	tab2, _ := f2.Table("SPBT")
	require.Equal(t, 3, tab2.Len(), "serialized current record count")
	require.Equal(t, 4, tab2.Capacity())

	rec, err := tab2.Read(1)
	require.NoError(t, err)
	require.Equal(t, 42, rec["INDX"])
	require.Equal(t, "NEW", rec["NAME"])

	require.Equal(t, 2, tab2.Find("INDX", 99))
	require.Equal(t, -1, tab2.Find("NAME", "MISSING"))
}

func TestSerializeKeepsFileSize(t *testing.T) {
	f := bioFile(t)
	tab, _ := f.Table("SPBT")
	require.NoError(t, tab.Write(0, map[string]any{"NAME": "RESIZED NAME"}))

	original := bioFile(t).Serialize()
	require.Equal(t, len(original), len(f.Serialize()))
}
