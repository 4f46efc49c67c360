package layout

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hiitsgabe/rompatch/pkg/text"
)

func playerLayout(t *testing.T) *Layout {
	t.Helper()
	l, err := New("test player", 12,
		FieldSpec{Name: "name", Kind: String, Offset: 0, Size: 8},
		FieldSpec{Name: "speed", Kind: NibbleHigh, Offset: 8, Min: 0, Max: 9},
		FieldSpec{Name: "power", Kind: NibbleLow, Offset: 8, Min: 0, Max: 9},
		FieldSpec{Name: "jersey", Kind: BCD, Offset: 9, Min: 1, Max: 99},
		FieldSpec{Name: "flags", Kind: Bits, BitOffset: 82, BitWidth: 5},
	)
	require.NoError(t, err)
	return l
}

func TestFixedRoundTrip(t *testing.T) {
	l := playerLayout(t)
	r := Record{"name": "KOWALSKI", "speed": 7, "power": 3, "jersey": 42, "flags": 0x15}

	buf, err := l.Encode(r)
	require.NoError(t, err)
	require.Len(t, buf, 12)

	got, err := l.Decode(buf, 0)
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestNibbleSiblingPreserved(t *testing.T) {
	l, err := New("pair", 1,
		FieldSpec{Name: "hi", Kind: NibbleHigh, Offset: 0},
	)
	require.NoError(t, err)

	img := []byte{0xA5}
	require.NoError(t, l.EncodeAt(img, 0, Record{"hi": 0x3}))
	require.Equal(t, byte(0x35), img[0], "low nibble must survive")
}

func TestBitsSpanBytes(t *testing.T) {
	// 5 bits starting at bit 5: three in byte 0, two in byte 1
	l, err := New("bits", 2,
		FieldSpec{Name: "v", Kind: Bits, BitOffset: 5, BitWidth: 5},
	)
	require.NoError(t, err)

	img := []byte{0x1F, 0xFC} // neighbouring bits all set
	require.NoError(t, l.EncodeAt(img, 0, Record{"v": 0x12}))

	got, err := l.Decode(img, 0)
	require.NoError(t, err)
	require.Equal(t, 0x12, got.Int("v"))
	require.Equal(t, byte(0x1F&0x1F|0x40), img[0], "bits below the field survive")
	require.Equal(t, byte(0xFC&^0x03|0x02), img[1], "bits above the field survive")
}

func TestEncodeClampsDecodeDoesNot(t *testing.T) {
	l := playerLayout(t)

	buf, err := l.Encode(Record{"name": "X", "speed": 99, "jersey": 150})
	require.NoError(t, err)

	got, err := l.Decode(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 9, got.Int("speed"), "encode clamps to declared range")
	require.Equal(t, 99, got.Int("jersey"))

	// decode reports raw out-of-range values from a malformed image
	raw := make([]byte, 12)
	raw[8] = 0xFF
	got, err = l.Decode(raw, 0)
	require.NoError(t, err)
	require.Equal(t, 15, got.Int("speed"))
}

func TestStringTableField(t *testing.T) {
	l, err := New("named", 8,
		FieldSpec{Name: "name", Kind: String, Offset: 0, Size: 8, Table: text.ISSTable()},
	)
	require.NoError(t, err)

	buf, err := l.Encode(Record{"name": "Baggio"})
	require.NoError(t, err)

	got, err := l.Decode(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "Baggio", got.String("name"))
}

func TestConstructionRejectsOverflowingField(t *testing.T) {
	_, err := New("bad", 4,
		FieldSpec{Name: "name", Kind: String, Offset: 0, Size: 8},
	)
	require.ErrorIs(t, err, ErrValidation)

	_, err = New("bad bits", 2,
		FieldSpec{Name: "v", Kind: Bits, BitOffset: 14, BitWidth: 4},
	)
	require.ErrorIs(t, err, ErrValidation)
}

func TestDecodeOutOfRange(t *testing.T) {
	l := playerLayout(t)
	_, err := l.Decode(make([]byte, 10), 0)
	require.ErrorIs(t, err, ErrRange)
	_, err = l.Decode(make([]byte, 24), 16)
	require.ErrorIs(t, err, ErrRange)
}

func rosterLayout(t *testing.T) *Layout {
	t.Helper()
	// 2-byte BE length covering prefix+name, then an 8-byte stat tail
	l, err := NewVariable("roster entry", "len", 8,
		FieldSpec{Name: "len", Kind: Uint16BE, Offset: 0},
		FieldSpec{Name: "name", Kind: VarString, Offset: 2},
		FieldSpec{Name: "jersey", Kind: BCD, Offset: 8, FromEnd: true, Min: 1, Max: 99},
		FieldSpec{Name: "speed", Kind: NibbleHigh, Offset: 7, FromEnd: true, Min: 0, Max: 6},
		FieldSpec{Name: "agility", Kind: NibbleLow, Offset: 7, FromEnd: true, Min: 0, Max: 6},
	)
	require.NoError(t, err)
	return l
}

func TestVariableRoundTrip(t *testing.T) {
	l := rosterLayout(t)
	r := Record{"name": "GRETZKY", "jersey": 99, "speed": 6, "agility": 5}

	buf, err := l.Encode(r)
	require.NoError(t, err)
	require.Len(t, buf, 2+7+8)
	require.Equal(t, []byte{0x00, 0x09}, buf[:2], "length prefix covers itself plus the name")

	got, err := l.Decode(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "GRETZKY", got.String("name"))
	require.Equal(t, 99, got.Int("jersey"))
	require.Equal(t, 6, got.Int("speed"))
	require.Equal(t, 5, got.Int("agility"))

	stride, err := l.StrideAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(buf), stride)
}

func TestVariableRejectsBadLength(t *testing.T) {
	l := rosterLayout(t)
	_, err := l.StrideAt([]byte{0x00, 0x01, 0x00}, 0)
	require.ErrorIs(t, err, ErrValidation)
}

// One player rename inside a full 36-team block must not disturb a single
// byte of any other record.
func TestSingleRecordPatchIsolation(t *testing.T) {
	l, err := New("team player", 12,
		FieldSpec{Name: "name", Kind: String, Offset: 0, Size: 8},
		FieldSpec{Name: "speed", Kind: NibbleHigh, Offset: 8},
		FieldSpec{Name: "power", Kind: NibbleLow, Offset: 8},
	)
	require.NoError(t, err)

	const teams, players = 36, 20
	image := make([]byte, 2<<20)
	for i := range image {
		image[i] = byte(i * 31)
	}

	target := 17*players + 4 // team 17, player 4
	offset := 0x1000 + target*12
	require.NoError(t, l.EncodeAt(image, offset, Record{"name": "SMITH", "speed": 5, "power": 2}))

	got, err := l.Decode(image, offset)
	require.NoError(t, err)
	require.Equal(t, "SMITH", got.String("name"))

	reference := make([]byte, len(image))
	for i := range reference {
		reference[i] = byte(i * 31)
	}
	require.True(t, bytes.Equal(image[:offset], reference[:offset]))
	require.True(t, bytes.Equal(image[offset+12:], reference[offset+12:]))
}
