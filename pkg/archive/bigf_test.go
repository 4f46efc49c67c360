package archive

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildBIGF(t *testing.T, files map[string][]byte, order ...string) []byte {
	t.Helper()
	headerSize := 16
	for _, name := range order {
		headerSize += 8 + len(name) + 1
	}

	out := make([]byte, 0, 4096)
	out = append(out, bigfMagic[:]...)
	out = append(out, make([]byte, 12)...)
	dirPos := make([]int, len(order))
	for i, name := range order {
		dirPos[i] = len(out)
		out = append(out, make([]byte, 4)...)
		out = binary.BigEndian.AppendUint32(out, uint32(len(files[name])))
		out = append(out, name...)
		out = append(out, 0)
	}
	out = append(out, make([]byte, align(len(out), bigfAlign)-len(out))...)
	for i, name := range order {
		binary.BigEndian.PutUint32(out[dirPos[i]:], uint32(len(out)))
		out = append(out, files[name]...)
		out = append(out, make([]byte, align(len(out), bigfAlign)-len(out))...)
	}
	binary.LittleEndian.PutUint32(out[4:], uint32(len(out)))
	binary.BigEndian.PutUint32(out[8:], uint32(len(order)))
	binary.BigEndian.PutUint32(out[12:], uint32(headerSize))
	return out
}

func TestOpenBIGF(t *testing.T) {
	raw := buildBIGF(t, map[string][]byte{
		"nhl2007.tdb": []byte("master"),
		"nhlrost.tdb": []byte("roster data"),
	}, "nhl2007.tdb", "nhlrost.tdb")

	b, err := OpenBIGF(raw)
	require.NoError(t, err)
	require.Len(t, b.Entries(), 2)

	data, err := b.ExtractName("NHL2007.TDB") // lookup is case-insensitive
	require.NoError(t, err)
	require.Equal(t, []byte("master"), data)

	_, err = b.ExtractName("missing.tdb")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenBIGFRejectsGarbage(t *testing.T) {
	_, err := OpenBIGF([]byte("FGIB0000000000000000"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestBIGFReplaceInPlaceKeepsDirectorySize(t *testing.T) {
	raw := buildBIGF(t, map[string][]byte{"a.tdb": bytes.Repeat([]byte{0xAA}, 64)}, "a.tdb")
	b, err := OpenBIGF(raw)
	require.NoError(t, err)

	require.NoError(t, b.ReplaceName("a.tdb", []byte("short")))
	require.False(t, b.Dirty())

	// the directory still records the original allocation
	e, ok := b.Lookup("a.tdb")
	require.True(t, ok)
	require.Equal(t, 64, e.Size)

	data, err := b.ExtractName("a.tdb")
	require.NoError(t, err)
	require.Equal(t, []byte("short"), data[:5])
	require.Equal(t, make([]byte, 59), data[5:], "slot remainder is zero-filled")
}

func TestBIGFRebuildWithOversizedMember(t *testing.T) {
	raw := buildBIGF(t, map[string][]byte{
		"a.tdb": []byte("first"),
		"b.tdb": []byte("second"),
	}, "a.tdb", "b.tdb")
	b, err := OpenBIGF(raw)
	require.NoError(t, err)

	grown := bytes.Repeat([]byte{0x5A}, 300)
	require.NoError(t, b.ReplaceName("a.tdb", grown))
	require.True(t, b.Dirty())

	out, err := b.Rebuild()
	require.NoError(t, err)
	require.False(t, b.Dirty())

	b2, err := OpenBIGF(out)
	require.NoError(t, err)
	data, err := b2.ExtractName("a.tdb")
	require.NoError(t, err)
	require.Equal(t, grown, data)
	data, err = b2.ExtractName("b.tdb")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), data)

	require.Equal(t, uint32(len(out)), binary.LittleEndian.Uint32(out[4:8]))
	for _, e := range b2.Entries() {
		require.Zero(t, e.Offset%bigfAlign, "entry %q not aligned", e.Name)
	}
}
