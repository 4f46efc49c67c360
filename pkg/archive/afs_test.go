package archive

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildAFS(t *testing.T, payloads ...[]byte) []byte {
	t.Helper()
	headerSize := align(8+len(payloads)*8, afsSectorSize)
	total := headerSize
	for _, p := range payloads {
		total += align(len(p), afsSectorSize)
	}
	raw := make([]byte, total)
	copy(raw, afsMagic[:])
	binary.LittleEndian.PutUint32(raw[4:], uint32(len(payloads)))
	offset := headerSize
	for i, p := range payloads {
		binary.LittleEndian.PutUint32(raw[8+i*8:], uint32(offset))
		binary.LittleEndian.PutUint32(raw[12+i*8:], uint32(len(p)))
		copy(raw[offset:], p)
		offset += align(len(p), afsSectorSize)
	}
	return raw
}

func TestOpenAFS(t *testing.T) {
	raw := buildAFS(t, []byte("alpha"), bytes.Repeat([]byte{0xCD}, 3000))
	a, err := OpenAFS(raw)
	require.NoError(t, err)

	entries := a.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, 5, entries[0].Size)
	require.Equal(t, 3000, entries[1].Size)

	data, err := a.Extract(0)
	require.NoError(t, err)
	require.Equal(t, []byte("alpha"), data)
}

func TestOpenAFSRejectsGarbage(t *testing.T) {
	_, err := OpenAFS([]byte("NOPE1234"))
	require.ErrorIs(t, err, ErrValidation)

	// count pointing past the end of the file
	raw := buildAFS(t, []byte("x"))
	binary.LittleEndian.PutUint32(raw[4:], 100000)
	_, err = OpenAFS(raw)
	require.ErrorIs(t, err, ErrValidation)
}

func TestAFSReplaceInPlace(t *testing.T) {
	raw := buildAFS(t, []byte("0123456789"), []byte("second"))
	originalLen := len(raw)
	a, err := OpenAFS(raw)
	require.NoError(t, err)

	require.NoError(t, a.Replace(0, []byte("abc")))
	require.False(t, a.Dirty())
	require.Equal(t, originalLen, len(a.Bytes()), "in-place replace never changes the total size")

	// shorter data comes back zero-padded to the slot size
	data, err := a.Extract(0)
	require.NoError(t, err)
	require.Equal(t, append([]byte("abc"), make([]byte, 7)...), data)

	// the neighbouring entry is untouched
	data, err = a.Extract(1)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), data)
}

func TestAFSOversizedReplace(t *testing.T) {
	payload := bytes.Repeat([]byte{0x11}, 1000)
	bigger := bytes.Repeat([]byte{0x22}, 1100) // 10% larger

	t.Run("rebuild disabled", func(t *testing.T) {
		a, err := OpenAFS(buildAFS(t, payload))
		require.NoError(t, err)
		require.ErrorIs(t, a.Replace(0, bigger), ErrCapacity)
	})

	t.Run("rebuild enabled", func(t *testing.T) {
		a, err := OpenAFS(buildAFS(t, payload, []byte("tail")), WithRebuild())
		require.NoError(t, err)
		require.NoError(t, a.Replace(0, bigger))
		require.True(t, a.Dirty())

		out, err := a.Rebuild()
		require.NoError(t, err)
		require.False(t, a.Dirty())

		a2, err := OpenAFS(out)
		require.NoError(t, err)
		data, err := a2.Extract(0)
		require.NoError(t, err)
		require.Equal(t, bigger, data)
		data, err = a2.Extract(1)
		require.NoError(t, err)
		require.Equal(t, []byte("tail"), data)

		for _, e := range a2.Entries() {
			require.Zero(t, e.Offset%afsSectorSize, "entry %d not sector aligned", e.Index)
		}
	})
}

func TestAFSEntryOutOfRange(t *testing.T) {
	a, err := OpenAFS(buildAFS(t, []byte("only")))
	require.NoError(t, err)
	_, err = a.Extract(1)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, a.Replace(-1, nil), ErrNotFound)
}
