package lzc

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

var codecs = []Codec{Tile{}, RefPack{}}

func corpus(t *testing.T) map[string][]byte {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	incompressible := make([]byte, 4096)
	rng.Read(incompressible)

	tiles := make([]byte, 2048)
	for i := range tiles {
		tiles[i] = byte(i / 32 % 4 * 0x11)
	}

	mixed := append([]byte("ABCABCABCABC"), bytes.Repeat([]byte{0x00}, 300)...)
	mixed = append(mixed, []byte("the quick brown fox jumps over the lazy dog")...)
	mixed = append(mixed, mixed[:64]...)

	return map[string][]byte{
		"empty":          nil,
		"single byte":    {0x42},
		"short":          []byte("abc"),
		"run":            bytes.Repeat([]byte{0xAA}, 256),
		"long run":       bytes.Repeat([]byte{0x55}, 5000),
		"tiles":          tiles,
		"mixed":          mixed,
		"incompressible": incompressible,
	}
}

func TestRoundTrip(t *testing.T) {
	for _, c := range codecs {
		for name, in := range corpus(t) {
			t.Run(c.Name()+"/"+name, func(t *testing.T) {
				packed := c.Compress(in)
				out, consumed, err := c.Decompress(packed, 0)
				require.NoError(t, err)
				require.Equal(t, len(packed), consumed, "consumed must cover the whole stream")
				if len(in) == 0 {
					require.Empty(t, out)
				} else {
					require.Equal(t, in, out)
				}
			})
		}
	}
}

func TestCompressDeterministic(t *testing.T) {
	for _, c := range codecs {
		t.Run(c.Name(), func(t *testing.T) {
			in := corpus(t)["mixed"]
			require.Equal(t, c.Compress(in), c.Compress(in))
		})
	}
}

func TestConsumedLocatesNextStream(t *testing.T) {
	first := []byte("first block first block first block")
	second := bytes.Repeat([]byte{0x77}, 100)
	for _, c := range codecs {
		t.Run(c.Name(), func(t *testing.T) {
			stream := append(c.Compress(first), c.Compress(second)...)

			out, consumed, err := c.Decompress(stream, 0)
			require.NoError(t, err)
			require.Equal(t, first, out)

			out, _, err = c.Decompress(stream, consumed)
			require.NoError(t, err)
			require.Equal(t, second, out)
		})
	}
}

// A 256-byte run must come out run-length encoded, not as literal copies.
func TestRunEncodesAsRun(t *testing.T) {
	in := bytes.Repeat([]byte{0xAB}, 256)

	packed := Tile{}.Compress(in)
	require.Less(t, len(packed), 16, "run must not be stored as literals")
	require.Equal(t, byte(0x7F), packed[0], "extended run opcode")

	packed = RefPack{}.Compress(in)
	require.Less(t, len(packed), 24)
}

func TestTileTruncatedStreams(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"no terminator", []byte{0x03, 'a', 'b', 'c'}},
		{"literal cut short", []byte{0x10, 'a', 'b'}},
		{"run missing value", []byte{0x45}},
		{"copy missing distance", []byte{0x82, 0x01}},
		{"copy before any output", []byte{0x82, 0x04, 0x00, 0x00}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Tile{}.Decompress(tt.in, 0)
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestRefPackRejectsBadStreams(t *testing.T) {
	_, _, err := RefPack{}.Decompress([]byte{0x00, 0x00, 0x00}, 0)
	require.ErrorIs(t, err, ErrDecode)

	// signature but body cut off before the end marker
	_, _, err = RefPack{}.Decompress([]byte{0x10, 0xFB, 0x00, 0x00, 0x10}, 0)
	require.ErrorIs(t, err, ErrDecode)

	// declared size disagrees with the stream
	_, _, err = RefPack{}.Decompress([]byte{0x10, 0xFB, 0x00, 0x00, 0x09, 0xFD, 'a'}, 0)
	require.ErrorIs(t, err, ErrDecode)
}

func TestRefPackSignature(t *testing.T) {
	packed := RefPack{}.Compress([]byte("signature"))
	require.True(t, IsRefPack(packed, 0))
	require.False(t, IsRefPack([]byte{0x10}, 0))
	require.False(t, IsRefPack(packed, len(packed)))
}

func TestRefPackCommandWidths(t *testing.T) {
	// force matches at short, medium, and long range so every command
	// width gets exercised
	pattern := []byte("0123456789abcdef")
	var in []byte
	in = append(in, pattern...)
	in = append(in, pattern...) // short offset
	in = append(in, make([]byte, 2000)...)
	in = append(in, pattern...) // medium offset
	in = append(in, make([]byte, 30000)...)
	in = append(in, pattern...) // long offset

	packed := RefPack{}.Compress(in)
	out, _, err := RefPack{}.Decompress(packed, 0)
	require.NoError(t, err)
	require.Equal(t, in, out)
	require.Less(t, len(packed), len(in)/4)
}

func BenchmarkTileCompress(b *testing.B) {
	in := make([]byte, 64*1024)
	for i := range in {
		in[i] = byte(i / 64)
	}
	b.SetBytes(int64(len(in)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Tile{}.Compress(in)
	}
}

func BenchmarkRefPackCompress(b *testing.B) {
	in := make([]byte, 64*1024)
	for i := range in {
		in[i] = byte(i / 64)
	}
	b.SetBytes(int64(len(in)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RefPack{}.Compress(in)
	}
}
