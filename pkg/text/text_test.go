package text

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToASCII(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Baggio", "Baggio"},
		{"diacritics", "Özil", "Ozil"},
		{"cedilla", "François", "Francois"},
		{"eszett", "Großkreutz", "Grosskreutz"},
		{"slashed o", "Tore André Flø", "Tore Andre Flo"},
		{"ligature", "Æbelø", "AEbelo"},
		{"stroke l", "Błaszczykowski", "Blaszczykowski"},
		{"non latin dropped", "中村 Nakamura", " Nakamura"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ToASCII(tt.in))
		})
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"fits", "RED STAR", 10, "RED STAR"},
		{"word boundary", "BORUSSIA DORTMUND", 12, "BORUSSIA"},
		{"hard cut", "INTERNAZIONALE", 8, "INTERNAZ"},
		{"exact", "AJAX", 4, "AJAX"},
		{"zero budget", "AJAX", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Fit(tt.in, tt.max))
			require.LessOrEqual(t, len(Fit(tt.in, tt.max)), tt.max)
		})
	}
}

func TestISSTableRoundTrip(t *testing.T) {
	table := ISSTable()
	for _, name := range []string{"Baggio", "VAN BASTEN", "O'Neill", "St. Pauli 09"} {
		t.Run(name, func(t *testing.T) {
			enc := table.Encode(name, 16)
			require.Len(t, enc, 16)
			require.Equal(t, name, table.Decode(enc))
		})
	}
}

func TestISSTableEncoding(t *testing.T) {
	table := ISSTable()
	enc := table.Encode("A0a", 4)
	require.Equal(t, []byte{0x6C, 0x62, 0x86, 0x00}, enc)

	// unmapped characters encode as padding
	enc = table.Encode("A#B", 3)
	require.Equal(t, []byte{0x6C, 0x00, 0x6D}, enc)
}

func TestEncodeDoubleByte(t *testing.T) {
	enc := EncodeDoubleByte("Ab", 4)
	require.Len(t, enc, 8)
	require.Equal(t, []byte{0x82, 'A' + 31, 0x82, 'b' + 32, 0x00, 0x00, 0x00, 0x00}, enc)
	require.Equal(t, "Ab", DecodeDoubleByte(enc))
}

func TestEncodeDoubleByteTitlecaseAndBudget(t *testing.T) {
	// budget of 4 characters leaves 3 usable, last slot is the terminator
	enc := EncodeDoubleByte("MILAN", 4)
	require.Len(t, enc, 8)
	require.Equal(t, "Mil", DecodeDoubleByte(enc))
	require.True(t, bytes.Equal(enc[6:8], []byte{0x00, 0x00}))
}

func TestPadRight(t *testing.T) {
	require.Equal(t, []byte{'A', 'B', 0, 0}, PadRight("AB", 4, 0))
	require.Equal(t, []byte{'A', 'B', 'C', 'D'}, PadRight("ABCDE", 4, 0))
}
