package platform

import (
	"fmt"
	"strings"

	"github.com/hiitsgabe/rompatch/pkg/layout"
	"github.com/hiitsgabe/rompatch/pkg/text"
)

// Selection-screen team names are proportional tile text: a count byte
// followed by 4-byte entries, one bottom (0xF9) and one top (0xF1)
// tile per character, emitted right to left. A bank-relative pointer
// table in P40000 format locates each team's block, so renaming teams
// means repacking the whole pool and rewriting every pointer.

const (
	issNameSpaceWidth   = 3
	issNameDefaultWidth = 9
	issNameMaxWidth     = 70
)

var issNameCharWidths = map[byte]int{'I': 7, '.': 7, 'M': 8, 'N': 8, 'T': 8, 'W': 8}

// issTopTile returns the upper-half tile for a character, or -1 when
// the character has none.
func issTopTile(c byte) int {
	switch {
	case c >= 'A' && c <= 'P':
		return 0xC0 + int(c-'A')
	case c >= 'Q' && c <= 'Z':
		return 0xE0 + int(c-'Q')
	case c >= '0' && c <= '9':
		return 0xA0 + int(c-'0')
	}
	return -1
}

func issBottomTile(c byte) int {
	switch {
	case c >= 'A' && c <= 'P':
		return 0xD0 + int(c-'A')
	case c >= 'Q' && c <= 'Z':
		return 0xF0 + int(c-'Q')
	case c >= '0' && c <= '9':
		return 0xB0 + int(c-'0')
	case c == '.':
		return 0xFA
	}
	return -1
}

func decodeP40000(b1, b2 byte) int {
	return 0x40000 | int(b2-0x80)<<8 | int(b1)
}

func encodeP40000(addr int) (byte, byte) {
	raw := addr - 0x40000
	return byte(raw), byte(raw>>8) + 0x80
}

// encodeNameText renders a team name into a tile entry block, centered
// and squeezed to the 70-pixel budget when too wide.
func encodeNameText(name string) []byte {
	clean := strings.ToUpper(text.ToASCII(name))

	type placed struct {
		x        int
		top, bot int
	}
	var chars []placed
	x := 0
	for i := 0; i < len(clean); i++ {
		c := clean[i]
		if c == ' ' {
			x += issNameSpaceWidth
			continue
		}
		top, bot := issTopTile(c), issBottomTile(c)
		if top < 0 && bot < 0 {
			continue
		}
		chars = append(chars, placed{x: x, top: top, bot: bot})
		w, ok := issNameCharWidths[c]
		if !ok {
			w = issNameDefaultWidth
		}
		x += w
	}

	width := x
	if width > issNameMaxWidth {
		for i := range chars {
			chars[i].x = chars[i].x * issNameMaxWidth / width
		}
		width = issNameMaxWidth
	}

	half := width / 2
	out := []byte{0}
	count := 0
	for i := len(chars) - 1; i >= 0; i-- {
		xb := byte(chars[i].x - half)
		if chars[i].bot >= 0 {
			out = append(out, 0xF9, xb, byte(chars[i].bot), 0x06)
			count++
		}
		if chars[i].top >= 0 {
			out = append(out, 0xF1, xb, byte(chars[i].top), 0x06)
			count++
		}
	}
	out[0] = byte(count)
	return out
}

// writeNameTexts repacks the team name pool. Unpatched teams keep
// their original blocks byte for byte; patched names are shortened one
// character at a time, longest first, until everything fits the pool.
func (p *ISS) writeNameTexts(image []byte) error {
	if err := issValidate(image); err != nil {
		return err
	}
	addrs := make([]int, issTeamCount)
	blobs := make([][]byte, issTeamCount)
	minAddr := issNameTextEnd
	for i := 0; i < issTeamCount; i++ {
		b1 := image[issNamePointers+i*2]
		b2 := image[issNamePointers+i*2+1]
		addr := decodeP40000(b1, b2)
		if addr < 0x40000 || addr >= issNameTextEnd {
			return fmt.Errorf("%w: team %d name pointer %#x", layout.ErrValidation, i, addr)
		}
		count := int(image[addr])
		blobs[i] = append([]byte(nil), image[addr:addr+1+count*4]...)
		addrs[i] = addr
		if addr < minAddr {
			minAddr = addr
		}
	}
	budget := issNameTextEnd - minAddr

	names := make(map[int]string, len(p.teams))
	for slot, team := range p.teams {
		if team.Name == "" {
			continue
		}
		names[slot] = team.Name
		blobs[slot] = encodeNameText(team.Name)
	}

	for totalLen(blobs) > budget {
		longest, longestLen := -1, 0
		for slot, name := range names {
			if len(name) > 3 && len(blobs[slot]) > longestLen {
				longest, longestLen = slot, len(blobs[slot])
			}
		}
		if longest < 0 {
			return fmt.Errorf("%w: team names exceed %d-byte text pool", layout.ErrValidation, budget)
		}
		names[longest] = names[longest][:len(names[longest])-1]
		blobs[longest] = encodeNameText(names[longest])
	}

	addr := minAddr
	for i, blob := range blobs {
		b1, b2 := encodeP40000(addr)
		image[issNamePointers+i*2] = b1
		image[issNamePointers+i*2+1] = b2
		copy(image[addr:], blob)
		addr += len(blob)
	}
	return nil
}

func totalLen(blobs [][]byte) int {
	n := 0
	for _, b := range blobs {
		n += len(b)
	}
	return n
}
