// Package platform binds the generic layout, codec, archive and
// finalizer machinery to concrete game images. Each target carries its
// own offset tables; those literals come from published editor sources
// and are validated against a reference dump, not derived here.
package platform

import (
	"fmt"

	"github.com/hiitsgabe/rompatch/pkg/layout"
)

// Section is one contiguous run of fixed-stride records. Records from
// First up to the next section's First live at Offset onward.
type Section struct {
	First  int
	Offset int
}

// Straddle splits the record at Index across a sector boundary: Before
// bytes at its linear offset, the remainder at Next.
type Straddle struct {
	Index  int
	Before int
	Next   int
}

// Region places fixed-stride records into a raw image whose logical
// tables are interrupted by sector overhead. Raw optical images keep
// 304 bytes of sync, header and parity per 2352-byte sector, so a
// table that is contiguous in game memory lands in several file
// sections with the occasional record split in two.
type Region struct {
	Stride    int
	Count     int
	Sections  []Section
	Straddles []Straddle
}

// Place returns the file chunks holding record index.
func (r Region) Place(index int) (layout.Placement, error) {
	if index < 0 || index >= r.Count {
		return nil, fmt.Errorf("%w: record %d of %d", layout.ErrRange, index, r.Count)
	}
	sec := r.Sections[0]
	for _, s := range r.Sections[1:] {
		if index < s.First {
			break
		}
		sec = s
	}
	off := sec.Offset + (index-sec.First)*r.Stride
	for _, st := range r.Straddles {
		if st.Index == index {
			return layout.Placement{
				{Offset: off, Size: st.Before},
				{Offset: st.Next, Size: r.Stride - st.Before},
			}, nil
		}
	}
	return layout.Placement{{Offset: off, Size: r.Stride}}, nil
}

// BGR555 packs an RGB888 color into the 15-bit little-endian palette
// format shared by the PS1 and SNES (bit 15 clear).
func BGR555(r, g, b uint8) uint16 {
	return uint16(r>>3) | uint16(g>>3)<<5 | uint16(b>>3)<<10
}
