package platform

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/hiitsgabe/rompatch/pkg/integrity"
	"github.com/hiitsgabe/rompatch/pkg/layout"
	"github.com/hiitsgabe/rompatch/pkg/patch"
	"github.com/hiitsgabe/rompatch/pkg/rating"
	"github.com/hiitsgabe/rompatch/pkg/text"
)

// NHL94 ships on Genesis and Super Nintendo with the same roster model
// and different plumbing: both store players as length-prefixed name
// records followed by 8 packed stat bytes, but the Genesis length is
// big-endian with an absolute 32-bit pointer table while the SNES uses
// little-endian lengths behind banked 16-bit pointers.
const (
	nhlTeamCount = 26
	nhlStatsSize = 8

	nhlGenPointerTable  = 0x030E
	nhlGenChecksumStub  = 0x0FFACA
	nhlSNESPointerTable = 0xE25E7
	nhlSNESBank         = 0x9C
)

// NHL94Variant selects the cartridge flavor.
type NHL94Variant int

const (
	NHL94Genesis NHL94Variant = iota
	NHL94SuperNES
)

// Roster entry: 2-byte length covering prefix plus name, then the stat
// bytes anchored to the record's end.
func nhlRosterLayout(lengthKind layout.FieldKind) *layout.Layout {
	return mustLayout(layout.NewVariable("roster entry", "len", nhlStatsSize,
		layout.FieldSpec{Name: "len", Kind: lengthKind, Offset: 0},
		layout.FieldSpec{Name: "name", Kind: layout.VarString, Offset: 2},
		layout.FieldSpec{Name: "jersey", Kind: layout.BCD, FromEnd: true, Offset: 8, Min: 1, Max: 99},
		layout.FieldSpec{Name: "weight", Kind: layout.NibbleHigh, FromEnd: true, Offset: 7, Min: 0, Max: 14},
		layout.FieldSpec{Name: "agility", Kind: layout.NibbleLow, FromEnd: true, Offset: 7, Min: 0, Max: 6},
		layout.FieldSpec{Name: "speed", Kind: layout.NibbleHigh, FromEnd: true, Offset: 6, Min: 0, Max: 6},
		layout.FieldSpec{Name: "off_awareness", Kind: layout.NibbleLow, FromEnd: true, Offset: 6, Min: 0, Max: 6},
		layout.FieldSpec{Name: "def_awareness", Kind: layout.NibbleHigh, FromEnd: true, Offset: 5, Min: 0, Max: 6},
		layout.FieldSpec{Name: "shot_power", Kind: layout.NibbleLow, FromEnd: true, Offset: 5, Min: 0, Max: 6},
		layout.FieldSpec{Name: "checking", Kind: layout.NibbleHigh, FromEnd: true, Offset: 4, Min: 0, Max: 6},
		layout.FieldSpec{Name: "handedness", Kind: layout.NibbleLow, FromEnd: true, Offset: 4, Min: 0, Max: 1},
		layout.FieldSpec{Name: "stick_handling", Kind: layout.NibbleHigh, FromEnd: true, Offset: 3, Min: 0, Max: 6},
		layout.FieldSpec{Name: "shot_accuracy", Kind: layout.NibbleLow, FromEnd: true, Offset: 3, Min: 0, Max: 6},
		layout.FieldSpec{Name: "endurance", Kind: layout.NibbleHigh, FromEnd: true, Offset: 2, Min: 0, Max: 6},
		layout.FieldSpec{Name: "roughness", Kind: layout.NibbleLow, FromEnd: true, Offset: 2, Min: 0, Max: 6},
		layout.FieldSpec{Name: "pass_accuracy", Kind: layout.NibbleHigh, FromEnd: true, Offset: 1, Min: 0, Max: 6},
		layout.FieldSpec{Name: "aggression", Kind: layout.NibbleLow, FromEnd: true, Offset: 1, Min: 0, Max: 6},
	))
}

var (
	nhlEntryBE = nhlRosterLayout(layout.Uint16BE)
	nhlEntryLE = nhlRosterLayout(layout.Uint16LE)
)

// NHLPlayer is one roster entry. Attribute values use the in-game 0-6
// scale; WeightClass is 0-14 and Handedness 0 for left, 1 for right.
type NHLPlayer struct {
	Name        string
	Jersey      int
	WeightClass int
	Handedness  int
	Attributes  rating.Record
}

// NHL94 assembles a patch.Target for either cartridge.
type NHL94 struct {
	variant    NHL94Variant
	teams      map[int][]NHLPlayer
	finalizers []integrity.Finalizer
}

// NewNHL94Genesis targets the Mega Drive cartridge. The in-ROM
// checksum routine gets stubbed out at finalization because the
// header checksum alone cannot satisfy it.
func NewNHL94Genesis() *NHL94 {
	return &NHL94{
		variant:    NHL94Genesis,
		teams:      make(map[int][]NHLPlayer),
		finalizers: []integrity.Finalizer{integrity.NewGenesis(integrity.WithChecksumBypass(nhlGenChecksumStub))},
	}
}

// NewNHL94SuperNES targets the SNES cartridge, tolerating an SMC
// copier header.
func NewNHL94SuperNES() *NHL94 {
	return &NHL94{
		variant:    NHL94SuperNES,
		teams:      make(map[int][]NHLPlayer),
		finalizers: []integrity.Finalizer{integrity.NewSNES()},
	}
}

func (n *NHL94) Name() string {
	if n.variant == NHL94Genesis {
		return "nhl94-genesis"
	}
	return "nhl94-snes"
}

// SetTeam assigns a roster to a team slot (0-25).
func (n *NHL94) SetTeam(slot int, players []NHLPlayer) error {
	if slot < 0 || slot >= nhlTeamCount {
		return fmt.Errorf("%w: team slot %d", layout.ErrRange, slot)
	}
	n.teams[slot] = players
	return nil
}

func (n *NHL94) RecordSteps() []patch.Step {
	slots := make([]int, 0, len(n.teams))
	for slot := range n.teams {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	steps := make([]patch.Step, 0, len(slots))
	for _, slot := range slots {
		slot := slot
		players := n.teams[slot]
		steps = append(steps, patch.Step{
			Label: fmt.Sprintf("team %d roster", slot),
			Apply: func(image []byte) error { return n.writeRoster(image, slot, players) },
		})
	}
	return steps
}

func (n *NHL94) ArchiveSteps() []patch.Step { return nil }

func (n *NHL94) Finalizers() []integrity.Finalizer { return n.finalizers }

func (n *NHL94) entryLayout() *layout.Layout {
	if n.variant == NHL94Genesis {
		return nhlEntryBE
	}
	return nhlEntryLE
}

func (n *NHL94) readLen(image []byte, offset int) int {
	if n.variant == NHL94Genesis {
		return int(binary.BigEndian.Uint16(image[offset:]))
	}
	return int(binary.LittleEndian.Uint16(image[offset:]))
}

// teamRegion locates a team's player records: the span from the first
// record through the existing end sentinel.
func (n *NHL94) teamRegion(image []byte, slot int) (start, size int, err error) {
	if n.variant == NHL94Genesis {
		ptrOff := nhlGenPointerTable + slot*4
		if ptrOff+4 > len(image) {
			return 0, 0, fmt.Errorf("%w: pointer table truncated", layout.ErrValidation)
		}
		base := int(binary.BigEndian.Uint32(image[ptrOff:]))
		if base+2 > len(image) {
			return 0, 0, fmt.Errorf("%w: team %d data at %#x beyond image", layout.ErrValidation, slot, base)
		}
		start = base + int(binary.BigEndian.Uint16(image[base:]))
	} else {
		pad := 0
		if len(image)%0x8000 == 512 {
			pad = 512
		}
		ptrOff := pad + nhlSNESPointerTable + slot*2
		if ptrOff+2 > len(image) {
			return 0, 0, fmt.Errorf("%w: pointer table truncated", layout.ErrValidation)
		}
		addr := nhlSNESBank<<16 | int(image[ptrOff+1])<<8 | int(image[ptrOff])
		base := pad + snesFileOffset(addr)
		if base+2 > len(image) {
			return 0, 0, fmt.Errorf("%w: team %d data at %#x beyond image", layout.ErrValidation, slot, base)
		}
		start = base + n.readLen(image, base)
	}

	offset := start
	for offset+2 <= len(image) {
		length := n.readLen(image, offset)
		if length < 3 {
			offset += 2
			break
		}
		offset += length + nhlStatsSize
	}
	if offset > len(image) {
		return 0, 0, fmt.Errorf("%w: team %d roster runs past image end", layout.ErrValidation, slot)
	}
	return start, offset - start, nil
}

// snesFileOffset maps a HiROM-banked address to a headerless file
// offset.
func snesFileOffset(addr int) int {
	section := (addr - 0x800000) >> 16
	return section*0x8000 + addr%0x8000
}

// writeRoster refits a team's region with new records. Names are
// truncated when the region is tight, players that cannot fit at all
// are dropped, and the leftover space is zeroed behind the sentinel.
// The region never grows: surrounding teams stay untouched.
func (n *NHL94) writeRoster(image []byte, slot int, players []NHLPlayer) error {
	start, size, err := n.teamRegion(image, slot)
	if err != nil {
		return err
	}
	entry := n.entryLayout()
	offset := start
	end := start + size

	for _, player := range players {
		maxName := end - offset - 2 - nhlStatsSize - 2
		if maxName < 1 {
			break
		}
		rec := nhlRecord(player, maxName)
		if err := entry.EncodeAt(image, offset, rec); err != nil {
			return fmt.Errorf("player %q: %w", player.Name, err)
		}
		offset += entry.Stride(rec)
	}

	// End sentinel, then zero fill. The SNES build marks the end with
	// an empty string record instead of a bare zero.
	if offset+2 <= end {
		if n.variant == NHL94SuperNES {
			image[offset] = 0x02
			image[offset+1] = 0x00
		} else {
			image[offset] = 0x00
			image[offset+1] = 0x00
		}
		offset += 2
	}
	for ; offset < end; offset++ {
		image[offset] = 0
	}
	return nil
}

func nhlRecord(player NHLPlayer, maxName int) layout.Record {
	name := text.Fit(text.ToASCII(player.Name), maxName)
	rec := layout.Record{
		"name":       name,
		"jersey":     player.Jersey,
		"weight":     player.WeightClass,
		"handedness": player.Handedness,
	}
	for _, attr := range []string{
		"agility", "speed", "off_awareness", "def_awareness", "shot_power",
		"checking", "stick_handling", "shot_accuracy", "endurance",
		"roughness", "pass_accuracy", "aggression",
	} {
		rec[attr] = player.Attributes[attr]
	}
	return rec
}
