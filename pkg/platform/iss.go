package platform

import (
	"fmt"
	"math"
	"sort"

	"github.com/hiitsgabe/rompatch/pkg/integrity"
	"github.com/hiitsgabe/rompatch/pkg/layout"
	"github.com/hiitsgabe/rompatch/pkg/patch"
	"github.com/hiitsgabe/rompatch/pkg/rating"
	"github.com/hiitsgabe/rompatch/pkg/text"
)

// ISS targets the headerless SNES ISS Deluxe image. Player name and
// data tables use two different team orderings; kit and flag palettes
// are split across two ranges each with their own team order.
const (
	issTeamCount      = 27
	issPlayersPerTeam = 15

	issPlayerNames  = 0x3B62C // 8 bytes per player, name order
	issPlayerData   = 0x387EC // 6 bytes per player, enum order
	issKit1Range1   = 0x2EA3B
	issKit1Range2   = 0x2F0EB
	issKit2Range1   = 0x2ECBB
	issKit2Range2   = 0x2F1EB
	issGKRange1     = 0x2EF37
	issGKRange2     = 0x2F2E7
	issFlagRange1   = 0x2DD91
	issFlagRange2   = 0x2DE4F
	issPredominant  = 0x8DB2
	issNamePointers = 0x39DAE // 2 bytes per team, P40000 format
	issNameTextEnd  = 0x44478 // hard ceiling for name text data

	issMinImage = 1_048_576 // smallest shipped cartridge (8 Mbit)
)

// issValidate rejects images too small to be an ISS Deluxe dump before
// any table write indexes into them.
func issValidate(image []byte) error {
	if len(image) < issMinImage {
		return fmt.Errorf("%w: image is %d bytes, smallest ISS Deluxe dump is %d", layout.ErrValidation, len(image), issMinImage)
	}
	return nil
}

var issEnumOrder = [issTeamCount]string{
	"Germany", "Italy", "Holland", "Spain", "England", "Scotland", "Wales",
	"France", "Denmark", "Sweden", "Norway", "Ireland", "Belgium", "Austria",
	"Switz", "Romania", "Bulgaria", "Russia", "Argentina", "Brazil",
	"Colombia", "Mexico", "U.S.A.", "Nigeria", "Cameroon", "S.Korea",
	"Super Star",
}

// Player names are stored in a different team order than player data.
var issNameOrder = [issTeamCount]string{
	"Germany", "Italy", "Holland", "Spain", "England", "Wales", "France",
	"Denmark", "Sweden", "Norway", "Ireland", "Belgium", "Austria", "Switz",
	"Romania", "Bulgaria", "Russia", "Argentina", "Brazil", "Colombia",
	"Mexico", "U.S.A.", "Nigeria", "Cameroon", "Scotland", "S.Korea",
	"Super Star",
}

var issKitRange1 = []string{
	"Germany", "Italy", "Holland", "Spain", "England", "France", "Sweden",
	"Ireland", "Belgium", "Romania", "Bulgaria", "Argentina", "Brazil",
	"Colombia", "Mexico", "U.S.A.", "Nigeria", "Cameroon", "Super Star",
}

var issKitRange2 = []string{
	"Russia", "Scotland", "S.Korea", "Wales", "Norway", "Switz",
	"Denmark", "Austria",
}

var issFlagOrder1 = []string{
	"Germany", "England", "Italy", "Holland", "France", "Spain", "Belgium",
	"Ireland", "Colombia", "Brazil", "Argentina", "Mexico", "Nigeria",
	"Cameroon", "U.S.A.", "Bulgaria", "Romania", "Sweden",
}

var issFlagOrder2 = []string{
	"Scotland", "S.Korea", "Super Star", "Russia", "Switz", "Denmark",
	"Austria", "Wales", "Norway",
}

// issData is the 6-byte per-player ability block. The sub-byte fields
// leave the surrounding appearance bits alone.
var issData = mustLayout(layout.New("player data", 6,
	layout.FieldSpec{Name: "speedRaw", Kind: layout.Uint8, Offset: 0},
	layout.FieldSpec{Name: "shooting", Kind: layout.Bits, BitOffset: 8, BitWidth: 3},
	layout.FieldSpec{Name: "technique", Kind: layout.Bits, BitOffset: 16, BitWidth: 3},
	layout.FieldSpec{Name: "number", Kind: layout.NibbleLow, Offset: 3},
	layout.FieldSpec{Name: "stamina", Kind: layout.NibbleLow, Offset: 4},
	layout.FieldSpec{Name: "hair", Kind: layout.NibbleLow, Offset: 5},
	layout.FieldSpec{Name: "special", Kind: layout.Bits, BitOffset: 46, BitWidth: 1},
))

// issSpeedByte encodes the 1-16 speed scale into the ROM's byte form:
// 1-7 are multiples of 0x20, 8-16 sit one below a multiple.
func issSpeedByte(v int) byte {
	if v < 1 {
		v = 1
	}
	if v > 16 {
		v = 16
	}
	if v <= 7 {
		return byte((v - 1) * 0x20)
	}
	n := (v-8)*0x20 - 1
	if n < 0 {
		n = 0
	}
	return byte(n)
}

// issOddIndex folds the odd 1-15 shooting/technique scale into its
// 3-bit storage index.
func issOddIndex(v int) int {
	idx := (v - 1) / 2
	if idx < 0 {
		idx = 0
	}
	if idx > 7 {
		idx = 7
	}
	return idx
}

// ISSPlayer is one squad entry.
type ISSPlayer struct {
	Name       string
	Number     int
	HairStyle  int
	Special    bool
	Attributes rating.Record // speed, shooting, stamina, technique
}

// ISSTeam replaces one national team slot.
type ISSTeam struct {
	Name       string
	KitHome    [][3]uint8 // shirt, shorts, socks
	KitAway    [][3]uint8
	KitGK      [][3]uint8 // shirt, shorts
	FlagColors [][3]uint8 // up to 4
	Players    []ISSPlayer
}

// ISS assembles a patch.Target for the ISS Deluxe ROM.
type ISS struct {
	teams map[int]ISSTeam
	snes  *integrity.SNES
}

// NewISS returns an empty target.
func NewISS() *ISS {
	return &ISS{teams: make(map[int]ISSTeam), snes: integrity.NewSNES()}
}

func (p *ISS) Name() string { return "iss-deluxe" }

// SetTeam assigns a team to an enum-order slot (0-26).
func (p *ISS) SetTeam(slot int, team ISSTeam) error {
	if slot < 0 || slot >= issTeamCount {
		return fmt.Errorf("%w: team slot %d", layout.ErrRange, slot)
	}
	p.teams[slot] = team
	return nil
}

func (p *ISS) RecordSteps() []patch.Step {
	slots := make([]int, 0, len(p.teams))
	for slot := range p.teams {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	steps := make([]patch.Step, 0, len(slots)+1)
	for _, slot := range slots {
		slot := slot
		team := p.teams[slot]
		steps = append(steps, patch.Step{
			Label: fmt.Sprintf("team %d: %s", slot, team.Name),
			Apply: func(image []byte) error { return p.writeTeam(image, slot, team) },
		})
	}
	if len(slots) > 0 {
		steps = append(steps, patch.Step{
			Label: "selection screen names",
			Apply: p.writeNameTexts,
		})
	}
	return steps
}

func (p *ISS) ArchiveSteps() []patch.Step { return nil }

func (p *ISS) Finalizers() []integrity.Finalizer {
	return []integrity.Finalizer{p.snes}
}

func (p *ISS) writeTeam(image []byte, slot int, team ISSTeam) error {
	if err := issValidate(image); err != nil {
		return err
	}
	if err := p.writePlayers(image, slot, team.Players); err != nil {
		return err
	}
	p.writeKits(image, slot, team)
	p.writeFlag(image, slot, team)
	if len(team.KitHome) > 0 {
		c := team.KitHome[0]
		image[issPredominant+slot] = predominantColor(c[0], c[1], c[2])
	}
	return nil
}

func (p *ISS) writePlayers(image []byte, slot int, players []ISSPlayer) error {
	nameSlot := issNameSlot(slot)
	nameBase := issPlayerNames + nameSlot*issPlayersPerTeam*8
	dataBase := issPlayerData + slot*issPlayersPerTeam*6
	table := text.ISSTable()

	for i, player := range players {
		if i >= issPlayersPerTeam {
			break
		}
		copy(image[nameBase+i*8:], table.Encode(player.Name, 8))

		attrs := player.Attributes
		special := 0
		if player.Special {
			special = 1
		}
		rec := layout.Record{
			"speedRaw":  int(issSpeedByte(attrs["speed"])),
			"shooting":  issOddIndex(attrs["shooting"]),
			"technique": issOddIndex(attrs["technique"]),
			"number":    clampInt(player.Number, 1, 16) - 1,
			"stamina":   clampInt(attrs["stamina"], 1, 16) - 1,
			"hair":      clampInt(player.HairStyle, 0, 10),
			"special":   special,
		}
		if err := issData.EncodeAt(image, dataBase+i*6, rec); err != nil {
			return fmt.Errorf("player %q: %w", player.Name, err)
		}
	}
	return nil
}

func issNameSlot(slot int) int {
	name := issEnumOrder[slot]
	for i, n := range issNameOrder {
		if n == name {
			return i
		}
	}
	return slot
}

func (p *ISS) writeKits(image []byte, slot int, team ISSTeam) {
	name := issEnumOrder[slot]
	kit1, kit2 := issKit1Range1, issKit2Range1
	pos := indexOf(issKitRange1, name)
	if pos < 0 {
		kit1, kit2 = issKit1Range2, issKit2Range2
		pos = indexOf(issKitRange2, name)
		if pos < 0 {
			return
		}
	}
	writeOutfieldKit(image, kit1+pos*32, team.KitHome)
	writeOutfieldKit(image, kit2+pos*32, team.KitAway)

	gkBase := issGKRange1
	gkPos := indexOf(issKitRange1[:18], name)
	if gkPos < 0 {
		gkBase = issGKRange2
		gkPos = indexOf(issKitRange2, name)
		if gkPos < 0 {
			return
		}
	}
	writeGKKit(image, gkBase+gkPos*24, team.KitGK)
}

// writeOutfieldKit fills the first 16 bytes of a 32-byte kit block:
// shirt in 3 shades, shorts in 3, socks in 2. The hair and skin words
// behind them stay untouched.
func writeOutfieldKit(image []byte, offset int, colors [][3]uint8) {
	if len(colors) == 0 {
		return
	}
	shirt := colors[0]
	shorts, socks := shirt, shirt
	if len(colors) > 1 {
		shorts = colors[1]
	}
	if len(colors) > 2 {
		socks = colors[2]
	}
	putShades(image[offset:], makeShades(shirt, 3))
	putShades(image[offset+6:], makeShades(shorts, 3))
	putShades(image[offset+12:], makeShades(socks, 2))
}

// writeGKKit fills the first 12 bytes of a 24-byte keeper block: a
// near-white specular word, 4 shirt shades, one shorts color.
func writeGKKit(image []byte, offset int, colors [][3]uint8) {
	if len(colors) == 0 {
		return
	}
	shirt := colors[0]
	shorts := shirt
	if len(colors) > 1 {
		shorts = colors[1]
	}
	image[offset] = 0xFE
	image[offset+1] = 0x7F
	putShades(image[offset+2:], makeShades(shirt, 4))
	s := BGR555(shorts[0], shorts[1], shorts[2])
	image[offset+10] = byte(s)
	image[offset+11] = byte(s >> 8)
}

func (p *ISS) writeFlag(image []byte, slot int, team ISSTeam) {
	if len(team.FlagColors) == 0 {
		return
	}
	name := issEnumOrder[slot]
	base := issFlagRange1
	pos := indexOf(issFlagOrder1, name)
	if pos < 0 {
		base = issFlagRange2
		pos = indexOf(issFlagOrder2, name)
		if pos < 0 {
			return
		}
	}
	off := base + pos*10
	for i := 0; i < 10; i++ {
		image[off+i] = 0
	}
	for i, c := range team.FlagColors {
		if i == 4 {
			break
		}
		v := BGR555(c[0], c[1], c[2])
		image[off+i*2] = byte(v)
		image[off+i*2+1] = byte(v >> 8)
	}
}

// makeShades derives a dark-to-light gradient from one color. Bright
// base colors darken toward shadow; dark ones lighten toward white.
func makeShades(c [3]uint8, count int) []uint16 {
	r5 := int(c[0]) * 31 / 255
	g5 := int(c[1]) * 31 / 255
	b5 := int(c[2]) * 31 / 255

	shades := make([]uint16, count)
	bright := (r5 + g5 + b5) > 66
	for i := 0; i < count; i++ {
		var t float64
		if count > 1 {
			if bright {
				t = float64(count-1-i) / float64(count-1) * 0.5
			} else {
				t = float64(i) / float64(count-1) * 0.5
			}
		}
		var rv, gv, bv int
		if bright {
			rv = int(math.Round(float64(r5) * (1 - t)))
			gv = int(math.Round(float64(g5) * (1 - t)))
			bv = int(math.Round(float64(b5) * (1 - t)))
		} else {
			rv = int(math.Round(float64(r5) + t*float64(31-r5)))
			gv = int(math.Round(float64(g5) + t*float64(31-g5)))
			bv = int(math.Round(float64(b5) + t*float64(31-b5)))
		}
		shades[i] = uint16(rv) | uint16(gv)<<5 | uint16(bv)<<10
	}
	return shades
}

func putShades(dst []byte, shades []uint16) {
	for i, s := range shades {
		dst[i*2] = byte(s)
		dst[i*2+1] = byte(s >> 8)
	}
}

func predominantColor(r, g, b uint8) byte {
	maxC := maxByte(r, maxByte(g, b))
	minC := minByte(r, minByte(g, b))
	switch {
	case maxC > 200 && maxC-minC < 50:
		return 0 // white
	case r >= g && r >= b:
		if g > 150 && g > b {
			return 3 // yellow
		}
		return 2 // red
	case g >= r && g >= b:
		return 4 // green
	default:
		return 1 // blue
	}
}

func indexOf(list []string, name string) int {
	for i, n := range list {
		if n == name {
			return i
		}
	}
	return -1
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxByte(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

func minByte(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}
