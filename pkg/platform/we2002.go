package platform

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hiitsgabe/rompatch/pkg/integrity"
	"github.com/hiitsgabe/rompatch/pkg/layout"
	"github.com/hiitsgabe/rompatch/pkg/patch"
	"github.com/hiitsgabe/rompatch/pkg/rating"
	"github.com/hiitsgabe/rompatch/pkg/text"
)

// WE2002 targets the PS1 Winning Eleven 2002 BIN image (raw Mode 2,
// 2352 bytes per sector). Offsets are absolute raw file positions from
// the WE2002-editor-2.0 source. The image stores 462 Master League
// players in fixed tables and team names as budgeted variable strings.
const (
	weTeamCount   = 32
	wePlayerCount = 462
	weNameSize    = 10
	weCaratSize   = 12

	weNomiSQ1  = 1_012_640
	weNomiSQ2  = 1_881_968
	weNomiSQ3  = 2_003_996
	weNomiSQ4  = 2_830_160
	weNomiSQ5  = 4_822_908
	weNomiSQ6  = 5_651_448
	weNomiSQ6A = 5_651_880 // SQ6 continuation past its sector boundary
	weNomiSQM  = 4_598_596 // lowercase name table
	weNomiSQK  = 2_002_316
	weNomiAB1  = 2_004_996
	weNomiAB2  = 5_651_068
	weNomiAB3  = 4_234_484
	weForma1   = 1_929_004
	weForma2   = 2_005_412
	weForma3   = 2_328_060
	weForma4   = 4_904_664
	weForma5   = 5_711_640
	weJerseyML = 2_671_896
	weBarML    = 2_328_803 // ML force bars, after the 63 national 5-byte blocks

	weNatCount = 63 // national + all-star entries preceding the ML block
)

var weNameRegion = Region{
	Stride: weNameSize,
	Count:  wePlayerCount,
	Sections: []Section{
		{First: 0, Offset: 2_006_288},
		{First: 204, Offset: 2_008_632},
		{First: 409, Offset: 2_010_986},
	},
	Straddles: []Straddle{{Index: 408, Before: 8, Next: 2_010_984}},
}

var weCaratRegion = Region{
	Stride: weCaratSize,
	Count:  wePlayerCount,
	Sections: []Section{
		{First: 0, Offset: 2_204_112},
		{First: 149, Offset: 2_206_204},
		{First: 320, Offset: 2_208_560},
	},
	Straddles: []Straddle{
		{Index: 148, Before: 8, Next: 2_206_200},
		{Index: 319, Before: 4, Next: 2_208_552},
	},
}

// Per-slot name budgets for the 95 team entries (63 national, 32 ML).
// ML slot s uses entry 63+s; ML entries are laid out in reverse slot
// order on disk.
var weLunNomi1 = [95]int{
	8, 12, 8, 8, 12, 8, 8, 8, 12, 12, 8, 8, 8, 8, 8, 8, 8, 8, 12, 8, 8, 12, 8, 12, 8, 12, 8, 8, 8, 8,
	8, 8, 8, 8, 12, 16, 8, 12, 8, 12, 12, 8, 8, 8, 12, 8, 12, 8, 8, 8, 8, 8, 16, 12,
	16, 16, 16, 16, 20, 16, 16, 16, 20,
	8, 8, 8, 12, 12, 12, 12, 12, 8, 12, 12, 12, 12, 12, 8, 12,
	16, 8, 8, 12, 12, 8, 8, 8, 8, 12, 8, 8, 16, 16, 8, 12,
}

var weLunNomi2 = [95]int{
	8, 12, 8, 12, 12, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 12, 12, 12, 8, 8, 8, 8, 8, 12, 8, 12, 8, 8, 8, 8,
	8, 8, 8, 12, 8, 8, 8, 8, 8, 8, 8, 8, 8, 4, 12, 8, 12, 8, 8, 8, 8, 8, 12, 12,
	16, 16, 16, 12, 16, 12, 12, 16, 16,
	8, 8, 8, 12, 8, 8, 16, 8, 8, 12, 12, 12, 12, 12, 8, 12,
	12, 8, 8, 8, 12, 8, 8, 8, 12, 12, 8, 8, 12, 16, 8, 12,
}

// Variant 3 shares variant 1's budgets.
var weLunNomi3 = weLunNomi1

var weLunNomi4 = [95]int{
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 4, 8, 8, 8, 8, 4, 4, 4, 8, 8, 8,
	8, 8, 16, 12, 12, 12, 12, 12, 16,
	8, 8, 8, 8, 8, 8, 12, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	12, 8, 4, 8, 8, 8, 8, 8, 8, 12, 8, 4, 8, 12, 8, 8,
}

var weLunNomi5 = [95]int{
	8, 12, 8, 12, 8, 8, 8, 8, 8, 4, 8, 4, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 12, 8, 8, 8, 4, 8, 4,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 4, 8, 8, 8, 8, 8, 8, 8, 4, 12, 8,
	12, 16, 12, 12, 12, 12, 12, 12, 12,
	8, 8, 8, 8, 8, 8, 12, 8, 8, 8, 8, 12, 12, 8, 8, 8,
	12, 8, 4, 8, 12, 8, 8, 8, 8, 12, 8, 4, 12, 12, 8, 8,
}

var weLunNomi6 = [95]int{
	8, 12, 8, 12, 8, 8, 8, 8, 8, 4, 8, 4, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 12, 8, 8, 8, 4, 8, 4,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 4, 8, 8, 8, 8, 8, 8, 8, 4, 12, 8,
	12, 16, 16, 12, 12, 12, 12, 16, 16,
	8, 8, 8, 8, 8, 8, 12, 8, 8, 8, 8, 12, 12, 8, 8, 8,
	12, 8, 4, 8, 12, 8, 8, 8, 8, 12, 8, 4, 12, 12, 8, 8,
}

// The lowercase table shares variant 6's budgets.
var weLunNomiMin = weLunNomi6

// Double-byte name budgets (characters, two bytes each).
var weLunNomiK = [95]int{
	8, 8, 6, 8, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 8, 8, 6, 6, 8, 6, 6, 6, 8, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 8, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 8, 6, 6, 6, 6, 6, 8, 8,
	12, 12, 14, 12, 12, 12, 10, 12, 14,
	6, 6, 6, 8, 8, 6, 10, 8, 6, 8, 8, 8, 8, 8, 6, 8,
	10, 6, 6, 6, 8, 6, 6, 6, 8, 10, 6, 6, 8, 10, 6, 6,
}

// In-game position codes: the traits field spreads GK/DF/MF/FW over a
// wider role enum.
var wePositionCodes = [4]int{0, 1, 3, 6}

// weCarat is the 12-byte packed player traits blob. Skills store 0-7
// for in-game 1-8 (a ninth step exists only via the star flag, which
// the editor leaves alone).
var weCarat = mustLayout(layout.New("player traits", weCaratSize,
	layout.FieldSpec{Name: "position", Kind: layout.Bits, BitOffset: 0, BitWidth: 3},
	layout.FieldSpec{Name: "hairStyle", Kind: layout.Bits, BitOffset: 4, BitWidth: 5},
	layout.FieldSpec{Name: "hairColor", Kind: layout.Bits, BitOffset: 9, BitWidth: 3},
	layout.FieldSpec{Name: "beardStyle", Kind: layout.Bits, BitOffset: 13, BitWidth: 3},
	layout.FieldSpec{Name: "beardColor", Kind: layout.Bits, BitOffset: 17, BitWidth: 3},
	layout.FieldSpec{Name: "height", Kind: layout.Bits, BitOffset: 20, BitWidth: 6},
	layout.FieldSpec{Name: "number", Kind: layout.Bits, BitOffset: 26, BitWidth: 5},
	layout.FieldSpec{Name: "offRole", Kind: layout.Bits, BitOffset: 31, BitWidth: 1},
	layout.FieldSpec{Name: "skin", Kind: layout.Bits, BitOffset: 32, BitWidth: 2},
	layout.FieldSpec{Name: "build", Kind: layout.Bits, BitOffset: 34, BitWidth: 3},
	layout.FieldSpec{Name: "age", Kind: layout.Bits, BitOffset: 37, BitWidth: 5},
	layout.FieldSpec{Name: "reflexes", Kind: layout.Bits, BitOffset: 42, BitWidth: 3},
	layout.FieldSpec{Name: "strength", Kind: layout.Bits, BitOffset: 45, BitWidth: 3},
	layout.FieldSpec{Name: "stamina", Kind: layout.Bits, BitOffset: 49, BitWidth: 3},
	layout.FieldSpec{Name: "dribble", Kind: layout.Bits, BitOffset: 52, BitWidth: 3},
	layout.FieldSpec{Name: "speed", Kind: layout.Bits, BitOffset: 55, BitWidth: 3},
	layout.FieldSpec{Name: "accel", Kind: layout.Bits, BitOffset: 58, BitWidth: 3},
	layout.FieldSpec{Name: "attack", Kind: layout.Bits, BitOffset: 61, BitWidth: 3},
	layout.FieldSpec{Name: "defense", Kind: layout.Bits, BitOffset: 64, BitWidth: 3},
	layout.FieldSpec{Name: "shotPower", Kind: layout.Bits, BitOffset: 67, BitWidth: 3},
	layout.FieldSpec{Name: "shotAccuracy", Kind: layout.Bits, BitOffset: 70, BitWidth: 3},
	layout.FieldSpec{Name: "pass", Kind: layout.Bits, BitOffset: 73, BitWidth: 3},
	layout.FieldSpec{Name: "technique", Kind: layout.Bits, BitOffset: 76, BitWidth: 3},
	layout.FieldSpec{Name: "heading", Kind: layout.Bits, BitOffset: 79, BitWidth: 3},
	layout.FieldSpec{Name: "jump", Kind: layout.Bits, BitOffset: 82, BitWidth: 3},
	layout.FieldSpec{Name: "curve", Kind: layout.Bits, BitOffset: 85, BitWidth: 3},
	layout.FieldSpec{Name: "aggression", Kind: layout.Bits, BitOffset: 88, BitWidth: 3},
	layout.FieldSpec{Name: "boots", Kind: layout.Bits, BitOffset: 91, BitWidth: 3},
	layout.FieldSpec{Name: "foot", Kind: layout.Bits, BitOffset: 94, BitWidth: 2},
))

func mustLayout(l *layout.Layout, err error) *layout.Layout {
	if err != nil {
		panic(err)
	}
	return l
}

// WEPlayer is one Master League roster entry.
type WEPlayer struct {
	Name       string
	Number     int
	Position   int // 0 GK, 1 DF, 2 MF, 3 FW
	Height     int // cm; zero means the 178 default
	Age        int // zero means 25
	Attributes rating.Record
}

// WETeam replaces one ML team slot: names in every stored encoding and
// up to a full squad of players.
type WETeam struct {
	Name      string
	Abbrev    string
	FlagStyle int
	KitHome   [3]uint8
	KitAway   [3]uint8
	Players   []WEPlayer
}

// WE2002 assembles a patch.Target for the WE2002 image. Every byte
// range it touches is registered with the CD finalizer so the sector
// check values are regenerated once at the end.
type WE2002 struct {
	teams map[int]WETeam
	cd    *integrity.CD
}

// NewWE2002 returns an empty target.
func NewWE2002() *WE2002 {
	return &WE2002{teams: make(map[int]WETeam), cd: integrity.NewCD()}
}

func (w *WE2002) Name() string { return "we2002" }

// SetTeam assigns a team to an ML slot (0-31).
func (w *WE2002) SetTeam(slot int, team WETeam) error {
	if slot < 0 || slot >= weTeamCount {
		return fmt.Errorf("%w: ML slot %d", layout.ErrRange, slot)
	}
	w.teams[slot] = team
	return nil
}

// RecordSteps emits one step per assigned team, in slot order.
func (w *WE2002) RecordSteps() []patch.Step {
	slots := make([]int, 0, len(w.teams))
	for slot := range w.teams {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	steps := make([]patch.Step, 0, len(slots))
	for _, slot := range slots {
		slot := slot
		team := w.teams[slot]
		steps = append(steps, patch.Step{
			Label: fmt.Sprintf("team %d: %s", slot, team.Name),
			Apply: func(image []byte) error { return w.writeTeam(image, slot, team) },
		})
	}
	return steps
}

// ArchiveSteps is empty: WE2002 stores rosters in flat tables.
func (w *WE2002) ArchiveSteps() []patch.Step { return nil }

// Finalizers regenerates EDC/ECC for every touched sector.
func (w *WE2002) Finalizers() []integrity.Finalizer {
	return []integrity.Finalizer{w.cd}
}

func (w *WE2002) writeTeam(image []byte, slot int, team WETeam) error {
	if err := w.writeTeamNames(image, slot, team); err != nil {
		return err
	}
	if err := w.writeFlag(image, slot, team); err != nil {
		return err
	}
	if err := w.writeJersey(image, slot, team); err != nil {
		return err
	}
	if err := w.writeForceBars(image, slot, team); err != nil {
		return err
	}
	first, count := weSlotPlayers(slot)
	for i, player := range team.Players {
		if i >= count {
			break
		}
		if err := w.writePlayer(image, first+i, player); err != nil {
			return fmt.Errorf("player %q: %w", player.Name, err)
		}
	}
	return nil
}

// weSlotPlayers returns the global player table range for an ML slot.
// The ROM stores squads in reverse slot order: 15-player squads first,
// then 14-player squads.
func weSlotPlayers(slot int) (first, count int) {
	romPos := weTeamCount - 1 - slot
	if slot >= 18 {
		return romPos * 15, 15
	}
	return 14*15 + (romPos-14)*14, 14
}

// mlEntryOffset walks the budget table to an ML team's entry. Entries
// sit after byteScale*budget bytes of every team written before them.
func mlEntryOffset(base, slot, byteScale int, budgets *[95]int) int {
	romPos := weTeamCount - 1 - slot
	off := base
	for j := 0; j < romPos; j++ {
		off += budgets[94-j] * byteScale
	}
	return off
}

// The image stores seven text renditions of every team name: six
// uppercase variants with per-slot budgets and one lowercase table.
// Variant 6's ML block crosses a sector boundary after fifteen entries.
func (w *WE2002) writeTeamNames(image []byte, slot int, team WETeam) error {
	variants := []struct {
		base    int
		budgets *[95]int
	}{
		{weNomiSQ1, &weLunNomi1},
		{weNomiSQ2, &weLunNomi2},
		{weNomiSQ3, &weLunNomi3},
		{weNomiSQ4, &weLunNomi4},
		{weNomiSQ5, &weLunNomi5},
	}
	for _, v := range variants {
		off := mlEntryOffset(v.base, slot, 1, v.budgets)
		if err := w.store(image, off, weTeamName(team.Name, v.budgets[63+slot], true)); err != nil {
			return err
		}
	}
	if err := w.store(image, weSQ6Offset(slot), weTeamName(team.Name, weLunNomi6[63+slot], true)); err != nil {
		return err
	}
	off := mlEntryOffset(weNomiSQM, slot, 1, &weLunNomiMin)
	if err := w.store(image, off, weTeamName(team.Name, weLunNomiMin[63+slot], false)); err != nil {
		return err
	}

	kBudget := weLunNomiK[63+slot]
	kOff := mlEntryOffset(weNomiSQK, slot, 2, &weLunNomiK)
	if err := w.store(image, kOff, text.EncodeDoubleByte(team.Name, kBudget)); err != nil {
		return err
	}

	abbrev := weAbbreviation(team)
	romPos := weTeamCount - 1 - slot
	for _, base := range []int{weNomiAB1, weNomiAB2, weNomiAB3} {
		if err := w.store(image, base+romPos*4, abbrev); err != nil {
			return err
		}
	}
	return nil
}

// weSQ6Offset walks variant 6's ML entries, jumping to the post-boundary
// base once fifteen entries have been written.
func weSQ6Offset(slot int) int {
	romPos := weTeamCount - 1 - slot
	if romPos < 15 {
		off := weNomiSQ6
		for j := 0; j < romPos; j++ {
			off += weLunNomi6[94-j]
		}
		return off
	}
	off := weNomiSQ6A
	for j := 15; j < romPos; j++ {
		off += weLunNomi6[94-j]
	}
	return off
}

// writeFlag stores the flag style byte. Each forma table holds the 63
// national entries first, then the 32 ML slots in slot order.
func (w *WE2002) writeFlag(image []byte, slot int, team WETeam) error {
	style := byte(team.FlagStyle)
	for _, base := range []int{weForma1, weForma2, weForma3, weForma4, weForma5} {
		if err := w.store(image, base+weNatCount+slot, []byte{style}); err != nil {
			return err
		}
	}
	return nil
}

// writeJersey stores the two 16-entry BGR555 CLUTs driving both the
// menu preview and the in-game palette swap. Entries 0-1 are reserved,
// 2-9 color the shirt and 10-15 the shorts; the away palette swaps the
// two kit colors.
func (w *WE2002) writeJersey(image []byte, slot int, team WETeam) error {
	home := BGR555(team.KitHome[0], team.KitHome[1], team.KitHome[2])
	away := BGR555(team.KitAway[0], team.KitAway[1], team.KitAway[2])

	clut := make([]byte, 64)
	palette := func(dst []byte, shirt, shorts uint16) {
		for i := 2; i < 10; i++ {
			binary.LittleEndian.PutUint16(dst[i*2:], shirt)
		}
		for i := 10; i < 16; i++ {
			binary.LittleEndian.PutUint16(dst[i*2:], shorts)
		}
	}
	palette(clut[:32], home, away)
	palette(clut[32:], away, home)
	return w.store(image, weJerseyML+slot*64, clut)
}

// writeForceBars derives the five menu strength bars from the roster.
func (w *WE2002) writeForceBars(image []byte, slot int, team WETeam) error {
	bars := weForceBars(team.Players)
	return w.store(image, weBarML+slot*5, bars[:])
}

// weForceBars averages roster attributes into the 1-8 bar scale:
// attack, defense, power, speed, technique. An empty roster keeps the
// neutral midpoint.
func weForceBars(players []WEPlayer) [5]byte {
	if len(players) == 0 {
		return [5]byte{4, 4, 4, 4, 4}
	}
	var att, def, pow, spd, tec int
	for _, p := range players {
		att += p.Attributes["offensive"]
		def += p.Attributes["defensive"]
		pow += p.Attributes["body_balance"] + p.Attributes["shoot_power"]
		spd += p.Attributes["speed"] + p.Attributes["acceleration"]
		tec += p.Attributes["technique"] + p.Attributes["pass_accuracy"]
	}
	n := len(players)
	bar := func(total, div int) byte {
		v := int(math.Round(float64(total) / float64(div)))
		if v < 1 {
			v = 1
		}
		if v > 8 {
			v = 8
		}
		return byte(v)
	}
	return [5]byte{bar(att, n), bar(def, n), bar(pow, 2*n), bar(spd, 2*n), bar(tec, 2*n)}
}

func (w *WE2002) writePlayer(image []byte, index int, player WEPlayer) error {
	namePlace, err := weNameRegion.Place(index)
	if err != nil {
		return err
	}
	name := text.PadRight(text.Fit(text.ToASCII(player.Name), weNameSize-1), weNameSize, 0)
	if err := namePlace.Write(image, name); err != nil {
		return err
	}
	w.markPlacement(namePlace)

	caratPlace, err := weCaratRegion.Place(index)
	if err != nil {
		return err
	}
	if err := weCarat.PatchAt(image, caratPlace, weCaratRecord(player)); err != nil {
		return err
	}
	w.markPlacement(caratPlace)
	return nil
}

// weCaratRecord packs a player into traits-field values. Appearance
// fields keep neutral defaults; only attributes and identity change.
func weCaratRecord(player WEPlayer) layout.Record {
	attr := func(name string) int {
		v := player.Attributes[name] - 1
		if v < 0 {
			v = 0
		}
		if v > 7 {
			v = 7
		}
		return v
	}
	height := player.Height
	if height == 0 {
		height = 178
	}
	age := player.Age
	if age == 0 {
		age = 25
	}
	number := player.Number
	if number < 1 {
		number = 1
	}
	if number > 32 {
		number = 32
	}
	pos := 1
	if player.Position >= 0 && player.Position < len(wePositionCodes) {
		pos = wePositionCodes[player.Position]
	}
	return layout.Record{
		"position":     pos,
		"height":       height - 148,
		"age":          age - 15,
		"number":       number - 1,
		"build":        2,
		"reflexes":     attr("defensive"),
		"strength":     attr("body_balance"),
		"stamina":      attr("stamina"),
		"dribble":      attr("dribble"),
		"speed":        attr("speed"),
		"accel":        attr("acceleration"),
		"attack":       attr("offensive"),
		"defense":      attr("defensive"),
		"shotPower":    attr("shoot_power"),
		"shotAccuracy": attr("shoot_accuracy"),
		"pass":         attr("pass_accuracy"),
		"technique":    attr("technique"),
		"heading":      attr("heading"),
		"jump":         attr("jump_power"),
		"curve":        attr("curve"),
		"aggression":   attr("aggression"),
	}
}

func weTeamName(name string, budget int, upper bool) []byte {
	if upper {
		name = strings.ToUpper(name)
	}
	ascii := text.ToASCII(name)
	return text.PadRight(text.Fit(ascii, budget-1), budget, 0)
}

func weAbbreviation(team WETeam) []byte {
	code := team.Abbrev
	if code == "" {
		code = team.Name
	}
	code = strings.ToUpper(text.ToASCII(code))
	if len(code) > 3 {
		code = code[:3]
	}
	return text.PadRight(code, 4, 0)
}

// store writes data at an absolute offset and marks its sectors dirty.
func (w *WE2002) store(image []byte, offset int, data []byte) error {
	if offset < 0 || offset+len(data) > len(image) {
		return fmt.Errorf("%w: write [%d, %d) beyond image", layout.ErrRange, offset, offset+len(data))
	}
	copy(image[offset:], data)
	w.cd.MarkRange(offset, len(data))
	return nil
}

func (w *WE2002) markPlacement(p layout.Placement) {
	for _, c := range p {
		w.cd.MarkRange(c.Offset, c.Size)
	}
}
