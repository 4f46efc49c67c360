package platform

import (
	"fmt"
	"sort"

	"github.com/hiitsgabe/rompatch/pkg/archive"
	"github.com/hiitsgabe/rompatch/pkg/integrity"
	"github.com/hiitsgabe/rompatch/pkg/patch"
	"github.com/hiitsgabe/rompatch/pkg/rating"
	"github.com/hiitsgabe/rompatch/pkg/tdb"
	"github.com/hiitsgabe/rompatch/pkg/text"
)

// NHL 07 for PSP keeps its rosters in EA TDB tables inside a BIGF
// archive on the ISO: PSP_GAME/USRDIR/DB/DB.VIV. The game reads the
// master database; the split bio/roster databases are mirrored for
// consistency when they fit.
const (
	nhl07DBPath    = "PSP_GAME/USRDIR/DB/DB.VIV"
	nhl07Master    = "nhl2007.tdb"
	nhl07BioAtt    = "nhlbioatt.tdb"
	nhl07Roster    = "nhlrost.tdb"
	nhl07TeamCount = 32
	nhl07NameSize  = 19
)

// NHL07Position is the POS_ code used by the bio table.
type NHL07Position int

const (
	NHL07Center NHL07Position = iota
	NHL07LeftWing
	NHL07RightWing
	NHL07Defense
	NHL07Goalie
)

// NHL07Player carries one roster entry. Skater and Goaltending hold
// attribute values on the game's 0-100 scale, keyed by descriptive
// names (see nhl07SkaterFields / nhl07GoalieFields); only the table
// matching the position is written.
type NHL07Player struct {
	FirstName  string
	LastName   string
	Jersey     int
	Handedness int
	Position   NHL07Position
	Weight     int
	Height     int

	Skater      rating.Record
	Goaltending rating.Record
}

// Goalie reports whether the player fills a goalie slot.
func (p NHL07Player) Goalie() bool { return p.Position == NHL07Goalie }

// Attribute name → TDB column tag.
var nhl07SkaterFields = map[string]string{
	"balance":        "BALA",
	"penalty":        "PENA",
	"shot_accuracy":  "SACC",
	"wrist_accuracy": "WACC",
	"faceoffs":       "FACE",
	"acceleration":   "ACCE",
	"speed":          "SPEE",
	"potential":      "POTE",
	"deking":         "DEKG",
	"checking":       "CHKG",
	"toughness":      "TOUG",
	"fighting":       "FIGH",
	"puck_control":   "PUCK",
	"agility":        "AGIL",
	"hero":           "HERO",
	"aggression":     "AGGR",
	"pressure":       "PRES",
	"passing":        "PASS",
	"endurance":      "ENDU",
	"injury":         "INJU",
	"slap_power":     "SPOW",
	"wrist_power":    "WPOW",
}

var nhl07GoalieFields = map[string]string{
	"breakaway":     "BRKA",
	"rebound_ctrl":  "REBC",
	"shot_recovery": "SREC",
	"speed":         "SPEE",
	"poke_check":    "POKE",
	"intensity":     "INTE",
	"potential":     "POTE",
	"toughness":     "TOUG",
	"fighting":      "FIGH",
	"agility":       "AGIL",
	"five_hole":     "5HOL",
	"passing":       "PASS",
	"endurance":     "ENDU",
	"glove_high":    "GSH_",
	"stick_high":    "SSH_",
	"glove_low":     "GSL_",
	"stick_low":     "SSL_",
}

// Every line assignment column in the ROST table. Cleared before the
// player's own flags are set so stale assignments never survive.
var nhl07LineFlags = []string{
	"L1C_", "L2C_", "L3C_", "L4C_",
	"L1LW", "L2LW", "L3LW", "L4LW",
	"L1RW", "L2RW", "L3RW", "L4RW",
	"31LD", "32LD", "33LD",
	"31RD", "32RD", "33RD",
	"G1__", "G2__",
	"H1__", "H2__", "H3__", "H4__", "H5__",
	"S1__", "S2__", "S3__", "S4__", "S5__",
}

// NHL07 assembles a patch.Target rewriting the PSP disc's database.
type NHL07 struct {
	teams map[int][]NHL07Player
}

func NewNHL07() *NHL07 {
	return &NHL07{teams: make(map[int][]NHL07Player)}
}

func (n *NHL07) Name() string { return "nhl07-psp" }

// SetTeam assigns a roster to a team slot (0-31, 30/31 are the
// All-Star sides). Order matters: pass LineupOrder output so line
// flags land on the right players.
func (n *NHL07) SetTeam(slot int, players []NHL07Player) error {
	if slot < 0 || slot >= nhl07TeamCount {
		return fmt.Errorf("%w: team slot %d", tdb.ErrRange, slot)
	}
	n.teams[slot] = players
	return nil
}

func (n *NHL07) RecordSteps() []patch.Step { return nil }

func (n *NHL07) Finalizers() []integrity.Finalizer { return nil }

func (n *NHL07) ArchiveSteps() []patch.Step {
	if len(n.teams) == 0 {
		return nil
	}
	return []patch.Step{{
		Label: "database rosters",
		Apply: n.patchDatabase,
	}}
}

// nhl07DB bundles the master database with its optional split mirrors.
type nhl07DB struct {
	master *tdb.File
	bioAtt *tdb.File
	roster *tdb.File

	playByIndx map[int]int // PLAY.INDX → PLAY.ID__
	bioByID    map[int]int // SPBT.INDX → record index
	skaterByID map[int]int // SPAI.INDX → record index
	goalieByID map[int]int // SGAI.INDX → record index
}

func (n *NHL07) patchDatabase(image []byte) error {
	nested, err := archive.OpenNested(image, nhl07DBPath)
	if err != nil {
		return err
	}

	db, err := openNHL07DB(nested)
	if err != nil {
		return err
	}

	slots := make([]int, 0, len(n.teams))
	for slot := range n.teams {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	for _, slot := range slots {
		if err := db.writeTeam(slot, n.teams[slot]); err != nil {
			return fmt.Errorf("team %d: %w", slot, err)
		}
	}

	if err := nested.ReplaceName(nhl07Master, db.master.Serialize()); err != nil {
		return err
	}
	if db.bioAtt != nil {
		if err := nested.ReplaceName(nhl07BioAtt, db.bioAtt.Serialize()); err != nil {
			return err
		}
	}
	if db.roster != nil {
		if err := nested.ReplaceName(nhl07Roster, db.roster.Serialize()); err != nil {
			return err
		}
	}
	_, err = nested.Rebuild()
	return err
}

func openNHL07DB(nested *archive.Nested) (*nhl07DB, error) {
	raw, err := nested.ExtractName(nhl07Master)
	if err != nil {
		return nil, err
	}
	master, err := tdb.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", nhl07Master, err)
	}

	db := &nhl07DB{master: master}

	// Split databases are best effort: some discs carry them, the
	// game itself only reads the master.
	if raw, err := nested.ExtractName(nhl07BioAtt); err == nil {
		db.bioAtt, _ = tdb.Parse(raw)
	}
	if raw, err := nested.ExtractName(nhl07Roster); err == nil {
		db.roster, _ = tdb.Parse(raw)
	}

	for _, name := range []string{"SPBT", "ROST", "PLAY"} {
		if _, ok := master.Table(name); !ok {
			return nil, fmt.Errorf("%s: missing table %s: %w", nhl07Master, name, tdb.ErrValidation)
		}
	}

	// Index chain: ROST.INDX → PLAY.INDX, PLAY.ID__ → SPBT/SPAI/SGAI.INDX.
	db.playByIndx = make(map[int]int)
	play, _ := master.Table("PLAY")
	for i := 0; i < play.Len(); i++ {
		rec, err := play.Read(i)
		if err != nil {
			break
		}
		if indx, ok := rec["INDX"].(int); ok {
			id, _ := rec["ID__"].(int)
			db.playByIndx[indx] = id
		}
	}
	db.bioByID = indexByINDX(master, "SPBT")
	db.skaterByID = indexByINDX(master, "SPAI")
	db.goalieByID = indexByINDX(master, "SGAI")
	return db, nil
}

func indexByINDX(f *tdb.File, table string) map[int]int {
	out := make(map[int]int)
	t, ok := f.Table(table)
	if !ok {
		return out
	}
	for i := 0; i < t.Len(); i++ {
		rec, err := t.Read(i)
		if err != nil {
			break
		}
		if indx, ok := rec["INDX"].(int); ok && indx > 0 {
			out[indx] = i
		}
	}
	return out
}

// nhl07Slot is one existing roster row and its cross-referenced
// records.
type nhl07Slot struct {
	rostIdx  int
	playerID int
	bioIdx   int
}

// writeTeam refits a team in place: the existing ROST rows define the
// available slots, goalies go to slots whose player has goalie
// attributes, skaters to the rest, and leftover slots are undressed.
// Cross-reference indexes (INDX columns) are never rewritten.
func (db *nhl07DB) writeTeam(slot int, players []NHL07Player) error {
	rost, _ := db.master.Table("ROST")

	var goalieSlots, skaterSlots []nhl07Slot
	teamRows := rost.FindAll("TEAM", slot)
	for _, idx := range teamRows {
		rec, err := rost.Read(idx)
		if err != nil {
			return err
		}
		indx, _ := rec["INDX"].(int)
		playerID, ok := db.playByIndx[indx]
		if !ok {
			continue
		}
		bioIdx, ok := db.bioByID[playerID]
		if !ok {
			continue
		}
		s := nhl07Slot{rostIdx: idx, playerID: playerID, bioIdx: bioIdx}
		if _, goalie := db.goalieByID[playerID]; goalie {
			goalieSlots = append(goalieSlots, s)
		} else {
			skaterSlots = append(skaterSlots, s)
		}
	}

	var goalies, skaters []NHL07Player
	for _, p := range players {
		if p.Goalie() {
			goalies = append(goalies, p)
		} else {
			skaters = append(skaters, p)
		}
	}

	type pairing struct {
		player NHL07Player
		slot   nhl07Slot
	}
	var pairs []pairing
	for i, p := range goalies {
		if i < len(goalieSlots) {
			pairs = append(pairs, pairing{p, goalieSlots[i]})
		}
	}
	for i, p := range skaters {
		if i < len(skaterSlots) {
			pairs = append(pairs, pairing{p, skaterSlots[i]})
		}
	}

	paired := make([]NHL07Player, len(pairs))
	for i, pr := range pairs {
		paired[i] = pr.player
	}

	used := make(map[int]bool, len(pairs))
	for i, pr := range pairs {
		used[pr.slot.rostIdx] = true

		if err := db.writeBio(pr.slot.bioIdx, slot, pr.player); err != nil {
			return err
		}
		if err := db.writeAttributes(pr.slot.playerID, pr.player); err != nil {
			return err
		}

		// First pair gets the C, the next two the A's.
		captain := 0
		switch i {
		case 0:
			captain = 2
		case 1, 2:
			captain = 1
		}
		rostValues := map[string]any{
			"JERS": pr.player.Jersey,
			"CAPT": captain,
			"DRES": 1,
		}
		for _, flag := range nhl07LineFlags {
			rostValues[flag] = 0
		}
		for flag, v := range nhl07TeamLineFlags(paired, i) {
			rostValues[flag] = v
		}
		if err := db.writeRoster(pr.slot.rostIdx, rostValues); err != nil {
			return err
		}
	}

	for _, idx := range teamRows {
		if !used[idx] {
			if err := db.writeRoster(idx, map[string]any{"DRES": 0}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (db *nhl07DB) writeBio(bioIdx, team int, p NHL07Player) error {
	values := map[string]any{
		"FNME": text.Fit(text.ToASCII(p.FirstName), nhl07NameSize),
		"LNME": text.Fit(text.ToASCII(p.LastName), nhl07NameSize),
		"JERS": p.Jersey,
		"HAND": p.Handedness,
		"TEAM": team,
		"POS_": int(p.Position),
	}
	if p.Weight > 0 {
		values["WEIG"] = p.Weight
	}
	if p.Height > 0 {
		values["HEIG"] = p.Height
	}
	return db.writeBoth("SPBT", db.bioAtt, bioIdx, values)
}

func (db *nhl07DB) writeAttributes(playerID int, p NHL07Player) error {
	if p.Goalie() {
		idx, ok := db.goalieByID[playerID]
		if !ok || len(p.Goaltending) == 0 {
			return nil
		}
		values := make(map[string]any, len(nhl07GoalieFields))
		for attr, tag := range nhl07GoalieFields {
			if v, ok := p.Goaltending[attr]; ok {
				values[tag] = v
			}
		}
		return db.writeBoth("SGAI", db.bioAtt, idx, values)
	}

	idx, ok := db.skaterByID[playerID]
	if !ok || len(p.Skater) == 0 {
		return nil
	}
	values := make(map[string]any, len(nhl07SkaterFields))
	for attr, tag := range nhl07SkaterFields {
		if v, ok := p.Skater[attr]; ok {
			values[tag] = v
		}
	}
	return db.writeBoth("SPAI", db.bioAtt, idx, values)
}

func (db *nhl07DB) writeRoster(idx int, values map[string]any) error {
	return db.writeBoth("ROST", db.roster, idx, values)
}

// writeBoth updates the master table and mirrors the write into the
// split database when it carries the table and the row.
func (db *nhl07DB) writeBoth(table string, split *tdb.File, idx int, values map[string]any) error {
	t, ok := db.master.Table(table)
	if !ok {
		return fmt.Errorf("missing table %s: %w", table, tdb.ErrValidation)
	}
	if err := t.Write(idx, values); err != nil {
		return err
	}
	if split != nil {
		if st, ok := split.Table(table); ok && idx < st.Capacity() {
			if err := st.Write(idx, values); err != nil {
				return err
			}
		}
	}
	return nil
}

// nhl07TeamLineFlags computes the line assignment for one player of an
// ordered roster (goalies, then forward lines C/LW/RW, then defense
// pairs).
func nhl07TeamLineFlags(roster []NHL07Player, index int) map[string]int {
	group := func(p NHL07Player) int {
		switch p.Position {
		case NHL07Goalie:
			return 0
		case NHL07Defense:
			return 2
		default:
			return 1
		}
	}

	// Rank within the player's own position group. Extra forwards
	// carried past the fourteen line slots sit after the defense block,
	// so a positional rank keeps the pair assignments anchored.
	p := roster[index]
	rank := 0
	for _, q := range roster[:index] {
		if group(q) == group(p) {
			rank++
		}
	}

	flags := map[string]int{}
	switch group(p) {
	case 0:
		switch rank {
		case 0:
			flags["G1__"] = 1
		case 1:
			flags["G2__"] = 1
		}
	case 2:
		pair := rank / 2
		if pair < 3 {
			if rank%2 == 0 {
				flags[fmt.Sprintf("3%dLD", pair+1)] = 1
			} else {
				flags[fmt.Sprintf("3%dRD", pair+1)] = 1
			}
		}
	default:
		line := rank / 3
		if line < 4 {
			switch rank % 3 {
			case 0:
				flags[fmt.Sprintf("L%dC_", line+1)] = 1
			case 1:
				flags[fmt.Sprintf("L%dLW", line+1)] = 1
			case 2:
				flags[fmt.Sprintf("L%dRW", line+1)] = 1
			}
		}
	}
	return flags
}

// Forward line slots, in rink order. Fourteen dressed forwards total:
// the twelve line spots plus two spares.
var nhl07LineQuotas = []rating.Quota{
	{Position: "C", Count: 4},
	{Position: "LW", Count: 4},
	{Position: "RW", Count: 4},
}

func nhl07PosCode(pos NHL07Position) string {
	switch pos {
	case NHL07Center:
		return "C"
	case NHL07LeftWing:
		return "LW"
	case NHL07RightWing:
		return "RW"
	case NHL07Defense:
		return "D"
	default:
		return "G"
	}
}

// LineupOrder arranges a player pool into the roster order the line
// flags assume: two goalies, four forward lines of C/LW/RW, seven
// defensemen, then best leftovers up to max. Within each position the
// score decides; ties keep input order. The forward cut honors the
// line quotas, so a thin wing position borrows from the nearest one
// instead of dressing a fifth center on merit alone.
func LineupOrder(pool []NHL07Player, max int, score func(NHL07Player) float64) []NHL07Player {
	byPos := func(pos NHL07Position) []int {
		var out []int
		for i, p := range pool {
			if p.Position == pos {
				out = append(out, i)
			}
		}
		sort.SliceStable(out, func(a, b int) bool { return score(pool[out[a]]) > score(pool[out[b]]) })
		return out
	}

	defense := byPos(NHL07Defense)
	goalies := byPos(NHL07Goalie)

	taken := make(map[int]bool, len(pool))
	var selected []int
	take := func(idx int) {
		if !taken[idx] {
			taken[idx] = true
			selected = append(selected, idx)
		}
	}

	for _, idx := range trimInts(goalies, 2) {
		take(idx)
	}

	var forwardPool []int
	for i, p := range pool {
		switch p.Position {
		case NHL07Center, NHL07LeftWing, NHL07RightWing:
			forwardPool = append(forwardPool, i)
		}
	}
	cut := rating.SelectBest(forwardPool, 14, nhl07LineQuotas,
		func(i int) string { return nhl07PosCode(pool[i].Position) },
		func(i int) float64 { return score(pool[i]) })

	lineOf := func(pos NHL07Position) []int {
		var out []int
		for _, idx := range cut {
			if pool[idx].Position == pos {
				out = append(out, idx)
			}
		}
		sort.SliceStable(out, func(a, b int) bool { return score(pool[out[a]]) > score(pool[out[b]]) })
		return out
	}

	centers := lineOf(NHL07Center)
	leftWings := lineOf(NHL07LeftWing)
	rightWings := lineOf(NHL07RightWing)

	var forwards []int
	for line := 0; line < 4; line++ {
		for _, group := range [][]int{centers, leftWings, rightWings} {
			if line < len(group) {
				forwards = append(forwards, group[line])
			}
		}
	}
	// Spare forwards from the cut ride after the lines.
	onLine := make(map[int]bool, len(forwards))
	for _, idx := range forwards {
		onLine[idx] = true
	}
	var extras []int
	for _, idx := range cut {
		if !onLine[idx] {
			extras = append(extras, idx)
		}
	}
	sort.SliceStable(extras, func(a, b int) bool { return score(pool[extras[a]]) > score(pool[extras[b]]) })
	for _, idx := range append(forwards, extras...) {
		take(idx)
	}

	for _, idx := range trimInts(defense, 7) {
		take(idx)
	}

	// Best of the rest, regardless of position.
	var leftover []int
	for i := range pool {
		if !taken[i] {
			leftover = append(leftover, i)
		}
	}
	sort.SliceStable(leftover, func(a, b int) bool { return score(pool[leftover[a]]) > score(pool[leftover[b]]) })
	for _, idx := range leftover {
		if len(selected) >= max {
			break
		}
		take(idx)
	}

	if len(selected) > max {
		selected = selected[:max]
	}
	out := make([]NHL07Player, len(selected))
	for i, idx := range selected {
		out[i] = pool[idx]
	}
	return out
}

func trimInts(s []int, n int) []int {
	if len(s) > n {
		return s[:n]
	}
	return s
}
