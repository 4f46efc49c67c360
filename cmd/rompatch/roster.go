package main

import (
	"fmt"
	"os"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/hiitsgabe/rompatch/pkg/patch"
	"github.com/hiitsgabe/rompatch/pkg/platform"
)

// rosterFile is the on-disk roster definition. The platform name picks
// the target; team payloads are decoded per platform, keyed by slot:
//
//	we2002        WETeam object per slot
//	iss-deluxe    ISSTeam object per slot
//	nhl94-genesis array of roster players per slot
//	nhl94-snes    array of roster players per slot
//	nhl07-psp     array of roster players per slot (position codes
//	              0 C, 1 LW, 2 RW, 3 D, 4 G)
type rosterFile struct {
	Platform string                     `json:"platform"`
	Teams    map[string]json.RawMessage `json:"teams"`
}

// loadTarget reads a roster file and builds the patch target it
// describes.
func loadTarget(path string) (patch.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var rf rosterFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	if len(rf.Teams) == 0 {
		return nil, fmt.Errorf("roster %s: no teams", path)
	}

	switch rf.Platform {
	case "we2002":
		t := platform.NewWE2002()
		return t, decodeTeams(rf.Teams, t.SetTeam)
	case "iss-deluxe":
		t := platform.NewISS()
		return t, decodeTeams(rf.Teams, t.SetTeam)
	case "nhl94-genesis":
		t := platform.NewNHL94Genesis()
		return t, decodeTeams(rf.Teams, t.SetTeam)
	case "nhl94-snes":
		t := platform.NewNHL94SuperNES()
		return t, decodeTeams(rf.Teams, t.SetTeam)
	case "nhl07-psp":
		t := platform.NewNHL07()
		return t, decodeTeams(rf.Teams, t.SetTeam)
	case "":
		return nil, fmt.Errorf("roster %s: no platform", path)
	default:
		return nil, fmt.Errorf("roster %s: unknown platform %q", path, rf.Platform)
	}
}

// decodeTeams unmarshals every slot payload and hands it to the
// target's setter, which validates slot ranges itself.
func decodeTeams[T any](teams map[string]json.RawMessage, set func(int, T) error) error {
	for key, raw := range teams {
		slot, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("team slot %q: not a number", key)
		}
		var team T
		if err := json.Unmarshal(raw, &team); err != nil {
			return fmt.Errorf("team slot %d: %w", slot, err)
		}
		if err := set(slot, team); err != nil {
			return fmt.Errorf("team slot %d: %w", slot, err)
		}
	}
	return nil
}
