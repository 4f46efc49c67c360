package rating

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

var nineScale = Scale{Min: 1, Max: 9}

var nineSteps = StepTable{
	{95, 9}, {85, 8}, {70, 7}, {50, 6}, {35, 5}, {20, 4}, {10, 3}, {3, 2}, {0, 1},
}

func soccerConfig() Config {
	return Config{
		Scale:      nineScale,
		Steps:      nineSteps,
		Attributes: []string{"offensive", "defensive", "stamina", "shooting"},
		Defaults: map[string]Record{
			"GK": {"offensive": 2, "defensive": 7, "stamina": 6, "shooting": 3},
			"MF": {"offensive": 5, "defensive": 5, "stamina": 7, "shooting": 5},
			"FW": {"offensive": 7, "defensive": 3, "stamina": 5, "shooting": 7},
		},
		AgeCurve: []AgeRule{
			{From: 0, To: 22, Deltas: map[string]int{"stamina": 1}},
			{From: 34, To: 99, Deltas: map[string]int{"stamina": -2}},
		},
		Adjustments: map[string][]Adjustment{
			"GK": {{Attribute: "defensive", Delta: 2}, {Attribute: "shooting", Cap: 3}},
			"FW": {{Attribute: "offensive", Delta: 1}, {Attribute: "shooting", Delta: 1}},
		},
	}
}

func TestPercentileTable(t *testing.T) {
	t.Run("ties get average rank", func(t *testing.T) {
		table := NewPercentileTable([]float64{1, 2, 2, 2, 5})
		// Tied group occupies ranks 1..3; average rank 2 of 5.
		require.InDelta(t, 40.0, table.Percentile(2), 1e-9)
		require.InDelta(t, 0.0, table.Percentile(1), 1e-9)
		require.InDelta(t, 80.0, table.Percentile(5), 1e-9)
	})

	t.Run("empty cohort ranks at median", func(t *testing.T) {
		require.InDelta(t, 50.0, NewPercentileTable(nil).Percentile(7), 1e-9)
	})

	t.Run("unknown statistic ranks at median", func(t *testing.T) {
		c := NewCohort(map[string][]float64{"goals": {1, 2, 3}})
		require.InDelta(t, 50.0, c.Percentile("assists", 4), 1e-9)
	})
}

func TestStepTable(t *testing.T) {
	require.Equal(t, 9, nineSteps.Rating(99))
	require.Equal(t, 9, nineSteps.Rating(95))
	require.Equal(t, 6, nineSteps.Rating(50))
	require.Equal(t, 1, nineSteps.Rating(0))

	t.Run("rejects non-monotonic", func(t *testing.T) {
		cfg := soccerConfig()
		cfg.Steps = StepTable{{50, 6}, {70, 7}, {0, 1}}
		_, err := NewMapper(cfg)
		require.ErrorIs(t, err, ErrRange)
	})

	t.Run("rejects uncovered zero", func(t *testing.T) {
		cfg := soccerConfig()
		cfg.Steps = StepTable{{95, 9}, {3, 2}}
		_, err := NewMapper(cfg)
		require.ErrorIs(t, err, ErrRange)
	})

	t.Run("rejects rating outside scale", func(t *testing.T) {
		cfg := soccerConfig()
		cfg.Steps = StepTable{{95, 12}, {0, 1}}
		_, err := NewMapper(cfg)
		require.ErrorIs(t, err, ErrRange)
	})
}

func TestMapperCohortBounds(t *testing.T) {
	m, err := NewMapper(soccerConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	const n = 40
	stats := map[string][]float64{}
	players := make([]map[string]float64, n)
	for i := range players {
		players[i] = map[string]float64{}
		for _, attr := range []string{"offensive", "defensive", "stamina", "shooting"} {
			v := rng.Float64() * 100
			players[i][attr] = v
			stats[attr] = append(stats[attr], v)
		}
	}
	cohort := NewCohort(stats)

	for i, p := range players {
		rec := m.Map(DetailedSource("MF", 27, p), cohort)
		for attr, v := range rec {
			require.GreaterOrEqual(t, v, nineScale.Min, "player %d %s", i, attr)
			require.LessOrEqual(t, v, nineScale.Max, "player %d %s", i, attr)
		}
	}

	// The best offensive value must never rate below the 10th-percentile one.
	best, worst := players[0], players[0]
	for _, p := range players {
		if p["offensive"] > best["offensive"] {
			best = p
		}
		if p["offensive"] < worst["offensive"] {
			worst = p
		}
	}
	top := m.Map(DetailedSource("MF", 27, best), cohort)
	low := m.Map(DetailedSource("MF", 27, worst), cohort)
	require.GreaterOrEqual(t, top["offensive"], low["offensive"])
}

func TestMapperAdjustments(t *testing.T) {
	m, err := NewMapper(soccerConfig())
	require.NoError(t, err)
	cohort := NewCohort(map[string][]float64{
		"offensive": {1, 2, 3, 4, 100},
		"defensive": {1, 2, 3, 4, 100},
		"stamina":   {1, 2, 3, 4, 100},
		"shooting":  {1, 2, 3, 4, 100},
	})
	elite := map[string]float64{"offensive": 100, "defensive": 100, "stamina": 100, "shooting": 100}

	t.Run("goalkeeper shooting capped", func(t *testing.T) {
		rec := m.Map(DetailedSource("GK", 27, elite), cohort)
		require.Equal(t, 3, rec["shooting"])
		require.Equal(t, 9, rec["defensive"]) // +2 clamped to scale max
	})

	t.Run("forward bonus clamps at scale", func(t *testing.T) {
		rec := m.Map(DetailedSource("FW", 27, elite), cohort)
		require.Equal(t, 9, rec["offensive"])
	})
}

func TestMapperDefaults(t *testing.T) {
	m, err := NewMapper(soccerConfig())
	require.NoError(t, err)
	cohort := NewCohort(nil)

	t.Run("position profile", func(t *testing.T) {
		rec := m.Map(DefaultSource("FW", 27), cohort)
		require.Equal(t, Record{"offensive": 7, "defensive": 3, "stamina": 5, "shooting": 7}, rec)
	})

	t.Run("age curve", func(t *testing.T) {
		young := m.Map(DefaultSource("MF", 20), cohort)
		old := m.Map(DefaultSource("MF", 36), cohort)
		require.Equal(t, 8, young["stamina"])
		require.Equal(t, 5, old["stamina"])
	})

	t.Run("unknown position falls back to mid scale", func(t *testing.T) {
		rec := m.Map(DefaultSource("??", 27), cohort)
		require.Equal(t, 5, rec["offensive"])
	})

	t.Run("detailed source without stats uses defaults", func(t *testing.T) {
		rec := m.Map(DetailedSource("GK", 27, nil), cohort)
		require.Equal(t, 7, rec["defensive"])
	})
}

type poolPlayer struct {
	name  string
	pos   string
	score float64
}

func squadPool(seed int64) []poolPlayer {
	rng := rand.New(rand.NewSource(seed))
	counts := map[string]int{"GK": 4, "DF": 9, "MF": 9, "FW": 8}
	var pool []poolPlayer
	for _, pos := range []string{"GK", "DF", "MF", "FW"} {
		for i := 0; i < counts[pos]; i++ {
			pool = append(pool, poolPlayer{
				name:  fmt.Sprintf("%s%d", pos, i),
				pos:   pos,
				score: float64(rng.Intn(50)),
			})
		}
	}
	return pool
}

var squadQuotas = []Quota{{"GK", 3}, {"DF", 7}, {"MF", 6}, {"FW", 6}}

func TestSelectBest(t *testing.T) {
	pos := func(p poolPlayer) string { return p.pos }
	score := func(p poolPlayer) float64 { return p.score }

	t.Run("exact size and quotas", func(t *testing.T) {
		pool := squadPool(1)
		squad := SelectBest(pool, 22, squadQuotas, pos, score)
		require.Len(t, squad, 22)
		byPos := map[string]int{}
		for _, p := range squad {
			byPos[p.pos]++
		}
		require.Equal(t, map[string]int{"GK": 3, "DF": 7, "MF": 6, "FW": 6}, byPos)
	})

	t.Run("deterministic", func(t *testing.T) {
		a := SelectBest(squadPool(2), 22, squadQuotas, pos, score)
		b := SelectBest(squadPool(2), 22, squadQuotas, pos, score)
		require.Equal(t, a, b)
	})

	t.Run("backfills unfillable quota", func(t *testing.T) {
		pool := squadPool(3)
		// Remove all but one goalkeeper.
		var thin []poolPlayer
		gks := 0
		for _, p := range pool {
			if p.pos == "GK" {
				gks++
				if gks > 1 {
					continue
				}
			}
			thin = append(thin, p)
		}
		squad := SelectBest(thin, 22, squadQuotas, pos, score)
		require.Len(t, squad, 22)
	})

	t.Run("backfill prefers the nearest position", func(t *testing.T) {
		pool := []poolPlayer{
			{"df-lo", "DF", 1}, {"df-hi", "DF", 2},
			{"mf-hi", "MF", 9}, {"mf-lo", "MF", 8},
		}
		quotas := []Quota{{"GK", 1}, {"DF", 1}, {"MF", 1}}
		squad := SelectBest(pool, 3, quotas, pos, score)
		require.Len(t, squad, 3)
		// The open GK slot goes to the spare defender, not the
		// higher-scoring spare midfielder.
		names := []string{squad[0].name, squad[1].name, squad[2].name}
		require.Contains(t, names, "df-lo")
		require.NotContains(t, names, "mf-lo")
	})

	t.Run("short pool returns everyone", func(t *testing.T) {
		pool := squadPool(4)[:10]
		squad := SelectBest(pool, 22, squadQuotas, pos, score)
		require.Len(t, squad, 10)
	})

	t.Run("score order within quota", func(t *testing.T) {
		pool := []poolPlayer{
			{"a", "GK", 1}, {"b", "GK", 5}, {"c", "GK", 3},
		}
		squad := SelectBest(pool, 2, []Quota{{"GK", 2}}, pos, score)
		require.Equal(t, []string{"b", "c"}, []string{squad[0].name, squad[1].name})
	})
}
