package rating

import "sort"

// Quota reserves Count roster slots for one position. Quotas are an
// ordered list so selection output is stable; adjacent quotas are
// treated as neighbouring positions when a slot has to be backfilled.
type Quota struct {
	Position string
	Count    int
}

// SelectBest picks n entities from pool honoring per-position quotas.
// Within a position, candidates are taken by descending score with the
// original pool order breaking ties, so the result is deterministic for
// a given input order. An unfillable quota slot is backfilled from the
// nearest position in quota order (best score first within equal
// distance); slots beyond the quota sum go to the highest-scoring
// leftovers regardless of position. When the pool holds fewer than n
// entities the whole pool is returned in selection order.
func SelectBest[T any](pool []T, n int, quotas []Quota, position func(T) string, score func(T) float64) []T {
	type candidate struct {
		index int
		score float64
	}
	posRank := make(map[string]int, len(quotas))
	for i, q := range quotas {
		posRank[q.Position] = i
	}
	byPos := make(map[string][]candidate)
	for i, p := range pool {
		pos := position(p)
		byPos[pos] = append(byPos[pos], candidate{index: i, score: score(p)})
	}
	for _, cands := range byPos {
		sort.SliceStable(cands, func(i, j int) bool {
			if cands[i].score != cands[j].score {
				return cands[i].score > cands[j].score
			}
			return cands[i].index < cands[j].index
		})
	}

	taken := make(map[int]bool, n)
	selected := make([]int, 0, n)
	shortfall := make([]int, len(quotas))
	for qi, q := range quotas {
		cands := byPos[q.Position]
		took := 0
		for i := 0; i < q.Count && i < len(cands); i++ {
			selected = append(selected, cands[i].index)
			taken[cands[i].index] = true
			took++
		}
		shortfall[qi] = q.Count - took
	}

	// Backfill unfilled quota slots from the nearest position in quota
	// order. Positions absent from the quota list sort after every
	// listed one.
	for qi := range quotas {
		for s := 0; s < shortfall[qi] && len(selected) < n; s++ {
			best := -1
			bestDist := 0
			var bestScore float64
			for i, p := range pool {
				if taken[i] {
					continue
				}
				dist := len(quotas)
				if r, ok := posRank[position(p)]; ok {
					dist = r - qi
					if dist < 0 {
						dist = -dist
					}
				}
				sc := score(p)
				if best == -1 || dist < bestDist || (dist == bestDist && sc > bestScore) {
					best, bestDist, bestScore = i, dist, sc
				}
			}
			if best == -1 {
				break
			}
			selected = append(selected, best)
			taken[best] = true
		}
	}

	if len(selected) < n {
		leftover := make([]candidate, 0, len(pool)-len(selected))
		for i, p := range pool {
			if !taken[i] {
				leftover = append(leftover, candidate{index: i, score: score(p)})
			}
		}
		sort.SliceStable(leftover, func(i, j int) bool {
			if leftover[i].score != leftover[j].score {
				return leftover[i].score > leftover[j].score
			}
			return leftover[i].index < leftover[j].index
		})
		for _, c := range leftover {
			if len(selected) == n {
				break
			}
			selected = append(selected, c.index)
		}
	}
	if len(selected) > n {
		selected = selected[:n]
	}

	out := make([]T, len(selected))
	for i, idx := range selected {
		out[i] = pool[idx]
	}
	return out
}
