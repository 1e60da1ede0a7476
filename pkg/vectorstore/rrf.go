package vectorstore

import "sort"

// FuseRRF merges ranked lists with reciprocal rank fusion. A point
// appearing at rank r (0-based) in a list contributes 1/(k+r+1) to its
// fused score. Points keep the text and payload from their first
// appearance. Ties preserve insertion order.
func FuseRRF(rankings [][]ScoredPoint, k int, topK int) []ScoredPoint {
	type entry struct {
		point ScoredPoint
		order int
	}

	fused := make(map[string]*entry)
	order := 0
	for _, ranking := range rankings {
		for rank, point := range ranking {
			contribution := 1.0 / float64(k+rank+1)
			if e, ok := fused[point.ID]; ok {
				e.point.Score += contribution
				continue
			}
			p := point
			p.Score = contribution
			fused[point.ID] = &entry{point: p, order: order}
			order++
		}
	}

	entries := make([]*entry, 0, len(fused))
	for _, e := range fused {
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].point.Score != entries[j].point.Score {
			return entries[i].point.Score > entries[j].point.Score
		}
		return entries[i].order < entries[j].order
	})

	if topK > 0 && len(entries) > topK {
		entries = entries[:topK]
	}
	results := make([]ScoredPoint, len(entries))
	for i, e := range entries {
		results[i] = e.point
	}
	return results
}
