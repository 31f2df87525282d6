package repository

import (
	"math"
	"sort"
)

// CosineSimilarity computes dot(a,b)/(|a|*|b|). A zero-norm vector yields a
// similarity of 0 rather than NaN. Vectors of differing length return
// ErrDimensionMismatch: spec §4.4/§7 requires failing fast rather than the
// teacher's memory_vector.go min-length truncation.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

type scoredInternal struct {
	record Record
	score  float64
}

func scoreByCosine(records []Record, query []float32) ([]scoredInternal, error) {
	out := make([]scoredInternal, 0, len(records))
	for _, r := range records {
		sim, err := CosineSimilarity(r.Embedding, query)
		if err != nil {
			return nil, err
		}
		out = append(out, scoredInternal{record: r, score: sim})
	}
	return out, nil
}

// reciprocalRankFusionK is the constant used throughout spec §4.4's hybrid
// strategy: score += 1/(k+rank).
const reciprocalRankFusionK = 60

// reciprocalRankFusion combines two independently-ranked lists (text, vector)
// into one fused ranking. A record appearing in only one list is scored
// using just that list's contribution.
func reciprocalRankFusion(textRanked, vectorRanked []ScoredRecord) []scoredInternal {
	fused := make(map[string]*scoredInternal)
	order := make([]string, 0, len(textRanked)+len(vectorRanked))

	add := func(list []ScoredRecord) {
		for rank, sr := range list {
			contribution := 1.0 / float64(reciprocalRankFusionK+rank+1)
			if existing, ok := fused[sr.Record.ID]; ok {
				existing.score += contribution
				continue
			}
			fused[sr.Record.ID] = &scoredInternal{record: sr.Record, score: contribution}
			order = append(order, sr.Record.ID)
		}
	}
	add(textRanked)
	add(vectorRanked)

	out := make([]scoredInternal, 0, len(order))
	for _, id := range order {
		out = append(out, *fused[id])
	}
	sortScoredInternal(out)
	return out
}

func sortScoredInternal(items []scoredInternal) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].record.InsertionSeq < items[j].record.InsertionSeq
	})
}
