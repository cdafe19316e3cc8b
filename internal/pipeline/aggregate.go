package pipeline

import (
	"sort"
	"time"

	"github.com/simplers/recsys/internal/domain"
)

// PoolWeights scales each pool's normalized contribution. Weights must be
// non-negative; equal weighting is the default.
type PoolWeights struct {
	Global float64
	Local  float64
	Other  float64
}

// DefaultPoolWeights weights all three pools equally.
func DefaultPoolWeights() PoolWeights {
	return PoolWeights{Global: 1, Local: 1, Other: 1}
}

// Normalize min-max scales a pool's raw scores into [0,1] so pools with
// unrelated raw units become comparable before weighting. A constant pool
// normalizes to all-ones.
func Normalize(pool domain.PoolResult) domain.PoolResult {
	if len(pool) == 0 {
		return domain.PoolResult{}
	}
	first := true
	var lo, hi float64
	for _, v := range pool {
		if first {
			lo, hi = v, v
			first = false
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make(domain.PoolResult, len(pool))
	if hi == lo {
		for id := range pool {
			out[id] = 1
		}
		return out
	}
	for id, v := range pool {
		out[id] = (v - lo) / (hi - lo)
	}
	return out
}

// Aggregate merges the three pools into one candidate score map:
// score = Σ pool_weight × normalized_pool_score, items absent from a pool
// contributing zero. When maxCandidates > 0 the result keeps only the
// highest-scoring entries, breaking score ties by id so the cut is
// deterministic. Zero-score items are dropped.
func Aggregate(global, local, other domain.PoolResult, w PoolWeights, maxCandidates int) domain.CandidateScoreMap {
	normGlobal := Normalize(global)
	normLocal := Normalize(local)
	normOther := Normalize(other)

	merged := domain.CandidateScoreMap{}
	add := func(pool domain.PoolResult, weight float64) {
		if weight <= 0 {
			return
		}
		for id, v := range pool {
			merged[id] += weight * v
		}
	}
	add(normGlobal, w.Global)
	add(normLocal, w.Local)
	add(normOther, w.Other)

	for id, score := range merged {
		if score <= 0 {
			delete(merged, id)
		}
	}
	if maxCandidates <= 0 || len(merged) <= maxCandidates {
		return merged
	}

	ranked := make([]domain.ScoredItem, 0, len(merged))
	for id, score := range merged {
		ranked = append(ranked, domain.ScoredItem{ID: id, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})
	top := make(domain.CandidateScoreMap, maxCandidates)
	for _, it := range ranked[:maxCandidates] {
		top[it.ID] = it.Score
	}
	return top
}

// ToDoc converts a score map into the persisted candidate document, sorted
// by score descending with id as the deterministic tie-break.
func ToDoc(custNo int64, scores domain.CandidateScoreMap, now time.Time) domain.CandidateDoc {
	list := make([]domain.ScoredCuration, 0, len(scores))
	for id, score := range scores {
		list = append(list, domain.ScoredCuration{CurationID: id, Score: score})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].CurationID < list[j].CurationID
	})
	return domain.CandidateDoc{
		CustNo:       custNo,
		CurationList: list,
		CreateDt:     now,
		ModiDt:       now,
	}
}
