package services

import (
	"sort"

	"github.com/gmalakar/flouds-vector-go/pkg/vectordb"
)

// rrfK is the rank-smoothing constant of Reciprocal Rank Fusion.
const rrfK = 60

// SearchHit is one search result as returned to callers. Score is the
// raw dense score on the dense-only path and the RRF score on the hybrid
// path.
type SearchHit struct {
	ID    string                 `json:"id"`
	Score float64                `json:"score"`
	Chunk string                 `json:"chunk"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// fuseRRF combines a dense and a sparse ranking with Reciprocal Rank
// Fusion: score(d) = sum over lists of 1/(k + rank). Ties break on dense
// score descending, then id ascending. Returns at most limit hits.
func fuseRRF(dense, sparse []vectordb.Hit, limit int) []SearchHit {
	type fused struct {
		hit        vectordb.Hit
		rrf        float64
		denseScore float64
	}
	byID := make(map[string]*fused, len(dense)+len(sparse))

	for rank, h := range dense {
		byID[h.ID] = &fused{
			hit:        h,
			rrf:        1.0 / float64(rrfK+rank+1),
			denseScore: h.Score,
		}
	}
	for rank, h := range sparse {
		contribution := 1.0 / float64(rrfK+rank+1)
		if f, ok := byID[h.ID]; ok {
			f.rrf += contribution
			continue
		}
		byID[h.ID] = &fused{hit: h, rrf: contribution}
	}

	ordered := make([]*fused, 0, len(byID))
	for _, f := range byID {
		ordered = append(ordered, f)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.rrf != b.rrf {
			return a.rrf > b.rrf
		}
		if a.denseScore != b.denseScore {
			return a.denseScore > b.denseScore
		}
		return a.hit.ID < b.hit.ID
	})
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}

	hits := make([]SearchHit, len(ordered))
	for i, f := range ordered {
		hits[i] = SearchHit{ID: f.hit.ID, Score: f.rrf, Chunk: f.hit.Chunk, Meta: f.hit.Meta}
	}
	return hits
}
