package retrieval

import (
	"sort"

	"github.com/BaSui01/queryflow/types"
)

// FusionConfig holds reciprocal rank fusion parameters.
type FusionConfig struct {
	// RRFK is the rank smoothing constant (typically 60).
	RRFK int `yaml:"rrf_k" json:"rrf_k"`
	// Weights are per-list weights applied to each list's RRF contribution.
	// Missing entries default to an even split.
	Weights []float64 `yaml:"weights" json:"weights"`
}

// DefaultFusionConfig returns rrf_k=60 with equal 0.5/0.5 weights.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{RRFK: 60, Weights: []float64{0.5, 0.5}}
}

// FuseRRF combines ranked citation lists with reciprocal rank fusion: each
// list membership contributes weight/(rrfK+rank) where rank is 1-based. When
// only one non-empty list exists its scores are carried through unmodified.
// Equal fused scores preserve first-appearance order (stable sort).
func FuseRRF(cfg FusionConfig, lists ...[]types.Citation) []types.Citation {
	nonEmpty := 0
	var only []types.Citation
	for _, l := range lists {
		if len(l) > 0 {
			nonEmpty++
			only = l
		}
	}
	if nonEmpty == 0 {
		return nil
	}
	if nonEmpty == 1 {
		out := make([]types.Citation, len(only))
		copy(out, only)
		return out
	}

	rrfK := cfg.RRFK
	if rrfK <= 0 {
		rrfK = 60
	}

	weight := func(i int) float64 {
		if i < len(cfg.Weights) && cfg.Weights[i] > 0 {
			return cfg.Weights[i]
		}
		return 1.0 / float64(len(lists))
	}

	type fused struct {
		citation types.Citation
		score    float64
	}

	byID := make(map[string]int)
	order := make([]fused, 0)

	for li, list := range lists {
		w := weight(li)
		for rank, c := range list {
			contribution := w / float64(rrfK+rank+1)
			if i, ok := byID[c.DocID]; ok {
				order[i].score += contribution
				continue
			}
			byID[c.DocID] = len(order)
			order = append(order, fused{citation: c, score: contribution})
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].score > order[j].score })

	out := make([]types.Citation, len(order))
	for i, f := range order {
		f.citation.Score = f.score
		out[i] = f.citation
	}
	return out
}
