package retrieval

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/types"
)

// FeedbackStore is the externally owned aggregate feedback signal. GetBatch
// returns like-percentages in [0,100] keyed by citation id; ids absent from
// the map have no signal.
type FeedbackStore interface {
	GetBatch(ctx context.Context, citationIDs []string, domain string) (map[string]float64, error)
}

// Feedback boost bands. The multiplier applied to a fused score is 1+boost.
const (
	boostLiked    = 0.3  // like percentage above 70
	boostNeutral  = 0.1  // like percentage in [40,70]
	boostDisliked = -0.2 // like percentage below 40
)

// FeedbackBoost returns the additive boost for a like percentage; nil means
// no signal and no boost.
func FeedbackBoost(likePercentage *float64) float64 {
	if likePercentage == nil {
		return 0.0
	}
	switch {
	case *likePercentage > 70:
		return boostLiked
	case *likePercentage >= 40:
		return boostNeutral
	default:
		return boostDisliked
	}
}

// FeedbackReranker adjusts fused scores by the aggregate feedback signal,
// fetching all like-percentages for a citation list in one batched call.
type FeedbackReranker struct {
	store  FeedbackStore
	logger *zap.Logger
}

// NewFeedbackReranker creates a reranker. A nil store disables re-ranking.
func NewFeedbackReranker(store FeedbackStore, logger *zap.Logger) *FeedbackReranker {
	return &FeedbackReranker{
		store:  store,
		logger: logger.With(zap.String("component", "feedback_reranker")),
	}
}

// Rerank multiplies each citation score by its feedback band multiplier and
// re-sorts. The store is queried once for the whole list. A store failure
// (missing credentials, transient error) skips the boost and returns the
// input unchanged — feedback is an enhancement, never a turn failure.
func (r *FeedbackReranker) Rerank(ctx context.Context, citations []types.Citation, domain string) []types.Citation {
	if r.store == nil || len(citations) == 0 {
		return citations
	}

	ids := make([]string, len(citations))
	for i, c := range citations {
		ids[i] = c.DocID
	}

	signals, err := r.store.GetBatch(ctx, ids, domain)
	if err != nil {
		r.logger.Warn("feedback batch lookup failed, skipping boost", zap.Error(err))
		return citations
	}

	out := make([]types.Citation, len(citations))
	copy(out, citations)
	for i := range out {
		var pct *float64
		if v, ok := signals[out[i].DocID]; ok {
			pct = &v
		}
		out[i].Score *= 1.0 + FeedbackBoost(pct)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
