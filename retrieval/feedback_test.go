package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/types"
)

type mockFeedbackStore struct {
	signals map[string]float64
	err     error
	calls   int
	lastIDs []string
}

func (m *mockFeedbackStore) GetBatch(_ context.Context, ids []string, _ string) (map[string]float64, error) {
	m.calls++
	m.lastIDs = ids
	if m.err != nil {
		return nil, m.err
	}
	return m.signals, nil
}

func pct(v float64) *float64 { return &v }

func TestFeedbackBoost_Bands(t *testing.T) {
	assert.Equal(t, 0.3, FeedbackBoost(pct(85.0)))
	assert.Equal(t, 0.1, FeedbackBoost(pct(55.0)))
	assert.Equal(t, -0.2, FeedbackBoost(pct(25.0)))
	assert.Equal(t, 0.0, FeedbackBoost(nil))
}

func TestFeedbackBoost_BandEdges(t *testing.T) {
	assert.Equal(t, 0.1, FeedbackBoost(pct(70.0)))
	assert.Equal(t, 0.1, FeedbackBoost(pct(40.0)))
	assert.Equal(t, -0.2, FeedbackBoost(pct(39.9)))
	assert.Equal(t, 0.3, FeedbackBoost(pct(70.1)))
}

func TestFeedbackReranker_SingleBatchedCall(t *testing.T) {
	store := &mockFeedbackStore{signals: map[string]float64{"b": 90}}
	r := NewFeedbackReranker(store, zap.NewNop())

	citations := []types.Citation{cit("a", 1.0), cit("b", 0.9), cit("c", 0.8)}
	out := r.Rerank(context.Background(), citations, "billing")

	assert.Equal(t, 1, store.calls)
	assert.Equal(t, []string{"a", "b", "c"}, store.lastIDs)

	// b: 0.9*1.3 = 1.17 overtakes a: 1.0.
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].DocID)
	assert.InDelta(t, 1.17, out[0].Score, 1e-9)
}

func TestFeedbackReranker_StoreFailureSkipsBoost(t *testing.T) {
	store := &mockFeedbackStore{err: types.NewError(types.ErrConfigMissing, "no credentials")}
	r := NewFeedbackReranker(store, zap.NewNop())

	citations := []types.Citation{cit("a", 1.0), cit("b", 0.9)}
	out := r.Rerank(context.Background(), citations, "billing")

	assert.Equal(t, citations, out)
}

func TestFeedbackReranker_InputNotMutated(t *testing.T) {
	store := &mockFeedbackStore{signals: map[string]float64{"a": 10}}
	r := NewFeedbackReranker(store, zap.NewNop())

	citations := []types.Citation{cit("a", 1.0)}
	_ = r.Rerank(context.Background(), citations, "billing")

	assert.Equal(t, 1.0, citations[0].Score)
}
