package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/queryflow/types"
)

func cit(id string, score float64) types.Citation {
	return types.Citation{DocID: id, Title: id, Content: id, Score: score}
}

func TestFuseRRF_SingleSourceCarriesScoresThrough(t *testing.T) {
	list := []types.Citation{cit("a", 0.9), cit("b", 0.7)}

	out := FuseRRF(DefaultFusionConfig(), list, nil)
	require.Len(t, out, 2)
	assert.Equal(t, 0.9, out[0].Score)
	assert.Equal(t, 0.7, out[1].Score)
}

func TestFuseRRF_MembershipInBothListsWins(t *testing.T) {
	vector := []types.Citation{cit("shared", 0.9), cit("v-only", 0.8)}
	lexical := []types.Citation{cit("l-only", 5.0), cit("shared", 3.0)}

	out := FuseRRF(DefaultFusionConfig(), vector, lexical)
	require.Len(t, out, 3)
	// shared: 0.5/61 + 0.5/62 beats either single membership.
	assert.Equal(t, "shared", out[0].DocID)
}

func TestFuseRRF_ScoreIsRankBasedNotScoreBased(t *testing.T) {
	// Raw backend scores are on different scales; only rank matters.
	vector := []types.Citation{cit("a", 0.001)}
	lexical := []types.Citation{cit("b", 9999.0)}

	out := FuseRRF(DefaultFusionConfig(), vector, lexical)
	require.Len(t, out, 2)
	assert.InDelta(t, out[0].Score, out[1].Score, 1e-9)
}

func TestFuseRRF_EqualScoresPreserveFirstAppearanceOrder(t *testing.T) {
	vector := []types.Citation{cit("a", 1.0), cit("b", 1.0)}
	lexical := []types.Citation{cit("c", 1.0), cit("d", 1.0)}

	out := FuseRRF(DefaultFusionConfig(), vector, lexical)
	require.Len(t, out, 4)
	// a and c share rank 1 in their lists, b and d share rank 2. Stable sort
	// keeps first-appearance order within each tie.
	assert.Equal(t, "a", out[0].DocID)
	assert.Equal(t, "c", out[1].DocID)
	assert.Equal(t, "b", out[2].DocID)
	assert.Equal(t, "d", out[3].DocID)
}

func TestFuseRRF_EmptyInput(t *testing.T) {
	assert.Nil(t, FuseRRF(DefaultFusionConfig(), nil, nil))
}

func TestFuseRRF_WeightsShiftRanking(t *testing.T) {
	cfg := FusionConfig{RRFK: 60, Weights: []float64{0.9, 0.1}}
	vector := []types.Citation{cit("v", 1.0)}
	lexical := []types.Citation{cit("l", 1.0)}

	out := FuseRRF(cfg, vector, lexical)
	require.Len(t, out, 2)
	assert.Equal(t, "v", out[0].DocID)
	assert.Greater(t, out[0].Score, out[1].Score)
}
