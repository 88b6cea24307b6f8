package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/queryflow/types"
)

func TestOverlapBoost_FullOverlapAddsTwentyPercent(t *testing.T) {
	citations := []types.Citation{
		{DocID: "a", Title: "Refund policy", Content: "how refunds work", Score: 1.0},
	}

	out := OverlapBoost("refund policy", citations)
	require.Len(t, out, 1)
	assert.InDelta(t, 1.2, out[0].Score, 1e-9)
}

func TestOverlapBoost_PartialOverlapScalesByRatio(t *testing.T) {
	citations := []types.Citation{
		{DocID: "a", Title: "Refund policy", Content: "", Score: 1.0},
	}

	// One of two long tokens matches.
	out := OverlapBoost("refund shipping", citations)
	require.Len(t, out, 1)
	assert.InDelta(t, 1.1, out[0].Score, 1e-9)
}

func TestOverlapBoost_ShortTokensIgnored(t *testing.T) {
	citations := []types.Citation{
		{DocID: "a", Title: "it is an fx op", Content: "", Score: 1.0},
	}

	// Every query token is shorter than three runes; no boost applies.
	out := OverlapBoost("it is an fx", citations)
	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0].Score)
}

func TestOverlapBoost_ReordersByBoostedScore(t *testing.T) {
	citations := []types.Citation{
		{DocID: "a", Title: "Unrelated", Content: "nothing here", Score: 1.0},
		{DocID: "b", Title: "Refund policy", Content: "refund details", Score: 0.9},
	}

	out := OverlapBoost("refund policy", citations)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].DocID)
}
