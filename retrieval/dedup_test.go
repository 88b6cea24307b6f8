package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/queryflow/types"
)

func TestDeduplicate_CollapsesSameTitleAndContent(t *testing.T) {
	// Same passage ingested as markdown and pdf.
	citations := []types.Citation{
		{DocID: "refunds-md#chunk0", Title: "Refunds.md", Content: "Refunds are issued within 14 days of purchase.", Score: 0.4},
		{DocID: "refunds-pdf#chunk0", Title: "Refunds.PDF", Content: "Refunds are issued within 14 days of purchase.", Score: 0.9},
	}

	out := Deduplicate(citations)
	require.Len(t, out, 1)
	assert.Equal(t, "refunds-pdf#chunk0", out[0].DocID)
	assert.Equal(t, 0.9, out[0].Score)
}

func TestDeduplicate_KeepsDistinctContent(t *testing.T) {
	citations := []types.Citation{
		{DocID: "a#chunk0", Title: "Refunds", Content: "Refunds are issued within 14 days.", Score: 0.4},
		{DocID: "a#chunk1", Title: "Refunds", Content: "Partial refunds apply to downgrades.", Score: 0.3},
	}

	out := Deduplicate(citations)
	assert.Len(t, out, 2)
}

func TestDeduplicate_StableFirstOccurrenceOrder(t *testing.T) {
	citations := []types.Citation{
		{DocID: "a", Title: "One", Content: "alpha", Score: 0.5},
		{DocID: "b", Title: "Two", Content: "beta", Score: 0.5},
		{DocID: "a2", Title: "One", Content: "alpha", Score: 0.2},
		{DocID: "c", Title: "Three", Content: "gamma", Score: 0.5},
	}

	out := Deduplicate(citations)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].DocID)
	assert.Equal(t, "b", out[1].DocID)
	assert.Equal(t, "c", out[2].DocID)
}

func TestSignature_StripsExtensionAndCase(t *testing.T) {
	a := types.Citation{Title: "Guide.MD", Content: "hello"}
	b := types.Citation{Title: "guide.pdf", Content: "hello"}
	assert.Equal(t, Signature(a), Signature(b))
}

func TestSignature_UsesContentPrefixOnly(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	a := types.Citation{Title: "Doc", Content: string(long) + "tail-a"}
	b := types.Citation{Title: "Doc", Content: string(long) + "tail-b"}
	assert.Equal(t, Signature(a), Signature(b))
}
