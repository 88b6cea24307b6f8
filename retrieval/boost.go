package retrieval

import (
	"sort"
	"strings"

	"github.com/BaSui01/queryflow/index"
	"github.com/BaSui01/queryflow/types"
)

// maxOverlapBoost caps the lexical overlap boost at +20%.
const maxOverlapBoost = 0.2

// minOverlapTokenLen drops short query tokens from the overlap check.
const minOverlapTokenLen = 3

// OverlapBoost raises citation scores by up to maxOverlapBoost in proportion
// to the share of query tokens (length ≥ 3) found in the citation's title and
// content, then re-sorts stably.
func OverlapBoost(query string, citations []types.Citation) []types.Citation {
	tokens := overlapTokens(query)
	if len(tokens) == 0 || len(citations) == 0 {
		return citations
	}

	out := make([]types.Citation, len(citations))
	copy(out, citations)

	for i := range out {
		haystack := strings.ToLower(out[i].Title + " " + out[i].Content)
		matched := 0
		for _, tok := range tokens {
			if strings.Contains(haystack, tok) {
				matched++
			}
		}
		ratio := float64(matched) / float64(len(tokens))
		out[i].Score *= 1.0 + maxOverlapBoost*ratio
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func overlapTokens(query string) []string {
	all := index.Tokenize(query)
	out := all[:0]
	for _, tok := range all {
		if len(tok) >= minOverlapTokenLen {
			out = append(out, tok)
		}
	}
	return out
}
