package retrieval

import (
	"path"
	"strings"

	"github.com/BaSui01/queryflow/types"
)

// signatureContentLen is how much leading content participates in the
// duplicate signature.
const signatureContentLen = 80

// Signature returns the near-duplicate signature of a citation: the
// normalized title (lowercased, file extension stripped) plus the first 80
// bytes of content. The same passage ingested from different source formats
// (refunds.md vs refunds.pdf) collapses to one signature.
func Signature(c types.Citation) string {
	title := strings.ToLower(strings.TrimSpace(c.Title))
	if ext := path.Ext(title); ext != "" && len(ext) <= 5 {
		title = strings.TrimSuffix(title, ext)
	}

	content := c.Content
	if len(content) > signatureContentLen {
		content = content[:signatureContentLen]
	}
	return title + "\x00" + content
}

// Deduplicate collapses citations sharing a signature, keeping the highest
// score per signature. Output order is the first-occurrence order of each
// signature (stable).
func Deduplicate(citations []types.Citation) []types.Citation {
	if len(citations) <= 1 {
		return citations
	}

	bySig := make(map[string]int, len(citations))
	out := make([]types.Citation, 0, len(citations))

	for _, c := range citations {
		sig := Signature(c)
		if i, ok := bySig[sig]; ok {
			if c.Score > out[i].Score {
				// Keep the position of the first occurrence but carry the
				// higher-scored duplicate's data.
				out[i] = c
			}
			continue
		}
		bySig[sig] = len(out)
		out = append(out, c)
	}
	return out
}
