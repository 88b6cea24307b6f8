package types

import "fmt"

// Chunk is a logical passage of a source document, scoped to a domain.
// Identical text ingested twice under different source formats must resolve
// to one logical chunk; the ingestion pipeline enforces this by chunk ID.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Domain     string `json:"domain"`
	Text       string `json:"text"`
	Title      string `json:"title,omitempty"`
	SectionID  string `json:"section_id,omitempty"`
	URL        string `json:"url,omitempty"`
	Index      int    `json:"index"`
}

// DocID returns the citation document id for this chunk.
func (c Chunk) DocID() string {
	return fmt.Sprintf("%s#chunk%d", c.DocumentID, c.Index)
}

// Citation is a retrieved, scored passage used for grounding. Citations are
// created fresh per query and never persisted. Score is recomputed at each
// pipeline stage; descending-score order is the externally visible contract.
type Citation struct {
	DocID     string  `json:"doc_id"`
	Title     string  `json:"title"`
	Score     float64 `json:"score"`
	URL       string  `json:"url,omitempty"`
	Content   string  `json:"content"`
	SectionID string  `json:"section_id,omitempty"`
}

// CitationFromChunk builds a Citation carrying the given score.
func CitationFromChunk(c Chunk, score float64) Citation {
	return Citation{
		DocID:     c.DocID(),
		Title:     c.Title,
		Score:     score,
		URL:       c.URL,
		Content:   c.Text,
		SectionID: c.SectionID,
	}
}

// FeedbackSignal is an externally owned, read-only aggregate signal for a
// citation. LikePercentage is in [0,100]; a nil value means no signal exists.
type FeedbackSignal struct {
	CitationID     string   `json:"citation_id"`
	Domain         string   `json:"domain"`
	LikePercentage *float64 `json:"like_percentage,omitempty"`
}
