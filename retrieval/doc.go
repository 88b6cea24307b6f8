// Package retrieval implements the hybrid retrieval and ranking engine:
// dense vector search plus sparse lexical search fused with reciprocal rank
// fusion, near-duplicate collapsing, feedback-weighted re-ranking, a lexical
// overlap boost, and a layered result cache in front of the whole pipeline.
//
// Deduplicator, RankFusion, and the re-rankers are pure, stateless transforms
// over citation lists; RetrievalEngine orchestrates them. The engine never
// returns an error to its caller — backend failures degrade to partial or
// empty results with an explicit unavailable flag.
package retrieval
