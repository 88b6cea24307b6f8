// Package index holds the two retrieval backends — an in-memory BM25 lexical
// index and a vector index — plus the chunk store and the serialized
// ingestion pipeline that populates all three. Indexes are read-mostly:
// ingestion runs outside the query turn path and never concurrently with
// itself.
package index
