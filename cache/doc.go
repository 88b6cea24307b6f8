// Package cache implements the layered cache used by the retrieval engine:
// a redis-backed primary tier with an in-process TTL tier underneath it, plus
// the two typed views the engine consumes — an embedding cache keyed by query
// text and a result cache keyed by (domain, query) holding ordered chunk ids.
package cache
