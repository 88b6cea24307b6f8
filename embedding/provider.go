// Package embedding defines the embedding gateway consumed by the retrieval
// engine and a caching decorator around it. Concrete providers are external;
// the engine only depends on the Provider interface.
package embedding

import (
	"context"
)

// Provider turns text into fixed-length vectors. Implementations may call a
// remote service and should surface transient failures as retryable
// types.Error values.
type Provider interface {
	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, query string) ([]float64, error)

	// EmbedDocuments embeds a batch of documents in one call.
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)

	// Name returns the provider name.
	Name() string

	// Dimensions returns the embedding dimensionality.
	Dimensions() int
}
