// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// The scenario selector embeds caller utterances and compares them against
// pre-embedded scenario descriptions in Postgres (pgvector). Implementations
// must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by one Provider instance share the dimensionality
// reported by Dimensions. Vectors from different instances must not be
// mixed in one similarity computation unless model and space match.
type Provider interface {
	// Embed computes the embedding vector for a single text string.
	// Returns a float32 slice of length Dimensions() or an error if the
	// request fails or ctx is cancelled. Text passes through verbatim;
	// any model-specific prefixing is the caller's job.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds a slice of texts in one provider call. The
	// returned slice matches texts in length and order. On error the
	// entire result is nil; partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length this provider produces.
	Dimensions() int

	// ModelID returns the model identifier ("text-embedding-3-small").
	ModelID() string
}
