package driven

import "context"

// Embedder generates dense vector representations of text. Implementations
// must return unit-norm vectors of a fixed Dimensions() length; callers rely
// on this for cosine-similarity shortcuts in the retriever.
type Embedder interface {
	// EncodeQuery embeds a single search query. Some models use an
	// asymmetric prefix or projection for queries versus passages.
	EncodeQuery(ctx context.Context, query string) ([]float32, error)

	// EncodePassage embeds a single passage/chunk for indexing.
	EncodePassage(ctx context.Context, text string) ([]float32, error)

	// EncodeBatch embeds multiple passages in one call. Implementations
	// should exploit model-level batching where available.
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed output vector length.
	Dimensions() int

	// Model identifies the underlying embedding model.
	Model() string

	// HealthCheck verifies the embedding backend is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}
