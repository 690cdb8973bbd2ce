package driven

import (
	"context"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

// EmbeddingPoint is one vector + payload unit upserted into the vector
// store. Payload fields mirror what the retriever needs to rank and
// explain a result without a round trip back to the ledger.
type EmbeddingPoint struct {
	ID         string
	Embedding  []float32
	ChunkID    string
	DocumentID string
	GroupID    string
	Content    string
	ChunkType  domain.ChunkType
	Language   string
	Tags       []string
	Priority   int
	StartLine  int
	EndLine    int
	Symbol     string
	Context    string
	Confidence float64
}

// CollectionInfo reports point counts and index status for a collection.
type CollectionInfo struct {
	Name            string
	VectorCount     int
	IndexedVectors  int
	Status          string
}

// VectorStore is the façade over the external vector database (Qdrant).
// All methods are batch-capable where the spec requires it; callers
// submitting more than the store's native batch cap rely on the adapter to
// chunk internally.
type VectorStore interface {
	// EnsureCollection creates the collection with the given vector
	// dimension if it does not already exist. Idempotent.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// Upsert writes points, replacing any existing point with the same ID.
	Upsert(ctx context.Context, collection string, points []EmbeddingPoint) error

	// Search performs filtered k-NN search against a query embedding.
	Search(ctx context.Context, collection string, queryVec []float32, k int, filters *domain.SearchFilters) ([]*domain.RankedChunk, error)

	// Delete removes points by chunk ID.
	Delete(ctx context.Context, collection string, chunkIDs []string) error

	// DeleteByDocument removes all points belonging to a document.
	DeleteByDocument(ctx context.Context, collection, documentID string) error

	// CollectionInfo reports the current state of a collection.
	CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)

	// Exists reports which of the given chunk IDs currently have a point in
	// the collection, used by the sync ledger's integrity check to detect
	// entries marked synced that the store has silently lost.
	Exists(ctx context.Context, collection string, chunkIDs []string) (map[string]bool, error)

	// UpdateIndexingThreshold tunes the point count at which the backend
	// builds its ANN index, trading index-build cost against search
	// latency for small collections.
	UpdateIndexingThreshold(ctx context.Context, collection string, threshold int) error

	HealthCheck(ctx context.Context) error
}
