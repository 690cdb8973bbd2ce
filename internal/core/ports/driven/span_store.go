package driven

import (
	"context"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

// SpanStore is the process-wide registry of SourceSpans, keyed by chunk ID.
// Spans are referenced by chunks, never copied into them, so a single
// writer (the ingest pipeline) owns mutation while readers (the retriever,
// citation rendering) take a consistent snapshot per call.
type SpanStore interface {
	// Put registers the spans a chunk was assembled from. Replaces any
	// spans previously registered for the same chunk ID.
	Put(ctx context.Context, chunkID string, spans []*domain.SourceSpan) error

	// Get returns the spans registered for a chunk, or nil if none.
	Get(ctx context.Context, chunkID string) ([]*domain.SourceSpan, error)

	// GetBatch returns spans for multiple chunks in one call.
	GetBatch(ctx context.Context, chunkIDs []string) (map[string][]*domain.SourceSpan, error)

	// DeleteByDocument drops every span belonging to a document, used when
	// a document is re-ingested or removed.
	DeleteByDocument(ctx context.Context, documentID string) error
}

// SyncStateStore persists the per-chunk sync ledger (PostgreSQL).
type SyncStateStore interface {
	Save(ctx context.Context, entry *domain.SyncEntry) error
	Get(ctx context.Context, chunkID string) (*domain.SyncEntry, error)
	ListByStatus(ctx context.Context, status domain.SyncStatus, limit int) ([]*domain.SyncEntry, error)
	ListByGroup(ctx context.Context, groupID string) ([]*domain.SyncEntry, error)
	ListByDocument(ctx context.Context, documentID string) ([]*domain.SyncEntry, error)
	UpdateStatus(ctx context.Context, chunkID string, status domain.SyncStatus, errMsg string) error
	Stats(ctx context.Context, groupID string) (*domain.SyncStats, error)
	Delete(ctx context.Context, chunkID string) error
	DeleteByDocument(ctx context.Context, documentID string) error
}
