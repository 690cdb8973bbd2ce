// Package spanstore implements the process-wide SpanManager (spec §5): a
// single-writer, snapshot-reading registry of SourceSpans keyed by chunk
// ID. The Pipeline is the sole writer; the retriever and citation
// rendering take a consistent read snapshot per call.
package spanstore

import (
	"context"
	"sync"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

var _ driven.SpanStore = (*Store)(nil)

// Store is an in-memory driven.SpanStore. Spans are small relative to
// chunk content and are rebuilt from the source document on re-ingestion,
// so no persistence is required beyond process lifetime.
type Store struct {
	mu    sync.RWMutex
	spans map[string][]*domain.SourceSpan
}

func New() *Store {
	return &Store{spans: make(map[string][]*domain.SourceSpan)}
}

func (s *Store) Put(ctx context.Context, chunkID string, spans []*domain.SourceSpan) error {
	cp := make([]*domain.SourceSpan, len(spans))
	copy(cp, spans)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans[chunkID] = cp
	return nil
}

func (s *Store) Get(ctx context.Context, chunkID string) ([]*domain.SourceSpan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spans[chunkID], nil
}

func (s *Store) GetBatch(ctx context.Context, chunkIDs []string) (map[string][]*domain.SourceSpan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]*domain.SourceSpan, len(chunkIDs))
	for _, id := range chunkIDs {
		if spans, ok := s.spans[id]; ok {
			out[id] = spans
		}
	}
	return out, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for chunkID, spans := range s.spans {
		if len(spans) > 0 && spans[0].DocumentID == documentID {
			delete(s.spans, chunkID)
		}
	}
	return nil
}
