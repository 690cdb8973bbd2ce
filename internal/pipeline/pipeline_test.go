package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/custodia-labs/ragcore/internal/chunking"
	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
	"github.com/custodia-labs/ragcore/internal/extraction"
	"github.com/custodia-labs/ragcore/internal/retrieval"
	ragsync "github.com/custodia-labs/ragcore/internal/sync"
	"github.com/custodia-labs/ragcore/internal/spanstore"
)

// fakeLedger and fakeVectorStore mirror the test doubles in
// internal/sync/manager_test.go; duplicated here since that file's types
// are package-private to internal/sync.

type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]*domain.SyncEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]*domain.SyncEntry)}
}

func (l *fakeLedger) Save(ctx context.Context, entry *domain.SyncEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *entry
	l.entries[entry.ChunkID] = &cp
	return nil
}

func (l *fakeLedger) Get(ctx context.Context, chunkID string) (*domain.SyncEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[chunkID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (l *fakeLedger) ListByStatus(ctx context.Context, status domain.SyncStatus, limit int) ([]*domain.SyncEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.SyncEntry
	for _, e := range l.entries {
		if e.Status == status {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *fakeLedger) ListByGroup(ctx context.Context, groupID string) ([]*domain.SyncEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.SyncEntry
	for _, e := range l.entries {
		if e.GroupID == groupID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *fakeLedger) ListByDocument(ctx context.Context, documentID string) ([]*domain.SyncEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.SyncEntry
	for _, e := range l.entries {
		if e.DocumentID == documentID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *fakeLedger) UpdateStatus(ctx context.Context, chunkID string, status domain.SyncStatus, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[chunkID]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = status
	e.ErrorMessage = errMsg
	return nil
}

func (l *fakeLedger) Stats(ctx context.Context, groupID string) (*domain.SyncStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := &domain.SyncStats{}
	for _, e := range l.entries {
		if e.GroupID != groupID {
			continue
		}
		stats.Total++
		if e.Status == domain.SyncStatusSynced {
			stats.Synced++
		}
	}
	return stats, nil
}

func (l *fakeLedger) Delete(ctx context.Context, chunkID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, chunkID)
	return nil
}

func (l *fakeLedger) DeleteByDocument(ctx context.Context, documentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.entries {
		if e.DocumentID == documentID {
			delete(l.entries, id)
		}
	}
	return nil
}

type fakeVectorStore struct {
	mu   sync.Mutex
	docs map[string][]driven.EmbeddingPoint
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{docs: make(map[string][]driven.EmbeddingPoint)}
}

func (s *fakeVectorStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	return nil
}
func (s *fakeVectorStore) Upsert(ctx context.Context, collection string, points []driven.EmbeddingPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[collection] = append(s.docs[collection], points...)
	return nil
}
func (s *fakeVectorStore) Search(ctx context.Context, collection string, queryVec []float32, k int, filters *domain.SearchFilters) ([]*domain.RankedChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.RankedChunk
	for _, p := range s.docs[collection] {
		out = append(out, &domain.RankedChunk{ChunkID: p.ChunkID, Content: p.Content})
	}
	return out, nil
}
func (s *fakeVectorStore) Delete(ctx context.Context, collection string, chunkIDs []string) error {
	return nil
}
func (s *fakeVectorStore) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	return nil
}
func (s *fakeVectorStore) CollectionInfo(ctx context.Context, collection string) (*driven.CollectionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &driven.CollectionInfo{Name: collection, VectorCount: len(s.docs[collection]), IndexedVectors: len(s.docs[collection]), Status: "green"}, nil
}
func (s *fakeVectorStore) UpdateIndexingThreshold(ctx context.Context, collection string, threshold int) error {
	return nil
}
func (s *fakeVectorStore) HealthCheck(ctx context.Context) error { return nil }
func (s *fakeVectorStore) Exists(ctx context.Context, collection string, chunkIDs []string) (map[string]bool, error) {
	return nil, nil
}

type fakeOCR struct {
	fail bool
	text string
}

func (o *fakeOCR) ProcessImage(ctx context.Context, path string) (*driven.OCRResult, error) {
	if o.fail {
		return nil, errors.New("ocr backend unavailable")
	}
	text := o.text
	if text == "" {
		text = "scanned text"
	}
	return &driven.OCRResult{Text: text, Confidence: 0.9, Language: "en"}, nil
}
func (o *fakeOCR) ProcessImageBytes(ctx context.Context, data []byte, mimeType string) (*driven.OCRResult, error) {
	return o.ProcessImage(ctx, "")
}
func (o *fakeOCR) HealthCheck(ctx context.Context) error { return nil }

type fakeBatcher struct{}

func (b *fakeBatcher) Submit(chunk *domain.Chunk, collection string) (<-chan error, error) {
	ch := make(chan error, 1)
	ch <- nil
	return ch, nil
}

type fakeEncoder struct{ dims int }

func (e *fakeEncoder) Dimensions() int { return e.dims }

type fakeQueryEncoder struct{ dims int }

func (e *fakeQueryEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, e.dims), nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeVectorStore) {
	t.Helper()
	store := newFakeVectorStore()
	ledger := newFakeLedger()
	syncMgr := ragsync.New(ledger, store, &fakeBatcher{}, ragsync.Config{}, nil)
	retriever := retrieval.New(store, &fakeQueryEncoder{dims: 8}, retrieval.Config{})

	p := New(Config{
		Extractor: extraction.New(nil, nil, nil),
		Chunker:   chunking.New(chunking.ProfileMixed),
		Encoder:   &fakeEncoder{dims: 8},
		Batcher:   &fakeBatcher{},
		Spans:     spanstore.New(),
		Sync:      syncMgr,
		Retriever: retriever,
		Store:     store,
	})
	return p, store
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngest_PlainTextDocumentProducesSyncedChunks(t *testing.T) {
	p, store := newTestPipeline(t)
	content := "Introduction\n\n" + longParagraph("alpha beta gamma delta", 80) +
		"\n\nConclusion\n\n" + longParagraph("epsilon zeta eta theta", 80)
	path := writeTempFile(t, content)

	doc, err := p.Ingest(context.Background(), path, "group-1", "docs", IngestConfig{WaitForSync: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if doc.ContentHash == "" {
		t.Fatal("expected content hash to be set")
	}
	if len(store.docs["docs"]) != 0 {
		t.Fatalf("fakeBatcher never calls Upsert directly; store population is the batcher's job, got %d", len(store.docs["docs"]))
	}

	stats, err := p.syncMgr.Stats(context.Background(), "group-1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Synced != len(doc.Chunks) {
		t.Fatalf("expected all %d chunks synced, got %d", len(doc.Chunks), stats.Synced)
	}
}

func TestIngest_MissingSourceFilePropagatesIOError(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.Ingest(context.Background(), "/nonexistent/missing.txt", "group-1", "docs", IngestConfig{})
	if err == nil {
		t.Fatal("expected an error for a missing source file")
	}
	if !errors.Is(err, domain.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestIngest_OCRFailureEmitsSentinelChunkNotError(t *testing.T) {
	store := newFakeVectorStore()
	ledger := newFakeLedger()
	syncMgr := ragsync.New(ledger, store, &fakeBatcher{}, ragsync.Config{}, nil)
	retriever := retrieval.New(store, &fakeQueryEncoder{dims: 8}, retrieval.Config{})

	p := New(Config{
		Extractor: extraction.New(nil, &fakeOCR{fail: true}, nil),
		Chunker:   chunking.New(chunking.ProfileMixed),
		Encoder:   &fakeEncoder{dims: 8},
		Batcher:   &fakeBatcher{},
		Spans:     spanstore.New(),
		Sync:      syncMgr,
		Retriever: retriever,
		Store:     store,
	})

	imgPath := writeTempFile(t, "")
	imgPath = imgPath[:len(imgPath)-len(filepath.Ext(imgPath))] + ".png"
	if err := os.WriteFile(imgPath, []byte{0xff}, 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := p.Ingest(context.Background(), imgPath, "group-1", "docs", IngestConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Chunks) != 1 {
		t.Fatalf("expected one sentinel chunk, got %d", len(doc.Chunks))
	}
	if doc.Chunks[0].Metadata.Confidence != 0.0 {
		t.Fatalf("expected sentinel chunk confidence 0, got %v", doc.Chunks[0].Metadata.Confidence)
	}
	found := false
	for _, tag := range doc.Chunks[0].Metadata.Tags {
		if tag == "extraction_failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected extraction_failed tag, got %+v", doc.Chunks[0].Metadata.Tags)
	}
}

func TestQuery_AttachesContributingSpansFromRegisteredChunks(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	store.docs["docs"] = []driven.EmbeddingPoint{{ChunkID: "c1", Content: "hello world"}}
	_ = p.spans.Put(ctx, "c1", []*domain.SourceSpan{{ID: "span-1", DocumentID: "doc-1", CharStart: 0, CharEnd: 11}})

	results, err := p.Query(ctx, "docs", "hello", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if len(results[0].ContributingSpans) != 1 || results[0].ContributingSpans[0] != "span-1" {
		t.Fatalf("expected contributing span span-1, got %+v", results[0].ContributingSpans)
	}
}

func TestQuery_EmptyResultsReturnNilErrorAndNilSlice(t *testing.T) {
	p, _ := newTestPipeline(t)

	results, err := p.Query(context.Background(), "empty-collection", "anything", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}

func TestIngest_ShortDocumentStillYieldsOneChunkViaFallbackCascade(t *testing.T) {
	p, _ := newTestPipeline(t)
	// Well under the mixed profile's min_chars (180 tokens * 4 = 720); the
	// chunker alone would emit zero chunks for this segment.
	content := "A short note about nothing in particular, just a few words."
	path := writeTempFile(t, content)

	doc, err := p.Ingest(context.Background(), path, "group-1", "docs", IngestConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Chunks) < 1 {
		t.Fatalf("expected fallback cascade to produce at least one chunk, got %d", len(doc.Chunks))
	}
	if doc.Chunks[0].Content != content {
		t.Fatalf("expected whole-document chunk, got %q", doc.Chunks[0].Content)
	}
}

func TestIngest_LargeUnstructuredOCROutputYieldsAtLeastThreeChunks(t *testing.T) {
	store := newFakeVectorStore()
	ledger := newFakeLedger()
	syncMgr := ragsync.New(ledger, store, &fakeBatcher{}, ragsync.Config{}, nil)
	retriever := retrieval.New(store, &fakeQueryEncoder{dims: 8}, retrieval.Config{})

	// Long run-on OCR text: no sentence punctuation or paragraph breaks, so
	// the chunker's own sentence-boundary packer collapses it into a single
	// chunk under max_chars and the fallback cascade's aggressive split
	// must take over.
	word := "garbled ocr word salad with no punctuation at all "
	text := ""
	for len(text) < 3100 {
		text += word
	}

	p := New(Config{
		Extractor: extraction.New(nil, &fakeOCR{text: text}, nil),
		Chunker:   chunking.New(chunking.ProfileMixed),
		Encoder:   &fakeEncoder{dims: 8},
		Batcher:   &fakeBatcher{},
		Spans:     spanstore.New(),
		Sync:      syncMgr,
		Retriever: retriever,
		Store:     store,
	})

	imgPath := writeTempFile(t, "")
	imgPath = imgPath[:len(imgPath)-len(filepath.Ext(imgPath))] + ".png"
	if err := os.WriteFile(imgPath, []byte{0xff}, 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := p.Ingest(context.Background(), imgPath, "group-1", "docs", IngestConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Chunks) < 3 {
		t.Fatalf("expected at least 3 chunks after aggressive split, got %d", len(doc.Chunks))
	}
}

func longParagraph(words string, repeat int) string {
	out := ""
	for i := 0; i < repeat; i++ {
		out += words + ". "
	}
	return out
}
