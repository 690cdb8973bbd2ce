// Package pipeline implements spec C9: the top-level coordinator wiring
// extraction, normalization, chunking, embedding, and sync into a single
// ingest operation, plus the query path that delegates to the hybrid
// retriever and attaches source spans for explainability.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/custodia-labs/ragcore/internal/chunking"
	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
	"github.com/custodia-labs/ragcore/internal/extraction"
	"github.com/custodia-labs/ragcore/internal/retrieval"
	"github.com/custodia-labs/ragcore/internal/sync"
	"github.com/custodia-labs/ragcore/internal/textclean"

	"lukechampine.com/blake3"
)

// Encoder is the subset of the embedder facade the pipeline needs
// directly: the fixed vector width, used to size a new collection.
// Query and document encoding happen inside the retriever and batcher
// respectively.
type Encoder interface {
	Dimensions() int
}

// Batcher is the subset of the embedding batcher the pipeline needs to
// enqueue chunk content for embedding and upsert.
type Batcher interface {
	Submit(chunk *domain.Chunk, collection string) (<-chan error, error)
}

// CacheReporter exposes embedder cache occupancy and tensor pool metrics
// for the benchmark exporter's system section; satisfied by
// *embedding.Facade.
type CacheReporter interface {
	CacheStats() (entries int, bytes int)
	PoolStats() (residentMB int, reuseHitRate float64, forcedCleanups int)
}

// Config holds every collaborator the pipeline orchestrates. Store and
// Cache are optional and only needed for Benchmark; Logger defaults to
// slog.Default() when nil.
type Config struct {
	Extractor *extraction.Orchestrator
	Chunker   *chunking.SmartChunker
	Encoder   Encoder
	Batcher   Batcher
	Spans     driven.SpanStore
	Sync      *sync.Manager
	Retriever *retrieval.Retriever
	Store     driven.VectorStore
	Cache     CacheReporter
	Logger    *slog.Logger
}

// Pipeline is the Pipeline (C9) implementation.
type Pipeline struct {
	extractor *extraction.Orchestrator
	chunker   *chunking.SmartChunker
	encoder   Encoder
	batcher   Batcher
	spans     driven.SpanStore
	syncMgr   *sync.Manager
	retriever *retrieval.Retriever
	store     driven.VectorStore
	cache     CacheReporter
	logger    *slog.Logger
}

func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: cfg.Extractor,
		chunker:   cfg.Chunker,
		encoder:   cfg.Encoder,
		batcher:   cfg.Batcher,
		spans:     cfg.Spans,
		syncMgr:   cfg.Sync,
		retriever: cfg.Retriever,
		store:     cfg.Store,
		cache:     cfg.Cache,
		logger:    logger,
	}
}

// IngestConfig tunes one ingest call.
type IngestConfig struct {
	// DocumentType overrides extension-based detection when set.
	DocumentType domain.DocumentType
	// WaitForSync blocks until every chunk reaches a terminal sync state
	// (synced, failed or conflict) before returning, draining the ledger directly
	// rather than waiting on the background sync loop.
	WaitForSync bool
	// SyncPollInterval paces the WaitForSync drain loop; defaults to
	// 50ms when zero.
	SyncPollInterval time.Duration
	// SyncTimeout bounds WaitForSync; zero means no bound.
	SyncTimeout time.Duration
}

// Ingest runs the full ingestion flow (spec §4.9): extract, normalize,
// chunk, enqueue for embedding, and persist via the sync ledger. It
// returns a non-nil error only for root-cause I/O failure on the source
// file or fatal misconfiguration; per-chunk failures are recorded in the
// ledger and surfaced on the returned Document's chunks, not as an error.
func (p *Pipeline) Ingest(ctx context.Context, path, groupID, collection string, cfg IngestConfig) (*domain.Document, error) {
	docType := cfg.DocumentType
	if docType == "" {
		docType = detectDocumentType(path)
	}

	documentID := documentIDFor(path)

	// Step 1: extraction.
	extracted, err := p.extractor.Extract(ctx, path, docType)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}

	now := time.Now()
	doc := &domain.Document{
		ID:         documentID,
		Path:       path,
		Type:       docType,
		Provenance: map[string]string{"group_id": groupID},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if extracted.Failed {
		// Spec §7: ExtractionFailed is reported, not propagated; the
		// pipeline emits a sentinel chunk and continues.
		sentinel := sentinelChunk(documentID, groupID, extracted.Method)
		doc.Chunks = []*domain.Chunk{sentinel}
		p.logger.Warn("extraction failed, emitting sentinel chunk", "document_id", documentID, "path", path)
		return doc, nil
	}

	// Step 2: normalization.
	clean, report := textclean.Normalize(extracted.Text)
	doc.Content = clean
	doc.ContentHash = fmt.Sprintf("%x", blake3.Sum256([]byte(clean)))
	p.logger.Info("document normalized", "document_id", documentID, "token_stability", report.TokenStability())

	// Step 3: chunking, with the fallback cascade (spec §4.2) applied when
	// the chunker alone leaves a non-empty document under-chunked.
	sourceType := sourceTypeFor(extracted.Method)
	chunkResult := p.chunker.ChunkDocument(clean, documentID, groupID, sourceType, extracted.Method)
	chunks, spans := p.fallbackCascade(chunkResult, clean, documentID, groupID, sourceType, extracted.Method)
	doc.Chunks = chunks

	if len(chunks) == 0 {
		p.logger.Warn("no chunks produced from non-empty document", "document_id", documentID)
		return doc, nil
	}

	for _, c := range chunks {
		spansForChunk := spansFor(c, spans)
		if err := p.spans.Put(ctx, c.ID, spansForChunk); err != nil {
			p.logger.Warn("span registration failed", "chunk_id", c.ID, "error", err)
		}
	}

	// Step 4 + 5: enqueue for embedding and persist via the sync ledger.
	dims := p.encoder.Dimensions()
	group := sync.Group{ID: groupID, Collection: collection, Dimensions: dims, Chunks: chunks}
	if err := p.syncMgr.AddGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("enroll document for sync: %w", err)
	}

	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ID
	}

	if cfg.WaitForSync {
		if err := p.drainUntilTerminal(ctx, chunkIDs, cfg); err != nil {
			p.logger.Warn("wait for sync did not reach terminal state", "document_id", documentID, "error", err)
		}
	} else if _, err := p.syncMgr.SyncPending(ctx, 0); err != nil {
		p.logger.Warn("initial sync pass failed", "document_id", documentID, "error", err)
	}

	// Supplemented "swap, don't leak" re-ingestion policy: drop any chunk
	// from a prior version of this document that the new chunk set no
	// longer includes.
	if removed, err := p.syncMgr.ReplaceDocument(ctx, documentID, collection, chunkIDs); err != nil {
		p.logger.Warn("stale version cleanup failed", "document_id", documentID, "error", err)
	} else if removed > 0 {
		p.logger.Info("removed stale chunks from prior version", "document_id", documentID, "count", removed)
	}

	p.logger.Info("ingest complete", "document_id", documentID, "chunks", len(doc.Chunks))
	return doc, nil
}

// drainUntilTerminal repeatedly calls SyncPending until every chunk in
// chunkIDs is synced, failed or in conflict, or the timeout elapses.
func (p *Pipeline) drainUntilTerminal(ctx context.Context, chunkIDs []string, cfg IngestConfig) error {
	interval := cfg.SyncPollInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	deadline := time.Time{}
	if cfg.SyncTimeout > 0 {
		deadline = time.Now().Add(cfg.SyncTimeout)
	}

	for {
		if _, err := p.syncMgr.SyncPending(ctx, 0); err != nil {
			return err
		}

		statuses, err := p.syncMgr.ChunkStatuses(ctx, chunkIDs)
		if err != nil {
			return err
		}
		allTerminal := len(statuses) == len(chunkIDs)
		for _, status := range statuses {
			if status != domain.SyncStatusSynced && status != domain.SyncStatusFailed && status != domain.SyncStatusConflict {
				allTerminal = false
				break
			}
		}
		if allTerminal {
			return nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("%w: sync did not reach terminal state before timeout", domain.ErrTimeoutExceeded)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Query runs the HybridRetriever and attaches the source spans each
// result's chunk was assembled from, for citation rendering. Query
// returns a non-nil error only for backend-unavailable conditions; an
// empty result set is a nil error with a nil slice.
func (p *Pipeline) Query(ctx context.Context, collection, query string, filters *domain.SearchFilters) ([]*domain.RankedChunk, error) {
	results, err := p.retriever.Search(ctx, collection, query, filters)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	if len(results) == 0 {
		return results, nil
	}

	chunkIDs := make([]string, len(results))
	for i, r := range results {
		chunkIDs[i] = r.ChunkID
	}

	spanSets, err := p.spans.GetBatch(ctx, chunkIDs)
	if err != nil {
		p.logger.Warn("span lookup failed, returning results without citations", "error", err)
		return results, nil
	}

	for _, r := range results {
		for _, span := range spanSets[r.ChunkID] {
			r.ContributingSpans = append(r.ContributingSpans, span.ID)
		}
	}
	return results, nil
}

func documentIDFor(path string) string {
	hash := blake3.Sum256([]byte(path))
	return fmt.Sprintf("doc_%x", hash[:8])
}

// spansFor collects the spans a chunk references, by span ID, from the
// full set the chunker produced for the document.
func spansFor(c *domain.Chunk, all []*domain.SourceSpan) []*domain.SourceSpan {
	wanted := make(map[string]bool, len(c.SourceSpans))
	for _, id := range c.SourceSpans {
		wanted[id] = true
	}
	var out []*domain.SourceSpan
	for _, s := range all {
		if wanted[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// detectDocumentType classifies a source path by extension when the
// caller doesn't supply one explicitly.
func detectDocumentType(path string) domain.DocumentType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return domain.DocumentTypePDF
	case ".png", ".jpg", ".jpeg", ".tiff", ".bmp":
		return domain.DocumentTypeImage
	case ".md", ".markdown":
		return domain.DocumentTypeMarkdown
	default:
		return domain.DocumentTypePlain
	}
}

func sourceTypeFor(method domain.ExtractionMethod) domain.SourceType {
	switch method.Kind {
	case domain.MethodPdfNative, domain.MethodDirectRead:
		return domain.SourceTypeNative
	case domain.MethodHybridIntelligent:
		return domain.SourceTypeHybridNative
	case domain.MethodPdfOcrFallback:
		return domain.SourceTypeHybridOCR
	case domain.MethodTesseractOcr:
		return domain.SourceTypeOCRExtracted
	default:
		return domain.SourceTypeNative
	}
}

func sentinelChunk(documentID, groupID string, method domain.ExtractionMethod) *domain.Chunk {
	return &domain.Chunk{
		ID:         fmt.Sprintf("chunk_%s_sentinel", documentID),
		GroupID:    groupID,
		DocumentID: documentID,
		Content:    "[extraction failed]",
		ChunkType:  domain.ChunkTypeTextBlock,
		Metadata: domain.ChunkMetadata{
			Tags:             []string{"extraction_failed"},
			Confidence:       0.0,
			SourceType:       domain.SourceTypeNative,
			ExtractionMethod: method,
		},
		CreatedAt: time.Now(),
	}
}

var blankLineRegex = regexp.MustCompile(`\n\s*\n`)

// fallbackCascade implements spec §4.2's fallback cascade: it is the
// Pipeline's job, not the chunker's, to guarantee a non-empty document
// never surfaces with zero usable chunks.
//
//  1. Zero chunks from a non-empty document become one whole-document chunk.
//  2. Exactly one chunk larger than 2x the profile's target size is
//     attempted as a naive paragraph split.
//  3. Fewer than two chunks over 3000 characters gets an aggressive
//     ~1500-char paragraph-aware split.
//  4. Still nothing: an extraction_failed sentinel chunk, confidence 0.
func (p *Pipeline) fallbackCascade(result chunking.Result, content, documentID, groupID string, sourceType domain.SourceType, method domain.ExtractionMethod) ([]*domain.Chunk, []*domain.SourceSpan) {
	chunks := result.Chunks
	spans := result.Spans

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return chunks, spans
	}

	if len(chunks) == 0 {
		chunks, spans = fallbackChunksFrom(trimmed, []string{trimmed}, documentID, groupID, sourceType, method)
	}

	targetChars := p.chunker.TargetChars()
	if len(chunks) == 1 && len(trimmed) > 2*targetChars {
		if parts := nonEmptyParts(blankLineRegex.Split(trimmed, -1)); len(parts) > 1 {
			chunks, spans = fallbackChunksFrom(trimmed, parts, documentID, groupID, sourceType, method)
		}
	}

	if len(chunks) < 2 && len(trimmed) > 3000 {
		if parts := aggressiveSplit(trimmed, 1500); len(parts) > 1 {
			chunks, spans = fallbackChunksFrom(trimmed, parts, documentID, groupID, sourceType, method)
		}
	}

	if len(chunks) == 0 {
		chunks = []*domain.Chunk{sentinelChunk(documentID, groupID, method)}
		spans = nil
	}

	return chunks, spans
}

// nonEmptyParts drops blank entries a regexp.Split leaves around runs of
// separators.
func nonEmptyParts(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// aggressiveSplit packs paragraphs into ~target-char chunks, falling back to
// single-newline boundaries when the content carries no blank-line
// paragraphs, and force-splitting by rune (never by byte, to stay UTF-8
// safe) any paragraph that alone exceeds target.
func aggressiveSplit(content string, target int) []string {
	paragraphs := nonEmptyParts(blankLineRegex.Split(content, -1))
	if len(paragraphs) == 1 {
		paragraphs = nonEmptyParts(strings.Split(paragraphs[0], "\n"))
	}

	var out []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		if current.Len() > 0 && current.Len()+len(para) > target {
			flush()
		}

		if len(para) > target {
			flush()
			runes := []rune(para)
			for len(runes) > 0 {
				cut := target
				if cut > len(runes) {
					cut = len(runes)
				}
				out = append(out, string(runes[:cut]))
				runes = runes[cut:]
			}
			continue
		}

		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(para)
	}
	flush()
	return out
}

// fallbackChunksFrom builds chunks and spans for cascade-produced text
// segments, locating each segment's char range in content by a forward
// scan so spans never overlap even though the split regex consumed the
// separators between segments.
func fallbackChunksFrom(content string, parts []string, documentID, groupID string, sourceType domain.SourceType, method domain.ExtractionMethod) ([]*domain.Chunk, []*domain.SourceSpan) {
	chunks := make([]*domain.Chunk, 0, len(parts))
	spans := make([]*domain.SourceSpan, 0, len(parts))

	cursor := 0
	for i, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}

		start := cursor
		if idx := strings.Index(content[cursor:], trimmed); idx >= 0 {
			start = cursor + idx
		}
		end := start + len(trimmed)
		cursor = end

		confidence := 0.9
		switch sourceType {
		case domain.SourceTypeNative:
			confidence = 1.0
		case domain.SourceTypeOCRExtracted:
			confidence = 0.8
		}

		hash := fmt.Sprintf("%x", blake3.Sum256([]byte(trimmed)))
		chunkID := fmt.Sprintf("chunk_%s_fallback_%d", hash[:16], i)
		spanID := fmt.Sprintf("span_%s_fallback_%d", hash[:16], i)

		spans = append(spans, &domain.SourceSpan{
			ID:          spanID,
			DocumentID:  documentID,
			CharStart:   start,
			CharEnd:     end,
			Method:      method,
			ContentHash: hash,
		})
		chunks = append(chunks, &domain.Chunk{
			ID:          chunkID,
			GroupID:     groupID,
			DocumentID:  documentID,
			Content:     trimmed,
			ContentHash: hash,
			ChunkType:   domain.ChunkTypeTextBlock,
			Metadata: domain.ChunkMetadata{
				Tags:             []string{"fallback_cascade"},
				Confidence:       confidence,
				SourceType:       sourceType,
				ExtractionMethod: method,
			},
			SourceSpans: []string{spanID},
			CreatedAt:   time.Now(),
		})
	}
	return chunks, spans
}
