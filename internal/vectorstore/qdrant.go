// Package vectorstore adapts driven.VectorStore onto Qdrant's REST API, per
// spec C6. It speaks plain HTTP/JSON rather than the gRPC client so it has
// no dependency beyond the standard library's net/http, matching the
// "REST is more stable for debugging" choice the reference implementation
// made for batch-heavy workloads.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

var _ driven.VectorStore = (*QdrantStore)(nil)

// Config holds Qdrant connection settings.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	MaxBatchSize  int
	RetryAttempts int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:6333"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBatchSize <= 0 || c.MaxBatchSize > 100 {
		c.MaxBatchSize = 100
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	return c
}

// QdrantStore implements driven.VectorStore against a Qdrant REST endpoint.
type QdrantStore struct {
	baseURL string
	cfg     Config
	client  *http.Client
}

func NewQdrantStore(cfg Config) *QdrantStore {
	cfg = cfg.withDefaults()
	return &QdrantStore{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type qdrantVectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type qdrantCreateCollectionReq struct {
	Vectors qdrantVectorParams `json:"vectors"`
}

// EnsureCollection creates the named collection with cosine-distance
// vectors of the given dimension. Idempotent: any existing collection is
// left alone; its dimension is not compared with dim.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	info, err := s.CollectionInfo(ctx, name)
	if err == nil && info != nil {
		return nil
	}

	body := qdrantCreateCollectionReq{Vectors: qdrantVectorParams{Size: dim, Distance: "Cosine"}}
	_, err = s.doRequest(ctx, http.MethodPut, "/collections/"+name, body)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

type qdrantPointPayload struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	GroupID    string   `json:"group_id"`
	Content    string   `json:"content"`
	ChunkType  string   `json:"chunk_type"`
	Language   string   `json:"language,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Priority   int      `json:"priority"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Symbol     string   `json:"symbol,omitempty"`
	Context    string   `json:"context,omitempty"`
	Confidence float64  `json:"confidence"`
}

type qdrantPoint struct {
	ID      string             `json:"id"`
	Vector  []float32          `json:"vector"`
	Payload qdrantPointPayload `json:"payload"`
}

type qdrantUpsertReq struct {
	Points []qdrantPoint `json:"points"`
}

// Upsert writes points in batches capped at the store's MaxBatchSize, per
// spec §6's recommendation that large REST payloads destabilize Qdrant's
// HTTP/1.1 path. Each batch retries failures with a linear backoff of
// 500ms times the attempt number.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []driven.EmbeddingPoint) error {
	if len(points) == 0 {
		return nil
	}

	for start := 0; start < len(points); start += s.cfg.MaxBatchSize {
		end := start + s.cfg.MaxBatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := s.upsertBatch(ctx, collection, points[start:end]); err != nil {
			return fmt.Errorf("upsert batch [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (s *QdrantStore) upsertBatch(ctx context.Context, collection string, points []driven.EmbeddingPoint) error {
	req := qdrantUpsertReq{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		req.Points[i] = qdrantPoint{
			ID:     p.ID,
			Vector: p.Embedding,
			Payload: qdrantPointPayload{
				ChunkID:    p.ChunkID,
				DocumentID: p.DocumentID,
				GroupID:    p.GroupID,
				Content:    p.Content,
				ChunkType:  string(p.ChunkType),
				Language:   p.Language,
				Tags:       p.Tags,
				Priority:   p.Priority,
				StartLine:  p.StartLine,
				EndLine:    p.EndLine,
				Symbol:     p.Symbol,
				Context:    p.Context,
				Confidence: p.Confidence,
			},
		}
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		_, err := s.doRequest(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", req)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, lastErr)
}

type qdrantMatch struct {
	Value any `json:"value,omitempty"`
	Any   any `json:"any,omitempty"`
}

type qdrantRange struct {
	Gte *float64 `json:"gte,omitempty"`
}

type qdrantFieldCondition struct {
	Key   string       `json:"key"`
	Match *qdrantMatch `json:"match,omitempty"`
	Range *qdrantRange `json:"range,omitempty"`
}

type qdrantFilter struct {
	Must []qdrantFieldCondition `json:"must,omitempty"`
}

func buildFilter(f *domain.SearchFilters) *qdrantFilter {
	if f == nil {
		return nil
	}

	var must []qdrantFieldCondition
	if f.GroupID != "" {
		must = append(must, qdrantFieldCondition{Key: "group_id", Match: &qdrantMatch{Value: f.GroupID}})
	}
	if f.DocumentID != "" {
		must = append(must, qdrantFieldCondition{Key: "document_id", Match: &qdrantMatch{Value: f.DocumentID}})
	}
	if f.ChunkType != "" {
		must = append(must, qdrantFieldCondition{Key: "chunk_type", Match: &qdrantMatch{Value: string(f.ChunkType)}})
	}
	if f.Language != "" {
		must = append(must, qdrantFieldCondition{Key: "language", Match: &qdrantMatch{Value: f.Language}})
	}
	if len(f.Tags) > 0 {
		must = append(must, qdrantFieldCondition{Key: "tags", Match: &qdrantMatch{Any: f.Tags}})
	}
	if f.Priority != nil {
		must = append(must, qdrantFieldCondition{Key: "priority", Match: &qdrantMatch{Value: *f.Priority}})
	}
	if f.MinConfidence != nil {
		must = append(must, qdrantFieldCondition{Key: "confidence", Range: &qdrantRange{Gte: f.MinConfidence}})
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrantFilter{Must: must}
}

type qdrantSearchReq struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	Filter      *qdrantFilter `json:"filter,omitempty"`
}

type qdrantSearchHit struct {
	ID      string             `json:"id"`
	Score   float64            `json:"score"`
	Payload qdrantPointPayload `json:"payload"`
}

type qdrantSearchResp struct {
	Result []qdrantSearchHit `json:"result"`
}

// Search performs filtered k-NN search and maps Qdrant's cosine score into
// the domain.RankedChunk's CosineScore field; fusion with BM25 happens one
// layer up, in the retriever.
func (s *QdrantStore) Search(ctx context.Context, collection string, queryVec []float32, k int, filters *domain.SearchFilters) ([]*domain.RankedChunk, error) {
	req := qdrantSearchReq{
		Vector:      queryVec,
		Limit:       k,
		WithPayload: true,
		Filter:      buildFilter(filters),
	}

	raw, err := s.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/search", req)
	if err != nil {
		return nil, fmt.Errorf("search collection %s: %w", collection, err)
	}

	var parsed qdrantSearchResp
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	results := make([]*domain.RankedChunk, 0, len(parsed.Result))
	for _, hit := range parsed.Result {
		results = append(results, &domain.RankedChunk{
			ChunkID:     hit.Payload.ChunkID,
			Content:     hit.Payload.Content,
			CosineScore: hit.Score,
		})
	}
	return results, nil
}

type qdrantDeleteReq struct {
	Points []string `json:"points"`
}

// Delete removes points by chunk ID. Point IDs and chunk IDs are the same
// value in this store (see upsertBatch), so no lookup is needed.
func (s *QdrantStore) Delete(ctx context.Context, collection string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := s.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", qdrantDeleteReq{Points: chunkIDs})
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

type qdrantDeleteByFilterReq struct {
	Filter qdrantFilter `json:"filter"`
}

// DeleteByDocument removes every point tagged with the given document ID
// via Qdrant's filter-based delete, rather than fetching IDs first.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	req := qdrantDeleteByFilterReq{
		Filter: qdrantFilter{Must: []qdrantFieldCondition{
			{Key: "document_id", Match: &qdrantMatch{Value: documentID}},
		}},
	}
	_, err := s.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", req)
	if err != nil {
		return fmt.Errorf("delete by document %s: %w", documentID, err)
	}
	return nil
}

type qdrantCollectionInfoResp struct {
	Result struct {
		Status         string `json:"status"`
		PointsCount    int    `json:"points_count"`
		IndexedVectors int    `json:"indexed_vectors_count"`
	} `json:"result"`
}

// CollectionInfo reports point counts and index status.
func (s *QdrantStore) CollectionInfo(ctx context.Context, collection string) (*driven.CollectionInfo, error) {
	raw, err := s.doRequest(ctx, http.MethodGet, "/collections/"+collection, nil)
	if err != nil {
		return nil, err
	}

	var parsed qdrantCollectionInfoResp
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse collection info: %w", err)
	}

	return &driven.CollectionInfo{
		Name:           collection,
		VectorCount:    parsed.Result.PointsCount,
		IndexedVectors: parsed.Result.IndexedVectors,
		Status:         parsed.Result.Status,
	}, nil
}

type qdrantRetrieveReq struct {
	IDs         []string `json:"ids"`
	WithPayload bool     `json:"with_payload"`
	WithVector  bool     `json:"with_vector"`
}

type qdrantRetrieveResp struct {
	Result []struct {
		ID string `json:"id"`
	} `json:"result"`
}

// Exists probes point presence via Qdrant's points-retrieve endpoint,
// which silently omits any ID that isn't stored rather than erroring.
func (s *QdrantStore) Exists(ctx context.Context, collection string, chunkIDs []string) (map[string]bool, error) {
	found := make(map[string]bool, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return found, nil
	}

	req := qdrantRetrieveReq{IDs: chunkIDs, WithPayload: false, WithVector: false}
	raw, err := s.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points", req)
	if err != nil {
		return nil, fmt.Errorf("retrieve points: %w", err)
	}

	var parsed qdrantRetrieveResp
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse retrieve response: %w", err)
	}
	for _, r := range parsed.Result {
		found[r.ID] = true
	}
	return found, nil
}

type qdrantOptimizersConfig struct {
	IndexingThreshold int `json:"indexing_threshold"`
}

type qdrantUpdateCollectionReq struct {
	OptimizersConfig qdrantOptimizersConfig `json:"optimizers_config"`
}

// UpdateIndexingThreshold tunes the point count at which Qdrant builds its
// HNSW index. Small collections benefit from a higher threshold since
// exact search is cheap until the collection grows.
func (s *QdrantStore) UpdateIndexingThreshold(ctx context.Context, collection string, threshold int) error {
	req := qdrantUpdateCollectionReq{OptimizersConfig: qdrantOptimizersConfig{IndexingThreshold: threshold}}
	_, err := s.doRequest(ctx, http.MethodPatch, "/collections/"+collection, req)
	if err != nil {
		return fmt.Errorf("update indexing threshold for %s: %w", collection, err)
	}
	return nil
}

func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	raw, err := s.doRequest(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("qdrant health check returned no body")
	}
	return nil
}

func (s *QdrantStore) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("qdrant returned status %d: %s", resp.StatusCode, string(raw))
	}

	return raw, nil
}
