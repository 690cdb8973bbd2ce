package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

// Facade implements spec C4: it wraps an opaque driven.Embedder with a
// content-hash cache and a tensor pool, and serializes encode calls
// through a single guard the way a single model instance would (spec §5:
// "multiple concurrent encode calls serialize through the model's guard").
type Facade struct {
	backend driven.Embedder
	cache   *vectorCache
	pool    *tensorPool
	guard   sync.Mutex
}

type FacadeConfig struct {
	CacheMaxEntries int
	CacheMaxBytes   int
	PoolCapMB       int
}

func NewFacade(backend driven.Embedder, cfg FacadeConfig) *Facade {
	return &Facade{
		backend: backend,
		cache:   newVectorCache(cfg.CacheMaxEntries, cfg.CacheMaxBytes, 0),
		pool:    newTensorPool(cfg.PoolCapMB),
	}
}

// Encode is the query-style single-text encode path: cache lookup, then a
// guarded backend call, with the result cached for subsequent identical
// text. It calls the backend's EncodeQuery while EncodeBatch calls the
// backend's EncodeBatch, so Encode(x) and EncodeBatch([x]) return the same
// vector only when the backend's two methods agree (HTTPEmbedder's
// EncodeQuery delegates to its EncodeBatch).
func (f *Facade) Encode(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := f.cache.get(text); ok {
		return vec, nil
	}

	scratch, perr := f.pool.Get(f.backend.Dimensions())
	if perr != nil {
		return nil, perr
	}
	defer f.pool.Put(scratch)

	f.guard.Lock()
	vec, err := f.backend.EncodeQuery(ctx, text)
	f.guard.Unlock()
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	f.cache.put(text, vec)
	return vec, nil
}

// EncodeBatch preserves input order; any already-cached texts are served
// without a round trip, and the remainder go to the backend in one call.
func (f *Facade) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		if vec, ok := f.cache.get(t); ok {
			result[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) > 0 {
		f.guard.Lock()
		vectors, err := f.backend.EncodeBatch(ctx, missTexts)
		f.guard.Unlock()
		if err != nil {
			return nil, fmt.Errorf("encode_batch: %w", err)
		}
		for j, idx := range missIdx {
			result[idx] = vectors[j]
			f.cache.put(missTexts[j], vectors[j])
		}
	}

	return result, nil
}

// EncodeDocument applies the backend's passage-style encoding, which may
// use a different prefix/format from query encoding per spec C4.
func (f *Facade) EncodeDocument(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := f.cache.get(text); ok {
		return vec, nil
	}

	f.guard.Lock()
	vec, err := f.backend.EncodePassage(ctx, text)
	f.guard.Unlock()
	if err != nil {
		return nil, fmt.Errorf("encode_document: %w", err)
	}

	f.cache.put(text, vec)
	return vec, nil
}

// CacheStats returns (entries, bytes) for the internal vector cache.
func (f *Facade) CacheStats() (int, int) {
	return f.cache.stats()
}

// PoolStats exposes the embedder's tensor pool metrics for the Benchmark
// exporter's system section (SPEC_FULL §C): resident MB, the scratch-buffer
// reuse-hit rate, and the forced-cleanup count.
func (f *Facade) PoolStats() (residentMB int, reuseHitRate float64, forcedCleanups int) {
	return f.pool.PoolStats()
}

func (f *Facade) Dimensions() int { return f.backend.Dimensions() }
func (f *Facade) Model() string   { return f.backend.Model() }

func (f *Facade) HealthCheck(ctx context.Context) error {
	return f.backend.HealthCheck(ctx)
}

func (f *Facade) Close() error {
	return f.backend.Close()
}
