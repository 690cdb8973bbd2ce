package embedding

import (
	"fmt"
	"sync"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

// poolKey identifies a reusable buffer shape: dimension and element dtype
// (always float32 today, kept as a field so a future quantized backend has
// somewhere to attach without changing the pool's public shape).
type poolKey struct {
	dim   int
	dtype string
}

// tensorPool caps total resident bytes across pooled float32 buffers and
// reuses zero-initialized buffers by (shape, dtype), mirroring the device
// pool spec C4 describes for the embedder's backing tensors. Go has no GPU
// tensor runtime to bind to directly; this pool stands in for it at the
// buffer-allocation level the embedder actually touches.
type tensorPool struct {
	mu             sync.Mutex
	free           map[poolKey][][]float32
	residentMB     int
	capMB          int
	totalGets      int
	reuseHits      int
	forcedCleanups int
}

func newTensorPool(capMB int) *tensorPool {
	if capMB <= 0 {
		capMB = 512
	}
	return &tensorPool{free: make(map[poolKey][][]float32), capMB: capMB}
}

// Get returns a zeroed float32 buffer of length dim, reusing a pooled one
// if available. On sustained overflow (no reusable buffer and the cap is
// already exhausted even after a forced cleanup) it returns an error
// rather than growing past capMB.
func (p *tensorPool) Get(dim int) ([]float32, error) {
	key := poolKey{dim: dim, dtype: "float32"}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalGets++

	if bufs := p.free[key]; len(bufs) > 0 {
		buf := bufs[len(bufs)-1]
		p.free[key] = bufs[:len(bufs)-1]
		for i := range buf {
			buf[i] = 0
		}
		p.reuseHits++
		return buf, nil
	}

	sizeMB := (dim * 4) / (1024 * 1024)
	if sizeMB == 0 {
		sizeMB = 1
	}
	if p.residentMB+sizeMB > p.capMB {
		p.forceCleanupLocked()
		if p.residentMB+sizeMB > p.capMB {
			return nil, fmt.Errorf("%w: tensor pool at %dMB/%dMB", domain.ErrMemoryLimitExceeded, p.residentMB, p.capMB)
		}
	}

	p.residentMB += sizeMB
	return make([]float32, dim), nil
}

// Put returns a buffer to the pool for reuse by a future Get of the same
// dimension.
func (p *tensorPool) Put(buf []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := poolKey{dim: len(buf), dtype: "float32"}
	p.free[key] = append(p.free[key], buf)
}

// forceCleanupLocked drops every currently-free buffer, reclaiming their
// resident-byte accounting. Called while already holding p.mu.
func (p *tensorPool) forceCleanupLocked() {
	freed := 0
	for key, bufs := range p.free {
		sizeMB := (key.dim * 4) / (1024 * 1024)
		if sizeMB == 0 {
			sizeMB = 1
		}
		freed += sizeMB * len(bufs)
	}
	p.free = make(map[poolKey][][]float32)
	p.residentMB -= freed
	if p.residentMB < 0 {
		p.residentMB = 0
	}
	p.forcedCleanups++
}

// PoolStats reports the pool's current resident footprint and reuse
// behavior: resident MB, the fraction of Get calls served from the free
// list rather than a fresh allocation, and how many times sustained
// pressure forced a full free-list drop.
func (p *tensorPool) PoolStats() (residentMB int, reuseHitRate float64, forcedCleanups int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rate := 0.0
	if p.totalGets > 0 {
		rate = float64(p.reuseHits) / float64(p.totalGets)
	}
	return p.residentMB, rate, p.forcedCleanups
}
