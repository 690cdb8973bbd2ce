// Package batcher implements spec C5's EmbeddingBatcher: a bounded FIFO of
// pending chunks drained by a periodic background task, with N concurrent
// workers forming per-collection batches and retrying transient failures
// with exponential backoff.
package batcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

// DocumentEncoder is the subset of the embedder facade the batcher needs:
// passage-style encoding for chunk content.
type DocumentEncoder interface {
	EncodeDocument(ctx context.Context, text string) ([]float32, error)
}

// job is one pending unit of work: a chunk to encode and upsert into the
// named collection, plus the channel its submitter can wait on.
type job struct {
	chunk      *domain.Chunk
	collection string
	done       chan error
}

// Config tunes the batcher's scheduling and retry behavior. Zero values
// fall back to spec C5's defaults.
type Config struct {
	MaxConcurrentBatches int
	MaxQueueSize         int
	TickInterval         time.Duration
	BatchSize            int
	RetryAttempts        int
	RetryBaseDelay       time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = 4
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 1000
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 500 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	return c
}

// Batcher is the EmbeddingBatcher implementation.
type Batcher struct {
	cfg      Config
	encoder  DocumentEncoder
	store    driven.VectorStore
	logger   *slog.Logger
	metrics  metricsTracker

	mu       sync.Mutex
	queue    []job
	inFlight int

	sem      chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	emptyCond *sync.Cond
}

func New(encoder DocumentEncoder, store driven.VectorStore, cfg Config, logger *slog.Logger) *Batcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	b := &Batcher{
		cfg:     cfg,
		encoder: encoder,
		store:   store,
		logger:  logger,
		sem:     make(chan struct{}, cfg.MaxConcurrentBatches),
	}
	b.emptyCond = sync.NewCond(&b.mu)
	return b
}

// Start launches the background drain loop. Safe to call once; a second
// call is a no-op.
func (b *Batcher) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.mu.Unlock()

	go b.drainLoop(ctx)
}

// Submit enqueues a chunk for batch encoding and upsert into collection.
// Non-blocking: returns ErrQueueFull immediately if the queue is at
// capacity. The returned channel receives the terminal error (nil on
// success) once the chunk's batch completes; dropping it does not cancel
// the work; the chunk is still committed for durability (spec §5).
func (b *Batcher) Submit(chunk *domain.Chunk, collection string) (<-chan error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) >= b.cfg.MaxQueueSize {
		return nil, fmt.Errorf("%w: %d/%d", domain.ErrQueueFull, len(b.queue), b.cfg.MaxQueueSize)
	}

	done := make(chan error, 1)
	b.queue = append(b.queue, job{chunk: chunk, collection: collection, done: done})
	return done, nil
}

// WaitForEmpty blocks until the queue and all in-flight batches drain, or
// timeout elapses, returning false on timeout.
func (b *Batcher) WaitForEmpty(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	waitCh := make(chan struct{})

	go func() {
		b.mu.Lock()
		for len(b.queue) > 0 || b.inFlight > 0 {
			b.emptyCond.Wait()
		}
		b.mu.Unlock()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		return true
	case <-time.After(time.Until(deadline)):
		return false
	}
}

// Shutdown stops accepting the drain loop's tick-driven scheduling,
// processes whatever remains in the queue synchronously, and waits for
// in-flight workers to finish.
func (b *Batcher) Shutdown(ctx context.Context) {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	close(b.stopCh)
	b.mu.Unlock()

	<-b.doneCh

	// Holding every semaphore slot means no worker goroutine started by
	// dispatchReady is still running.
	for i := 0; i < cap(b.sem); i++ {
		b.sem <- struct{}{}
	}
	for i := 0; i < cap(b.sem); i++ {
		<-b.sem
	}

	for {
		batch, collection, ok := b.nextBatch()
		if !ok {
			break
		}
		b.processBatch(ctx, collection, batch)
	}

	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

func (b *Batcher) Metrics() Metrics {
	b.mu.Lock()
	depth := len(b.queue)
	b.mu.Unlock()
	return b.metrics.snapshot(depth)
}

func (b *Batcher) drainLoop(ctx context.Context) {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.dispatchReady(ctx)
		}
	}
}

// dispatchReady pulls as many batches as the queue currently holds and
// launches each on a worker goroutine, gated by the semaphore so at most
// MaxConcurrentBatches run at once.
func (b *Batcher) dispatchReady(ctx context.Context) {
	for {
		batch, collection, ok := b.nextBatch()
		if !ok {
			return
		}

		b.sem <- struct{}{}
		go func(collection string, batch []job) {
			defer func() { <-b.sem }()
			b.processBatch(ctx, collection, batch)
		}(collection, batch)
	}
}

// nextBatch pops up to BatchSize queued jobs that share the same
// collection, preserving FIFO order within that collection.
func (b *Batcher) nextBatch() ([]job, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil, "", false
	}

	collection := b.queue[0].collection
	var batch []job
	var rest []job
	for _, j := range b.queue {
		if j.collection == collection && len(batch) < b.cfg.BatchSize {
			batch = append(batch, j)
		} else {
			rest = append(rest, j)
		}
	}
	b.queue = rest
	b.inFlight++
	return batch, collection, true
}

func (b *Batcher) processBatch(ctx context.Context, collection string, batch []job) {
	start := time.Now()
	defer func() {
		b.mu.Lock()
		b.inFlight--
		if len(b.queue) == 0 && b.inFlight == 0 {
			b.emptyCond.Broadcast()
		}
		b.mu.Unlock()
	}()

	points := make([]driven.EmbeddingPoint, 0, len(batch))
	for _, j := range batch {
		vec, err := b.encoder.EncodeDocument(ctx, j.chunk.Content)
		if err != nil {
			b.fail(j, fmt.Errorf("encode chunk %s: %w", j.chunk.ID, err))
			continue
		}
		points = append(points, driven.EmbeddingPoint{
			ID:         j.chunk.ID,
			Embedding:  vec,
			ChunkID:    j.chunk.ID,
			DocumentID: j.chunk.DocumentID,
			GroupID:    j.chunk.GroupID,
			Content:    j.chunk.Content,
			ChunkType:  j.chunk.ChunkType,
			Language:   j.chunk.Metadata.Language,
			Tags:       j.chunk.Metadata.Tags,
			Priority:   j.chunk.Metadata.Priority,
			StartLine:  j.chunk.StartLine,
			EndLine:    j.chunk.EndLine,
			Confidence: j.chunk.Metadata.Confidence,
		})
	}

	if len(points) == 0 {
		return
	}

	err := b.upsertWithRetry(ctx, collection, points)
	latencyMS := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		b.metrics.recordFailure(len(points))
		for _, j := range batch {
			b.fail(j, err)
		}
		return
	}

	b.metrics.recordSuccess(latencyMS, len(points))
	for _, j := range batch {
		b.succeed(j)
	}
}

// upsertWithRetry retries transient store errors with exponential backoff:
// RetryBaseDelay * attempt, up to RetryAttempts tries.
func (b *Batcher) upsertWithRetry(ctx context.Context, collection string, points []driven.EmbeddingPoint) error {
	var lastErr error
	for attempt := 1; attempt <= b.cfg.RetryAttempts; attempt++ {
		if err := b.store.Upsert(ctx, collection, points); err != nil {
			lastErr = err
			b.logger.Warn("batch upsert failed, retrying",
				"collection", collection, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.cfg.RetryBaseDelay * time.Duration(attempt)):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: upsert failed after %d attempts: %v", domain.ErrBackendUnavailable, b.cfg.RetryAttempts, lastErr)
}

func (b *Batcher) fail(j job, err error) {
	select {
	case j.done <- err:
	default:
	}
}

func (b *Batcher) succeed(j job) {
	select {
	case j.done <- nil:
	default:
	}
}
