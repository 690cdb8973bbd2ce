// Package sync implements spec C8's SyncManager: a durable per-chunk
// ledger tracking each chunk's vector-store sync state, driven by a
// periodic sync loop and a periodic integrity loop.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

// Batcher is the subset of the embedding batcher the manager needs to push
// pending chunks toward the vector store.
type Batcher interface {
	Submit(chunk *domain.Chunk, collection string) (<-chan error, error)
}

// Group is a set of chunks destined for one vector-store collection,
// enrolled together (spec §4.8's add_group).
type Group struct {
	ID         string
	Collection string
	Dimensions int
	Chunks     []*domain.Chunk
}

// Config tunes the background loops. Zero intervals fall back to spec
// defaults; MaxSyncPerTick caps the entries one sync tick drains, and zero
// leaves it unbounded.
type Config struct {
	SyncInterval            time.Duration
	IntegrityCheckInterval  time.Duration
	MaxSyncPerTick          int
}

func (c Config) withDefaults() Config {
	if c.SyncInterval <= 0 {
		c.SyncInterval = 30 * time.Second
	}
	if c.IntegrityCheckInterval <= 0 {
		c.IntegrityCheckInterval = 5 * time.Minute
	}
	return c
}

// Manager is the SyncManager implementation.
type Manager struct {
	cfg     Config
	ledger  driven.SyncStateStore
	store   driven.VectorStore
	batcher Batcher
	logger  *slog.Logger

	lock     driven.DistributedLock
	lockName string
	lockTTL  time.Duration

	mu       sync.Mutex
	shutdown chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// UseLock enables single-writer election across replicas: each background
// tick only runs its sync/integrity pass after acquiring the named lock,
// so two processes sharing a ledger never race to drain the same pending
// entries. Call before Start; a nil lock disables the behavior (the
// zero-value Manager runs unlocked, suitable for single-instance use).
func (m *Manager) UseLock(lock driven.DistributedLock, name string, ttl time.Duration) {
	m.lock = lock
	m.lockName = name
	m.lockTTL = ttl
}

func New(ledger driven.SyncStateStore, store driven.VectorStore, batcher Batcher, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg.withDefaults(),
		ledger:  ledger,
		store:   store,
		batcher: batcher,
		logger:  logger,
	}
}

// AddGroup ensures the group's target collection exists and enrolls every
// chunk in it as a pending ledger entry.
func (m *Manager) AddGroup(ctx context.Context, group Group) error {
	if err := m.store.EnsureCollection(ctx, group.Collection, group.Dimensions); err != nil {
		return fmt.Errorf("ensure collection %s: %w", group.Collection, err)
	}

	now := time.Now()
	for _, chunk := range group.Chunks {
		status := domain.SyncStatusPending

		// A chunk re-enrolled under the same ID but with content that
		// diverges from what's already marked synced is a conflict: the
		// ledger and the store may disagree about what that ID holds,
		// and it isn't auto-reconciled (spec §4.8).
		if existing, err := m.ledger.Get(ctx, chunk.ID); err == nil {
			if existing.Status == domain.SyncStatusSynced && existing.ContentHash != chunk.ContentHash {
				status = domain.SyncStatusConflict
			}
		}

		entry := &domain.SyncEntry{
			ChunkID:     chunk.ID,
			DocumentID:  chunk.DocumentID,
			GroupID:     group.ID,
			Collection:  group.Collection,
			ContentHash: chunk.ContentHash,
			Status:      status,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := m.ledger.Save(ctx, entry); err != nil {
			return fmt.Errorf("enroll chunk %s: %w", chunk.ID, err)
		}
		if status == domain.SyncStatusConflict {
			m.logger.Warn("chunk enrollment conflict", "chunk_id", chunk.ID, "group_id", group.ID)
		}
	}

	m.logger.Info("group enrolled for sync", "group_id", group.ID, "collection", group.Collection, "chunks", len(group.Chunks))
	return nil
}

// SyncPending submits the chunk of each pending ledger entry to the
// batcher under that entry's collection, advancing it to processing and then
// to synced or failed as the batcher resolves it. max caps how many
// entries are drained in one call; max<=0 means unbounded.
func (m *Manager) SyncPending(ctx context.Context, max int) (int, error) {
	pending, err := m.ledger.ListByStatus(ctx, domain.SyncStatusPending, max)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	type outcome struct {
		entry *domain.SyncEntry
		errCh <-chan error
	}
	var outcomes []outcome

	for _, entry := range pending {
		if err := m.ledger.UpdateStatus(ctx, entry.ChunkID, domain.SyncStatusProcessing, ""); err != nil {
			m.logger.Warn("mark processing failed", "chunk_id", entry.ChunkID, "error", err)
			continue
		}
		chunk := &domain.Chunk{ID: entry.ChunkID, DocumentID: entry.DocumentID, GroupID: entry.GroupID, ContentHash: entry.ContentHash}
		errCh, err := m.batcher.Submit(chunk, entry.Collection)
		if err != nil {
			m.failEntry(ctx, entry, err)
			continue
		}
		outcomes = append(outcomes, outcome{entry: entry, errCh: errCh})
	}

	synced := 0
	for _, o := range outcomes {
		select {
		case err := <-o.errCh:
			if err != nil {
				m.failEntry(ctx, o.entry, err)
				continue
			}
			if uErr := m.ledger.UpdateStatus(ctx, o.entry.ChunkID, domain.SyncStatusSynced, ""); uErr != nil {
				m.logger.Warn("mark synced failed", "chunk_id", o.entry.ChunkID, "error", uErr)
				continue
			}
			synced++
		case <-ctx.Done():
			return synced, ctx.Err()
		}
	}

	m.logger.Info("sync pass complete", "pending", len(pending), "synced", synced)
	return synced, nil
}

func (m *Manager) failEntry(ctx context.Context, entry *domain.SyncEntry, cause error) {
	if err := m.ledger.UpdateStatus(ctx, entry.ChunkID, domain.SyncStatusFailed, cause.Error()); err != nil {
		m.logger.Warn("mark failed failed", "chunk_id", entry.ChunkID, "error", err)
	}
}

// CheckIntegrity probes the vector store for every chunk marked synced and
// resets any missing entry back to pending, grouped by collection so a
// single Exists call covers every chunk in that collection.
func (m *Manager) CheckIntegrity(ctx context.Context) ([]domain.IntegrityIssue, error) {
	synced, err := m.ledger.ListByStatus(ctx, domain.SyncStatusSynced, 0)
	if err != nil {
		return nil, fmt.Errorf("list synced: %w", err)
	}
	if len(synced) == 0 {
		return nil, nil
	}

	byCollection := make(map[string][]*domain.SyncEntry)
	for _, e := range synced {
		byCollection[e.Collection] = append(byCollection[e.Collection], e)
	}

	var issues []domain.IntegrityIssue
	for collection, entries := range byCollection {
		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ChunkID
		}

		found, err := m.store.Exists(ctx, collection, ids)
		if err != nil {
			m.logger.Warn("integrity probe failed", "collection", collection, "error", err)
			continue
		}

		for _, e := range entries {
			if found[e.ChunkID] {
				continue
			}
			issues = append(issues, domain.IntegrityIssue{
				ChunkID:    e.ChunkID,
				Collection: collection,
				Reason:     "missing from vector store despite synced ledger entry",
			})
			e.ResetToPending()
			if err := m.ledger.UpdateStatus(ctx, e.ChunkID, domain.SyncStatusPending, ""); err != nil {
				m.logger.Warn("resync mark failed", "chunk_id", e.ChunkID, "error", err)
			}
		}
	}

	if len(issues) == 0 {
		m.logger.Info("integrity check passed")
	} else {
		m.logger.Warn("integrity check found issues", "count", len(issues))
	}
	return issues, nil
}

// ReplaceDocument implements the "swap, don't leak" re-ingestion policy:
// once a document's new chunks are enrolled under keepChunkIDs, any ledger
// entry still on record for the same document under a different chunk ID
// is a stale chunk from a prior version and is removed from both the
// vector store and the ledger.
func (m *Manager) ReplaceDocument(ctx context.Context, documentID, collection string, keepChunkIDs []string) (int, error) {
	existing, err := m.ledger.ListByDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("list document entries: %w", err)
	}

	keep := make(map[string]bool, len(keepChunkIDs))
	for _, id := range keepChunkIDs {
		keep[id] = true
	}

	var stale []string
	for _, e := range existing {
		if !keep[e.ChunkID] {
			stale = append(stale, e.ChunkID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := m.store.Delete(ctx, collection, stale); err != nil {
		return 0, fmt.Errorf("delete stale chunks from store: %w", err)
	}
	for _, id := range stale {
		if err := m.ledger.Delete(ctx, id); err != nil {
			m.logger.Warn("stale ledger entry delete failed", "chunk_id", id, "error", err)
		}
	}

	m.logger.Info("replaced document version", "document_id", documentID, "stale_chunks", len(stale))
	return len(stale), nil
}

// ChunkStatuses looks up the current ledger status of each given chunk ID,
// used by callers that enrolled a specific set of chunks and want to know
// when all of them have reached a terminal state without relying on
// group-wide aggregate stats (which may include unrelated prior entries).
func (m *Manager) ChunkStatuses(ctx context.Context, chunkIDs []string) (map[string]domain.SyncStatus, error) {
	out := make(map[string]domain.SyncStatus, len(chunkIDs))
	for _, id := range chunkIDs {
		entry, err := m.ledger.Get(ctx, id)
		if err != nil {
			continue
		}
		out[id] = entry.Status
	}
	return out, nil
}

// Stats reports ledger state for a group.
func (m *Manager) Stats(ctx context.Context, groupID string) (*domain.SyncStats, error) {
	return m.ledger.Stats(ctx, groupID)
}

// Start launches the background sync and integrity loops. Safe to call
// once; a second call is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.shutdown = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(2)
	go m.syncLoop(ctx)
	go m.integrityLoop(ctx)
}

// Shutdown signals both background loops to stop and waits for them to
// finish their current tick.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.shutdown)
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *Manager) syncLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.shutdown:
			return
		case <-ticker.C:
			if !m.acquireTickLock(ctx, "sync") {
				continue
			}
			if _, err := m.SyncPending(ctx, m.cfg.MaxSyncPerTick); err != nil {
				m.logger.Error("sync loop tick failed", "error", err)
			}
			m.releaseTickLock(ctx, "sync")
		}
	}
}

// acquireTickLock is a no-op success when no lock was configured (single
// instance use), otherwise it tries the shared named lock and reports
// whether this tick should proceed.
func (m *Manager) acquireTickLock(ctx context.Context, suffix string) bool {
	if m.lock == nil {
		return true
	}
	ok, err := m.lock.Acquire(ctx, m.lockName+":"+suffix, m.lockTTL)
	if err != nil {
		m.logger.Warn("lock acquire failed, skipping tick", "lock", suffix, "error", err)
		return false
	}
	return ok
}

func (m *Manager) releaseTickLock(ctx context.Context, suffix string) {
	if m.lock == nil {
		return
	}
	if err := m.lock.Release(ctx, m.lockName+":"+suffix); err != nil {
		m.logger.Warn("lock release failed", "lock", suffix, "error", err)
	}
}

func (m *Manager) integrityLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.IntegrityCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.shutdown:
			return
		case <-ticker.C:
			if !m.acquireTickLock(ctx, "integrity") {
				continue
			}
			if _, err := m.CheckIntegrity(ctx); err != nil {
				m.logger.Error("integrity loop tick failed", "error", err)
			}
			m.releaseTickLock(ctx, "integrity")
		}
	}
}
