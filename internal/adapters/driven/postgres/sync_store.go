package postgres

import (
	"context"
	"database/sql"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

var _ driven.SyncStateStore = (*SyncStateStore)(nil)

// SyncStateStore implements driven.SyncStateStore over the sync_entries
// table: one row per chunk, upserted on every status transition.
type SyncStateStore struct {
	db *DB
}

func NewSyncStateStore(db *DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

func (s *SyncStateStore) Save(ctx context.Context, entry *domain.SyncEntry) error {
	query := `
		INSERT INTO sync_entries
			(chunk_id, document_id, group_id, collection, content_hash, status, retry_count, last_synced, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id   = EXCLUDED.document_id,
			group_id      = EXCLUDED.group_id,
			collection    = EXCLUDED.collection,
			content_hash  = EXCLUDED.content_hash,
			status        = EXCLUDED.status,
			retry_count   = EXCLUDED.retry_count,
			last_synced   = EXCLUDED.last_synced,
			error_message = EXCLUDED.error_message,
			updated_at    = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ChunkID,
		entry.DocumentID,
		entry.GroupID,
		entry.Collection,
		entry.ContentHash,
		string(entry.Status),
		entry.RetryCount,
		NullTime(entry.LastSynced),
		entry.ErrorMessage,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	return err
}

func scanEntry(row interface{ Scan(...any) error }) (*domain.SyncEntry, error) {
	var e domain.SyncEntry
	var status string
	var lastSynced sql.NullTime
	if err := row.Scan(
		&e.ChunkID, &e.DocumentID, &e.GroupID, &e.Collection, &e.ContentHash,
		&status, &e.RetryCount, &lastSynced, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Status = domain.SyncStatus(status)
	e.LastSynced = TimePtr(lastSynced)
	return &e, nil
}

const selectColumns = `chunk_id, document_id, group_id, collection, content_hash, status, retry_count, last_synced, error_message, created_at, updated_at`

func (s *SyncStateStore) Get(ctx context.Context, chunkID string) (*domain.SyncEntry, error) {
	query := `SELECT ` + selectColumns + ` FROM sync_entries WHERE chunk_id = $1`
	row := s.db.QueryRowContext(ctx, query, chunkID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *SyncStateStore) ListByStatus(ctx context.Context, status domain.SyncStatus, limit int) ([]*domain.SyncEntry, error) {
	query := `SELECT ` + selectColumns + ` FROM sync_entries WHERE status = $1 ORDER BY created_at ASC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SyncEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *SyncStateStore) ListByGroup(ctx context.Context, groupID string) ([]*domain.SyncEntry, error) {
	query := `SELECT ` + selectColumns + ` FROM sync_entries WHERE group_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SyncEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *SyncStateStore) ListByDocument(ctx context.Context, documentID string) ([]*domain.SyncEntry, error) {
	query := `SELECT ` + selectColumns + ` FROM sync_entries WHERE document_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SyncEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *SyncStateStore) UpdateStatus(ctx context.Context, chunkID string, status domain.SyncStatus, errMsg string) error {
	query := `
		UPDATE sync_entries
		SET status = $2, error_message = $3, updated_at = now(),
			last_synced = CASE WHEN $2 = 'synced' THEN now() ELSE last_synced END,
			retry_count = CASE WHEN $2 = 'failed' THEN retry_count + 1 ELSE retry_count END
		WHERE chunk_id = $1
	`
	result, err := s.db.ExecContext(ctx, query, chunkID, string(status), errMsg)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SyncStateStore) Stats(ctx context.Context, groupID string) (*domain.SyncStats, error) {
	query := `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'synced'),
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'failed'),
			count(*) FILTER (WHERE status = 'conflict'),
			coalesce(max(last_synced), to_timestamp(0))
		FROM sync_entries
		WHERE group_id = $1
	`
	var stats domain.SyncStats
	err := s.db.QueryRowContext(ctx, query, groupID).Scan(
		&stats.Total, &stats.Synced, &stats.Pending, &stats.Failed, &stats.Conflicts, &stats.LastSync,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *SyncStateStore) Delete(ctx context.Context, chunkID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_entries WHERE chunk_id = $1`, chunkID)
	return err
}

func (s *SyncStateStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_entries WHERE document_id = $1`, documentID)
	return err
}
