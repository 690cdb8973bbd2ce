package domain

import "time"

// SyncStatus is the state of a single chunk's vector-store sync entry.
type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusProcessing SyncStatus = "processing"
	SyncStatusSynced     SyncStatus = "synced"
	SyncStatusFailed     SyncStatus = "failed"
	SyncStatusConflict   SyncStatus = "conflict"
)

// SyncEntry is the durable per-chunk ledger row tracked by SyncManager (C8).
type SyncEntry struct {
	ChunkID      string     `json:"chunk_id"`
	DocumentID   string     `json:"document_id"`
	GroupID      string     `json:"group_id"`
	Collection   string     `json:"collection"`
	ContentHash  string     `json:"content_hash"`
	Status       SyncStatus `json:"status"`
	RetryCount   int        `json:"retry_count"`
	LastSynced   *time.Time `json:"last_synced,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CanTransitionTo enforces the status DAG from spec §3/§8: synced can only
// go back to pending via an integrity check, never directly.
func (e *SyncEntry) CanTransitionTo(next SyncStatus) bool {
	switch e.Status {
	case SyncStatusPending:
		return next == SyncStatusProcessing
	case SyncStatusProcessing:
		return next == SyncStatusSynced || next == SyncStatusFailed
	case SyncStatusFailed:
		return next == SyncStatusPending
	case SyncStatusSynced:
		return false // only IntegrityCheck may force this, via ResetToPending
	case SyncStatusConflict:
		return false // requires re-ingestion, not auto-reconciled
	}
	return false
}

// ResetToPending is the one sanctioned synced->pending transition, used
// exclusively by the integrity checker when a chunk is missing from the
// vector store despite a synced ledger entry.
func (e *SyncEntry) ResetToPending() {
	e.Status = SyncStatusPending
	e.RetryCount = 0
	e.ErrorMessage = ""
	e.UpdatedAt = time.Now()
}

// SyncStats summarizes ledger state for a group or collection.
type SyncStats struct {
	Total              int       `json:"total"`
	Synced             int       `json:"synced"`
	Pending            int       `json:"pending"`
	Failed             int       `json:"failed"`
	Conflicts          int       `json:"conflicts"`
	LastSync           time.Time `json:"last_sync"`
	SyncRatePerMinute  float64   `json:"sync_rate_per_minute"`
}

// IntegrityIssue describes a chunk found to be missing from the vector
// store despite being marked synced in the ledger.
type IntegrityIssue struct {
	ChunkID    string `json:"chunk_id"`
	Collection string `json:"collection"`
	Reason     string `json:"reason"`
}
