// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Sync statuses. A record is 'local' while it exists only as an optimistic
// write the remote indexer has not confirmed; it becomes 'synced' once
// written from (or confirmed against) remote data.
const (
	SyncStatusLocal  = "local"
	SyncStatusSynced = "synced"
)

// SyncMetaStore tracks per-record sync metadata used for staleness checks.
type SyncMetaStore struct {
	db *DB
}

// NewSyncMetaStore binds the sync metadata table.
func NewSyncMetaStore(db *DB) *SyncMetaStore { return &SyncMetaStore{db: db} }

// MarkSynced stamps ids as confirmed by the remote indexer as of now.
func (s *SyncMetaStore) MarkSynced(ctx context.Context, ids ...string) error {
	return s.mark(ctx, SyncStatusSynced, ids)
}

// MarkLocal stamps ids as optimistic local writes. A 'local' record is never
// considered stale: a stale remote copy must not overwrite a pending write.
func (s *SyncMetaStore) MarkLocal(ctx context.Context, ids ...string) error {
	return s.mark(ctx, SyncStatusLocal, ids)
}

func (s *SyncMetaStore) mark(ctx context.Context, status string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.db.writeMu.Lock()
	defer s.db.writeMu.Unlock()

	tx, err := s.db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return dbError(CodeBulkOperationFailed, "_sync_record_meta", "mark", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO _sync_record_meta (record_id, status, synced_at) VALUES (?, ?, ?)
		 ON CONFLICT(record_id) DO UPDATE SET status = excluded.status, synced_at = excluded.synced_at`)
	if err != nil {
		return dbError(CodeBulkOperationFailed, "_sync_record_meta", "mark", err)
	}
	defer stmt.Close()

	now := s.db.now().UnixMilli()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, status, now); err != nil {
			return dbError(CodeSaveFailed, "_sync_record_meta", "mark", err, "id", id)
		}
	}
	if err := tx.Commit(); err != nil {
		return dbError(CodeBulkOperationFailed, "_sync_record_meta", "mark", err)
	}
	return nil
}

// Delete drops sync metadata for ids. Used when the tracked record itself
// is removed; absent ids are ignored.
func (s *SyncMetaStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	s.db.writeMu.Lock()
	defer s.db.writeMu.Unlock()

	query := `DELETE FROM _sync_record_meta WHERE record_id IN (` + placeholders(len(ids)) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.sqlDB.ExecContext(ctx, query, args...); err != nil {
		return dbError(CodeQueryFailed, "_sync_record_meta", "delete", err)
	}
	return nil
}

// Status returns the sync status and reference time for one record.
// found=false means the record has no sync metadata at all.
func (s *SyncMetaStore) Status(ctx context.Context, id string) (status string, syncedAt time.Time, found bool, err error) {
	var at int64
	row := s.db.sqlDB.QueryRowContext(ctx,
		`SELECT status, synced_at FROM _sync_record_meta WHERE record_id = ?`, id)
	if scanErr := row.Scan(&status, &at); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return "", time.Time{}, false, nil
		}
		return "", time.Time{}, false, dbError(CodeQueryFailed, "_sync_record_meta", "status", scanErr, "id", id)
	}
	return status, time.UnixMilli(at), true, nil
}

// FindStaleIDs returns the subset of ids whose cached copy is older than
// ttl. An id with no metadata is missing, not stale (the fetch pipeline
// handles missing separately), and 'local' records are excluded regardless
// of age.
func (s *SyncMetaStore) FindStaleIDs(ctx context.Context, ids []string, ttl time.Duration) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT record_id, synced_at FROM _sync_record_meta
		WHERE status = 'synced' AND record_id IN (` + placeholders(len(ids)) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(CodeQueryFailed, "_sync_record_meta", "findStaleIds", err)
	}
	defer rows.Close()

	cutoff := s.db.now().Add(-ttl).UnixMilli()
	syncedAt := make(map[string]int64, len(ids))
	for rows.Next() {
		var id string
		var at int64
		if err := rows.Scan(&id, &at); err != nil {
			return nil, dbError(CodeQueryFailed, "_sync_record_meta", "findStaleIds", err)
		}
		syncedAt[id] = at
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(CodeQueryFailed, "_sync_record_meta", "findStaleIds", err)
	}

	// Preserve the caller's order in the result.
	var stale []string
	for _, id := range ids {
		if at, ok := syncedAt[id]; ok && at < cutoff {
			stale = append(stale, id)
		}
	}
	return stale, nil
}
