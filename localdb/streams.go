// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
)

// Stream sort orders and reaches, encoded into stream IDs.
const (
	SortRecency    = "recency"
	SortEngagement = "engagement"

	ReachAll       = "all"
	ReachFollowing = "following"
	ReachFriends   = "friends"
)

// Well-known streams.
const (
	StreamTimelineAll = "timeline:recency:all:all"
	StreamMuted       = "muted"
)

// BuildStreamID joins sort order, reach, content kind and tag filter into a
// stream key. Empty trailing parts are written as "all" so keys stay stable.
func BuildStreamID(sort, reach, kind, tag string) string {
	parts := []string{"timeline", sort, reach, kind}
	for i, p := range parts {
		if p == "" {
			parts[i] = "all"
		}
	}
	if tag != "" {
		parts = append(parts, tag)
	}
	return strings.Join(parts, ":")
}

// UserStreamID keys per-user streams such as an identity's follower list.
func UserStreamID(kind, userID string) string {
	return kind + ":" + userID
}

// StreamStore holds ordered lists of composite IDs representing a feed,
// follow-list or tag-list slice. Order is insertion order as received from
// the remote API; the cache never re-sorts locally.
type StreamStore struct {
	db *DB
}

// NewStreamStore binds the stream table.
func NewStreamStore(db *DB) *StreamStore { return &StreamStore{db: db} }

// Get loads the full cached array for a stream. An absent stream is an empty
// slice, never an error.
func (s *StreamStore) Get(ctx context.Context, streamID string) ([]string, error) {
	var data []byte
	err := s.db.sqlDB.QueryRowContext(ctx,
		`SELECT ids FROM streams WHERE id = ?`, streamID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(CodeQueryFailed, TableStreams, "get", err, "stream", streamID)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, dbError(CodeIntegrityError, TableStreams, "get", err, "stream", streamID)
	}
	return ids, nil
}

// Read slices the cached array at [offset, offset+limit). Offsets past the
// end return an empty slice.
func (s *StreamStore) Read(ctx context.Context, streamID string, limit, offset int) ([]string, error) {
	ids, err := s.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset >= len(ids) || limit <= 0 {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]string, end-offset)
	copy(out, ids[offset:end])
	return out, nil
}

// Upsert fully replaces the cached slice for a stream.
func (s *StreamStore) Upsert(ctx context.Context, streamID string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return dbError(CodeSaveFailed, TableStreams, "upsert", err, "stream", streamID)
	}
	s.db.writeMu.Lock()
	defer s.db.writeMu.Unlock()
	_, err = s.db.sqlDB.ExecContext(ctx,
		`INSERT INTO streams (id, ids) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET ids = excluded.ids`, streamID, data)
	if err != nil {
		return dbError(CodeSaveFailed, TableStreams, "upsert", err, "stream", streamID)
	}
	s.db.notifier.notify(TableStreams)
	return nil
}

// Prepend puts id at the head of a stream, used when a locally created post
// must appear before the remote indexer has seen it. A no-op if the id is
// already present, so the integrity invariant holds.
func (s *StreamStore) Prepend(ctx context.Context, streamID, id string) error {
	ids, err := s.Get(ctx, streamID)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return s.Upsert(ctx, streamID, append([]string{id}, ids...))
}

// AppendFetchedPage concatenates a freshly fetched page onto the cached
// slice and persists the result. De-duplication is the caller's policy:
// callers append pages in remote order and never splice into the middle.
func (s *StreamStore) AppendFetchedPage(ctx context.Context, streamID string, existing, fetched []string) ([]string, error) {
	merged := make([]string, 0, len(existing)+len(fetched))
	merged = append(merged, existing...)
	merged = append(merged, fetched...)
	if err := s.Upsert(ctx, streamID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// ValidateIntegrity reports whether a stream array is free of duplicates.
// A duplicate means a corrupted cache that must be dropped and rebuilt.
func ValidateIntegrity(ids []string) bool {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}

// ClearCorrupted drops a stream entry after an integrity failure. The next
// read re-fetches from offset 0.
func (s *StreamStore) ClearCorrupted(ctx context.Context, streamID string) error {
	s.db.writeMu.Lock()
	defer s.db.writeMu.Unlock()
	if _, err := s.db.sqlDB.ExecContext(ctx,
		`DELETE FROM streams WHERE id = ?`, streamID); err != nil {
		return dbError(CodeQueryFailed, TableStreams, "clearCorrupted", err, "stream", streamID)
	}
	s.db.logger.Warn("cleared corrupted stream cache", "stream", streamID)
	s.db.notifier.notify(TableStreams)
	return nil
}

// Delete removes a stream entry.
func (s *StreamStore) Delete(ctx context.Context, streamID string) error {
	s.db.writeMu.Lock()
	defer s.db.writeMu.Unlock()
	if _, err := s.db.sqlDB.ExecContext(ctx,
		`DELETE FROM streams WHERE id = ?`, streamID); err != nil {
		return dbError(CodeQueryFailed, TableStreams, "delete", err, "stream", streamID)
	}
	s.db.notifier.notify(TableStreams)
	return nil
}
