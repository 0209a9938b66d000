// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

import (
	"context"
	"encoding/json"
)

// Moderated content types.
const (
	ModerationTypePost    = "POST"
	ModerationTypeProfile = "PROFILE"
)

// ModerationRecord marks a post or profile the remote API flagged as
// moderated. Blurring is one-way on the client: once a user un-blurs,
// re-ingesting the same remote flag must not blur it again.
type ModerationRecord struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	IsBlurred bool   `json:"is_blurred"`
	CreatedAt int64  `json:"created_at"`
}

func (m ModerationRecord) RecordID() string { return m.ID }

// ModerationStore persists moderation flags. It deliberately does not reuse
// Table upsert semantics: remote flags must not overwrite a local un-blur.
type ModerationStore struct {
	db *DB
}

// NewModerationStore binds the moderation table.
func NewModerationStore(db *DB) *ModerationStore { return &ModerationStore{db: db} }

// SaveFlagged records remotely flagged content as blurred. Existing rows are
// left untouched so a prior un-blur survives re-ingestion.
func (s *ModerationStore) SaveFlagged(ctx context.Context, id, contentType string) error {
	s.db.writeMu.Lock()
	defer s.db.writeMu.Unlock()

	rec := ModerationRecord{
		ID:        id,
		Type:      contentType,
		IsBlurred: true,
		CreatedAt: s.db.now().UnixMilli(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return dbError(CodeSaveFailed, TableModeration, "saveFlagged", err, "id", id)
	}
	_, err = s.db.sqlDB.ExecContext(ctx,
		`INSERT INTO "`+TableModeration+`" (id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO NOTHING`, id, data)
	if err != nil {
		return dbError(CodeSaveFailed, TableModeration, "saveFlagged", err, "id", id)
	}
	s.db.notifier.notify(TableModeration)
	return nil
}

// Unblur flips a record to unblurred. One-way: there is no client-side path
// back to blurred short of a cache clear.
func (s *ModerationStore) Unblur(ctx context.Context, id string) error {
	table := NewTable[ModerationRecord](s.db, TableModeration)
	rec, ok, err := table.FindByIDOptional(ctx, id)
	if err != nil {
		return err
	}
	if !ok || !rec.IsBlurred {
		return nil
	}
	rec.IsBlurred = false
	_, err = table.Insert(ctx, rec)
	return err
}

// IsBlurred reports whether content should be blurred. Fail-open: a missing
// or unreadable moderation row never blocks rendering, so errors report
// not-blurred.
func (s *ModerationStore) IsBlurred(ctx context.Context, id string) bool {
	rec, ok := NewTable[ModerationRecord](s.db, TableModeration).TryFindByID(ctx, id)
	return ok && rec.IsBlurred
}
