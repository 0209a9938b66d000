// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Notification types indexed by Nexus.
const (
	NotificationFollow     = "follow"
	NotificationNewFriend  = "new_friend"
	NotificationReply      = "reply"
	NotificationRepost     = "repost"
	NotificationMention    = "mention"
	NotificationTagPost    = "tag_post"
	NotificationTagProfile = "tag_profile"
)

// Notification is a flattened, discriminated-union event record. Its ID is a
// business key derived from the event content, so re-fetching the same event
// from the remote API collapses to the same row without a server-issued
// unique ID.
type Notification struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Actor     string `json:"actor"`
	// Target is the acted-on resource: a composite post ID for post events,
	// a public identity for profile events.
	Target string `json:"target,omitempty"`
	Read   bool   `json:"read"`
}

func (n Notification) RecordID() string { return n.ID }

// BusinessKey derives the deterministic notification key from the fields
// that identify the event. Transport-level envelope differences must not
// change the key.
func BusinessKey(eventType string, timestamp int64, actor, target string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s\x00%s", eventType, timestamp, actor, target)))
	return hex.EncodeToString(sum[:16])
}

// NotificationStore persists notifications deduplicated by business key.
type NotificationStore struct {
	table *Table[Notification]
}

// NewNotificationStore binds the notifications table.
func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{table: NewTable[Notification](db, TableNotifications)}
}

// Save derives each notification's business key and upserts. Two payloads
// describing the same (type, timestamp, actor, target) collapse to one row;
// a row already marked read stays read.
func (s *NotificationStore) Save(ctx context.Context, notifications []Notification) error {
	recs := make([]Notification, 0, len(notifications))
	for _, n := range notifications {
		n.ID = BusinessKey(n.Type, n.Timestamp, n.Actor, n.Target)
		if existing, ok, err := s.table.FindByIDOptional(ctx, n.ID); err != nil {
			return err
		} else if ok && existing.Read {
			n.Read = true
		}
		recs = append(recs, n)
	}
	return s.table.BulkSave(ctx, recs)
}

// List returns cached notifications newest-first, sliced at [offset, limit).
func (s *NotificationStore) List(ctx context.Context, limit, offset int) ([]Notification, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp > all[j].Timestamp })
	if offset < 0 || offset >= len(all) || limit <= 0 {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// UnreadCount counts cached notifications not yet marked read.
func (s *NotificationStore) UnreadCount(ctx context.Context) (int, error) {
	all, err := s.all(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range all {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

// MarkAllRead flips every cached notification to read.
func (s *NotificationStore) MarkAllRead(ctx context.Context) error {
	all, err := s.all(ctx)
	if err != nil {
		return err
	}
	var unread []Notification
	for _, n := range all {
		if !n.Read {
			n.Read = true
			unread = append(unread, n)
		}
	}
	return s.table.BulkSave(ctx, unread)
}

// Clear drops every cached notification.
func (s *NotificationStore) Clear(ctx context.Context) error {
	return s.table.Clear(ctx)
}

func (s *NotificationStore) all(ctx context.Context) ([]Notification, error) {
	rows, err := s.table.db.sqlDB.QueryContext(ctx,
		`SELECT data FROM "`+TableNotifications+`"`)
	if err != nil {
		return nil, dbError(CodeQueryFailed, TableNotifications, "all", err)
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, dbError(CodeQueryFailed, TableNotifications, "all", err)
		}
		var n Notification
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, dbError(CodeIntegrityError, TableNotifications, "all", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(CodeQueryFailed, TableNotifications, "all", err)
	}
	return out, nil
}
