// Package localdb is the persistent local store that mirrors remote
// social-graph and content state. It owns every cached record: entity tables
// (full records or adapted [id, payload] tuples), ordered ID streams for
// feeds and lists, per-record sync metadata for staleness tracking,
// moderation flags, and deduplicated notifications. The UI observes it
// through the change notifier and never mutates it directly.
// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is bumped on incompatible schema changes. Migrations are out
// of scope: a version mismatch drops and recreates the cache.
const schemaVersion = 1

// Table names. Each record/tuple table is a (id, data) pair keyed by a
// composite ID or a raw public identity.
const (
	TableUsers         = "user_details"
	TablePosts         = "post_details"
	TableFeeds         = "feeds"
	TableBookmarks     = "bookmarks"
	TableUserCounts    = "user_counts"
	TablePostCounts    = "post_counts"
	TableRelationships = "user_relationships"
	TablePostTags      = "post_tags"
	TableNotifications = "notifications"
	TableModeration    = "moderation"
	TableStreams       = "streams"
)

var recordTables = []string{
	TableUsers,
	TablePosts,
	TableFeeds,
	TableBookmarks,
	TableUserCounts,
	TablePostCounts,
	TableRelationships,
	TablePostTags,
	TableNotifications,
	TableModeration,
}

// DB wraps the local SQLite database shared by every store in this package.
type DB struct {
	sqlDB    *sql.DB
	logger   *slog.Logger
	notifier *Notifier
	writeMu  sync.Mutex // Serialize write operations to prevent SQLite locking issues
	now      func() time.Time
}

// Open opens (or creates) the local cache database at path and initializes
// its schema. Use ":memory:" for an ephemeral store.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, dbError(CodeQueryFailed, "localdb", "open", err, "path", path)
	}
	// A single pooled connection: writes are serialized anyway, and an
	// in-memory database exists per connection.
	sqlDB.SetMaxOpenConns(1)
	db := &DB{
		sqlDB:    sqlDB,
		logger:   logger,
		notifier: NewNotifier(),
		now:      time.Now,
	}
	if err := db.initialize(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying database.
func (db *DB) Close() error { return db.sqlDB.Close() }

// Notifier returns the change notifier for reactive reads.
func (db *DB) Notifier() *Notifier { return db.notifier }

func (db *DB) initialize() error {
	// Enable WAL mode and foreign keys
	if _, err := db.sqlDB.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return dbError(CodeQueryFailed, "localdb", "initialize", err)
	}
	if _, err := db.sqlDB.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return dbError(CodeQueryFailed, "localdb", "initialize", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS _schema_info (
			version     INTEGER NOT NULL
		)`,

		// Per-record sync metadata: status is 'local' for optimistic writes
		// that the remote indexer has not confirmed, 'synced' otherwise.
		`CREATE TABLE IF NOT EXISTS _sync_record_meta (
			record_id   TEXT NOT NULL,
			status      TEXT NOT NULL CHECK (status IN ('local','synced')),
			synced_at   INTEGER NOT NULL,
			PRIMARY KEY (record_id)
		)`,

		// Ordered streams of composite IDs, stored as a JSON array.
		`CREATE TABLE IF NOT EXISTS streams (
			id          TEXT NOT NULL,
			ids         TEXT NOT NULL,
			PRIMARY KEY (id)
		)`,
	}
	for _, name := range recordTables {
		statements = append(statements, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
			id          TEXT NOT NULL,
			data        TEXT NOT NULL,
			PRIMARY KEY (id)
		)`, name))
	}

	for _, stmt := range statements {
		if _, err := db.sqlDB.Exec(stmt); err != nil {
			return dbError(CodeQueryFailed, "localdb", "initialize", err)
		}
	}

	var version int
	err := db.sqlDB.QueryRow(`SELECT version FROM _schema_info LIMIT 1`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.sqlDB.Exec(`INSERT INTO _schema_info (version) VALUES (?)`, schemaVersion); err != nil {
			return dbError(CodeSaveFailed, "localdb", "initialize", err)
		}
	case err != nil:
		return dbError(CodeQueryFailed, "localdb", "initialize", err)
	case version != schemaVersion:
		// Incompatible cache from an older build: drop and rebuild.
		db.logger.Warn("local cache schema mismatch, clearing",
			"found", version, "want", schemaVersion)
		if err := db.reset(); err != nil {
			return err
		}
	}
	return nil
}

// reset clears every table and stamps the current schema version.
func (db *DB) reset() error {
	tables := append([]string{"streams", "_sync_record_meta"}, recordTables...)
	for _, name := range tables {
		if _, err := db.sqlDB.Exec(fmt.Sprintf(`DELETE FROM "%s"`, name)); err != nil {
			return dbError(CodeQueryFailed, "localdb", "reset", err, "table", name)
		}
	}
	if _, err := db.sqlDB.Exec(`UPDATE _schema_info SET version = ?`, schemaVersion); err != nil {
		return dbError(CodeSaveFailed, "localdb", "reset", err)
	}
	return nil
}

// ClearAll wipes the entire cache (sign-out path).
func (db *DB) ClearAll() error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if err := db.reset(); err != nil {
		return err
	}
	for _, name := range recordTables {
		db.notifier.notify(name)
	}
	db.notifier.notify(TableStreams)
	return nil
}
