// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

// Tables bundles the typed table bindings over one DB. The application layer
// works through this, never through raw SQL.
type Tables struct {
	Users         *Table[UserDetails]
	Posts         *Table[PostDetails]
	Feeds         *Table[Feed]
	Bookmarks     *Table[Bookmark]
	UserCounts    *TupleTable[UserCounts]
	PostCounts    *TupleTable[PostCounts]
	Relationships *TupleTable[Relationship]
	PostTags      *TupleTable[PostTags]
	Notifications *NotificationStore
	Moderation    *ModerationStore
	Streams       *StreamStore
	SyncMeta      *SyncMetaStore
}

// NewTables binds every store against db.
func NewTables(db *DB) *Tables {
	return &Tables{
		Users:         NewTable[UserDetails](db, TableUsers),
		Posts:         NewTable[PostDetails](db, TablePosts),
		Feeds:         NewTable[Feed](db, TableFeeds),
		Bookmarks:     NewTable[Bookmark](db, TableBookmarks),
		UserCounts:    NewTupleTable(db, TableUserCounts, UserCountsFromTuple),
		PostCounts:    NewTupleTable(db, TablePostCounts, PostCountsFromTuple),
		Relationships: NewTupleTable(db, TableRelationships, RelationshipFromTuple),
		PostTags:      NewTupleTable(db, TablePostTags, PostTagsFromTuple),
		Notifications: NewNotificationStore(db),
		Moderation:    NewModerationStore(db),
		Streams:       NewStreamStore(db),
		SyncMeta:      NewSyncMetaStore(db),
	}
}
