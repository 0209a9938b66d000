// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestTableInsertAndFind(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewTable[UserDetails](db, TableUsers)

	key, err := users.Insert(ctx, UserDetails{ID: "alice", Name: "Alice", IndexedAt: 100})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if key != "alice" {
		t.Fatalf("key = %q", key)
	}

	rec, err := users.FindByID(ctx, "alice")
	if err != nil {
		t.Fatalf("findById: %v", err)
	}
	if rec.Name != "Alice" || rec.IndexedAt != 100 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	_, err = users.FindByID(ctx, "nobody")
	if !IsNotFound(err) {
		t.Fatalf("expected RECORD_NOT_FOUND, got %v", err)
	}

	_, ok, err := users.FindByIDOptional(ctx, "nobody")
	if err != nil || ok {
		t.Fatalf("optional lookup of absent id: ok=%v err=%v", ok, err)
	}
}

func TestIsNotFoundMatchesWrappedErrors(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewTable[UserDetails](db, TableUsers)

	_, err := users.FindByID(ctx, "nobody")
	if !IsNotFound(err) {
		t.Fatalf("expected RECORD_NOT_FOUND, got %v", err)
	}
	wrapped := fmt.Errorf("loading profile: %w", err)
	if !IsNotFound(wrapped) {
		t.Fatal("wrapped RECORD_NOT_FOUND should still match")
	}
	if IsNotFound(fmt.Errorf("unrelated")) {
		t.Fatal("unrelated error must not match")
	}
	if IsNotFound(nil) {
		t.Fatal("nil must not match")
	}
}

func TestBulkSaveIsIdempotentUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	posts := NewTable[PostDetails](db, TablePosts)

	rec := PostDetails{ID: "alice:P1", Content: "hello", Kind: PostKindShort}
	if err := posts.BulkSave(ctx, []PostDetails{rec}); err != nil {
		t.Fatalf("first bulkSave: %v", err)
	}
	rec.Content = "hello, edited"
	if err := posts.BulkSave(ctx, []PostDetails{rec}); err != nil {
		t.Fatalf("second bulkSave: %v", err)
	}

	var count int
	if err := db.sqlDB.QueryRow(`SELECT COUNT(*) FROM "` + TablePosts + `"`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row, got %d", count)
	}
	got, err := posts.FindByID(ctx, "alice:P1")
	if err != nil {
		t.Fatalf("findById: %v", err)
	}
	if got.Content != "hello, edited" {
		t.Fatalf("upsert did not keep final values: %q", got.Content)
	}
}

func TestExistsAndDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	bookmarks := NewTable[Bookmark](db, TableBookmarks)

	if _, err := bookmarks.Insert(ctx, Bookmark{ID: "alice:P1", HomeserverID: "B1"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ok, err := bookmarks.Exists(ctx, "alice:P1")
	if err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}
	if err := bookmarks.DeleteByID(ctx, "alice:P1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err = bookmarks.Exists(ctx, "alice:P1")
	if err != nil || ok {
		t.Fatalf("exists after delete = %v, %v", ok, err)
	}
	// Deleting an absent id is a no-op.
	if err := bookmarks.DeleteByID(ctx, "alice:P1"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestFindByIDsReturnsPresentSubset(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	posts := NewTable[PostDetails](db, TablePosts)

	if err := posts.BulkSave(ctx, []PostDetails{
		{ID: "alice:P1", Content: "one"},
		{ID: "bob:P2", Content: "two"},
	}); err != nil {
		t.Fatalf("bulkSave: %v", err)
	}
	got, err := posts.FindByIDs(ctx, []string{"alice:P1", "carol:P3", "bob:P2"})
	if err != nil {
		t.Fatalf("findByIds: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 present, got %d", len(got))
	}
	if _, ok := got["carol:P3"]; ok {
		t.Fatal("absent id reported present")
	}
}

func TestTupleDecodeAndAdapt(t *testing.T) {
	var tp Tuple
	raw := []byte(`["alice", {"followers": 3, "posts": 7}]`)
	if err := json.Unmarshal(raw, &tp); err != nil {
		t.Fatalf("unmarshal tuple: %v", err)
	}
	if tp.ID != "alice" {
		t.Fatalf("tuple id = %q", tp.ID)
	}

	if err := json.Unmarshal([]byte(`["x"]`), new(Tuple)); err == nil {
		t.Fatal("expected error for 1-element tuple")
	}
	if err := json.Unmarshal([]byte(`{"id":"x"}`), new(Tuple)); err == nil {
		t.Fatal("expected error for object form")
	}

	db := openTestDB(t)
	ctx := context.Background()
	counts := NewTupleTable(db, TableUserCounts, UserCountsFromTuple)
	if err := counts.BulkSaveTuples(ctx, []Tuple{tp}); err != nil {
		t.Fatalf("bulkSaveTuples: %v", err)
	}
	rec, err := counts.FindByID(ctx, "alice")
	if err != nil {
		t.Fatalf("findById: %v", err)
	}
	if rec.Followers != 3 || rec.Posts != 7 {
		t.Fatalf("tuple not expanded to {id, ...payload}: %+v", rec)
	}
}

func TestTryFindByIDFailsOpen(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewTable[UserDetails](db, TableUsers)

	// Corrupt a row so the typed read errors, then check the Try variant
	// swallows it.
	if _, err := db.sqlDB.Exec(`INSERT INTO "`+TableUsers+`" (id, data) VALUES (?, ?)`,
		"broken", "{not json"); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}
	if _, _, err := users.FindByIDOptional(ctx, "broken"); err == nil {
		t.Fatal("expected integrity error from typed read")
	}
	if _, ok := users.TryFindByID(ctx, "broken"); ok {
		t.Fatal("fail-open read should report absent")
	}
}
