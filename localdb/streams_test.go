// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

import (
	"context"
	"testing"
)

func TestStreamReadSlices(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	streams := NewStreamStore(db)

	ids := []string{"a:1", "b:2", "c:3", "d:4", "e:5"}
	if err := streams.Upsert(ctx, StreamTimelineAll, ids); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := streams.Read(ctx, StreamTimelineAll, 2, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0] != "b:2" || got[1] != "c:3" {
		t.Fatalf("slice = %v", got)
	}

	// Limit past the end clamps.
	got, err = streams.Read(ctx, StreamTimelineAll, 10, 3)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("clamped slice = %v", got)
	}

	// Absent stream reads as empty, never errors.
	got, err = streams.Read(ctx, "timeline:recency:friends:all", 10, 0)
	if err != nil {
		t.Fatalf("read absent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("absent stream = %v", got)
	}

	// Offset past the end reads as empty.
	if got, _ := streams.Read(ctx, StreamTimelineAll, 5, 99); len(got) != 0 {
		t.Fatalf("past-end slice = %v", got)
	}
}

func TestStreamPrepend(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	streams := NewStreamStore(db)

	if err := streams.Upsert(ctx, StreamTimelineAll, []string{"b:2"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := streams.Prepend(ctx, StreamTimelineAll, "a:1"); err != nil {
		t.Fatalf("prepend: %v", err)
	}
	// Prepending an ID already present must not introduce a duplicate.
	if err := streams.Prepend(ctx, StreamTimelineAll, "b:2"); err != nil {
		t.Fatalf("prepend existing: %v", err)
	}

	got, err := streams.Get(ctx, StreamTimelineAll)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Fatalf("stream = %v", got)
	}
	if !ValidateIntegrity(got) {
		t.Fatal("stream should pass integrity after prepend")
	}
}

func TestStreamAppendFetchedPage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	streams := NewStreamStore(db)

	merged, err := streams.AppendFetchedPage(ctx, StreamTimelineAll,
		[]string{"a:1", "b:2"}, []string{"c:3", "d:4"})
	if err != nil {
		t.Fatalf("appendFetchedPage: %v", err)
	}
	if len(merged) != 4 || merged[3] != "d:4" {
		t.Fatalf("merged = %v", merged)
	}
	persisted, err := streams.Get(ctx, StreamTimelineAll)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(persisted) != 4 {
		t.Fatalf("persisted = %v", persisted)
	}
}

func TestValidateIntegrity(t *testing.T) {
	if !ValidateIntegrity([]string{"a:1", "b:2", "c:3"}) {
		t.Fatal("clean stream flagged corrupt")
	}
	if ValidateIntegrity([]string{"a:1", "b:2", "a:1"}) {
		t.Fatal("duplicate not detected")
	}
	if !ValidateIntegrity(nil) {
		t.Fatal("empty stream flagged corrupt")
	}
}

func TestClearCorrupted(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	streams := NewStreamStore(db)

	if err := streams.Upsert(ctx, StreamTimelineAll, []string{"a:1", "b:2", "a:1"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := streams.ClearCorrupted(ctx, StreamTimelineAll); err != nil {
		t.Fatalf("clearCorrupted: %v", err)
	}
	got, err := streams.Get(ctx, StreamTimelineAll)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("stream not cleared: %v", got)
	}
}

func TestBuildStreamID(t *testing.T) {
	if got := BuildStreamID(SortRecency, ReachAll, "", ""); got != "timeline:recency:all:all" {
		t.Fatalf("stream id = %q", got)
	}
	if got := BuildStreamID(SortEngagement, ReachFriends, PostKindImage, "dev"); got != "timeline:engagement:friends:image:dev" {
		t.Fatalf("stream id = %q", got)
	}
}
