// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

import (
	"context"
	"testing"
)

func TestModerationUnblurIsOneWay(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	mod := NewModerationStore(db)

	if err := mod.SaveFlagged(ctx, "alice:P1", ModerationTypePost); err != nil {
		t.Fatalf("saveFlagged: %v", err)
	}
	if !mod.IsBlurred(ctx, "alice:P1") {
		t.Fatal("flagged content should be blurred")
	}

	if err := mod.Unblur(ctx, "alice:P1"); err != nil {
		t.Fatalf("unblur: %v", err)
	}
	if mod.IsBlurred(ctx, "alice:P1") {
		t.Fatal("unblur did not stick")
	}

	// Remote re-flags the same content; the local un-blur must survive.
	if err := mod.SaveFlagged(ctx, "alice:P1", ModerationTypePost); err != nil {
		t.Fatalf("re-flag: %v", err)
	}
	if mod.IsBlurred(ctx, "alice:P1") {
		t.Fatal("re-ingesting a remote flag reversed a local un-blur")
	}
}

func TestModerationFailOpen(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	mod := NewModerationStore(db)

	// Unknown content renders unblurred.
	if mod.IsBlurred(ctx, "nobody:P9") {
		t.Fatal("missing moderation row should not blur")
	}
	// Unblurring unknown content is a no-op.
	if err := mod.Unblur(ctx, "nobody:P9"); err != nil {
		t.Fatalf("unblur absent: %v", err)
	}
}
