// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pubky/franky-sub016/homeserver"
	"github.com/pubky/franky-sub016/localdb"
	"github.com/pubky/franky-sub016/nexus"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body any) *http.Response {
	data, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

const testViewer = "VIEWER"

// newTestService wires a service against an in-memory database and fake
// transports. A nil nexus transport fails the test on any read request; a
// nil homeserver transport accepts every write.
func newTestService(t *testing.T, nexusRT, homeserverRT roundTripFunc) *Service {
	t.Helper()
	db, err := localdb.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if nexusRT == nil {
		nexusRT = func(r *http.Request) (*http.Response, error) {
			t.Fatalf("unexpected nexus request: %s %s", r.Method, r.URL)
			return nil, nil
		}
	}
	nx := nexus.NewClient("http://nexus.test", nil)
	nx.HTTP = &http.Client{Transport: nexusRT}

	if homeserverRT == nil {
		homeserverRT = func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, map[string]any{}), nil
		}
	}
	hs := homeserver.NewClient("http://homeserver.test", testViewer,
		func(context.Context) (string, error) { return "session-token", nil }, nil)
	hs.HTTP = &http.Client{Transport: homeserverRT}

	return NewService(DefaultConfig(), db, nx, hs, testViewer, nil)
}

func userView(id, name string) nexus.UserView {
	return nexus.UserView{
		Details: localdb.UserDetails{ID: id, Name: name, IndexedAt: 1000},
		Counts:  localdb.UserCounts{ID: id, Followers: 2, Posts: 5},
	}
}

func postView(id, content string) nexus.PostView {
	return nexus.PostView{
		Details: localdb.PostDetails{ID: id, Content: content, Kind: localdb.PostKindShort, IndexedAt: 1000},
		Counts:  localdb.PostCounts{ID: id, Replies: 1},
	}
}

func TestBootstrapFillsLocalStore(t *testing.T) {
	timeline := []string{"ALICE:P5", "BOB:P3", "ALICE:P1", "CARA:P2", "BOB:P4"}
	snapshot := nexus.BootstrapResponse{
		Users: []nexus.UserView{
			userView("ALICE", "alice"),
			userView("BOB", "bob"),
			userView("CARA", "cara"),
		},
		Posts: []nexus.PostView{
			postView("ALICE:P5", "five"),
			postView("BOB:P3", "three"),
			postView("ALICE:P1", "one"),
			postView("CARA:P2", "two"),
			postView("BOB:P4", "four"),
		},
		Timeline: timeline,
	}
	snapshot.Posts[3].Moderated = true
	snapshot.Posts[1].Bookmarked = true
	follows := localdb.Relationship{Following: true}
	snapshot.Users[1].Relationship = &follows

	svc := newTestService(t, func(r *http.Request) (*http.Response, error) {
		require.Equal(t, "/v0/bootstrap/"+testViewer, r.URL.Path)
		return jsonResponse(http.StatusOK, snapshot), nil
	}, nil)
	ctx := context.Background()

	require.NoError(t, svc.Bootstrap(ctx))

	user, err := svc.tables.Users.FindByID(ctx, "BOB")
	require.NoError(t, err)
	require.Equal(t, "bob", user.Name)

	rel, err := svc.tables.Relationships.FindByID(ctx, "BOB")
	require.NoError(t, err)
	require.Equal(t, "BOB", rel.ID)
	require.True(t, rel.Following)

	cached, err := svc.tables.Streams.Get(ctx, localdb.StreamTimelineAll)
	require.NoError(t, err)
	require.Equal(t, timeline, cached, "snapshot order must survive")

	status, _, found, err := svc.tables.SyncMeta.Status(ctx, "ALICE:P5")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, localdb.SyncStatusSynced, status)

	require.True(t, svc.tables.Moderation.IsBlurred(ctx, "CARA:P2"), "moderated post starts blurred")
	require.False(t, svc.tables.Moderation.IsBlurred(ctx, "ALICE:P5"))

	ok, err := svc.tables.Bookmarks.Exists(ctx, "BOB:P3")
	require.NoError(t, err)
	require.True(t, ok, "remote bookmark flag should create a local bookmark")
}

func TestRefreshStalePostsSkipsFreshAndLocal(t *testing.T) {
	var fetched []string
	svc := newTestService(t, func(r *http.Request) (*http.Response, error) {
		require.Equal(t, "/v0/stream/posts/by_ids", r.URL.Path)
		var req struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fetched = req.IDs
		views := make([]nexus.PostView, 0, len(req.IDs))
		for _, id := range req.IDs {
			views = append(views, postView(id, "refetched"))
		}
		return jsonResponse(http.StatusOK, views), nil
	}, nil)
	ctx := context.Background()

	// One synced-and-expired post, one optimistic local post, one unknown.
	require.NoError(t, svc.tables.SyncMeta.MarkSynced(ctx, "ALICE:OLD"))
	require.NoError(t, svc.tables.SyncMeta.MarkLocal(ctx, "VIEWER:MINE"))
	svc.cfg.SyncTTL = -time.Second // every synced record is immediately stale

	require.NoError(t, svc.RefreshStalePosts(ctx, []string{"ALICE:OLD", "VIEWER:MINE", "BOB:NEW"}))
	require.Equal(t, []string{"ALICE:OLD"}, fetched, "only the expired synced record is refetched")

	post, err := svc.tables.Posts.FindByID(ctx, "ALICE:OLD")
	require.NoError(t, err)
	require.Equal(t, "refetched", post.Content)
}
