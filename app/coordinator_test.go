// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package app

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pubky/franky-sub016/localdb"
	"github.com/pubky/franky-sub016/nexus"
)

func testCoordinatorConfig() *Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour // nothing fires on the ticker during tests
	cfg.PollOnStart = false
	return cfg
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestCoordinatorStartPollsImmediately(t *testing.T) {
	cfg := testCoordinatorConfig()
	cfg.PollOnStart = true
	polled := make(chan struct{}, 1)
	c := NewCoordinator("test", cfg, func(ctx context.Context) (func(ctx context.Context) error, error) {
		polled <- struct{}{}
		return nil, nil
	}, nil)

	if state, _ := c.State(); state != StateNotStarted {
		t.Fatalf("state = %s before Start", state)
	}
	c.Start(context.Background())
	defer c.Stop()

	if state, _ := c.State(); state != StatePolling {
		t.Fatalf("state = %s after Start, want POLLING", state)
	}
	waitFor(t, polled, "the start poll")
}

func TestCoordinatorPausesOnHiddenPage(t *testing.T) {
	var polls atomic.Int32
	c := NewCoordinator("test", testCoordinatorConfig(), func(ctx context.Context) (func(ctx context.Context) error, error) {
		polls.Add(1)
		return nil, nil
	}, nil)
	ctx := context.Background()
	c.Start(ctx)
	defer c.Stop()

	c.SetVisible(false)
	if state, reason := c.State(); state != StatePaused || reason != ReasonPageInactive {
		t.Fatalf("state = %s/%s, want PAUSED/PAGE_INACTIVE", state, reason)
	}
	if c.PollNow(ctx) {
		t.Error("PollNow ran a cycle while paused")
	}
	if polls.Load() != 0 {
		t.Errorf("%d polls fired while paused, want 0", polls.Load())
	}

	c.SetVisible(true)
	if state, reason := c.State(); state != StatePolling || reason != ReasonNone {
		t.Fatalf("state = %s/%s after visibility returned, want POLLING", state, reason)
	}
	if !c.PollNow(ctx) {
		t.Error("PollNow refused to run while polling")
	}
	if polls.Load() != 1 {
		t.Errorf("polls = %d after resume, want 1", polls.Load())
	}
}

func TestCoordinatorPauseReasonPrecedence(t *testing.T) {
	c := NewCoordinator("test", testCoordinatorConfig(), func(ctx context.Context) (func(ctx context.Context) error, error) {
		return nil, nil
	}, nil)
	c.SetAuthenticated(false)
	c.SetVisible(false)
	c.SetRoute("/settings/account")
	c.Start(context.Background())
	defer c.Stop()

	// Auth outranks route, route outranks visibility.
	if _, reason := c.State(); reason != ReasonNotAuthenticated {
		t.Fatalf("reason = %s, want NOT_AUTHENTICATED", reason)
	}
	c.SetAuthenticated(true)
	if _, reason := c.State(); reason != ReasonRouteDisabled {
		t.Fatalf("reason = %s, want ROUTE_DISABLED", reason)
	}
	c.SetRoute("/home")
	if _, reason := c.State(); reason != ReasonPageInactive {
		t.Fatalf("reason = %s, want PAGE_INACTIVE", reason)
	}
	c.SetVisible(true)
	if state, reason := c.State(); state != StatePolling || reason != ReasonNone {
		t.Fatalf("state = %s/%s, want POLLING", state, reason)
	}
}

func TestCoordinatorStopIsManual(t *testing.T) {
	c := NewCoordinator("test", testCoordinatorConfig(), func(ctx context.Context) (func(ctx context.Context) error, error) {
		return nil, nil
	}, nil)
	ctx := context.Background()
	c.Start(ctx)
	c.Stop()

	if state, reason := c.State(); state != StateStopped || reason != ReasonManuallyStopped {
		t.Fatalf("state = %s/%s, want STOPPED/MANUALLY_STOPPED", state, reason)
	}
	// Lifecycle inputs do not resurrect a stopped coordinator.
	c.SetVisible(true)
	if state, _ := c.State(); state != StateStopped {
		t.Fatalf("state = %s after SetVisible, want STOPPED", state)
	}
	// An explicit restart does.
	c.Start(ctx)
	defer c.Stop()
	if state, _ := c.State(); state != StatePolling {
		t.Fatalf("state = %s after restart, want POLLING", state)
	}
}

func TestCoordinatorDropsInFlightResultAfterPause(t *testing.T) {
	cfg := testCoordinatorConfig()
	cfg.PollOnStart = true
	gate := make(chan struct{})
	fetching := make(chan struct{}, 1)
	var applied atomic.Bool

	c := NewCoordinator("test", cfg, func(ctx context.Context) (func(ctx context.Context) error, error) {
		fetching <- struct{}{}
		<-gate
		return func(ctx context.Context) error {
			applied.Store(true)
			return nil
		}, nil
	}, nil)
	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, fetching, "the poll fetch to start")
	c.SetVisible(false) // pause while the fetch is in flight
	close(gate)

	// The fetch resolves after the pause; its apply phase must be dropped.
	time.Sleep(50 * time.Millisecond)
	if applied.Load() {
		t.Error("stale in-flight result was applied after pause")
	}
	if !c.LastPollTime().IsZero() {
		t.Error("lastPollTime was stamped for a stale cycle")
	}
}

func TestNotificationCoordinatorMergesAndAdvancesCursor(t *testing.T) {
	var starts []string
	events := []nexus.NotificationEvent{
		{Type: localdb.NotificationFollow, Timestamp: 100, Actor: "BOB", ProfileID: testViewer},
		{Type: localdb.NotificationTagPost, Timestamp: 200, Actor: "CARA", PostURI: "pubky://VIEWER/pub/pubky.app/posts/P1"},
	}
	svc := newTestService(t, func(r *http.Request) (*http.Response, error) {
		if !strings.HasSuffix(r.URL.Path, "/notifications") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		starts = append(starts, r.URL.Query().Get("start"))
		return jsonResponse(http.StatusOK, events), nil
	}, nil)
	svc.cfg = testCoordinatorConfig()
	ctx := context.Background()

	c := NewNotificationCoordinator(svc)
	c.Start(ctx)
	defer c.Stop()

	if !c.PollNow(ctx) {
		t.Fatal("PollNow refused to run")
	}
	stored, err := svc.tables.Notifications.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored %d notifications, want 2", len(stored))
	}
	if stored[0].Timestamp != 200 || stored[0].Target != testViewer+":P1" {
		t.Errorf("newest notification = %+v, want the flattened tag event first", stored[0])
	}

	// The second cycle polls from the newest seen timestamp and the repeated
	// events collapse on their business key.
	if !c.PollNow(ctx) {
		t.Fatal("second PollNow refused to run")
	}
	if len(starts) != 2 || starts[0] != "" || starts[1] != "200" {
		t.Errorf("start params = %v, want cursor advanced to 200", starts)
	}
	stored, err = svc.tables.Notifications.List(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("stored %d notifications after refetch, want dedup to 2", len(stored))
	}
}

func TestStreamCoordinatorMergesNewHead(t *testing.T) {
	head := []nexus.PostView{
		postView("DANA:NEW", "new"),
		postView("BOB:OLD", "old"),
	}
	svc := newTestService(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v0/stream/posts" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		return jsonResponse(http.StatusOK, head), nil
	}, nil)
	svc.cfg = testCoordinatorConfig()
	ctx := context.Background()

	if err := svc.tables.Streams.Upsert(ctx, localdb.StreamTimelineAll, []string{"BOB:OLD", "CARA:OLDER"}); err != nil {
		t.Fatal(err)
	}

	c := NewStreamCoordinator(svc)
	c.Start(ctx)
	defer c.Stop()
	if !c.PollNow(ctx) {
		t.Fatal("PollNow refused to run")
	}

	cached, err := svc.tables.Streams.Get(ctx, localdb.StreamTimelineAll)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"DANA:NEW", "BOB:OLD", "CARA:OLDER"}
	if len(cached) != len(want) {
		t.Fatalf("timeline = %v, want %v", cached, want)
	}
	for i := range want {
		if cached[i] != want[i] {
			t.Errorf("timeline[%d] = %s, want %s", i, cached[i], want[i])
		}
	}
	if _, err := svc.tables.Posts.FindByID(ctx, "DANA:NEW"); err != nil {
		t.Errorf("new head post was not persisted: %v", err)
	}
}
