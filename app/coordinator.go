// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pubky/franky-sub016/localdb"
	"github.com/pubky/franky-sub016/nexus"
)

// Coordinator states.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StatePolling    State = "POLLING"
	StatePaused     State = "PAUSED"
	StateStopped    State = "STOPPED"
)

// Reasons a coordinator is not polling.
type PauseReason string

const (
	ReasonNone             PauseReason = ""
	ReasonRouteDisabled    PauseReason = "ROUTE_DISABLED"
	ReasonPageInactive     PauseReason = "PAGE_INACTIVE"
	ReasonNotAuthenticated PauseReason = "NOT_AUTHENTICATED"
	ReasonManuallyStopped  PauseReason = "MANUALLY_STOPPED"
)

// PollFunc performs the fetch phase of one poll cycle and returns the apply
// phase as a closure. Splitting the two lets the coordinator drop the result
// of an in-flight fetch that completed after a pause or stop: the fetch is
// never aborted mid-request, but its effects are only applied while still
// polling.
type PollFunc func(ctx context.Context) (apply func(ctx context.Context) error, err error)

// Coordinator is a background poller with an explicit lifecycle. One
// instance lives for the whole process and is injected into whatever owns
// the UI lifecycle; there are no package-level singletons.
//
// States: NOT_STARTED → POLLING ⇄ PAUSED → STOPPED. While paused the
// interval timer is cleared entirely, not merely skipped.
type Coordinator struct {
	name           string
	interval       time.Duration
	pollOnStart    bool
	disabledRoutes []string
	poll           PollFunc
	logger         *slog.Logger

	mu            sync.Mutex
	state         State
	reason        PauseReason
	started       bool
	route         string
	visible       bool
	authenticated bool
	gen           int
	baseCtx       context.Context
	cancelLoop    context.CancelFunc
	lastPollTime  time.Time
}

// NewCoordinator builds a coordinator around a poll function. The page is
// assumed visible and the viewer authenticated until told otherwise.
func NewCoordinator(name string, cfg *Config, poll PollFunc, logger *slog.Logger) *Coordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		name:           name,
		interval:       cfg.PollInterval,
		pollOnStart:    cfg.PollOnStart,
		disabledRoutes: cfg.DisabledRoutes,
		poll:           poll,
		logger:         logger,
		state:          StateNotStarted,
		visible:        true,
		authenticated:  true,
	}
}

// Start moves NOT_STARTED or STOPPED into the running lifecycle. The
// coordinator lands in POLLING, or directly in PAUSED when the current
// route, visibility or auth state demands it. No-op if already started.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.baseCtx = ctx
	c.evaluateLocked()
}

// Stop forces STOPPED and cancels the interval timer. A stopped coordinator
// can be started again.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLoopLocked()
	c.started = false
	c.state = StateStopped
	c.reason = ReasonManuallyStopped
	c.logger.Debug("coordinator stopped", "name", c.name)
}

// SetRoute re-evaluates the lifecycle against the disabled-route patterns.
func (c *Coordinator) SetRoute(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.route = path
	c.evaluateLocked()
}

// SetVisible reflects the document visibility state.
func (c *Coordinator) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = visible
	c.evaluateLocked()
}

// SetAuthenticated reflects the session state. Unauthenticated forces PAUSED
// regardless of route and visibility.
func (c *Coordinator) SetAuthenticated(authenticated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = authenticated
	c.evaluateLocked()
}

// State returns the current state and, when paused or stopped, the reason.
func (c *Coordinator) State() (State, PauseReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.reason
}

// LastPollTime returns when the last poll cycle ran.
func (c *Coordinator) LastPollTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPollTime
}

// PollNow runs one poll cycle synchronously if currently polling. Returns
// whether a cycle ran.
func (c *Coordinator) PollNow(ctx context.Context) bool {
	c.mu.Lock()
	if c.state != StatePolling {
		c.mu.Unlock()
		return false
	}
	gen := c.gen
	c.mu.Unlock()
	c.pollOnce(ctx, gen)
	return true
}

func (c *Coordinator) evaluateLocked() {
	if !c.started {
		return
	}
	desired, reason := c.desiredLocked()
	if desired == c.state {
		c.reason = reason
		return
	}
	switch desired {
	case StatePolling:
		c.state = StatePolling
		c.reason = ReasonNone
		c.startLoopLocked()
		c.logger.Debug("coordinator polling", "name", c.name)
	case StatePaused:
		c.stopLoopLocked()
		c.state = StatePaused
		c.reason = reason
		c.logger.Debug("coordinator paused", "name", c.name, "reason", reason)
	}
}

func (c *Coordinator) desiredLocked() (State, PauseReason) {
	if !c.authenticated {
		return StatePaused, ReasonNotAuthenticated
	}
	if c.routeDisabledLocked() {
		return StatePaused, ReasonRouteDisabled
	}
	if !c.visible {
		return StatePaused, ReasonPageInactive
	}
	return StatePolling, ReasonNone
}

func (c *Coordinator) routeDisabledLocked() bool {
	for _, pattern := range c.disabledRoutes {
		if pattern != "" && strings.HasPrefix(c.route, pattern) {
			return true
		}
	}
	return false
}

func (c *Coordinator) startLoopLocked() {
	c.gen++
	gen := c.gen
	loopCtx, cancel := context.WithCancel(c.baseCtx)
	c.cancelLoop = cancel
	go c.runLoop(loopCtx, gen)
}

func (c *Coordinator) stopLoopLocked() {
	if c.cancelLoop != nil {
		c.cancelLoop()
		c.cancelLoop = nil
	}
	c.gen++ // in-flight results from the old loop are discarded
}

func (c *Coordinator) runLoop(ctx context.Context, gen int) {
	if c.pollOnStart {
		c.pollOnce(ctx, gen)
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx, gen)
		}
	}
}

func (c *Coordinator) pollOnce(ctx context.Context, gen int) {
	apply, err := c.poll(ctx)
	if err != nil {
		c.logger.Warn("poll failed", "name", c.name, "err", err)
		return
	}

	c.mu.Lock()
	current := c.state == StatePolling && c.gen == gen
	if current {
		c.lastPollTime = time.Now()
	}
	c.mu.Unlock()
	if !current {
		// Paused or stopped while the fetch was in flight; drop the result.
		return
	}
	if apply == nil {
		return
	}
	if err := apply(ctx); err != nil {
		c.logger.Warn("poll apply failed", "name", c.name, "err", err)
	}
}

// NewNotificationCoordinator polls Nexus for new notification events and
// merges them into the local store, deduplicated by business key.
func NewNotificationCoordinator(svc *Service) *Coordinator {
	var lastSeen int64
	poll := func(ctx context.Context) (func(ctx context.Context) error, error) {
		events, err := svc.nexus.Notifications(ctx, svc.viewerID, lastSeen, svc.cfg.NotificationLimit)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			return nil, nil
		}
		return func(ctx context.Context) error {
			records := make([]localdb.Notification, 0, len(events))
			for i := range events {
				records = append(records, events[i].ToNotification())
				if events[i].Timestamp > lastSeen {
					lastSeen = events[i].Timestamp
				}
			}
			return svc.tables.Notifications.Save(ctx, records)
		}, nil
	}
	return NewCoordinator("notifications", svc.cfg, poll, svc.logger)
}

// NewStreamCoordinator polls the head of the main timeline for new posts and
// merges newly discovered IDs at the head of the cached stream.
func NewStreamCoordinator(svc *Service) *Coordinator {
	limit := svc.cfg.StreamLimit(localdb.StreamTimelineAll)
	poll := func(ctx context.Context) (func(ctx context.Context) error, error) {
		page, err := svc.nexus.StreamPosts(ctx, nexus.StreamQuery{
			Sort:     localdb.SortRecency,
			Reach:    localdb.ReachAll,
			ViewerID: svc.viewerID,
			Limit:    limit,
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return nil, nil
		}
		return func(ctx context.Context) error {
			if err := svc.persistPostViews(ctx, page); err != nil {
				return err
			}
			existing, err := svc.tables.Streams.Get(ctx, localdb.StreamTimelineAll)
			if err != nil {
				return err
			}
			seen := make(map[string]struct{}, len(existing))
			for _, id := range existing {
				seen[id] = struct{}{}
			}
			var fresh []string
			for _, v := range page {
				if _, dup := seen[v.Details.ID]; !dup {
					fresh = append(fresh, v.Details.ID)
				}
			}
			if len(fresh) == 0 {
				return nil
			}
			return svc.tables.Streams.Upsert(ctx, localdb.StreamTimelineAll,
				append(fresh, existing...))
		}, nil
	}
	return NewCoordinator("stream", svc.cfg, poll, svc.logger)
}
