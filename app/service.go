// Package app orchestrates the local-first data flow: reads resolve against
// the local store first and fall through to the remote index for missing or
// stale entries, writes land locally before the signed remote request, and
// background coordinators keep notifications and timelines fresh while the
// app is visible on a route that needs them.
// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package app

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/pubky/franky-sub016/homeserver"
	"github.com/pubky/franky-sub016/localdb"
	"github.com/pubky/franky-sub016/nexus"
)

// Service wires the local store, the Nexus read client and the homeserver
// write client for one signed-in viewer.
type Service struct {
	cfg        *Config
	db         *localdb.DB
	tables     *localdb.Tables
	nexus      *nexus.Client
	homeserver *homeserver.Client
	viewerID   string
	logger     *slog.Logger
	validate   *validator.Validate
}

// NewService creates the application service.
func NewService(cfg *Config, db *localdb.DB, nexusClient *nexus.Client, hsClient *homeserver.Client, viewerID string, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		db:         db,
		tables:     localdb.NewTables(db),
		nexus:      nexusClient,
		homeserver: hsClient,
		viewerID:   viewerID,
		logger:     logger,
		validate:   validator.New(),
	}
}

// Tables exposes the typed local tables for reactive readers.
func (s *Service) Tables() *localdb.Tables { return s.tables }

// ViewerID returns the signed-in identity the service acts as.
func (s *Service) ViewerID() string { return s.viewerID }

// Bootstrap fetches the initial snapshot and fills the local store: profiles
// and posts with their aggregates, plus the first timeline page in snapshot
// order.
func (s *Service) Bootstrap(ctx context.Context) error {
	snapshot, err := s.nexus.Bootstrap(ctx, s.viewerID)
	if err != nil {
		return err
	}
	if err := s.persistUserViews(ctx, snapshot.Users); err != nil {
		return err
	}
	if err := s.persistPostViews(ctx, snapshot.Posts); err != nil {
		return err
	}
	return s.tables.Streams.Upsert(ctx, localdb.StreamTimelineAll, snapshot.Timeline)
}

// persistPostViews normalizes fetched post views into the local tables and
// stamps them synced.
func (s *Service) persistPostViews(ctx context.Context, views []nexus.PostView) error {
	if len(views) == 0 {
		return nil
	}
	details := make([]localdb.PostDetails, 0, len(views))
	counts := make([]localdb.PostCounts, 0, len(views))
	var tags []localdb.PostTags
	var bookmarksSeen []string
	ids := make([]string, 0, len(views))

	for _, v := range views {
		details = append(details, v.Details)
		counts = append(counts, v.Counts)
		ids = append(ids, v.Details.ID)
		if v.Tags != nil {
			tags = append(tags, localdb.PostTags{ID: v.Details.ID, Tags: v.Tags})
		}
		if v.Bookmarked {
			bookmarksSeen = append(bookmarksSeen, v.Details.ID)
		}
		if v.Moderated {
			if err := s.tables.Moderation.SaveFlagged(ctx, v.Details.ID, localdb.ModerationTypePost); err != nil {
				return err
			}
		}
	}

	if err := s.tables.Posts.BulkSave(ctx, details); err != nil {
		return err
	}
	if err := s.tables.PostCounts.BulkSave(ctx, counts); err != nil {
		return err
	}
	if err := s.tables.PostTags.BulkSave(ctx, tags); err != nil {
		return err
	}
	for _, id := range bookmarksSeen {
		if _, ok := s.tables.Bookmarks.TryFindByID(ctx, id); !ok {
			if _, err := s.tables.Bookmarks.Insert(ctx, localdb.Bookmark{ID: id}); err != nil {
				return err
			}
		}
	}
	return s.tables.SyncMeta.MarkSynced(ctx, ids...)
}

// persistUserViews normalizes fetched user views into the local tables and
// stamps them synced.
func (s *Service) persistUserViews(ctx context.Context, views []nexus.UserView) error {
	if len(views) == 0 {
		return nil
	}
	details := make([]localdb.UserDetails, 0, len(views))
	counts := make([]localdb.UserCounts, 0, len(views))
	var relationships []localdb.Relationship
	ids := make([]string, 0, len(views))

	for _, v := range views {
		details = append(details, v.Details)
		counts = append(counts, v.Counts)
		ids = append(ids, v.Details.ID)
		if v.Relationship != nil {
			rel := *v.Relationship
			rel.ID = v.Details.ID
			relationships = append(relationships, rel)
		}
	}

	if err := s.tables.Users.BulkSave(ctx, details); err != nil {
		return err
	}
	if err := s.tables.UserCounts.BulkSave(ctx, counts); err != nil {
		return err
	}
	if err := s.tables.Relationships.BulkSave(ctx, relationships); err != nil {
		return err
	}
	return s.tables.SyncMeta.MarkSynced(ctx, ids...)
}
