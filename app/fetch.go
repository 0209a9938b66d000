// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package app

import (
	"context"

	"github.com/pubky/franky-sub016/localdb"
	"github.com/pubky/franky-sub016/nexus"
)

// StreamPageRequest asks for one page of a post stream. The stream key is
// derived from the filter fields; Offset is relative to the locally cached
// array, so callers page forward by appending, never by splicing.
type StreamPageRequest struct {
	Sort   string
	Reach  string
	Kind   string
	Tag    string
	Limit  int
	Offset int
}

func (r StreamPageRequest) streamID() string {
	return localdb.BuildStreamID(r.Sort, r.Reach, r.Kind, r.Tag)
}

// ReadPostStreamPage resolves one stream page local-first:
//
//  1. Validate the cached ID array; a duplicate means a corrupted cache,
//     which is dropped and re-fetched from offset 0.
//  2. Extend the cached array from the remote stream endpoint if it does not
//     cover [offset, offset+limit) yet.
//  3. Partition the requested slice into locally present and missing IDs and
//     fetch the missing ones in one batched request (partial cache hit).
//  4. Bulk-persist fetched entities and return the slice in its original
//     order, minus muted authors.
func (s *Service) ReadPostStreamPage(ctx context.Context, req StreamPageRequest) ([]localdb.PostDetails, error) {
	limit := s.cfg.PageSize(req.Limit)
	streamID := req.streamID()

	cached, err := s.tables.Streams.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if !localdb.ValidateIntegrity(cached) {
		s.logger.Warn("stream failed integrity check", "stream", streamID, "len", len(cached))
		if err := s.tables.Streams.ClearCorrupted(ctx, streamID); err != nil {
			return nil, err
		}
		cached = nil
	}

	// Grow the cached array until it covers the requested window or the
	// remote stream runs out.
	for len(cached) < req.Offset+limit {
		page, err := s.nexus.StreamPosts(ctx, nexus.StreamQuery{
			Sort:     req.Sort,
			Reach:    req.Reach,
			Kind:     req.Kind,
			Tags:     tagFilter(req.Tag),
			ViewerID: s.viewerID,
			Skip:     len(cached),
			Limit:    req.Offset + limit - len(cached),
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		if err := s.persistPostViews(ctx, page); err != nil {
			return nil, err
		}
		fetched := make([]string, 0, len(page))
		seen := make(map[string]struct{}, len(cached))
		for _, id := range cached {
			seen[id] = struct{}{}
		}
		for _, v := range page {
			if _, dup := seen[v.Details.ID]; dup {
				continue
			}
			fetched = append(fetched, v.Details.ID)
		}
		if len(fetched) == 0 {
			break
		}
		cached, err = s.tables.Streams.AppendFetchedPage(ctx, streamID, cached, fetched)
		if err != nil {
			return nil, err
		}
	}

	ids, err := s.tables.Streams.Read(ctx, streamID, limit, req.Offset)
	if err != nil {
		return nil, err
	}
	posts, err := s.resolvePosts(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.muteFilter(ctx).FilterPosts(posts), nil
}

// UserStreamPageRequest asks for one page of a user stream: a locally
// maintained list (following, muted) or a remote discovery source.
type UserStreamPageRequest struct {
	Kind   string // e.g. "following", "recommended", "influencers"
	Limit  int
	Offset int
}

// ReadUserStreamPage resolves one user-stream page local-first. Streams the
// mutation pipeline maintains (following, muted) are served as-is; discovery
// streams grow from the remote user-stream endpoint the same way post
// streams do.
func (s *Service) ReadUserStreamPage(ctx context.Context, req UserStreamPageRequest) ([]localdb.UserDetails, error) {
	limit := s.cfg.PageSize(req.Limit)
	streamID := localdb.UserStreamID(req.Kind, s.viewerID)
	if req.Kind == "muted" {
		streamID = localdb.StreamMuted
	}

	cached, err := s.tables.Streams.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if !localdb.ValidateIntegrity(cached) {
		s.logger.Warn("user stream failed integrity check", "stream", streamID, "len", len(cached))
		if err := s.tables.Streams.ClearCorrupted(ctx, streamID); err != nil {
			return nil, err
		}
		cached = nil
	}

	if remoteUserStream(req.Kind) {
		for len(cached) < req.Offset+limit {
			page, err := s.nexus.StreamUsers(ctx, nexus.StreamQuery{
				Reach:    req.Kind,
				ViewerID: s.viewerID,
				Skip:     len(cached),
				Limit:    req.Offset + limit - len(cached),
			})
			if err != nil {
				return nil, err
			}
			if len(page) == 0 {
				break
			}
			if err := s.persistUserViews(ctx, page); err != nil {
				return nil, err
			}
			fetched := make([]string, 0, len(page))
			seen := make(map[string]struct{}, len(cached))
			for _, id := range cached {
				seen[id] = struct{}{}
			}
			for _, v := range page {
				if _, dup := seen[v.Details.ID]; dup {
					continue
				}
				fetched = append(fetched, v.Details.ID)
			}
			if len(fetched) == 0 {
				break
			}
			cached, err = s.tables.Streams.AppendFetchedPage(ctx, streamID, cached, fetched)
			if err != nil {
				return nil, err
			}
		}
	}

	ids, err := s.tables.Streams.Read(ctx, streamID, limit, req.Offset)
	if err != nil {
		return nil, err
	}
	return s.resolveUsers(ctx, ids)
}

// remoteUserStream reports whether a user-stream kind is fed by the remote
// index. Locally owned lists never trigger a fetch.
func remoteUserStream(kind string) bool {
	switch kind {
	case "following", "muted":
		return false
	}
	return true
}

// RefreshPostTags re-fetches the full tag list of one post and overwrites
// the cached aggregate. The tag endpoint returns the complete taggers list,
// which the stream views truncate.
func (s *Service) RefreshPostTags(ctx context.Context, postID string) ([]localdb.TagItem, error) {
	tags, err := s.nexus.PostTags(ctx, postID)
	if err != nil {
		return nil, err
	}
	if _, err := s.tables.PostTags.Insert(ctx, localdb.PostTags{ID: postID, Tags: tags}); err != nil {
		return nil, err
	}
	return tags, nil
}

// RefreshRelationship re-fetches the viewer's relationship to one identity.
// A 404 from the index means no relationship exists yet and clears the
// cached flags.
func (s *Service) RefreshRelationship(ctx context.Context, userID string) (localdb.Relationship, error) {
	rel, err := s.nexus.UserRelationship(ctx, userID, s.viewerID)
	if err != nil {
		return localdb.Relationship{}, err
	}
	if _, err := s.tables.Relationships.Insert(ctx, rel); err != nil {
		return localdb.Relationship{}, err
	}
	return rel, nil
}

// resolvePosts loads posts for ids, filling any gap from the remote index in
// one batched request (partial cache hit). The returned slice preserves the
// requested order; fetch completion order never reorders it.
func (s *Service) resolvePosts(ctx context.Context, ids []string) ([]localdb.PostDetails, error) {
	present, err := s.tables.Posts.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		views, err := s.nexus.PostsByIDs(ctx, missing, s.viewerID)
		if err != nil {
			return nil, err
		}
		if err := s.persistPostViews(ctx, views); err != nil {
			return nil, err
		}
		for _, v := range views {
			present[v.Details.ID] = v.Details
		}
	}

	out := make([]localdb.PostDetails, 0, len(ids))
	for _, id := range ids {
		if post, ok := present[id]; ok {
			out = append(out, post)
		} else {
			// Known to the stream but gone from the index (deleted remotely).
			s.logger.Debug("stream id unresolvable", "id", id)
		}
	}
	return out, nil
}

// resolveUsers is the user-table counterpart of resolvePosts.
func (s *Service) resolveUsers(ctx context.Context, ids []string) ([]localdb.UserDetails, error) {
	present, err := s.tables.Users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		views, err := s.nexus.UsersByIDs(ctx, missing, s.viewerID)
		if err != nil {
			return nil, err
		}
		if err := s.persistUserViews(ctx, views); err != nil {
			return nil, err
		}
		for _, v := range views {
			present[v.Details.ID] = v.Details
		}
	}
	out := make([]localdb.UserDetails, 0, len(ids))
	for _, id := range ids {
		if user, ok := present[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

// RefreshStalePosts re-fetches the subset of ids whose cached copy expired.
// Optimistic local records are excluded by the staleness tracker and missing
// records are left to the regular fetch path.
func (s *Service) RefreshStalePosts(ctx context.Context, ids []string) error {
	stale, err := s.tables.SyncMeta.FindStaleIDs(ctx, ids, s.cfg.SyncTTL)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	return s.ForceRefreshPosts(ctx, stale)
}

// ForceRefreshPosts unconditionally re-fetches and overwrites cached posts,
// regardless of TTL. Used when a coordinator detects the user returned to an
// active route after being away.
func (s *Service) ForceRefreshPosts(ctx context.Context, ids []string) error {
	views, err := s.nexus.PostsByIDs(ctx, ids, s.viewerID)
	if err != nil {
		return err
	}
	return s.persistPostViews(ctx, views)
}

// RefreshStaleUsers is the user-table counterpart of RefreshStalePosts.
func (s *Service) RefreshStaleUsers(ctx context.Context, ids []string) error {
	stale, err := s.tables.SyncMeta.FindStaleIDs(ctx, ids, s.cfg.SyncTTL)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	return s.ForceRefreshUsers(ctx, stale)
}

// ForceRefreshUsers unconditionally re-fetches and overwrites cached users.
func (s *Service) ForceRefreshUsers(ctx context.Context, ids []string) error {
	views, err := s.nexus.UsersByIDs(ctx, ids, s.viewerID)
	if err != nil {
		return err
	}
	return s.persistUserViews(ctx, views)
}

// RefreshCounts re-fetches tuple-delivered aggregates for posts and users.
func (s *Service) RefreshCounts(ctx context.Context, postIDs, userIDs []string) error {
	if len(postIDs) > 0 {
		tuples, err := s.nexus.PostCountsByIDs(ctx, postIDs)
		if err != nil {
			return err
		}
		if err := s.tables.PostCounts.BulkSaveTuples(ctx, tuples); err != nil {
			return err
		}
	}
	if len(userIDs) > 0 {
		tuples, err := s.nexus.UserCountsByIDs(ctx, userIDs)
		if err != nil {
			return err
		}
		if err := s.tables.UserCounts.BulkSaveTuples(ctx, tuples); err != nil {
			return err
		}
	}
	return nil
}

func tagFilter(tag string) []string {
	if tag == "" {
		return nil
	}
	return []string{tag}
}
