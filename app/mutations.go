// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pubky/franky-sub016/coreid"
	"github.com/pubky/franky-sub016/homeserver"
	"github.com/pubky/franky-sub016/localdb"
)

// Writers follow the local-first pattern: the local store is updated before
// the signed remote write, so reactive reads reflect the change immediately.
// When the remote write fails, the local state is ahead of the confirmed
// remote state and stays that way: there is no automatic retry or rollback;
// the record remains marked 'local' and reconciliation is the caller's
// responsibility on the next sync or bootstrap. The error is still returned
// so callers can surface it.

// CreatePostInput is the validated shape of a new post.
type CreatePostInput struct {
	Content     string   `validate:"required,max=2000"`
	Kind        string   `validate:"required,oneof=short long image video link file"`
	RepliedTo   string   `validate:"omitempty"`
	Attachments []string `validate:"max=4,dive,required"`
}

// CreatePost writes a new post locally, prepends it to the viewer's
// timeline, then issues the signed remote write. Returns the composite post
// ID.
func (s *Service) CreatePost(ctx context.Context, input CreatePostInput) (string, error) {
	if err := s.checkInput(input); err != nil {
		return "", err
	}
	localID := newLocalID()
	compositeID := coreid.BuildPostID(s.viewerID, localID)
	uri := homeserver.PostURL(s.viewerID, localID)

	post := localdb.PostDetails{
		ID:          compositeID,
		Content:     input.Content,
		Kind:        input.Kind,
		URI:         uri,
		RepliedTo:   input.RepliedTo,
		Attachments: input.Attachments,
	}
	if _, err := s.tables.Posts.Insert(ctx, post); err != nil {
		return "", err
	}
	if err := s.tables.SyncMeta.MarkLocal(ctx, compositeID); err != nil {
		return "", err
	}
	if input.RepliedTo == "" {
		if err := s.tables.Streams.Prepend(ctx, localdb.StreamTimelineAll, compositeID); err != nil {
			return "", err
		}
	}

	if err := s.homeserver.Request(ctx, homeserver.ActionPut, uri, post); err != nil {
		s.logger.Warn("post persisted locally but remote write failed",
			"post", compositeID, "err", err)
		return compositeID, err
	}
	return compositeID, nil
}

// ToggleBookmark reads the current local state to decide between create and
// delete, performs the pair, and returns the new state.
func (s *Service) ToggleBookmark(ctx context.Context, postID string) (bool, error) {
	if !coreid.Valid(postID) {
		return false, &ValidationError{Field: "postID", Reason: "malformed composite id"}
	}
	existing, ok, err := s.tables.Bookmarks.FindByIDOptional(ctx, postID)
	if err != nil {
		return false, err
	}

	if ok {
		if err := s.tables.Bookmarks.DeleteByID(ctx, postID); err != nil {
			return true, err
		}
		bookmarkID := existing.HomeserverID
		if bookmarkID == "" {
			bookmarkID = deterministicID(postID)
		}
		if err := s.homeserver.Request(ctx, homeserver.ActionDelete,
			homeserver.BookmarkURL(s.viewerID, bookmarkID), nil); err != nil {
			s.logger.Warn("bookmark removed locally but remote delete failed",
				"post", postID, "err", err)
			return false, err
		}
		return false, nil
	}

	bookmark := localdb.Bookmark{
		ID:           postID,
		HomeserverID: deterministicID(postID),
		CreatedAt:    nowMilli(),
	}
	if _, err := s.tables.Bookmarks.Insert(ctx, bookmark); err != nil {
		return false, err
	}
	if err := s.homeserver.Request(ctx, homeserver.ActionPut,
		homeserver.BookmarkURL(s.viewerID, bookmark.HomeserverID),
		map[string]any{"uri": postURI(postID), "created_at": bookmark.CreatedAt}); err != nil {
		s.logger.Warn("bookmark persisted locally but remote write failed",
			"post", postID, "err", err)
		return true, err
	}
	return true, nil
}

// ToggleRepost creates or removes the viewer's repost of a post and returns
// the new state.
func (s *Service) ToggleRepost(ctx context.Context, postID string) (bool, error) {
	if !coreid.Valid(postID) {
		return false, &ValidationError{Field: "postID", Reason: "malformed composite id"}
	}
	repostsStream := localdb.UserStreamID("reposts", s.viewerID)
	reposted, err := s.tables.Streams.Get(ctx, repostsStream)
	if err != nil {
		return false, err
	}
	for _, id := range reposted {
		if id != postID {
			continue
		}
		// Already reposted: remove the repost post, its stream entries and
		// its sync metadata.
		localID := deterministicID("repost:" + postID)
		repostID := coreid.BuildPostID(s.viewerID, localID)
		if err := s.tables.Posts.DeleteByID(ctx, repostID); err != nil {
			return true, err
		}
		remaining := make([]string, 0, len(reposted)-1)
		for _, r := range reposted {
			if r != postID {
				remaining = append(remaining, r)
			}
		}
		if err := s.tables.Streams.Upsert(ctx, repostsStream, remaining); err != nil {
			return true, err
		}
		if err := s.removeFromStream(ctx, localdb.StreamTimelineAll, repostID); err != nil {
			return true, err
		}
		if err := s.tables.SyncMeta.Delete(ctx, repostID); err != nil {
			return true, err
		}
		if err := s.homeserver.Request(ctx, homeserver.ActionDelete,
			homeserver.PostURL(s.viewerID, localID), nil); err != nil {
			s.logger.Warn("repost removed locally but remote delete failed",
				"post", postID, "err", err)
			return false, err
		}
		return false, nil
	}

	localID := deterministicID("repost:" + postID)
	repostID := coreid.BuildPostID(s.viewerID, localID)
	uri := homeserver.PostURL(s.viewerID, localID)
	repost := localdb.PostDetails{
		ID:           repostID,
		Kind:         localdb.PostKindShort,
		URI:          uri,
		RepostedFrom: postID,
	}
	if _, err := s.tables.Posts.Insert(ctx, repost); err != nil {
		return false, err
	}
	if err := s.tables.SyncMeta.MarkLocal(ctx, repostID); err != nil {
		return false, err
	}
	if err := s.tables.Streams.Prepend(ctx, repostsStream, postID); err != nil {
		return false, err
	}
	if err := s.tables.Streams.Prepend(ctx, localdb.StreamTimelineAll, repostID); err != nil {
		return false, err
	}
	if err := s.homeserver.Request(ctx, homeserver.ActionPut, uri, repost); err != nil {
		s.logger.Warn("repost persisted locally but remote write failed",
			"post", postID, "err", err)
		return true, err
	}
	return true, nil
}

// TagInput is a validated tag label.
type TagInput struct {
	Label string `validate:"required,min=1,max=20"`
}

// TagPost applies a label to a post as the viewer.
func (s *Service) TagPost(ctx context.Context, postID, label string) error {
	label = strings.TrimSpace(strings.ToLower(label))
	if err := s.checkInput(TagInput{Label: label}); err != nil {
		return err
	}
	if !coreid.Valid(postID) {
		return &ValidationError{Field: "postID", Reason: "malformed composite id"}
	}

	tags, ok := s.tables.PostTags.TryFindByID(ctx, postID)
	if !ok {
		tags = localdb.PostTags{ID: postID}
	}
	tags.Tags = addTagger(tags.Tags, label, s.viewerID)
	if _, err := s.tables.PostTags.Insert(ctx, tags); err != nil {
		return err
	}

	tagID := deterministicID(postURI(postID) + ":" + label)
	err := s.homeserver.Request(ctx, homeserver.ActionPut,
		homeserver.TagURL(s.viewerID, tagID),
		map[string]any{"uri": postURI(postID), "label": label, "created_at": nowMilli()})
	if err != nil {
		s.logger.Warn("tag persisted locally but remote write failed",
			"post", postID, "label", label, "err", err)
	}
	return err
}

// UntagPost removes the viewer's label from a post.
func (s *Service) UntagPost(ctx context.Context, postID, label string) error {
	label = strings.TrimSpace(strings.ToLower(label))
	if err := s.checkInput(TagInput{Label: label}); err != nil {
		return err
	}
	tags, ok := s.tables.PostTags.TryFindByID(ctx, postID)
	if ok {
		tags.Tags = removeTagger(tags.Tags, label, s.viewerID)
		if _, err := s.tables.PostTags.Insert(ctx, tags); err != nil {
			return err
		}
	}

	tagID := deterministicID(postURI(postID) + ":" + label)
	err := s.homeserver.Request(ctx, homeserver.ActionDelete,
		homeserver.TagURL(s.viewerID, tagID), nil)
	if err != nil {
		s.logger.Warn("tag removed locally but remote delete failed",
			"post", postID, "label", label, "err", err)
	}
	return err
}

// Follow records the viewer following userID.
func (s *Service) Follow(ctx context.Context, userID string) error {
	return s.setFollow(ctx, userID, true)
}

// Unfollow removes the viewer's follow of userID.
func (s *Service) Unfollow(ctx context.Context, userID string) error {
	return s.setFollow(ctx, userID, false)
}

func (s *Service) setFollow(ctx context.Context, userID string, follow bool) error {
	if userID == "" || userID == s.viewerID {
		return &ValidationError{Field: "userID", Reason: "invalid follow target"}
	}
	rel, _ := s.tables.Relationships.TryFindByID(ctx, userID)
	rel.ID = userID
	rel.Following = follow
	if _, err := s.tables.Relationships.Insert(ctx, rel); err != nil {
		return err
	}
	followingStream := localdb.UserStreamID("following", s.viewerID)
	if follow {
		if err := s.tables.Streams.Prepend(ctx, followingStream, userID); err != nil {
			return err
		}
	} else {
		if err := s.removeFromStream(ctx, followingStream, userID); err != nil {
			return err
		}
	}

	action := homeserver.ActionPut
	var body any = map[string]any{"created_at": nowMilli()}
	if !follow {
		action = homeserver.ActionDelete
		body = nil
	}
	err := s.homeserver.Request(ctx, action, homeserver.FollowURL(s.viewerID, userID), body)
	if err != nil {
		s.logger.Warn("follow updated locally but remote write failed",
			"user", userID, "follow", follow, "err", err)
	}
	return err
}

// Mute hides userID's content from every stream the viewer reads.
func (s *Service) Mute(ctx context.Context, userID string) error {
	return s.setMute(ctx, userID, true)
}

// Unmute restores userID's content.
func (s *Service) Unmute(ctx context.Context, userID string) error {
	return s.setMute(ctx, userID, false)
}

func (s *Service) setMute(ctx context.Context, userID string, mute bool) error {
	if userID == "" || userID == s.viewerID {
		return &ValidationError{Field: "userID", Reason: "invalid mute target"}
	}
	rel, _ := s.tables.Relationships.TryFindByID(ctx, userID)
	rel.ID = userID
	rel.Muted = mute
	if _, err := s.tables.Relationships.Insert(ctx, rel); err != nil {
		return err
	}
	if mute {
		if err := s.tables.Streams.Prepend(ctx, localdb.StreamMuted, userID); err != nil {
			return err
		}
	} else {
		if err := s.removeFromStream(ctx, localdb.StreamMuted, userID); err != nil {
			return err
		}
	}

	action := homeserver.ActionPut
	var body any = map[string]any{"created_at": nowMilli()}
	if !mute {
		action = homeserver.ActionDelete
		body = nil
	}
	err := s.homeserver.Request(ctx, action, homeserver.MuteURL(s.viewerID, userID), body)
	if err != nil {
		s.logger.Warn("mute updated locally but remote write failed",
			"user", userID, "mute", mute, "err", err)
	}
	return err
}

// SaveFeedInput is a validated feed configuration.
type SaveFeedInput struct {
	Name    string   `validate:"required,max=50"`
	Sort    string   `validate:"required,oneof=recency engagement"`
	Reach   string   `validate:"required,oneof=all following friends"`
	Content string   `validate:"omitempty,oneof=short long image video link file"`
	Tags    []string `validate:"max=5,dive,min=1,max=20"`
	Layout  string   `validate:"omitempty,oneof=columns wide visual"`
}

// SaveFeed persists a feed configuration under a new auto-generated ID,
// locally then remotely. Returns the feed ID.
func (s *Service) SaveFeed(ctx context.Context, input SaveFeedInput) (string, error) {
	if err := s.checkInput(input); err != nil {
		return "", err
	}
	feed := localdb.Feed{
		ID:        newLocalID(),
		Name:      input.Name,
		Sort:      input.Sort,
		Reach:     input.Reach,
		Content:   input.Content,
		Tags:      input.Tags,
		Layout:    input.Layout,
		CreatedAt: nowMilli(),
	}
	if _, err := s.tables.Feeds.Insert(ctx, feed); err != nil {
		return "", err
	}
	if err := s.homeserver.Request(ctx, homeserver.ActionPut,
		homeserver.FeedURL(s.viewerID, feed.ID), feed); err != nil {
		s.logger.Warn("feed persisted locally but remote write failed",
			"feed", feed.ID, "err", err)
		return feed.ID, err
	}
	return feed.ID, nil
}

// DeleteFeed removes a feed configuration locally and remotely.
func (s *Service) DeleteFeed(ctx context.Context, feedID string) error {
	if err := s.tables.Feeds.DeleteByID(ctx, feedID); err != nil {
		return err
	}
	err := s.homeserver.Request(ctx, homeserver.ActionDelete,
		homeserver.FeedURL(s.viewerID, feedID), nil)
	if err != nil {
		s.logger.Warn("feed removed locally but remote delete failed",
			"feed", feedID, "err", err)
	}
	return err
}

func (s *Service) removeFromStream(ctx context.Context, streamID, id string) error {
	ids, err := s.tables.Streams.Get(ctx, streamID)
	if err != nil {
		return err
	}
	remaining := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			remaining = append(remaining, existing)
		}
	}
	if len(remaining) == len(ids) {
		return nil
	}
	return s.tables.Streams.Upsert(ctx, streamID, remaining)
}

func addTagger(tags []localdb.TagItem, label, tagger string) []localdb.TagItem {
	for i := range tags {
		if tags[i].Label != label {
			continue
		}
		for _, t := range tags[i].Taggers {
			if t == tagger {
				return tags
			}
		}
		tags[i].Taggers = append(tags[i].Taggers, tagger)
		tags[i].TaggersCount++
		tags[i].RelationshipT = true
		return tags
	}
	return append(tags, localdb.TagItem{
		Label:         label,
		Taggers:       []string{tagger},
		TaggersCount:  1,
		RelationshipT: true,
	})
}

func removeTagger(tags []localdb.TagItem, label, tagger string) []localdb.TagItem {
	out := tags[:0]
	for _, tag := range tags {
		if tag.Label == label {
			taggers := make([]string, 0, len(tag.Taggers))
			for _, t := range tag.Taggers {
				if t != tagger {
					taggers = append(taggers, t)
				}
			}
			if len(taggers) == 0 {
				continue
			}
			tag.Taggers = taggers
			tag.TaggersCount = int64(len(taggers))
			tag.RelationshipT = false
		}
		out = append(out, tag)
	}
	return out
}

// postURI rebuilds the canonical resource URI of a composite post ID.
func postURI(compositeID string) string {
	author, postID, err := coreid.ParsePostID(compositeID)
	if err != nil {
		return compositeID
	}
	return homeserver.PostURL(author, postID)
}

// newLocalID generates a builder-local resource ID.
func newLocalID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:13]
}

// deterministicID derives a stable local ID from resource content, so the
// same logical record always maps to the same homeserver URL.
func deterministicID(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return strings.ToUpper(hex.EncodeToString(sum[:8]))
}

func nowMilli() int64 { return time.Now().UnixMilli() }
