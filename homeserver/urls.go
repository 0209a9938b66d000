// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package homeserver

import "fmt"

// ResourceScheme is the scheme of user-owned resource URIs.
const ResourceScheme = "pubky"

// AppNamespace is the application path all resources live under.
const AppNamespace = "pub/pubky.app"

// Resource domains, matching the path segment coreid.FromResourceURI keys on.
const (
	DomainPosts     = "posts"
	DomainBookmarks = "bookmarks"
	DomainTags      = "tags"
	DomainFollows   = "follows"
	DomainMutes     = "mutes"
	DomainFiles     = "files"
	DomainFeeds     = "feeds"
	DomainProfile   = "profile.json"
)

func resourceURL(owner, domain, localID string) string {
	return fmt.Sprintf("%s://%s/%s/%s/%s", ResourceScheme, owner, AppNamespace, domain, localID)
}

// PostURL is the write URL for a post owned by owner with the given local ID.
func PostURL(owner, postID string) string { return resourceURL(owner, DomainPosts, postID) }

// BookmarkURL is the write URL for a bookmark record.
func BookmarkURL(owner, bookmarkID string) string {
	return resourceURL(owner, DomainBookmarks, bookmarkID)
}

// TagURL is the write URL for a tag record.
func TagURL(owner, tagID string) string { return resourceURL(owner, DomainTags, tagID) }

// FollowURL is the write URL for a follow of followee by owner.
func FollowURL(owner, followee string) string { return resourceURL(owner, DomainFollows, followee) }

// MuteURL is the write URL for a mute of muted by owner.
func MuteURL(owner, muted string) string { return resourceURL(owner, DomainMutes, muted) }

// FileURL is the write URL for an uploaded file.
func FileURL(owner, fileID string) string { return resourceURL(owner, DomainFiles, fileID) }

// FeedURL is the write URL for a saved feed configuration.
func FeedURL(owner, feedID string) string { return resourceURL(owner, DomainFeeds, feedID) }

// ProfileURL is the write URL for the owner's profile document.
func ProfileURL(owner string) string {
	return fmt.Sprintf("%s://%s/%s/%s", ResourceScheme, owner, AppNamespace, DomainProfile)
}
