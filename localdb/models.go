// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package localdb

import "encoding/json"

// Post content kinds as indexed by Nexus.
const (
	PostKindShort = "short"
	PostKindLong  = "long"
	PostKindImage = "image"
	PostKindVideo = "video"
	PostKindLink  = "link"
	PostKindFile  = "file"
)

// UserLink is a labelled URL on a profile.
type UserLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// UserDetails is a cached profile, keyed by the raw public identity.
type UserDetails struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Bio       string     `json:"bio,omitempty"`
	Image     string     `json:"image,omitempty"`
	Links     []UserLink `json:"links,omitempty"`
	Status    string     `json:"status,omitempty"`
	IndexedAt int64      `json:"indexed_at"`
}

func (u UserDetails) RecordID() string { return u.ID }

// PostDetails is a cached post, keyed by the composite author:postId.
type PostDetails struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Kind        string   `json:"kind"`
	URI         string   `json:"uri"`
	IndexedAt   int64    `json:"indexed_at"`
	Attachments []string `json:"attachments,omitempty"`
	// RepliedTo / RepostedFrom hold the parent's composite ID when the post
	// is a reply or repost.
	RepliedTo    string `json:"replied_to,omitempty"`
	RepostedFrom string `json:"reposted_from,omitempty"`
}

func (p PostDetails) RecordID() string { return p.ID }

// UserCounts is a tuple-delivered aggregate, keyed by public identity.
type UserCounts struct {
	ID        string `json:"id"`
	Followers int64  `json:"followers"`
	Following int64  `json:"following"`
	Friends   int64  `json:"friends"`
	Posts     int64  `json:"posts"`
	Replies   int64  `json:"replies"`
	Tagged    int64  `json:"tagged"`
	Bookmarks int64  `json:"bookmarks"`
}

func (c UserCounts) RecordID() string { return c.ID }

// PostCounts is a tuple-delivered aggregate, keyed by composite post ID.
type PostCounts struct {
	ID         string `json:"id"`
	Replies    int64  `json:"replies"`
	Reposts    int64  `json:"reposts"`
	Tags       int64  `json:"tags"`
	UniqueTags int64  `json:"unique_tags"`
}

func (c PostCounts) RecordID() string { return c.ID }

// Relationship is the viewer's relation to another identity, keyed by that
// identity.
type Relationship struct {
	ID         string `json:"id"`
	Following  bool   `json:"following"`
	FollowedBy bool   `json:"followed_by"`
	Muted      bool   `json:"muted"`
}

func (r Relationship) RecordID() string { return r.ID }

// TagItem is one label on a tagged resource with the identities that
// applied it.
type TagItem struct {
	Label         string   `json:"label"`
	Taggers       []string `json:"taggers"`
	TaggersCount  int64    `json:"taggers_count"`
	RelationshipT bool     `json:"relationship"` // viewer has applied this label
}

// PostTags is the tuple-delivered tag set of a post, keyed by composite
// post ID.
type PostTags struct {
	ID   string    `json:"id"`
	Tags []TagItem `json:"tags"`
}

func (p PostTags) RecordID() string { return p.ID }

// Bookmark records that the viewer bookmarked a post. Keyed by the composite
// post ID; HomeserverID is the builder-generated local ID the signed write
// was issued under, needed to derive the delete URL later.
type Bookmark struct {
	ID           string `json:"id"`
	HomeserverID string `json:"homeserver_id"`
	CreatedAt    int64  `json:"created_at"`
}

func (b Bookmark) RecordID() string { return b.ID }

// Feed is a user-defined stream configuration with a locally generated ID.
type Feed struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Sort      string   `json:"sort"`
	Reach     string   `json:"reach"`
	Content   string   `json:"content,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Layout    string   `json:"layout,omitempty"`
	CreatedAt int64    `json:"created_at"`
}

func (f Feed) RecordID() string { return f.ID }

// Tuple adapters. Each expands an [id, payload] pair into the full record.

func UserCountsFromTuple(id string, payload json.RawMessage) (UserCounts, error) {
	var c UserCounts
	if err := json.Unmarshal(payload, &c); err != nil {
		return c, err
	}
	c.ID = id
	return c, nil
}

func PostCountsFromTuple(id string, payload json.RawMessage) (PostCounts, error) {
	var c PostCounts
	if err := json.Unmarshal(payload, &c); err != nil {
		return c, err
	}
	c.ID = id
	return c, nil
}

func RelationshipFromTuple(id string, payload json.RawMessage) (Relationship, error) {
	var r Relationship
	if err := json.Unmarshal(payload, &r); err != nil {
		return r, err
	}
	r.ID = id
	return r, nil
}

func PostTagsFromTuple(id string, payload json.RawMessage) (PostTags, error) {
	var p PostTags
	if err := json.Unmarshal(payload, &p.Tags); err != nil {
		return p, err
	}
	p.ID = id
	return p, nil
}
