// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package nexus

import (
	"github.com/pubky/franky-sub016/coreid"
	"github.com/pubky/franky-sub016/localdb"
)

// REST/JSON models for the Nexus indexing API. Depending on the endpoint,
// responses are either full view records or [id, payload] tuples; tuple
// endpoints decode straight into localdb.Tuple.

// UserView is the full indexed view of a profile.
type UserView struct {
	Details      localdb.UserDetails   `json:"details"`
	Counts       localdb.UserCounts    `json:"counts"`
	Relationship *localdb.Relationship `json:"relationship,omitempty"`
	Tags         []localdb.TagItem     `json:"tags,omitempty"`
}

// PostView is the full indexed view of a post.
type PostView struct {
	Details    localdb.PostDetails `json:"details"`
	Counts     localdb.PostCounts  `json:"counts"`
	Tags       []localdb.TagItem   `json:"tags,omitempty"`
	Bookmarked bool                `json:"bookmarked"`
	// Moderated is set when the indexer flagged the post's content.
	Moderated bool `json:"moderated,omitempty"`
}

// NotificationEvent is the wire shape of one notification. The envelope
// carries transport fields (cursor, schema tag) that do not identify the
// event; flattening drops them.
type NotificationEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Actor     string `json:"actor"`
	// Post events carry the post URI; profile events carry the profile ID.
	PostURI   string `json:"post_uri,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
	Cursor    int64  `json:"cursor,omitempty"`
	Schema    string `json:"schema,omitempty"`
}

// ToNotification flattens the wire event into the stored record. The store
// derives the business key, so two envelopes for the same event collapse.
func (e *NotificationEvent) ToNotification() localdb.Notification {
	target := e.ProfileID
	if e.PostURI != "" {
		if id, ok := coreid.PostIDFromURI(e.PostURI); ok {
			target = id
		} else {
			target = e.PostURI
		}
	}
	return localdb.Notification{
		Type:      e.Type,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Target:    target,
	}
}

// BootstrapResponse is the initial snapshot for a viewer: their own view,
// the profiles and posts needed to render the first timeline page, and that
// page's post IDs in indexed order.
type BootstrapResponse struct {
	Users    []UserView `json:"users"`
	Posts    []PostView `json:"posts"`
	Timeline []string   `json:"timeline"` // composite post IDs, snapshot order
}

// StreamQuery parameterizes paginated stream endpoints.
type StreamQuery struct {
	Sort      string
	Reach     string
	Kind      string
	Tags      []string
	ViewerID  string
	Timeframe string
	Skip      int
	Limit     int
}

// byIDsRequest is the body of the batched "by IDs" endpoints.
type byIDsRequest struct {
	IDs      []string `json:"ids"`
	ViewerID string   `json:"viewer_id,omitempty"`
}
