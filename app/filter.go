// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package app

import (
	"context"

	"github.com/pubky/franky-sub016/coreid"
	"github.com/pubky/franky-sub016/localdb"
)

// MuteFilter removes content authored by muted identities from stream
// results. It is applied after stream-slice resolution and before the slice
// is handed to the UI, so pagination counts reflect the unfiltered slice: a
// page may render fewer items than requested when entries are muted.
type MuteFilter struct {
	muted map[string]struct{}
}

// NewMuteFilter builds a filter over a muted identity list.
func NewMuteFilter(mutedIDs []string) *MuteFilter {
	if len(mutedIDs) == 0 {
		return &MuteFilter{}
	}
	set := make(map[string]struct{}, len(mutedIDs))
	for _, id := range mutedIDs {
		set[id] = struct{}{}
	}
	return &MuteFilter{muted: set}
}

// FilterIDs drops composite IDs whose owner is muted. Identity function when
// no one is muted.
func (f *MuteFilter) FilterIDs(ids []string) []string {
	if len(f.muted) == 0 {
		return ids
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, hidden := f.muted[coreid.Owner(id)]; hidden {
			continue
		}
		out = append(out, id)
	}
	return out
}

// FilterPosts drops posts whose author is muted.
func (f *MuteFilter) FilterPosts(posts []localdb.PostDetails) []localdb.PostDetails {
	if len(f.muted) == 0 {
		return posts
	}
	out := make([]localdb.PostDetails, 0, len(posts))
	for _, post := range posts {
		if _, hidden := f.muted[coreid.Owner(post.ID)]; hidden {
			continue
		}
		out = append(out, post)
	}
	return out
}

// muteFilter loads the viewer's muted set. Fail-open: if the muted stream
// cannot be read, content renders unfiltered rather than blocking the page.
func (s *Service) muteFilter(ctx context.Context) *MuteFilter {
	ids, err := s.tables.Streams.Get(ctx, localdb.StreamMuted)
	if err != nil {
		s.logger.Warn("muted stream unreadable, filtering disabled", "err", err)
		return &MuteFilter{}
	}
	return NewMuteFilter(ids)
}
