// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package coreid

// The post domain uses the same composite shape as every other owner-scoped
// resource; these helpers exist so post-handling code reads in domain terms.

// PostDomain is the resource-URI path segment for posts.
const PostDomain = "posts"

// BuildPostID builds a composite post ID from an author and a post's local ID.
func BuildPostID(author, postID string) string {
	return Build(author, postID)
}

// ParsePostID splits a composite post ID into author and local post ID.
func ParsePostID(id string) (author, postID string, err error) {
	return Parse(id)
}

// PostIDFromURI extracts a composite post ID from a resource URI, e.g.
// pubky://<author>/pub/<app>/posts/<postId>.
func PostIDFromURI(uri string) (string, bool) {
	return FromResourceURI(uri, PostDomain)
}
