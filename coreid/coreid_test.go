// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package coreid

import (
	"errors"
	"testing"
)

func TestBuildParseRoundTrip(t *testing.T) {
	cases := []struct {
		owner string
		local string
	}{
		{"o4mnkkjys6zyzkbrjmd1zdot6y6dkq4b1xmbhx7fcbuoxnjyzchy", "0032SSN7Q4EVG"},
		{"alice", "1"},
		{"bob", "a:b"}, // local half may itself contain the delimiter
	}
	for _, tc := range cases {
		id := Build(tc.owner, tc.local)
		owner, local, err := Parse(id)
		if err != nil {
			t.Fatalf("Parse(%q): %v", id, err)
		}
		if owner != tc.owner || local != tc.local {
			t.Fatalf("Parse(%q) = (%q, %q), want (%q, %q)", id, owner, local, tc.owner, tc.local)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "noDelimiter", ":leading", "trailing:", ":"} {
		_, _, err := Parse(id)
		if err == nil {
			t.Fatalf("Parse(%q): expected error", id)
		}
		var invalid *ErrInvalidIdentifier
		if !errors.As(err, &invalid) {
			t.Fatalf("Parse(%q): expected ErrInvalidIdentifier, got %T", id, err)
		}
	}
}

func TestValidAndOwner(t *testing.T) {
	if !Valid("alice:123") {
		t.Fatal("expected alice:123 to be valid")
	}
	if Valid("alice") {
		t.Fatal("expected alice to be invalid")
	}
	if got := Owner("alice:123"); got != "alice" {
		t.Fatalf("Owner = %q", got)
	}
	if got := Owner("broken"); got != "" {
		t.Fatalf("Owner of malformed = %q, want empty", got)
	}
}

func TestFromResourceURI(t *testing.T) {
	cases := []struct {
		uri    string
		domain string
		want   string
		ok     bool
	}{
		{"pubky://alice/pub/pubky.app/posts/0032ABC", "posts", "alice:0032ABC", true},
		{"pubky://alice/pub/pubky.app/files/FILE01", "files", "alice:FILE01", true},
		// last occurrence of the domain segment wins
		{"pubky://alice/posts/inner/posts/REAL", "posts", "alice:REAL", true},
		// foreign resource kind
		{"pubky://alice/pub/pubky.app/follows/bob", "posts", "", false},
		// domain is the final segment, no local ID after it
		{"pubky://alice/pub/pubky.app/posts", "posts", "", false},
		{"not a uri", "posts", "", false},
		{"", "posts", "", false},
		{"pubky://alice/pub/posts/X", "", "", false},
	}
	for _, tc := range cases {
		got, ok := FromResourceURI(tc.uri, tc.domain)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("FromResourceURI(%q, %q) = (%q, %v), want (%q, %v)",
				tc.uri, tc.domain, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPostIDHelpers(t *testing.T) {
	id := BuildPostID("alice", "0032ABC")
	author, postID, err := ParsePostID(id)
	if err != nil {
		t.Fatalf("ParsePostID: %v", err)
	}
	if author != "alice" || postID != "0032ABC" {
		t.Fatalf("ParsePostID = (%q, %q)", author, postID)
	}
	if got, ok := PostIDFromURI("pubky://alice/pub/pubky.app/posts/0032ABC"); !ok || got != id {
		t.Fatalf("PostIDFromURI = (%q, %v)", got, ok)
	}
}
