// Package coreid builds and parses the composite identifiers used as primary
// keys across cached entities. A composite ID is "owner:localId" where owner
// is a public identity and localId is the owner-scoped resource ID, so that
// locally created and remotely indexed objects can reference each other with
// one stable key shape.
// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package coreid

import (
	"fmt"
	"net/url"
	"strings"
)

// Delimiter separates the owner identity from the local resource ID.
const Delimiter = ":"

// ErrInvalidIdentifier is returned by Parse when the input is not a valid
// composite ID (missing delimiter, or either half empty).
type ErrInvalidIdentifier struct {
	Value string
}

func (e *ErrInvalidIdentifier) Error() string {
	return fmt.Sprintf("invalid composite identifier: %q", e.Value)
}

// Build concatenates an owner identity and a local resource ID into a
// composite ID. It performs no validation; use Parse to validate.
func Build(owner, localID string) string {
	return owner + Delimiter + localID
}

// Parse splits a composite ID into its owner and local halves.
// It fails when the delimiter is absent, or when either half would be empty.
func Parse(id string) (owner, localID string, err error) {
	owner, localID, found := strings.Cut(id, Delimiter)
	if !found || owner == "" || localID == "" {
		return "", "", &ErrInvalidIdentifier{Value: id}
	}
	return owner, localID, nil
}

// Valid reports whether id parses as a composite ID.
func Valid(id string) bool {
	_, _, err := Parse(id)
	return err == nil
}

// Owner returns the owner half of a composite ID, or "" if id is malformed.
func Owner(id string) string {
	owner, _, err := Parse(id)
	if err != nil {
		return ""
	}
	return owner
}

// FromResourceURI extracts a composite ID from a hierarchical resource URI of
// the shape scheme://owner/.../domain/localId. The owner is the URI authority
// and the local ID is the path segment following the last occurrence of
// domain. This is a best-effort parse used while ingesting remote payloads
// that may reference foreign resource kinds, so malformed input reports
// ok=false instead of an error.
func FromResourceURI(uri, domain string) (id string, ok bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Host == "" || domain == "" {
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != domain {
			continue
		}
		if i+1 >= len(segments) || segments[i+1] == "" {
			return "", false
		}
		return Build(u.Host, segments[i+1]), true
	}
	return "", false
}
