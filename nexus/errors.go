// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package nexus

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes mapped from transport outcomes.
const (
	CodeNetworkError    = "NETWORK_ERROR"
	CodeInvalidResponse = "INVALID_RESPONSE"
	CodeNotFound        = "NOT_FOUND"
	CodeServerError     = "SERVER_ERROR"
)

// Error is a typed remote-service failure. NOT_FOUND on inherently optional
// sub-resources is downgraded to an empty success at the endpoint method,
// never globally.
type Error struct {
	Code     string
	Status   int
	Endpoint string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s returned %d: %s", e.Code, e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Endpoint, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsNotFound reports whether err is a remote NOT_FOUND.
func IsNotFound(err error) bool {
	var remoteErr *Error
	return errors.As(err, &remoteErr) && remoteErr.Code == CodeNotFound
}

func classifyStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return CodeNotFound
	case status >= 500:
		return CodeServerError
	default:
		return CodeInvalidResponse
	}
}
