// Package homeserver is the write-side client for the user-owned storage
// backend. The rest of the system treats it as an opaque collaborator: it
// only needs signed PUT (create/update) and DELETE requests at resource URLs
// derived from the writer's identity and a builder-generated local ID.
// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package homeserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Write actions.
const (
	ActionPut    = "PUT"
	ActionDelete = "DELETE"
)

// Client issues signed writes. Session returns the bearer token that proves
// the writer's identity; the key management behind it lives elsewhere.
type Client struct {
	BaseURL string
	UserID  string
	Session func(ctx context.Context) (string, error)
	HTTP    *http.Client
	logger  *slog.Logger
}

// NewClient creates a homeserver write client for one signed-in identity.
func NewClient(baseURL, userID string, session func(ctx context.Context) (string, error), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: baseURL,
		UserID:  userID,
		Session: session,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
		logger:  logger,
	}
}

// Request performs one signed write. action is ActionPut or ActionDelete;
// body is JSON-marshalled for PUT and must be nil for DELETE.
func (c *Client) Request(ctx context.Context, action, resourceURL string, body any) error {
	var reader io.Reader
	if body != nil {
		if action == ActionDelete {
			return fmt.Errorf("delete request must not carry a body: %s", resourceURL)
		}
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal write body: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, action, c.writeURL(resourceURL), reader)
	if err != nil {
		return fmt.Errorf("failed to create write request: %w", err)
	}

	token, err := c.Session(ctx)
	if err != nil {
		return fmt.Errorf("failed to get session token: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		c.logger.Warn("write request failed", "action", action, "resource", resourceURL, "err", err)
		return fmt.Errorf("failed to send write request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("write rejected", "action", action, "resource", resourceURL, "status", resp.StatusCode)
		return fmt.Errorf("homeserver returned status %d for %s %s: %s",
			resp.StatusCode, action, resourceURL, string(respBody))
	}
	c.logger.Debug("write confirmed", "action", action, "resource", resourceURL)
	return nil
}

// writeURL maps a pubky:// resource URL onto the homeserver's HTTP surface.
// Already-HTTP URLs pass through untouched.
func (c *Client) writeURL(resourceURL string) string {
	const scheme = ResourceScheme + "://"
	if len(resourceURL) > len(scheme) && resourceURL[:len(scheme)] == scheme {
		return c.BaseURL + "/" + resourceURL[len(scheme):]
	}
	return resourceURL
}
