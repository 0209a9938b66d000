// Package nexus is the read-side client for the remote indexing API. It
// exposes the bootstrap snapshot, batched by-IDs lookups, per-entity
// counts/relationships/tags, paginated streams and notification polling, and
// maps every transport failure into a typed Error.
// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

package nexus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pubky/franky-sub016/coreid"
	"github.com/pubky/franky-sub016/localdb"
)

// Client talks to one Nexus instance. The HTTP client is injectable so tests
// can swap the transport; no timeout is applied beyond the transport's own.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Nexus client for baseURL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 120 * time.Second},
		logger:  logger,
	}
}

// Bootstrap fetches the initial snapshot for a viewer.
func (c *Client) Bootstrap(ctx context.Context, viewerID string) (*BootstrapResponse, error) {
	var resp BootstrapResponse
	if err := c.get(ctx, "/v0/bootstrap/"+url.PathEscape(viewerID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UsersByIDs fetches full user views for a batch of public identities.
func (c *Client) UsersByIDs(ctx context.Context, ids []string, viewerID string) ([]UserView, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var resp []UserView
	err := c.post(ctx, "/v0/stream/users/by_ids", byIDsRequest{IDs: ids, ViewerID: viewerID}, &resp)
	return resp, err
}

// PostsByIDs fetches full post views for a batch of composite post IDs.
func (c *Client) PostsByIDs(ctx context.Context, ids []string, viewerID string) ([]PostView, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var resp []PostView
	err := c.post(ctx, "/v0/stream/posts/by_ids", byIDsRequest{IDs: ids, ViewerID: viewerID}, &resp)
	return resp, err
}

// StreamPosts fetches one page of a post stream in indexed order.
func (c *Client) StreamPosts(ctx context.Context, q StreamQuery) ([]PostView, error) {
	var resp []PostView
	err := c.get(ctx, "/v0/stream/posts", q.values(), &resp)
	return resp, err
}

// StreamUsers fetches one page of a user stream (e.g. recommended or most
// followed profiles).
func (c *Client) StreamUsers(ctx context.Context, q StreamQuery) ([]UserView, error) {
	var resp []UserView
	err := c.get(ctx, "/v0/stream/users", q.values(), &resp)
	return resp, err
}

// UserCountsByIDs fetches aggregate counts as [id, payload] tuples for a
// batch of identities.
func (c *Client) UserCountsByIDs(ctx context.Context, ids []string) ([]localdb.Tuple, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var resp []localdb.Tuple
	err := c.post(ctx, "/v0/user/counts/by_ids", byIDsRequest{IDs: ids}, &resp)
	return resp, err
}

// PostCountsByIDs fetches post counts as [id, payload] tuples.
func (c *Client) PostCountsByIDs(ctx context.Context, ids []string) ([]localdb.Tuple, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var resp []localdb.Tuple
	err := c.post(ctx, "/v0/post/counts/by_ids", byIDsRequest{IDs: ids}, &resp)
	return resp, err
}

// PostTags fetches the tags of one post. A NOT_FOUND means the post has no
// tags and is an empty-result success, per this endpoint's semantics.
func (c *Client) PostTags(ctx context.Context, compositeID string) ([]localdb.TagItem, error) {
	author, postID, err := coreid.ParsePostID(compositeID)
	if err != nil {
		return nil, err
	}
	var resp []localdb.TagItem
	path := fmt.Sprintf("/v0/post/%s/%s/tags", url.PathEscape(author), url.PathEscape(postID))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return resp, nil
}

// UserRelationship fetches the viewer's relationship to another identity.
// NOT_FOUND means no relationship exists yet and is a zero-value success.
func (c *Client) UserRelationship(ctx context.Context, userID, viewerID string) (localdb.Relationship, error) {
	var resp localdb.Relationship
	path := fmt.Sprintf("/v0/user/%s/relationship/%s", url.PathEscape(userID), url.PathEscape(viewerID))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		if IsNotFound(err) {
			return localdb.Relationship{ID: userID}, nil
		}
		return localdb.Relationship{}, err
	}
	resp.ID = userID
	return resp, nil
}

// Notifications fetches events for a user newer than since.
func (c *Client) Notifications(ctx context.Context, userID string, since int64, limit int) ([]NotificationEvent, error) {
	query := url.Values{}
	if since > 0 {
		query.Set("start", strconv.FormatInt(since, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp []NotificationEvent
	err := c.get(ctx, "/v0/user/"+url.PathEscape(userID)+"/notifications", query, &resp)
	return resp, err
}

func (q StreamQuery) values() url.Values {
	v := url.Values{}
	if q.Sort != "" {
		v.Set("sorting", q.Sort)
	}
	if q.Reach != "" {
		v.Set("source", q.Reach)
	}
	if q.Kind != "" {
		v.Set("kind", q.Kind)
	}
	for _, tag := range q.Tags {
		v.Add("tags", tag)
	}
	if q.ViewerID != "" {
		v.Set("viewer_id", q.ViewerID)
	}
	if q.Timeframe != "" {
		v.Set("timeframe", q.Timeframe)
	}
	if q.Skip > 0 {
		v.Set("skip", strconv.Itoa(q.Skip))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Error{Code: CodeNetworkError, Endpoint: path, Message: "build request", Cause: err}
	}
	return c.do(httpReq, path, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return &Error{Code: CodeInvalidResponse, Endpoint: path, Message: "marshal request", Cause: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return &Error{Code: CodeNetworkError, Endpoint: path, Message: "build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "endpoint", path, "err", err)
		return &Error{Code: CodeNetworkError, Endpoint: path, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Debug("request rejected", "endpoint", path, "status", resp.StatusCode)
		return &Error{
			Code:     classifyStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Endpoint: path,
			Message:  strings.TrimSpace(string(body)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Code: CodeInvalidResponse, Endpoint: path, Message: "decode response", Cause: err}
	}
	return nil
}
