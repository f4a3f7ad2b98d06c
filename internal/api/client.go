package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/amandrive/internal/async"
	"github.com/Aman-CERP/amandrive/internal/engine"
	"github.com/Aman-CERP/amandrive/internal/search"
)

// Client calls a running server's HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the server listening on addr. An empty or
// unspecified host means the local machine.
func NewClient(addr string) *Client {
	return &Client{
		base: "http://" + dialAddr(addr),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func dialAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// Search runs req on the server.
func (c *Client) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	q := url.Values{}
	q.Set("ownerId", req.OwnerID)
	q.Set("keyword", req.Keyword)
	if req.Category != "" {
		q.Set("category", req.Category)
	}
	if req.PathPrefix != "" {
		q.Set("pathPrefix", req.PathPrefix)
	}
	if req.IsFolder != nil {
		q.Set("isFolder", strconv.FormatBool(*req.IsFolder))
	}
	if req.IsFavorite != nil {
		q.Set("isFavorite", strconv.FormatBool(*req.IsFavorite))
	}
	if req.SortField != search.SortRelevance {
		q.Set("sortField", string(req.SortField))
	}
	if req.Descending {
		q.Set("sortDirection", "descending")
	}
	if req.Page > 0 {
		q.Set("page", strconv.Itoa(req.Page))
	}
	if req.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(req.PageSize))
	}

	var resp search.Response
	if err := c.do(ctx, http.MethodGet, "/api/v1/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NotifyOwnerPurged purges ownerID on the server.
func (c *Client) NotifyOwnerPurged(ctx context.Context, ownerID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/index/purge", purgeRequest{OwnerID: ownerID}, nil)
}

// StartReindex starts a reindex on the server. A reindex already in
// progress yields async.ErrRunning.
func (c *Client) StartReindex(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/v1/index/reindex", nil, nil)
	var apiErr *APIError
	if asAPIError(err, &apiErr) && apiErr.Status == http.StatusConflict {
		return async.ErrRunning
	}
	return err
}

// ReindexProgress returns the server's reindex progress.
func (c *Client) ReindexProgress(ctx context.Context) (async.ProgressSnapshot, error) {
	var snap async.ProgressSnapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/index/reindex", nil, &snap)
	return snap, err
}

// CheckConsistency runs the server's consistency check.
func (c *Client) CheckConsistency(ctx context.Context) (bool, error) {
	var body struct {
		Consistent bool `json:"consistent"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/index/consistency", nil, &body)
	return body.Consistent, err
}

// Audit runs the server's audit.
func (c *Client) Audit(ctx context.Context) (*AuditReport, error) {
	var report AuditReport
	if err := c.do(ctx, http.MethodGet, "/api/v1/index/audit", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Stats returns the server's engine state.
func (c *Client) Stats(ctx context.Context) (*engine.Stats, error) {
	var stats engine.Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, strings.SplitN(path, "?", 2)[0], err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&eb) == nil {
			apiErr.Code, apiErr.Message = eb.Error.Code, eb.Error.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func asAPIError(err error, target **APIError) bool {
	return err != nil && errors.As(err, target)
}
