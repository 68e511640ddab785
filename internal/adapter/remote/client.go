package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hum-tech/tsoam/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Client implements domain.RemoteAPI against the church admin REST backend.
// It never retries on its own; retry accounting belongs to the sync cycle.
type Client struct {
	baseURL    string
	tokens     domain.TokenSource
	httpClient *http.Client
	pageSize   int
	logger     *slog.Logger
}

// NewClient creates a REST client rooted at baseURL.
func NewClient(baseURL string, tokens domain.TokenSource, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pageSize: defaultPageSize,
		logger:   logger,
	}
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Create POSTs payload to the module endpoint.
func (c *Client) Create(ctx context.Context, endpoint string, payload json.RawMessage) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, c.resourceURL(endpoint, ""), payload)
}

// Update PUTs payload to the entity under the module endpoint.
func (c *Client) Update(ctx context.Context, endpoint, id string, payload json.RawMessage) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPut, c.resourceURL(endpoint, id), payload)
}

// Delete removes the entity; the response body is discarded.
func (c *Client) Delete(ctx context.Context, endpoint, id string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, c.resourceURL(endpoint, id), nil)
	return err
}

// List GETs every item of the module endpoint. A plain JSON array is
// returned as is; a {"count", "results"} page is followed with
// limit/offset query parameters until count items are read.
func (c *Client) List(ctx context.Context, endpoint string) ([]json.RawMessage, error) {
	return fetchAll(ctx, func(ctx context.Context, offset, limit int) ([]json.RawMessage, int, error) {
		return c.listPage(ctx, endpoint, offset, limit)
	}, c.pageSize)
}

func (c *Client) listPage(ctx context.Context, endpoint string, offset, limit int) ([]json.RawMessage, int, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	body, err := c.doRequest(ctx, http.MethodGet, c.resourceURL(endpoint, "")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	if len(body) == 0 {
		return nil, 0, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err == nil {
		return items, len(items), nil
	}
	var page struct {
		Count   int               `json:"count"`
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, 0, fmt.Errorf("failed to parse list response: %w", err)
	}
	return page.Results, page.Count, nil
}

func (c *Client) resourceURL(endpoint, id string) string {
	u := c.baseURL + "/" + strings.Trim(endpoint, "/")
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

// doRequest performs one authenticated JSON request.
func (c *Client) doRequest(ctx context.Context, method, reqURL string, payload json.RawMessage) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth token: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("api request", "method", method, "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("api request failed", "method", method, "url", reqURL, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrOffline, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remoteErr := &domain.RemoteError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       truncate(strings.TrimSpace(string(respBody)), maxErrorBody),
		}
		c.logger.Warn("api request rejected", "method", method, "url", reqURL, "status", resp.StatusCode)
		return nil, remoteErr
	}

	if method == http.MethodDelete || len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}
	if !json.Valid(respBody) {
		return nil, fmt.Errorf("failed to parse response: invalid JSON from %s %s", method, reqURL)
	}
	return json.RawMessage(respBody), nil
}

// Ping issues a GET against path and reports whether the server answered.
// Any HTTP status counts as reachable.
func (c *Client) Ping(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrOffline, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
