// Package remote implements the per-table REST protocol spoken to the
// remote service.
//
// For a table T under base URL B:
//
//	GET    B/T/{id}                 fetch one record (404 means none)
//	GET    B/T?limit&offset&...     list records
//	POST   B/T                      create, response carries the server id
//	PUT    B/T/{id}                 update
//	DELETE B/T/{id}                 delete
//
// Every request carries "Authorization: Bearer <apiKey>" when an API key is
// configured and no auth header otherwise.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// ErrNoBaseURL is returned when a request is attempted without a base URL.
var ErrNoBaseURL = errors.New("remote base URL not configured")

// StatusError reports a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("remote request failed: %s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 512

// Client talks to the remote service. The configuration can be swapped at
// any time; each request reads a consistent snapshot.
type Client struct {
	httpClient *http.Client

	mu  sync.RWMutex
	cfg schema.RemoteConfig
}

// NewClient creates a client. A nil httpClient gets a 30 second timeout
// client.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient}
}

// Configure replaces the remote configuration.
func (c *Client) Configure(cfg schema.RemoteConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Config returns the current remote configuration.
func (c *Client) Config() schema.RemoteConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Get fetches table/id into out. It reports false with a nil error when the
// remote answers 404.
func (c *Client) Get(ctx context.Context, table, id string, out any) (bool, error) {
	err := c.do(ctx, http.MethodGet, table, id, nil, nil, out)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List fetches a page of table records into out, which should point to a
// slice.
func (c *Client) List(ctx context.Context, table string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, table, "", query, nil, out)
}

// Create posts body to table and decodes the stored record into out.
func (c *Client) Create(ctx context.Context, table string, body, out any) error {
	return c.do(ctx, http.MethodPost, table, "", nil, body, out)
}

// Update puts body to table/id and decodes the stored record into out.
func (c *Client) Update(ctx context.Context, table, id string, body, out any) error {
	return c.do(ctx, http.MethodPut, table, id, nil, body, out)
}

// Delete removes table/id.
func (c *Client) Delete(ctx context.Context, table, id string) error {
	return c.do(ctx, http.MethodDelete, table, id, nil, nil, nil)
}

func (c *Client) endpoint(cfg schema.RemoteConfig, table, id string, query url.Values) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return "", ErrNoBaseURL
	}

	u := base + "/" + url.PathEscape(table)
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u, nil
}

func (c *Client) do(ctx context.Context, method, table, id string, query url.Values, body, out any) error {
	cfg := c.Config()

	target, err := c.endpoint(cfg, table, id, query)
	if err != nil {
		return err
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to decode %s %s response: %w", method, target, err)
	}
	return nil
}
