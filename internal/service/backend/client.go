package backend

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
	"time"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
)

// DefaultTimeout bounds every backend call when none is configured.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 512

// Client talks to the support assistant backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL. A non-positive timeout uses DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient returns a client that uses hc for transport.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

// BaseURL returns the backend root the client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat performs one exchange.
func (c *Client) Chat(ctx context.Context, req support.ChatRequest) (support.ChatResponse, error) {
	var resp support.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", req, &resp, false); err != nil {
		return support.ChatResponse{}, err
	}
	return resp, nil
}

// ListSessions returns the stored sessions of contact, newest first as the
// backend orders them.
func (c *Client) ListSessions(ctx context.Context, contact support.Contact) ([]support.SessionRecord, error) {
	var records []support.SessionRecord
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(contact.String()), nil, &records, false); err != nil {
		return nil, err
	}
	return records, nil
}

// History returns the stored exchanges of sessionID in creation order.
func (c *Client) History(ctx context.Context, sessionID string) ([]support.HistoryEntry, error) {
	var entries []support.HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/chat/history/"+url.PathEscape(sessionID), nil, &entries, true); err != nil {
		return nil, err
	}
	return entries, nil
}

// Health probes the backend root endpoint.
func (c *Client) Health(ctx context.Context) error {
	var payload map[string]any
	return c.do(ctx, http.MethodGet, "/", nil, &payload, false)
}

// do performs one JSON round trip. Only endpoints that address a stored
// session pass notFound; for every other endpoint a 404 is a server fault.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, notFound bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", support.ErrNotReachable, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", support.ErrNotReachable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp, notFound)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s %s: empty response body", support.ErrNotReachable, method, path)
		}
		return fmt.Errorf("%w: %s %s: decode response: %v", support.ErrNotReachable, method, path, err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response, notFound bool) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(snippet))

	if notFound && resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s: %s", support.ErrNotFound, method, path, detail)
	}
	return fmt.Errorf("%w: %s %s: status %d: %s", support.ErrNotReachable, method, path, resp.StatusCode, detail)
}
