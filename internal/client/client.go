// Package client is a Go SDK for talking to a single node of the store.
//
// A Client only ever talks to one node's public /kv API — it has no idea
// how that node computes a preference list, how many replicas it contacted,
// or whether a read triggered repair. All of that is the node's problem;
// the SDK just does the HTTP call and decodes the response.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/RAAHUL-tech/Mini-Dynamo/internal/vclock"
)

// Client represents a connection to one node.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new Client. timeout protects every call from hanging
// forever; zero gets a 10s default.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Version is one sibling returned by Get — a value plus the vector clock it
// was written under. Writing back with VectorClock as context makes the
// next write causally dominate this version.
type Version struct {
	Value       json.RawMessage `json:"value,omitempty"`
	VectorClock vclock.Clock    `json:"vector_clock"`
	Tombstone   bool            `json:"tombstone,omitempty"`
}

// PutResponse is returned after a successful write.
type PutResponse struct {
	Success bool `json:"success"`
}

// GetResponse carries every sibling version reconciliation could not
// resolve to one. Len(Versions) > 1 means the caller must pick a winner
// (or merge) and write it back with one sibling's VectorClock as context to
// make the resolution causally dominant.
type GetResponse struct {
	Versions []Version `json:"versions"`
}

// Quorum overrides the node's configured defaults for one call. A zero
// field falls back to the node's default for that parameter.
type Quorum struct {
	N int
	W int
	R int
}

func (q Quorum) queryNR() url.Values {
	v := url.Values{}
	if q.N > 0 {
		v.Set("N", fmt.Sprintf("%d", q.N))
	}
	if q.R > 0 {
		v.Set("R", fmt.Sprintf("%d", q.R))
	}
	return v
}

// kvURL builds the /kv/<key> URL against the client's base URL, with key
// escaped as a single path segment: a key is an opaque string per the spec
// and may contain '/', '?', '#', or anything else that would otherwise
// corrupt the path or query string.
func (c *Client) kvURL(key string, query url.Values) string {
	u := fmt.Sprintf("%s/kv/%s", c.baseURL, url.PathEscape(key))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Put stores value under key with optional causal context carried forward
// from a prior Get, so the write dominates whatever that context named.
func (c *Client) Put(ctx context.Context, key string, value any, clock vclock.Clock, q Quorum) (*PutResponse, error) {
	body, err := json.Marshal(map[string]any{"value": value, "N": q.N, "W": q.W, "context": clock})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.kvURL(key, nil), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("PUT request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result PutResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Get retrieves every sibling version of key. An empty Versions slice means
// the key doesn't exist (or every version was a tombstone) — this is not an
// error.
func (c *Client) Get(ctx context.Context, key string, q Quorum) (*GetResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.kvURL(key, q.queryNR()), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result GetResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Delete writes a tombstone for key. clock carries forward the context of
// the version being deleted, same as Put.
func (c *Client) Delete(ctx context.Context, key string, clock vclock.Clock, q Quorum) error {
	body, err := json.Marshal(map[string]any{"N": q.N, "W": q.W, "context": clock})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.kvURL(key, nil), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("DELETE request failed: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

// MetricsSnapshot fetches the node's current metrics snapshot as a raw map,
// since the SDK has no business depending on internal/metrics' types.
func (c *Client) MetricsSnapshot(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/metrics", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var out map[string]any
	return out, json.NewDecoder(resp.Body).Decode(&out)
}

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = apiErr.Reason
	}
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
