// Package xrpc is a minimal JSON client for AT Protocol XRPC endpoints.
//
// Queries map to GET and procedures to POST under {base}/xrpc/{nsid}. Non-2xx
// responses become *HTTPError carrying the status and the XRPC error name.
package xrpc

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
)

const (
	// DefaultTimeout bounds a single upstream call when the caller does not supply a client.
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 1 << 20 // 1 MiB
)

// HTTPError is a non-2xx XRPC response.
type HTTPError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *HTTPError) Error() string {
	switch {
	case e.Name != "" && e.Message != "":
		return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Name, e.Message)
	case e.Name != "":
		return fmt.Sprintf("HTTP %d %s", e.StatusCode, e.Name)
	case e.Message != "":
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
}

// StatusCode extracts the HTTP status from err when it wraps an *HTTPError.
func StatusCode(err error) (int, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode, true
	}
	return 0, false
}

// Client calls XRPC methods on one origin.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL with its own http.Client.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient creates a client that reuses hc.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: hc,
	}
}

// BaseURL returns the configured origin without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// WithBaseURL returns a client for another origin sharing the same http.Client.
// An empty or identical baseURL returns c itself.
func (c *Client) WithBaseURL(baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || baseURL == c.baseURL {
		return c
	}
	return &Client{baseURL: baseURL, httpClient: c.httpClient}
}

// Query performs a GET for nsid. bearer may be empty.
func (c *Client) Query(ctx context.Context, nsid string, params url.Values, bearer string, out any) error {
	path := "/xrpc/" + nsid
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path, bearer, nil, out)
}

// Procedure performs a POST for nsid. body may be nil for body-less procedures.
func (c *Client) Procedure(ctx context.Context, nsid string, bearer string, body any, out any) error {
	return c.do(ctx, http.MethodPost, "/xrpc/"+nsid, bearer, body, out)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readHTTPError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readHTTPError(resp *http.Response) error {
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
	}

	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(respBody, &apiErr) == nil && (apiErr.Error != "" || apiErr.Message != "") {
		return &HTTPError{StatusCode: resp.StatusCode, Name: apiErr.Error, Message: apiErr.Message}
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
}
