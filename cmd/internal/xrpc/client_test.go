package xrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestQuery_SendsBearerAndParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path != "/xrpc/app.bsky.feed.searchPosts" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"q": r.URL.Query().Get("q")}) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL+"/", 0)
	if c.BaseURL() != srv.URL {
		t.Fatalf("BaseURL()=%q want %q", c.BaseURL(), srv.URL)
	}

	var out struct {
		Q string `json:"q"`
	}
	params := url.Values{}
	params.Set("q", "#golang")
	if err := c.Query(context.Background(), "app.bsky.feed.searchPosts", params, "tok", &out); err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if out.Q != "#golang" {
		t.Fatalf("q=%q want %q", out.Q, "#golang")
	}
}

func TestProcedure_SendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"echo": in["identifier"]}) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	var out map[string]string
	err := c.Procedure(context.Background(), "com.atproto.server.createSession", "", map[string]string{"identifier": "alice"}, &out)
	if err != nil {
		t.Fatalf("Procedure() error: %v", err)
	}
	if out["echo"] != "alice" {
		t.Fatalf("echo=%q want alice", out["echo"])
	}
}

func TestHTTPError_ParsesXRPCBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "ExpiredToken", "message": "Token has expired"}) //nolint:errcheck
	}))
	defer srv.Close()

	err := New(srv.URL, 0).Query(context.Background(), "com.atproto.server.getSession", nil, "old", nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *HTTPError, got %T", err)
	}
	if he.StatusCode != http.StatusBadRequest || he.Name != "ExpiredToken" {
		t.Fatalf("unexpected HTTPError: %+v", he)
	}
	if got := err.Error(); !strings.Contains(got, "HTTP 400 ExpiredToken") {
		t.Fatalf("error = %q, want it to contain 'HTTP 400 ExpiredToken'", got)
	}
	if code, ok := StatusCode(err); !ok || code != http.StatusBadRequest {
		t.Fatalf("StatusCode()=%d,%v", code, ok)
	}
}

func TestHTTPError_PlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, 0).Query(context.Background(), "x.y.z", nil, "", nil)
	if got := err.Error(); got != "HTTP 502: upstream exploded" {
		t.Fatalf("error=%q", got)
	}
}

func TestDecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out map[string]any
	err := New(srv.URL, 0).Query(context.Background(), "x.y.z", nil, "", &out)
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, ok := StatusCode(err); ok {
		t.Fatalf("decode errors must not look like HTTP errors")
	}
}

func TestWithBaseURL(t *testing.T) {
	c := New("https://a.example/", 0)
	if c.WithBaseURL("") != c || c.WithBaseURL("https://a.example") != c {
		t.Fatalf("same or empty origin must return the receiver")
	}
	d := c.WithBaseURL("https://b.example/")
	if d == c || d.BaseURL() != "https://b.example" {
		t.Fatalf("WithBaseURL()=%q", d.BaseURL())
	}
	if d.httpClient != c.httpClient {
		t.Fatalf("http client must be shared")
	}
}
