package bsky

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strconv"

	"skywidget/cmd/internal/xrpc"
)

const nsidSearchPosts = "app.bsky.feed.searchPosts"

// ErrNoTags is returned when a search names no hashtags.
var ErrNoTags = errors.New("no tags specified")

// Client searches posts on one upstream.
type Client struct {
	api *xrpc.Client
}

// NewClient wraps an XRPC client.
func NewClient(api *xrpc.Client) *Client {
	return &Client{api: api}
}

// SearchPosts runs one authenticated search and returns posts newest-indexed
// first. Upstream errors are returned as-is (typically *xrpc.HTTPError).
func (c *Client) SearchPosts(ctx context.Context, access string, p SearchParams) ([]Post, error) {
	if len(p.Tags) == 0 {
		return nil, ErrNoTags
	}

	params := url.Values{}
	params.Set("q", BuildQuery(p.Tags, p.Since))
	params.Set("limit", strconv.Itoa(ClampLimit(p.Limit)))
	if p.Sort != "" {
		params.Set("sort", p.Sort)
	}

	var resp SearchResponse
	if err := c.api.Query(ctx, nsidSearchPosts, params, access, &resp); err != nil {
		return nil, err
	}

	posts := resp.Posts
	// indexedAt is RFC3339 in UTC, so string order is time order.
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].IndexedAt > posts[j].IndexedAt })
	return posts, nil
}
