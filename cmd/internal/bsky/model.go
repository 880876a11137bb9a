package bsky

import (
	"encoding/json"
	"strings"
)

// Post is one searchPosts result.
type Post struct {
	URI         string  `json:"uri"`
	CID         string  `json:"cid,omitempty"`
	IndexedAt   string  `json:"indexedAt"`
	Author      *Author `json:"author,omitempty"`
	Record      Record  `json:"record"`
	RepostCount *int    `json:"repostCount,omitempty"`
	ReplyCount  *int    `json:"replyCount,omitempty"`
	LikeCount   *int    `json:"likeCount,omitempty"`
	QuoteCount  *int    `json:"quoteCount,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Author is the post author view.
type Author struct {
	DID         string `json:"did,omitempty"`
	Handle      string `json:"handle,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Record is the app.bsky.feed.post record body.
type Record struct {
	Type      string  `json:"$type,omitempty"`
	Text      *string `json:"text,omitempty"`
	CreatedAt *string `json:"createdAt,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// SearchResponse is the searchPosts output.
type SearchResponse struct {
	Posts  []Post `json:"posts"`
	Cursor string `json:"cursor,omitempty"`
	// HitsTotal is an estimate and may be absent.
	HitsTotal *int `json:"hitsTotal,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var (
	postKeys     = []string{"uri", "cid", "indexedAt", "author", "record", "repostCount", "replyCount", "likeCount", "quoteCount"}
	authorKeys   = []string{"did", "handle", "displayName", "avatar"}
	recordKeys   = []string{"$type", "text", "createdAt"}
	responseKeys = []string{"posts", "cursor", "hitsTotal"}
)

// RKey returns the record key (the last URI path segment).
func (p Post) RKey() string {
	if i := strings.LastIndexByte(p.URI, '/'); i >= 0 {
		return p.URI[i+1:]
	}
	return p.URI
}

// Handle returns the author handle or "".
func (p Post) Handle() string {
	if p.Author == nil {
		return ""
	}
	return p.Author.Handle
}

func (p *Post) UnmarshalJSON(b []byte) error {
	type plain Post
	extra, err := decodeWithExtra(b, (*plain)(p), postKeys)
	p.Extra = extra
	return err
}

func (a *Author) UnmarshalJSON(b []byte) error {
	type plain Author
	extra, err := decodeWithExtra(b, (*plain)(a), authorKeys)
	a.Extra = extra
	return err
}

func (r *Record) UnmarshalJSON(b []byte) error {
	type plain Record
	extra, err := decodeWithExtra(b, (*plain)(r), recordKeys)
	r.Extra = extra
	return err
}

func (r *SearchResponse) UnmarshalJSON(b []byte) error {
	type plain SearchResponse
	extra, err := decodeWithExtra(b, (*plain)(r), responseKeys)
	r.Extra = extra
	return err
}

// decodeWithExtra fills known from b and returns the keys it does not declare.
func decodeWithExtra(b []byte, known any, keys []string) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(b, known); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for _, k := range keys {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}
