// Package bsky searches Bluesky posts through app.bsky.feed.searchPosts.
//
// The response model is tolerant: fields it does not name are kept verbatim in
// Extra so new upstream fields never break decoding.
package bsky
