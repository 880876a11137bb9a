package bsky

import (
	"strings"
	"time"
)

// MaxLimit is the largest page searchPosts accepts.
const MaxLimit = 50

// SearchParams selects posts by hashtag.
type SearchParams struct {
	Tags  []string
	Limit int
	// Since restricts results to posts after this instant. Zero means no bound.
	Since time.Time
	Sort  string
}

// BuildQuery renders tags as "#a #b", prefixed with "since:<RFC3339> " when
// since is set.
func BuildQuery(tags []string, since time.Time) string {
	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, "#"+tag)
	}
	q := strings.Join(parts, " ")
	if since.IsZero() {
		return q
	}
	return "since:" + since.UTC().Format(time.RFC3339) + " " + q
}

// ClampLimit bounds n to [1, MaxLimit].
func ClampLimit(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}
