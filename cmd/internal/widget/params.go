package widget

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"skywidget/cmd/internal/bsky"
)

// Defaults for query parameters.
const (
	DefaultLimit         = 10
	DefaultTextColor     = "000000"
	DefaultAuthorColor   = "666"
	DefaultSort          = "latest"
	DefaultTitle         = "Bluesky"
	DefaultCollapseAfter = 5
)

// Params are the widget query parameters.
type Params struct {
	Tags             []string
	Limit            int
	Debug            bool
	TextColor        string
	AuthorColor      string
	TextHoverColor   string
	AuthorHoverColor string
	// Since is zero when the since parameter is absent or invalid.
	Since         time.Time
	Sort          string
	Title         string
	CollapseAfter int

	// Raw holds the first value of every received parameter, for debug output.
	Raw []KV
}

// KV is one raw query parameter.
type KV struct {
	Key   string
	Value string
}

// ParseParams reads widget parameters. Invalid numbers and booleans fall back
// to their defaults; since is resolved against now.
func ParseParams(q url.Values, now time.Time) Params {
	p := Params{
		Limit:            DefaultLimit,
		TextColor:        str(q, "text_color", DefaultTextColor),
		AuthorColor:      str(q, "author_color", DefaultAuthorColor),
		TextHoverColor:   str(q, "text_hover_color", DefaultTextColor),
		AuthorHoverColor: str(q, "author_hover_color", DefaultAuthorColor),
		Sort:             str(q, "sort", DefaultSort),
		Title:            str(q, "title", DefaultTitle),
		CollapseAfter:    DefaultCollapseAfter,
	}

	for _, tag := range strings.Split(q.Get("tags"), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			p.Tags = append(p.Tags, tag)
		}
	}
	if n, err := strconv.ParseUint(q.Get("limit"), 10, 31); err == nil {
		p.Limit = int(n)
	}
	if b, err := strconv.ParseBool(q.Get("debug")); err == nil {
		p.Debug = b
	}
	if n, err := strconv.ParseUint(q.Get("collapse_after"), 10, 31); err == nil {
		p.CollapseAfter = int(n)
	}
	if v := q.Get("since"); v != "" {
		if t, ok := ParseRelativeTime(v, now); ok {
			p.Since = t
		}
	}

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.Raw = append(p.Raw, KV{Key: k, Value: q.Get(k)})
	}
	return p
}

// Search returns the upstream search parameters.
func (p Params) Search() bsky.SearchParams {
	return bsky.SearchParams{Tags: p.Tags, Limit: p.Limit, Since: p.Since, Sort: p.Sort}
}

func str(q url.Values, key, def string) string {
	if _, ok := q[key]; ok {
		return q.Get(key)
	}
	return def
}

// ParseRelativeTime parses "-<n><unit>" (unit d, h, m or s) as now minus the
// duration. It requires the leading '-' and at least one digit.
func ParseRelativeTime(rel string, now time.Time) (time.Time, bool) {
	if !strings.HasPrefix(rel, "-") || len(rel) < 3 {
		return time.Time{}, false
	}
	num, unit := rel[1:len(rel)-1], rel[len(rel)-1]
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	var d time.Duration
	switch unit {
	case 'd':
		d = 24 * time.Hour
	case 'h':
		d = time.Hour
	case 'm':
		d = time.Minute
	case 's':
		d = time.Second
	default:
		return time.Time{}, false
	}
	return now.Add(-time.Duration(n) * d), true
}
