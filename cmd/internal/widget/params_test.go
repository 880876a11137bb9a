package widget

import (
	"net/url"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func TestParseParams_Defaults(t *testing.T) {
	t.Parallel()

	p := ParseParams(url.Values{}, fixedNow)
	if len(p.Tags) != 0 || p.Limit != 10 || p.Debug || p.Sort != "latest" || p.Title != "Bluesky" || p.CollapseAfter != 5 {
		t.Fatalf("params=%+v", p)
	}
	if p.TextColor != "000000" || p.AuthorColor != "666" || p.TextHoverColor != "000000" || p.AuthorHoverColor != "666" {
		t.Fatalf("colors=%+v", p)
	}
	if !p.Since.IsZero() {
		t.Fatalf("since=%v want zero", p.Since)
	}
}

func TestParseParams_Values(t *testing.T) {
	t.Parallel()

	q, _ := url.ParseQuery("tags=rust,%20actix,,web&limit=5&debug=true&since=-2d&sort=top&title=News&collapse_after=3&text_color=fff")
	p := ParseParams(q, fixedNow)

	want := []string{"rust", "actix", "web"}
	if len(p.Tags) != len(want) {
		t.Fatalf("tags=%q want %q", p.Tags, want)
	}
	for i := range want {
		if p.Tags[i] != want[i] {
			t.Fatalf("tags=%q want %q", p.Tags, want)
		}
	}
	if p.Limit != 5 || !p.Debug || p.Sort != "top" || p.Title != "News" || p.CollapseAfter != 3 || p.TextColor != "fff" {
		t.Fatalf("params=%+v", p)
	}
	if !p.Since.Equal(fixedNow.Add(-48 * time.Hour)) {
		t.Fatalf("since=%v", p.Since)
	}
	if len(p.Raw) != 8 || p.Raw[0].Key != "collapse_after" {
		t.Fatalf("raw=%+v", p.Raw)
	}
}

func TestParseParams_InvalidNumbersFallBack(t *testing.T) {
	t.Parallel()

	q, _ := url.ParseQuery("limit=-3&collapse_after=abc&debug=maybe&since=2d")
	p := ParseParams(q, fixedNow)
	if p.Limit != DefaultLimit || p.CollapseAfter != DefaultCollapseAfter || p.Debug || !p.Since.IsZero() {
		t.Fatalf("params=%+v", p)
	}
}

func TestParseRelativeTime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"-2d", 48 * time.Hour, true},
		{"-12h", 12 * time.Hour, true},
		{"-30m", 30 * time.Minute, true},
		{"-45s", 45 * time.Second, true},
		{"-0h", 0, true},
		{"2d", 0, false},
		{"-d", 0, false},
		{"-", 0, false},
		{"-2w", 0, false},
		{"-xh", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseRelativeTime(tc.in, fixedNow)
		if ok != tc.ok {
			t.Fatalf("ParseRelativeTime(%q) ok=%v want %v", tc.in, ok, tc.ok)
		}
		if ok && !got.Equal(fixedNow.Add(-tc.want)) {
			t.Fatalf("ParseRelativeTime(%q)=%v want %v", tc.in, got, fixedNow.Add(-tc.want))
		}
	}
}
