package widget

import (
	"html/template"
	"io"

	"skywidget/cmd/internal/bsky"
)

// Placeholders and fixed messages shown in the widget body.
const (
	NoTextPlaceholder = "<no text>"
	NoDatePlaceholder = "<unknown date>"

	MsgNoTags  = "No tags specified. Try ?tags=rust,actix&limit=5"
	MsgNoPosts = "No posts found for those hashtags."
)

// Result is what the widget body shows: either Message or the post list.
type Result struct {
	Posts   []bsky.Post
	Message string
}

type postView struct {
	Text       string
	Link       string
	Handle     string
	AuthorLink string
	CreatedAt  string
	Likes      int
	Quotes     int
	Replies    int
	Reposts    int
}

type pageData struct {
	Params
	Message string
	Posts   []postView
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8"/>
  <title>Bluesky Hashtag Viewer</title>
  <style>
    .post-container { margin-bottom: 1em; padding: 0.5em; border: 1px solid #ccc; text-align: left; }
    .post-text { margin: 0; font-size: 1em; }
    .post-text a { color: #{{.TextColor}}; text-decoration: none; }
    .post-text a:hover { color: #{{.TextHoverColor}}; text-decoration: none; }
    .post-author { margin: 0.25em 0 0 0; font-size: 0.85em; color: #{{.AuthorColor}}; }
    .post-author a { color: inherit; text-decoration: none; }
    .post-author a:hover { color: #{{.AuthorHoverColor}}; text-decoration: none; }
    .post-stats { margin: 0.25em 0 0 0; font-size: 0.85em; color: #{{.AuthorColor}}; }
    .post-stats a { color: inherit; text-decoration: none; }
    .post-stats a:hover { color: #{{.AuthorHoverColor}}; text-decoration: none; }
  </style>
</head>
<body>
{{- if .Debug}}
<p class="size-h1">Parameters:</p>
{{- range .Raw}}
<p><strong>{{.Key}}:</strong> {{.Value}}</p>
{{- end}}
{{- end}}
{{template "posts" .}}
</body>
</html>
`))

var _ = template.Must(pageTmpl.New("posts").Parse(`
{{- if .Message}}<p>{{.Message}}</p>
{{- else if not .Posts}}<p>` + MsgNoPosts + `</p>
{{- else}}<ul class="list collapsible-container" data-collapse-after="{{.CollapseAfter}}">
{{- range .Posts}}
<li class="post-container">
  <p class="post-text"><a href="{{.Link}}">{{.Text}}</a></p>
  <p class="post-author">
    <a href="{{.AuthorLink}}">{{.Handle}}</a>
    &nbsp;&middot;&nbsp;
    {{.CreatedAt}}
  </p>
  <p class="post-stats">
    Likes: {{.Likes}} &nbsp;&middot;&nbsp;
    Quotes: {{.Quotes}} &nbsp;&middot;&nbsp;
    Replies: {{.Replies}} &nbsp;&middot;&nbsp;
    Reposts: {{.Reposts}}
  </p>
</li>
{{- end}}
</ul>
{{- end}}`))

// RenderPage writes the full widget document.
func RenderPage(w io.Writer, p Params, r Result) error {
	return pageTmpl.Execute(w, newPageData(p, r))
}

// RenderPosts writes only the body fragment (message or post list).
func RenderPosts(w io.Writer, p Params, r Result) error {
	return pageTmpl.ExecuteTemplate(w, "posts", newPageData(p, r))
}

func newPageData(p Params, r Result) pageData {
	d := pageData{Params: p, Message: r.Message}
	for _, post := range r.Posts {
		d.Posts = append(d.Posts, viewOf(post))
	}
	return d
}

func viewOf(p bsky.Post) postView {
	handle := p.Handle()
	v := postView{
		Text:       NoTextPlaceholder,
		Link:       "https://bsky.app/profile/" + handle + "/post/" + p.RKey(),
		Handle:     handle,
		AuthorLink: "https://bsky.app/profile/" + handle,
		CreatedAt:  NoDatePlaceholder,
		Likes:      deref(p.LikeCount),
		Quotes:     deref(p.QuoteCount),
		Replies:    deref(p.ReplyCount),
		Reposts:    deref(p.RepostCount),
	}
	if p.Record.Text != nil {
		v.Text = *p.Record.Text
	}
	if p.Record.CreatedAt != nil {
		v.CreatedAt = *p.Record.CreatedAt
	}
	return v
}

func deref(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}
