package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"skywidget/cmd/internal/auth/session"
	"skywidget/cmd/internal/bsky"
)

// Searcher runs one authenticated hashtag search. *bsky.Client implements it.
type Searcher interface {
	SearchPosts(ctx context.Context, access string, p bsky.SearchParams) ([]bsky.Post, error)
}

// Request outcomes reported to Metrics.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeNoTags      = "no_tags"
	OutcomeAuthError   = "auth_error"
	OutcomeSearchError = "search_error"
)

// Metrics receives widget-level measurements. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Request(surface, outcome string)
	SearchDuration(d time.Duration, ok bool)
}

type nopMetrics struct{}

func (nopMetrics) Request(string, string)              {}
func (nopMetrics) SearchDuration(time.Duration, bool) {}

// Feed resolves widget parameters into a Result.
type Feed struct {
	mgr     *session.Manager
	search  Searcher
	metrics Metrics
	log     *slog.Logger
	now     func() time.Time
}

// NewFeed wires the session manager and search client. metrics may be nil.
func NewFeed(mgr *session.Manager, search Searcher, metrics Metrics, log *slog.Logger) *Feed {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Feed{mgr: mgr, search: search, metrics: metrics, log: log, now: time.Now}
}

// Resolve searches for p and returns a Result plus its outcome. Failures are
// turned into a user-facing Message; the returned error is for logging only.
func (f *Feed) Resolve(ctx context.Context, p Params) (Result, string, error) {
	if len(p.Tags) == 0 {
		return Result{Message: MsgNoTags}, OutcomeNoTags, nil
	}

	posts, err := session.CallWithRetry(ctx, f.mgr, func(ctx context.Context, access string) ([]bsky.Post, error) {
		start := f.now()
		posts, err := f.search.SearchPosts(ctx, access, p.Search())
		f.metrics.SearchDuration(f.now().Sub(start), err == nil)
		return posts, err
	})

	switch {
	case err == nil && len(posts) == 0:
		return Result{}, OutcomeEmpty, nil
	case err == nil:
		return Result{Posts: posts}, OutcomeOK, nil
	case isAuthErr(err):
		return Result{Message: fmt.Sprintf("Error logging into Bluesky: %v", err)}, OutcomeAuthError, err
	default:
		return Result{Message: fmt.Sprintf("Error searching posts: %v", err)}, OutcomeSearchError, err
	}
}

func isAuthErr(err error) bool {
	return session.IsAuthFailure(err) || errors.Is(err, session.ErrMissingConfig)
}
