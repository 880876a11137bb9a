package widget

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"skywidget/cmd/internal/auth/session"
	"skywidget/cmd/internal/bsky"
	"skywidget/cmd/internal/fakesky"
	"skywidget/cmd/internal/xrpc"
)

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
	searches int
}

func (m *recordingMetrics) Request(surface, outcome string) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, surface+":"+outcome)
	m.mu.Unlock()
}

func (m *recordingMetrics) SearchDuration(time.Duration, bool) {
	m.mu.Lock()
	m.searches++
	m.mu.Unlock()
}

func (m *recordingMetrics) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.outcomes) == 0 {
		return ""
	}
	return m.outcomes[len(m.outcomes)-1]
}

type stack struct {
	fake    *fakesky.Server
	feed    *Feed
	metrics *recordingMetrics
}

var testPosts = []fakesky.Post{
	{Handle: "bob.test", Text: "learning #golang today", CreatedAt: time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC), Likes: 3, Replies: 1},
	{Handle: "carol.test", Text: "#golang <b>and</b> #bluesky", CreatedAt: time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), Quotes: 2},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStack wires the real session stack against a fake upstream. password
// overrides the configured secret when non-empty.
func newStack(t *testing.T, password string) *stack {
	t.Helper()

	fake := fakesky.New(fakesky.Options{Posts: testPosts})
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	log := discardLogger()
	api := xrpc.New(srv.URL, 5*time.Second)
	store := session.NewRecordStore(session.NewFileStore(filepath.Join(t.TempDir(), "session.json")), nil, log)

	acct := fake.Account()
	if password == "" {
		password = acct.Password
	}
	creds := session.StaticCredentials{Identifier: acct.Identifier, Secret: password, BaseURL: srv.URL}

	mgr := session.NewManager(
		session.NewCache(store.Load(context.Background())),
		creds,
		session.NewTransport(api, store, nil, log),
		session.NewProber(api, nil, nil, log),
		session.WithLogger(log),
		session.WithFlightTimeout(5*time.Second),
	)

	m := &recordingMetrics{}
	return &stack{fake: fake, feed: NewFeed(mgr, bsky.NewClient(api), m, log), metrics: m}
}
