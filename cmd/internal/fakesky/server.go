package fakesky

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"skywidget/cmd/security/password"

	"github.com/google/uuid"
)

// Options configures a Server. Zero values get defaults.
type Options struct {
	Account   Account
	Posts     []Post
	AccessTTL time.Duration
	// RefreshTTL bounds refresh tokens. Defaults to 90 days.
	RefreshTTL time.Duration
	// ExpiredStatus is returned for an expired or stale access token. Bluesky
	// answers 400 ExpiredToken; 401 is useful to exercise the optimistic probe.
	ExpiredStatus int
	// SigningKey for tokens. Random when empty.
	SigningKey []byte
	Now        func() time.Time
	Log        *slog.Logger
}

// Counts is a snapshot of per-endpoint call counters.
type Counts struct {
	CreateSession  int64
	RefreshSession int64
	GetSession     int64
	SearchPosts    int64
}

// Server is the fake upstream. It is safe for concurrent use.
type Server struct {
	acct          Account
	pw            password.Config
	expiredStatus int
	refreshTTL    time.Duration
	minter        minter
	log           *slog.Logger

	mu    sync.Mutex
	posts []Post
	// gen advances on every ExpireAccess/RevokeRefresh; tokens minted before
	// the matching floor are rejected.
	gen           int64
	accessFloor   int64
	refreshFloor  int64
	usedRefreshes map[string]struct{}
	failing       map[string]int

	createCalls  atomic.Int64
	refreshCalls atomic.Int64
	getCalls     atomic.Int64
	searchCalls  atomic.Int64
}

// DefaultAccount is used when Options.Account is empty.
var DefaultAccount = Account{
	Identifier: "widget.test",
	Password:   "app-password",
	Handle:     "widget.test",
	DID:        "did:plc:widgettest",
}

// New builds a Server.
func New(opts Options) *Server {
	if opts.Account.Identifier == "" {
		opts.Account = DefaultAccount
	}
	if opts.Account.Handle == "" {
		opts.Account.Handle = opts.Account.Identifier
	}
	if opts.Account.DID == "" {
		opts.Account.DID = "did:plc:" + strings.ReplaceAll(opts.Account.Handle, ".", "-")
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 2 * time.Hour
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 90 * 24 * time.Hour
	}
	if opts.ExpiredStatus == 0 {
		opts.ExpiredStatus = http.StatusBadRequest
	}
	if len(opts.SigningKey) == 0 {
		opts.SigningKey = []byte(uuid.NewString() + uuid.NewString())
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.Account.PasswordHash == "" && opts.Account.Password != "" {
		h, err := password.LightConfig().Hash(opts.Account.Password)
		if err != nil {
			opts.Log.Error("fakesky.password.hash_fail", "err", err)
		}
		opts.Account.PasswordHash = h
	}

	posts := make([]Post, len(opts.Posts))
	copy(posts, opts.Posts)
	for i := range posts {
		posts[i].Normalize()
	}

	return &Server{
		acct:          opts.Account,
		pw:            password.DefaultConfig(),
		expiredStatus: opts.ExpiredStatus,
		refreshTTL:    opts.RefreshTTL,
		minter:        minter{key: opts.SigningKey, accessTTL: opts.AccessTTL, now: opts.Now},
		log:           opts.Log,
		posts:         posts,
		usedRefreshes: map[string]struct{}{},
		failing:       map[string]int{},
	}
}

// Account returns the accepted account.
func (s *Server) Account() Account { return s.acct }

// Counts returns the call counters.
func (s *Server) Counts() Counts {
	return Counts{
		CreateSession:  s.createCalls.Load(),
		RefreshSession: s.refreshCalls.Load(),
		GetSession:     s.getCalls.Load(),
		SearchPosts:    s.searchCalls.Load(),
	}
}

// ExpireAccess invalidates every access token minted so far.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	s.gen++
	s.accessFloor = s.gen
	s.mu.Unlock()
}

// RevokeRefresh invalidates every refresh token minted so far.
func (s *Server) RevokeRefresh() {
	s.mu.Lock()
	s.gen++
	s.refreshFloor = s.gen
	s.mu.Unlock()
}

// FailNext makes the next n calls to nsid answer 502.
func (s *Server) FailNext(nsid string, n int) {
	s.mu.Lock()
	s.failing[nsid] = n
	s.mu.Unlock()
}

// AddPost appends a fixture post.
func (s *Server) AddPost(p Post) {
	p.Normalize()
	s.mu.Lock()
	s.posts = append(s.posts, p)
	s.mu.Unlock()
}

// Handler serves the XRPC routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /xrpc/com.atproto.server.createSession", s.counted(&s.createCalls, "com.atproto.server.createSession", s.handleCreateSession))
	mux.HandleFunc("POST /xrpc/com.atproto.server.refreshSession", s.counted(&s.refreshCalls, "com.atproto.server.refreshSession", s.handleRefreshSession))
	mux.HandleFunc("GET /xrpc/com.atproto.server.getSession", s.counted(&s.getCalls, "com.atproto.server.getSession", s.handleGetSession))
	mux.HandleFunc("GET /xrpc/app.bsky.feed.searchPosts", s.counted(&s.searchCalls, "app.bsky.feed.searchPosts", s.handleSearchPosts))
	return mux
}

func (s *Server) counted(c *atomic.Int64, nsid string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.Add(1)
		if s.takeFailure(nsid) {
			writeError(w, http.StatusBadGateway, "UpstreamFailure", "injected failure")
			return
		}
		h(w, r)
	}
}

func (s *Server) takeFailure(nsid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[nsid] <= 0 {
		return false
	}
	s.failing[nsid]--
	return true
}

type sessionBody struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Handle     string `json:"handle"`
	DID        string `json:"did"`
	Active     bool   `json:"active"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "invalid json body")
		return
	}
	if in.Identifier == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "identifier and password are required")
		return
	}
	if (in.Identifier != s.acct.Identifier && in.Identifier != s.acct.Handle) || !s.passwordMatches(in.Password) {
		s.log.Info("fakesky.create_session.denied", "identifier", in.Identifier)
		writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "Invalid identifier or password")
		return
	}
	s.mintPair(w)
}

func (s *Server) passwordMatches(pw string) bool {
	if s.acct.PasswordHash == "" {
		return false
	}
	ok, err := s.pw.Verify(s.acct.PasswordHash, pw)
	if err != nil {
		s.log.Error("fakesky.password.verify_fail", "err", err)
	}
	return ok
}

func (s *Server) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	tok := bearer(r)
	c, err := s.minter.parse(tok, scopeRefresh)
	switch {
	case errors.Is(err, errTokenExpired):
		writeError(w, http.StatusBadRequest, "ExpiredToken", "Token has expired")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "InvalidToken", "Token could not be verified")
		return
	}

	s.mu.Lock()
	_, used := s.usedRefreshes[c.ID]
	stale := c.Gen < s.refreshFloor
	if !used && !stale {
		// Refresh tokens are single use.
		s.usedRefreshes[c.ID] = struct{}{}
	}
	s.mu.Unlock()

	if used || stale {
		writeError(w, http.StatusBadRequest, "ExpiredToken", "Token has been revoked")
		return
	}
	s.mintPair(w)
}

func (s *Server) mintPair(w http.ResponseWriter) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	access, _, err := s.minter.mint(scopeAccess, s.acct.DID, gen, s.minter.accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "InternalServerError", err.Error())
		return
	}
	refresh, _, err := s.minter.mint(scopeRefresh, s.acct.DID, gen, s.refreshTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "InternalServerError", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionBody{
		AccessJwt:  access,
		RefreshJwt: refresh,
		Handle:     s.acct.Handle,
		DID:        s.acct.DID,
		Active:     true,
	})
}

// authorize validates the bearer access token and writes the upstream error
// when it is not acceptable.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	tok := bearer(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "AuthMissing", "Authentication Required")
		return false
	}
	c, err := s.minter.parse(tok, scopeAccess)
	switch {
	case errors.Is(err, errTokenExpired):
		writeError(w, s.expiredStatus, "ExpiredToken", "Token has expired")
		return false
	case err != nil:
		writeError(w, http.StatusUnauthorized, "InvalidToken", "Token could not be verified")
		return false
	}

	s.mu.Lock()
	stale := c.Gen < s.accessFloor
	s.mu.Unlock()
	if stale {
		writeError(w, s.expiredStatus, "ExpiredToken", "Token has expired")
		return false
	}
	return true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"handle": s.acct.Handle,
		"did":    s.acct.DID,
		"active": true,
	})
}

func (s *Server) handleSearchPosts(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", `Error: Params must have the property "q"`)
		return
	}
	limit := 25
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	tags, since := parseQuery(query)

	s.mu.Lock()
	matched := make([]Post, 0, len(s.posts))
	for _, p := range s.posts {
		if matches(p, tags, since) {
			matched = append(matched, p)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]map[string]any, 0, len(matched))
	for _, p := range matched {
		out = append(out, postView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts":     out,
		"hitsTotal": len(out),
	})
}

// parseQuery extracts "#tag" terms and an optional "since:<RFC3339>" bound.
func parseQuery(q string) ([]string, time.Time) {
	var (
		tags  []string
		since time.Time
	)
	for _, term := range strings.Fields(q) {
		switch {
		case strings.HasPrefix(term, "#") && len(term) > 1:
			tags = append(tags, strings.ToLower(term))
		case strings.HasPrefix(term, "since:"):
			if t, err := time.Parse(time.RFC3339, strings.TrimPrefix(term, "since:")); err == nil {
				since = t
			}
		}
	}
	return tags, since
}

// matches requires every tag to appear in the text (AND semantics).
func matches(p Post, tags []string, since time.Time) bool {
	if !since.IsZero() && p.CreatedAt.Before(since) {
		return false
	}
	text := strings.ToLower(p.Text)
	for _, tag := range tags {
		if !strings.Contains(text, tag) {
			return false
		}
	}
	return true
}

func postView(p Post) map[string]any {
	ts := p.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z")
	return map[string]any{
		"uri": p.URI(),
		"cid": p.CID,
		"author": map[string]any{
			"did":         p.DID,
			"handle":      p.Handle,
			"displayName": p.DisplayName,
			"labels":      []any{},
		},
		"record": map[string]any{
			"$type":     "app.bsky.feed.post",
			"text":      p.Text,
			"createdAt": ts,
			"langs":     []string{"en"},
		},
		"indexedAt":   ts,
		"likeCount":   p.Likes,
		"replyCount":  p.Replies,
		"repostCount": p.Reposts,
		"quoteCount":  p.Quotes,
		"labels":      []any{},
	}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, name, msg string) {
	writeJSON(w, status, map[string]string{"error": name, "message": msg})
}
