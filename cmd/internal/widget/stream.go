package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"skywidget/cmd/internal/ids"
	v1 "skywidget/contracts/stream/v1"

	"github.com/coder/websocket"
)

const (
	wsCloseGrace      = 1 * time.Second
	wsMaxPingFailures = 3
)

var errBadFrame = errors.New("bad frame")

// Stream is the /stream websocket endpoint. Each connection re-renders its
// widget query on connect, every Interval, and on client "refresh" frames.
type Stream struct {
	feed *Feed
	cfg  StreamConfig
	log  *slog.Logger
	now  func() time.Time

	// Derived for websocket.Accept origin checks.
	originPatterns []string
}

// NewStream builds the websocket handler.
func NewStream(feed *Feed, cfg StreamConfig, log *slog.Logger) *Stream {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultStreamConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = def.HeartbeatEvery
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	return &Stream{
		feed:           feed,
		cfg:            cfg,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

// conn is one websocket session. send is never closed; done signals shutdown.
type conn struct {
	id      string
	send    chan v1.Envelope
	refresh chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (c *conn) close() { c.once.Do(func() { close(c.done) }) }

func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := s.enforceOrigin(r); err != nil {
		s.log.Info("stream.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     s.originPatterns,
		InsecureSkipVerify: s.cfg.DevInsecure,
	})
	if err != nil {
		s.log.Error("stream.accept.fail", "err", err)
		return
	}
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := ws.Subprotocol(); sp != v1.Subprotocol {
		s.log.Info("stream.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = ws.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	query := r.URL.Query()
	c := &conn{
		id:      ids.NewRequestID(),
		send:    make(chan v1.Envelope, s.cfg.SendQueueSize),
		refresh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	log := s.log.With("conn_id", c.id)
	log.Info("stream.open", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			c.close()
			_ = ws.Close(code, reason)
			cancel()
		})
	}

	if len(ParseParams(query, s.now()).Tags) == 0 {
		s.feed.metrics.Request("stream", OutcomeNoTags)
		_ = writeEnvelope(ctx, ws, s.errorEnvelope(OutcomeNoTags, MsgNoTags), s.cfg.WriteTimeout)
		shutdown(websocket.StatusPolicyViolation, "no tags")
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case env := <-c.send:
				if err := writeEnvelope(ctx, ws, env, s.cfg.WriteTimeout); err != nil {
					log.Info("stream.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	go func() {
		defer wg.Done()
		s.heartbeat(ctx, ws, c, log, shutdown)
	}()

	go func() {
		defer wg.Done()
		s.pushLoop(ctx, c, query, log)
	}()

	rl := newFrameLimiter(s.cfg.RateEvents, s.cfg.RateWindow)

readLoop:
	for {
		env, err := readEnvelope(ctx, ws)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadFrame:
				s.trySend(ctx, c, s.errorEnvelope("bad_json", "invalid JSON"))
				continue readLoop
			default:
				log.Info("stream.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !rl.Allow(s.now()) {
			s.trySend(ctx, c, s.errorEnvelope("rate_limited", "too many events"))
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			s.trySend(ctx, c, s.errorEnvelope("bad_envelope", err.Error()))
			continue readLoop
		}

		switch env.Type {
		case v1.TypeRefresh:
			select {
			case c.refresh <- struct{}{}:
			default:
			}
		default:
			s.trySend(ctx, c, s.errorEnvelope("unsupported", fmt.Sprintf("unsupported type: %s", env.Type)))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	waited := make(chan struct{})
	go func() { wg.Wait(); close(waited) }()
	select {
	case <-waited:
	case <-time.After(wsCloseGrace):
	}
	log.Info("stream.close")
}

// pushLoop renders on start, on every tick and on refresh requests.
func (s *Stream) pushLoop(ctx context.Context, c *conn, query url.Values, log *slog.Logger) {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	for {
		env := s.render(ctx, query, log)
		if !s.trySend(ctx, c, env) {
			log.Info("stream.push.dropped", "type", env.Type)
		}

		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-t.C:
		case <-c.refresh:
			t.Reset(s.cfg.Interval)
		}
	}
}

func (s *Stream) render(ctx context.Context, query url.Values, log *slog.Logger) v1.Envelope {
	// Re-parse so relative "since" windows move with the clock.
	p := ParseParams(query, s.now())
	res, outcome, err := s.feed.Resolve(ctx, p)
	s.feed.metrics.Request("stream", outcome)
	if err != nil {
		log.Warn("stream.search.fail", "outcome", outcome, "err", err)
		return s.errorEnvelope(outcome, res.Message)
	}

	var buf bytes.Buffer
	if err := RenderPosts(&buf, p, res); err != nil {
		log.Error("stream.render.fail", "err", err)
		return s.errorEnvelope("render_failed", "render failed")
	}
	payload, _ := json.Marshal(v1.PostsPayload{HTML: buf.String(), Count: len(res.Posts)})
	return s.newEnvelope(v1.TypePosts, payload)
}

func (s *Stream) heartbeat(ctx context.Context, ws *websocket.Conn, c *conn, log *slog.Logger, shutdown func(websocket.StatusCode, string)) {
	t := time.NewTicker(s.cfg.HeartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(ctx, s.cfg.HeartbeatTimeout)
			err := ws.Ping(hbCtx)
			hbCancel()

			if err != nil {
				failures++
				log.Info("stream.ping.fail", "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// ---- send helpers ----

func (s *Stream) errorEnvelope(code, msg string) v1.Envelope {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	return s.newEnvelope(v1.TypeError, p)
}

func (s *Stream) newEnvelope(typ string, payload json.RawMessage) v1.Envelope {
	now := s.now()
	id, err := ids.NewULID(now)
	if err != nil {
		id = ids.NewRequestID()
	}
	return v1.Envelope{V: v1.Version, Type: typ, ID: id, TS: now, Payload: payload}
}

// trySend enqueues without blocking; a full queue drops the frame.
func (s *Stream) trySend(ctx context.Context, c *conn, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	case c.send <- env:
		return true
	default:
		return false
	}
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, ws *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := ws.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("%w: unsupported message type: %v", errBadFrame, mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, ws *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadFrame
)

func classifyReadErr(err error) readErrKind {
	switch {
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	case errors.Is(err, errBadFrame):
		return readErrBadFrame
	default:
		return readErrUnknown
	}
}

// ---- origin policy ----

func (s *Stream) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if s.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(s.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range s.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*":
			return nil
		case origin == a:
			return nil
		case originHost != "" && originHost == originHostOnly(a):
			// Host match ignores scheme and port.
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns maps the allowlist to websocket.Accept host patterns so
// both origin layers agree.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			return []string{"*"}
		}
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
