// Package main provides a CI-friendly websocket smoke test for the skywidget stream.
//
// It validates:
//   - handshake + subprotocol selection
//   - a posts frame on connect
//   - refresh -> posts round trip
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "skywidget/contracts/stream/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	conn  *websocket.Conn
	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL    = flag.String("url", "ws://127.0.0.1:8080/stream?tags=bluesky", "Stream URL including widget query")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		minPosts = flag.Int("min-posts", 0, "Fail unless the first frame carries at least this many posts")
		timeout  = flag.Duration("timeout", 15*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	c := mustConnect(root, *wsURL, *origin, *timeout)
	defer closeWS(c.conn)

	first := c.mustReadPosts(root, *timeout)
	if first.Count < *minPosts {
		fatalf("first frame has %d posts, want at least %d", first.Count, *minPosts)
	}
	if *verbose {
		fmt.Printf("connect: posts=%d html_bytes=%d\n", first.Count, len(first.HTML))
	}

	refresh := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeRefresh,
		ID:      fmt.Sprintf("smoke-refresh-%d", time.Now().UnixNano()),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.RefreshPayload{}),
	}
	mustWriteWithTimeout(root, c.conn, refresh, *timeout)

	second := c.mustReadPosts(root, *timeout)
	if *verbose {
		fmt.Printf("refresh: posts=%d html_bytes=%d\n", second.Count, len(second.HTML))
	}

	fmt.Printf("OK: first=%d refreshed=%d\n", first.Count, second.Count)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Query().Get("tags")) == "" {
		return errors.New("missing tags query parameter")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan v1.Envelope, 16),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.fail(fmt.Errorf("bad envelope: %w", err))
				return
			}

			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *smokeClient) mustReadPosts(parent context.Context, stepTimeout time.Duration) v1.PostsPayload {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", v1.TypePosts, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q: %v", v1.TypePosts, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q", v1.TypePosts)
			}
			switch env.Type {
			case v1.TypePosts:
				var p v1.PostsPayload
				if err := json.Unmarshal(env.Payload, &p); err != nil {
					fatalf("unmarshal posts payload: %v", err)
				}
				if strings.TrimSpace(p.HTML) == "" {
					fatalf("posts frame has empty html")
				}
				return p
			case v1.TypeError:
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
			default:
				fatalf("unexpected envelope type: got=%q want=%q", env.Type, v1.TypePosts)
			}
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
