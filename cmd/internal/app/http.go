package app

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"skywidget/cmd/security/token"
)

// authStatus is the /auth/status body. It never carries a raw token.
type authStatus struct {
	Authenticated     bool   `json:"authenticated"`
	AccountID         string `json:"account_id,omitempty"`
	AccessFingerprint string `json:"access_fingerprint,omitempty"`
}

func registerHTTP(mux *http.ServeMux, a *App) {
	mux.Handle("/{$}", a.widget)
	mux.Handle("/stream", a.stream)
	mux.Handle("GET /metrics", a.metrics.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.ReadinessRequireDB && a.dbPool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		for _, c := range a.checks {
			if err := c.ping(r.Context()); err != nil {
				http.Error(w, c.name+" not ready", http.StatusServiceUnavailable)
				a.log.Info("readyz.not_ready", "check", c.name, "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	// Snapshot does not wait on an in-flight login.
	mux.HandleFunc("GET /auth/status", func(w http.ResponseWriter, _ *http.Request) {
		st := authStatus{}
		if s, ok := a.mgr.Snapshot(); ok {
			st = authStatus{
				Authenticated:     true,
				AccountID:         s.AccountID,
				AccessFingerprint: token.Fingerprint(s.AccessToken),
			}
		}
		writeJSON(w, http.StatusOK, st)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// runtimeBaseURL turns a listen address into a URL a local browser can open.
// Wildcard binds map to 127.0.0.1.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL swaps the http(s) scheme for ws(s); bare host:port gets ws://.
func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
