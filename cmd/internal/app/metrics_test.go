package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skywidget/cmd/internal/auth/session"
	"skywidget/cmd/internal/widget"
)

func TestMetrics_Exposition(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.AuthAttempt(session.OpProbe, false)
	m.AuthAttempt(session.OpRefresh, true)
	m.Ensure(session.PathRefresh)
	m.Retry()
	m.Request("stream", widget.OutcomeSearchError)
	m.SearchDuration(300*time.Millisecond, false)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	out := string(body)

	for _, want := range []string{
		`skywidget_auth_attempts_total{ok="false",op="probe"} 1`,
		`skywidget_auth_attempts_total{ok="true",op="refresh"} 1`,
		`skywidget_ensure_total{path="refresh"} 1`,
		`skywidget_op_retries_total 1`,
		`skywidget_widget_requests_total{outcome="search_error",surface="stream"} 1`,
		`skywidget_search_duration_seconds_bucket{ok="false",le="0.5"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q", want)
		}
	}
}

func TestMetrics_RegistriesAreIndependent(t *testing.T) {
	t.Parallel()

	a, b := NewMetrics(), NewMetrics()
	a.Retry()

	rr := httptest.NewRecorder()
	b.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if strings.Contains(rr.Body.String(), "skywidget_op_retries_total 1") {
		t.Fatalf("registries must not share counters")
	}
}
