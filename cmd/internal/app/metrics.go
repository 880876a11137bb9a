package app

import (
	"net/http"
	"strconv"
	"time"

	"skywidget/cmd/internal/auth/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the prometheus-backed session.Observer and widget.Metrics.
type Metrics struct {
	reg *prometheus.Registry

	authAttempts   *prometheus.CounterVec
	ensures        *prometheus.CounterVec
	retries        prometheus.Counter
	requests       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
}

// NewMetrics builds a private registry with process and Go collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		authAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skywidget_auth_attempts_total",
				Help: "Upstream auth calls by operation and result",
			},
			[]string{"op", "ok"},
		),
		ensures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skywidget_ensure_total",
				Help: "Ensure-token resolutions by path taken",
			},
			[]string{"path"},
		),
		retries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "skywidget_op_retries_total",
				Help: "Downstream operations retried after forced re-authentication",
			},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skywidget_widget_requests_total",
				Help: "Widget renders by surface and outcome",
			},
			[]string{"surface", "outcome"},
		),
		searchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skywidget_search_duration_seconds",
				Help:    "Hashtag search latency including any re-authentication",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"ok"},
		),
	}
}

// AuthAttempt implements session.Observer.
func (m *Metrics) AuthAttempt(op string, ok bool) {
	m.authAttempts.WithLabelValues(op, strconv.FormatBool(ok)).Inc()
}

// Ensure implements session.Observer.
func (m *Metrics) Ensure(path string) { m.ensures.WithLabelValues(path).Inc() }

// Retry implements session.Observer.
func (m *Metrics) Retry() { m.retries.Inc() }

// Request implements widget.Metrics.
func (m *Metrics) Request(surface, outcome string) {
	m.requests.WithLabelValues(surface, outcome).Inc()
}

// SearchDuration implements widget.Metrics.
func (m *Metrics) SearchDuration(d time.Duration, ok bool) {
	m.searchDuration.WithLabelValues(strconv.FormatBool(ok)).Observe(d.Seconds())
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

var _ session.Observer = (*Metrics)(nil)
