package widget

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"
)

// Handler serves the widget page. It always answers 200: the widget host
// shows whatever HTML it gets, so failures are rendered into the body.
type Handler struct {
	feed    *Feed
	metrics Metrics
	log     *slog.Logger
	now     func() time.Time
}

// NewHandler builds the "/" handler.
func NewHandler(feed *Feed, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{feed: feed, metrics: feed.metrics, log: log, now: time.Now}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p := ParseParams(r.URL.Query(), h.now().UTC())
	res, outcome, err := h.feed.Resolve(r.Context(), p)
	h.metrics.Request("page", outcome)
	if err != nil {
		h.log.Warn("widget.search.fail", "outcome", outcome, "tags", p.Tags, "err", err)
	}

	var buf bytes.Buffer
	if err := RenderPage(&buf, p, res); err != nil {
		h.log.Error("widget.render.fail", "err", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	hdr := w.Header()
	hdr.Set("Widget-Title", p.Title)
	hdr.Set("Widget-Content-Type", "html")
	hdr.Set("Content-Type", "text/html; charset=utf-8")
	hdr.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(buf.Bytes())
}
