package widget

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Stream limits.
const (
	// Max bytes per websocket frame read from a client.
	maxFrameBytes = 4 << 10 // 4 KiB

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Client refresh requests per window.
	rateLimitEvents = 6
	rateLimitWindow = time.Minute

	// MinStreamInterval bounds how often a connection re-queries the upstream.
	MinStreamInterval     = 10 * time.Second
	defaultStreamInterval = 60 * time.Second

	defaultSendQueueSize = 16
	defaultWriteTimeout  = 5 * time.Second

	defaultOriginRequired = true
	defaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// StreamConfig tunes the /stream websocket.
type StreamConfig struct {
	Interval time.Duration

	OriginRequired bool
	AllowedOrigins []string
	// DevInsecure disables websocket.Accept's own origin check.
	DevInsecure bool

	WriteTimeout  time.Duration
	SendQueueSize int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultStreamConfig returns secure defaults (origin required, localhost only).
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Interval:         defaultStreamInterval,
		OriginRequired:   defaultOriginRequired,
		AllowedOrigins:   splitCSV(defaultAllowedOrigins),
		WriteTimeout:     defaultWriteTimeout,
		SendQueueSize:    defaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
	}
}

// LoadStreamConfigFromEnv reads SKYWIDGET_STREAM_* variables. Invalid values
// fall back to defaults; the interval is clamped to MinStreamInterval.
func LoadStreamConfigFromEnv() StreamConfig {
	c := DefaultStreamConfig()

	c.Interval = envDuration("SKYWIDGET_STREAM_INTERVAL", c.Interval)
	if c.Interval < MinStreamInterval {
		c.Interval = MinStreamInterval
	}

	c.OriginRequired = envBool("SKYWIDGET_STREAM_ORIGIN_REQUIRED", c.OriginRequired)
	c.AllowedOrigins = envCSV("SKYWIDGET_STREAM_ALLOWED_ORIGINS", defaultAllowedOrigins)
	c.DevInsecure = envBool("SKYWIDGET_STREAM_DEV_INSECURE", false)

	c.WriteTimeout = envDuration("SKYWIDGET_STREAM_WRITE_TIMEOUT", c.WriteTimeout)
	c.SendQueueSize = envInt("SKYWIDGET_STREAM_SEND_QUEUE", c.SendQueueSize)

	c.HeartbeatEvery = envDuration("SKYWIDGET_STREAM_HEARTBEAT_INTERVAL", c.HeartbeatEvery)
	c.HeartbeatTimeout = envDuration("SKYWIDGET_STREAM_HEARTBEAT_TIMEOUT", c.HeartbeatTimeout)

	c.RateEvents = envInt("SKYWIDGET_STREAM_RATE_EVENTS", c.RateEvents)
	c.RateWindow = envDuration("SKYWIDGET_STREAM_RATE_WINDOW", c.RateWindow)
	return c
}

// ---- env helpers ----

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSV(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	return splitCSV(raw)
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
