package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string
	LogColor  bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// UpstreamTimeout bounds every outbound XRPC call.
	UpstreamTimeout time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, SKYWIDGET_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) so access
	// fingerprints in logs and /auth/status are keyed.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("SKYWIDGET_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("SKYWIDGET_LOG_LEVEL", "info"),
		LogFormat: EnvString("SKYWIDGET_LOG_FORMAT", "json"),
		LogColor:  EnvBool("SKYWIDGET_LOG_COLOR", true),

		ReadHeaderTimeout: EnvDuration("SKYWIDGET_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("SKYWIDGET_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("SKYWIDGET_HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       EnvDuration("SKYWIDGET_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("SKYWIDGET_HTTP_MAX_HEADER_BYTES", 1<<20),

		UpstreamTimeout: EnvDuration("SKYWIDGET_UPSTREAM_TIMEOUT", 10*time.Second),

		DatabaseURL: EnvString("SKYWIDGET_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("SKYWIDGET_DB_MAX_CONNS", 4),
		DBMinConns:  EnvInt32("SKYWIDGET_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("SKYWIDGET_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("SKYWIDGET_REQUIRE_TOKEN_HMAC", false),
	}
}
