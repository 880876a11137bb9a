package session

import (
	"os"
	"strings"
	"time"
)

// StoreKind selects the persistence backend for the session record.
type StoreKind string

const (
	// StoreFile keeps the record in a local file (default).
	StoreFile StoreKind = "file"
	// StoreRedis keeps the record under one redis key.
	StoreRedis StoreKind = "redis"
	// StorePostgres keeps the record in a singleton postgres row.
	StorePostgres StoreKind = "postgres"
)

// Config defines runtime configuration for the session subsystem.
//
// Credentials are not part of Config; the CredentialSource reads them at
// login time.
type Config struct {
	// AuthTimeout bounds one ensure-token resolution (probe + refresh + login).
	AuthTimeout time.Duration

	// ProbePolicy names the validity policy ("optimistic" or "strict").
	ProbePolicy string

	Store    StoreKind
	FilePath string
	RedisURL string
	RedisKey string

	// SealSecret enables at-rest sealing of the record when non-empty.
	SealSecret string
}

// DefaultConfig returns defaults suitable for a single local process.
func DefaultConfig() Config {
	return Config{
		AuthTimeout: 15 * time.Second,
		ProbePolicy: ProbePolicyOptimistic,
		Store:       StoreFile,
		FilePath:    ".skywidget/session.json",
		RedisKey:    "skywidget:session",
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - SKYWIDGET_AUTH_TIMEOUT (Go duration)
//   - SKYWIDGET_PROBE_POLICY (optimistic|strict)
//   - SKYWIDGET_SESSION_STORE (file|redis|postgres)
//   - SKYWIDGET_SESSION_FILE
//   - SKYWIDGET_REDIS_URL (required when store=redis)
//   - SKYWIDGET_REDIS_KEY
//   - SKYWIDGET_SESSION_KEY (>= 32 bytes when set)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("SKYWIDGET_AUTH_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AuthTimeout = d
	}

	if v := strings.TrimSpace(os.Getenv("SKYWIDGET_PROBE_POLICY")); v != "" {
		if _, err := ProbePolicyByName(v); err != nil {
			return Config{}, ErrConfig
		}
		cfg.ProbePolicy = strings.ToLower(v)
	}

	if v := strings.TrimSpace(os.Getenv("SKYWIDGET_SESSION_STORE")); v != "" {
		switch k := StoreKind(strings.ToLower(v)); k {
		case StoreFile, StoreRedis, StorePostgres:
			cfg.Store = k
		default:
			return Config{}, ErrConfig
		}
	}

	if v := strings.TrimSpace(os.Getenv("SKYWIDGET_SESSION_FILE")); v != "" {
		cfg.FilePath = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("SKYWIDGET_REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("SKYWIDGET_REDIS_KEY")); v != "" {
		cfg.RedisKey = v
	}
	if cfg.Store == StoreRedis && cfg.RedisURL == "" {
		return Config{}, ErrConfig
	}

	// Measured in bytes: the secret feeds HKDF as raw bytes.
	cfg.SealSecret = strings.TrimSpace(os.Getenv("SKYWIDGET_SESSION_KEY"))
	if cfg.SealSecret != "" && len(cfg.SealSecret) < 32 {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
