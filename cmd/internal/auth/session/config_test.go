package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"SKYWIDGET_AUTH_TIMEOUT", "SKYWIDGET_PROBE_POLICY", "SKYWIDGET_SESSION_STORE",
		"SKYWIDGET_SESSION_FILE", "SKYWIDGET_REDIS_URL", "SKYWIDGET_REDIS_KEY", "SKYWIDGET_SESSION_KEY",
	} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("cfg=%+v want defaults", cfg)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("SKYWIDGET_AUTH_TIMEOUT", "3s")
	t.Setenv("SKYWIDGET_PROBE_POLICY", "Strict")
	t.Setenv("SKYWIDGET_SESSION_STORE", "redis")
	t.Setenv("SKYWIDGET_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SKYWIDGET_REDIS_KEY", "k")
	t.Setenv("SKYWIDGET_SESSION_KEY", strings.Repeat("s", 32))

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error: %v", err)
	}
	if cfg.AuthTimeout != 3*time.Second || cfg.ProbePolicy != ProbePolicyStrict || cfg.Store != StoreRedis || cfg.RedisKey != "k" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad timeout", map[string]string{"SKYWIDGET_AUTH_TIMEOUT": "soon"}},
		{"negative timeout", map[string]string{"SKYWIDGET_AUTH_TIMEOUT": "-1s"}},
		{"bad policy", map[string]string{"SKYWIDGET_PROBE_POLICY": "paranoid"}},
		{"bad store", map[string]string{"SKYWIDGET_SESSION_STORE": "s3"}},
		{"redis without url", map[string]string{"SKYWIDGET_SESSION_STORE": "redis", "SKYWIDGET_REDIS_URL": ""}},
		{"short key", map[string]string{"SKYWIDGET_SESSION_KEY": "short"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{"SKYWIDGET_AUTH_TIMEOUT", "SKYWIDGET_PROBE_POLICY", "SKYWIDGET_SESSION_STORE", "SKYWIDGET_REDIS_URL", "SKYWIDGET_SESSION_KEY"} {
				t.Setenv(k, "")
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
				t.Fatalf("err=%v want ErrConfig", err)
			}
		})
	}
}

func TestEnvCredentials(t *testing.T) {
	t.Setenv(EnvIdentifier, " alice.test ")
	t.Setenv(EnvSecret, "app-pass")
	t.Setenv(EnvBaseURL, "http://localhost:2583/")

	c, err := EnvCredentials{}.Credentials()
	if err != nil {
		t.Fatalf("Credentials() error: %v", err)
	}
	if c.Identifier != "alice.test" || c.Secret != "app-pass" || c.BaseURL != "http://localhost:2583" {
		t.Fatalf("creds=%+v", c)
	}

	t.Setenv(EnvBaseURL, "")
	if got := BaseURLFromEnv(); got != DefaultBaseURL {
		t.Fatalf("BaseURLFromEnv()=%q want %q", got, DefaultBaseURL)
	}

	t.Setenv(EnvSecret, "")
	if _, err := (EnvCredentials{}).Credentials(); !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("err=%v want ErrMissingConfig", err)
	}
}

func TestStaticCredentials_DefaultsBaseURL(t *testing.T) {
	t.Parallel()

	c, err := StaticCredentials{Identifier: "a", Secret: "b"}.Credentials()
	if err != nil {
		t.Fatalf("Credentials() error: %v", err)
	}
	if c.BaseURL != DefaultBaseURL {
		t.Fatalf("BaseURL=%q want %q", c.BaseURL, DefaultBaseURL)
	}
}
