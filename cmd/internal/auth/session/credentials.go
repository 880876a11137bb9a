package session

import (
	"os"
	"strings"
)

const (
	// DefaultBaseURL is the upstream origin used when BLUESKY_BASE_URL is unset.
	DefaultBaseURL = "https://bsky.social"

	// #nosec G101 -- environment variable names, not credentials.
	EnvIdentifier = "BLUESKY_USERNAME"
	EnvSecret     = "BLUESKY_PASSWORD"
	EnvBaseURL    = "BLUESKY_BASE_URL"
)

// Credentials are the inputs to Login.
type Credentials struct {
	Identifier string
	Secret     string
	BaseURL    string
}

// CredentialSource yields login credentials on demand.
type CredentialSource interface {
	Credentials() (Credentials, error)
}

// EnvCredentials reads credentials from the process environment at call time.
type EnvCredentials struct{}

// Credentials returns ErrMissingConfig when identifier or secret is unset.
func (EnvCredentials) Credentials() (Credentials, error) {
	return StaticCredentials{
		Identifier: strings.TrimSpace(os.Getenv(EnvIdentifier)),
		Secret:     os.Getenv(EnvSecret),
		BaseURL:    BaseURLFromEnv(),
	}.Credentials()
}

// BaseURLFromEnv returns BLUESKY_BASE_URL or DefaultBaseURL.
func BaseURLFromEnv() string {
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		return strings.TrimRight(v, "/")
	}
	return DefaultBaseURL
}

// StaticCredentials is a fixed CredentialSource (tests, embedding).
type StaticCredentials Credentials

// Credentials validates and returns the fixed values.
func (s StaticCredentials) Credentials() (Credentials, error) {
	if s.Identifier == "" || s.Secret == "" {
		return Credentials{}, ErrMissingConfig
	}
	c := Credentials(s)
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	return c, nil
}
