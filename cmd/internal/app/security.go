package app

import (
	"errors"
	"fmt"

	"skywidget/cmd/internal/auth/session"
	"skywidget/cmd/security/seal"
	"skywidget/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// A weak fingerprint key or session key fails startup instead of degrading
// to an unkeyed digest or a plaintext record.
func ValidateSecurityConfig(cfg Config, sess session.Config) error {
	if sess.SealSecret != "" && len(sess.SealSecret) < seal.MinSecretBytes {
		return fmt.Errorf("security policy: SKYWIDGET_SESSION_KEY is too short (min %d bytes)", seal.MinSecretBytes)
	}

	if !cfg.RequireTokenHMAC {
		return nil
	}

	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: SKYWIDGET_REQUIRE_TOKEN_HMAC=true but SKYWIDGET_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: SKYWIDGET_REQUIRE_TOKEN_HMAC=true but SKYWIDGET_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: SKYWIDGET_REQUIRE_TOKEN_HMAC=true but fingerprints are not keyed")
	}

	return nil
}
