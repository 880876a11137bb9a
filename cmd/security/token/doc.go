// Package token fingerprints upstream credentials.
//
// Access and refresh tokens issued by the upstream API are opaque to skywidget and
// must never be written to logs or HTTP responses. A fingerprint is a short, stable
// digest that lets operators correlate log lines ("was this the same token?")
// without exposing the token itself.
//
// Environment:
//   - SKYWIDGET_TOKEN_HMAC_KEY: when set, fingerprints are HMAC-SHA256(token, key);
//     otherwise SHA-256(token).
//
// Policy:
//   - If the app requires HMAC fingerprints, callers enforce a minimum key size
//     (>= 32 bytes) through HMACKeyFromEnv.
package token
