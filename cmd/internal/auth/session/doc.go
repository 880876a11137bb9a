// Package session owns the upstream (Bluesky) authentication session for the
// whole process.
//
// It acquires, caches, validates, refreshes and recovers one session shared by
// every request handler:
//
//   - Credential Source: identifier/secret/base URL from the environment.
//   - Persistence: one record, whole-blob load/save (file, redis or postgres),
//     optionally sealed at rest.
//   - Transport: Login (createSession) and Refresh (refreshSession); both persist
//     the new session before returning it.
//   - Prober: a cheap authenticated call (getSession) classified by a named policy.
//   - Cache: the single in-memory copy, mutated only under exclusive access.
//   - Manager.EnsureToken: reuse, else refresh, else login. Concurrent callers
//     collapse onto one in-flight resolution.
//   - CallWithRetry: one forced re-authentication and one retry per request.
//
// Access and refresh tokens are opaque. They are never parsed and only ever
// logged as fingerprints (see security/token).
package session
