// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string form ($argon2id$v=19$m=..,t=..,p=..$salt$key).
// Encoded hashes are untrusted input: Verify refuses parameters far above the
// verifier's own configuration.
package password
