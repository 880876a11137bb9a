// Package fakesky is an in-process stand-in for the Bluesky XRPC endpoints
// skywidget calls: createSession, refreshSession, getSession and searchPosts.
//
// Tokens are HS256 JWTs so they look like the real ones on the wire. Every
// endpoint counts its calls, and tests can expire access tokens or revoke
// refresh tokens to drive the session manager through its recovery paths.
package fakesky
