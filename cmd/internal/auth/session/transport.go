package session

import (
	"context"
	"log/slog"

	"skywidget/cmd/internal/xrpc"
	"skywidget/cmd/security/token"
)

const (
	nsidCreateSession  = "com.atproto.server.createSession"
	nsidRefreshSession = "com.atproto.server.refreshSession"
)

// sessionResponse is the shared createSession/refreshSession body.
// Fields beyond these are ignored.
type sessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Did        string `json:"did"`
	Handle     string `json:"handle,omitempty"`
}

func (r sessionResponse) session() Session {
	return Session{AccessToken: r.AccessJwt, RefreshToken: r.RefreshJwt, AccountID: r.Did}
}

// Transport performs the two session-minting calls and persists their results.
type Transport struct {
	api   *xrpc.Client
	store Store
	obs   Observer
	log   *slog.Logger
}

// NewTransport wires the upstream client and the record store. store may be nil
// (no persistence).
func NewTransport(api *xrpc.Client, store Store, obs Observer, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	return &Transport{api: api, store: store, obs: observerOrNop(obs), log: log}
}

// Login creates a new session with the identifier and password.
// Errors wrap ErrLoginFailed.
func (t *Transport) Login(ctx context.Context, creds Credentials) (Session, error) {
	body := struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}{Identifier: creds.Identifier, Password: creds.Secret}

	var resp sessionResponse
	err := t.api.WithBaseURL(creds.BaseURL).Procedure(ctx, nsidCreateSession, "", body, &resp)
	if err != nil {
		t.obs.AuthAttempt(OpLogin, false)
		t.log.Warn("session.login.fail", "identifier", creds.Identifier, "err", err)
		return Session{}, loginFailed(err, "")
	}

	s := resp.session()
	if !s.Valid() {
		t.obs.AuthAttempt(OpLogin, false)
		t.log.Warn("session.login.fail", "identifier", creds.Identifier, "reason", "incomplete_response")
		return Session{}, loginFailed(nil, "incomplete session in response")
	}

	t.obs.AuthAttempt(OpLogin, true)
	t.log.Info("session.login.ok", "account_id", s.AccountID, "handle", resp.Handle, "access_fp", token.Fingerprint(s.AccessToken))
	t.persist(ctx, s)
	return s, nil
}

// Refresh exchanges a refresh credential for a renewed session.
// Errors wrap ErrRefreshFailed.
func (t *Transport) Refresh(ctx context.Context, refresh string) (Session, error) {
	var resp sessionResponse
	if err := t.api.Procedure(ctx, nsidRefreshSession, refresh, nil, &resp); err != nil {
		t.obs.AuthAttempt(OpRefresh, false)
		t.log.Warn("session.refresh.fail", "refresh_fp", token.Fingerprint(refresh), "err", err)
		return Session{}, refreshFailed(err, "")
	}

	s := resp.session()
	if !s.Valid() {
		t.obs.AuthAttempt(OpRefresh, false)
		t.log.Warn("session.refresh.fail", "reason", "incomplete_response")
		return Session{}, refreshFailed(nil, "incomplete session in response")
	}

	t.obs.AuthAttempt(OpRefresh, true)
	t.log.Info("session.refresh.ok", "account_id", s.AccountID, "access_fp", token.Fingerprint(s.AccessToken))
	t.persist(ctx, s)
	return s, nil
}

func (t *Transport) persist(ctx context.Context, s Session) {
	if t.store == nil {
		return
	}
	if err := t.store.Save(ctx, s); err != nil {
		t.log.Error("session.persist.fail", "err", err)
	}
}
