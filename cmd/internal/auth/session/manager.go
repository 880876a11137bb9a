package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"skywidget/cmd/security/token"

	"golang.org/x/sync/singleflight"
)

// Authenticator mints sessions. *Transport implements it.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
	Refresh(ctx context.Context, refresh string) (Session, error)
}

// Validator checks an access credential. *Prober implements it.
type Validator interface {
	Valid(ctx context.Context, access string) bool
}

const (
	flightLazy  = "lazy"
	flightForce = "force"
)

// DefaultFlightTimeout bounds one resolution when no timeout is configured.
const DefaultFlightTimeout = 15 * time.Second

// Manager resolves a usable access credential for every request.
//
// Concurrent callers asking for the same mode share one in-flight resolution;
// all resolutions additionally run one at a time inside the cache's exclusive
// section, so there is never more than one login, refresh or probe outstanding.
type Manager struct {
	cache     *Cache
	creds     CredentialSource
	auth      Authenticator
	validator Validator

	group   singleflight.Group
	timeout time.Duration
	obs     Observer
	log     *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithObserver reports ensure outcomes and retries.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) { m.obs = observerOrNop(o) }
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithFlightTimeout bounds one resolution (probe + refresh + login).
func WithFlightTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewManager wires the orchestrator.
func NewManager(cache *Cache, creds CredentialSource, auth Authenticator, validator Validator, opts ...ManagerOption) *Manager {
	m := &Manager{
		cache:     cache,
		creds:     creds,
		auth:      auth,
		validator: validator,
		timeout:   DefaultFlightTimeout,
		obs:       nopObserver{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot exposes the cached session for status reporting.
func (m *Manager) Snapshot() (Session, bool) {
	return m.cache.Snapshot()
}

// EnsureToken returns an access credential: the cached one if it still probes
// valid (unless force), else a refreshed one, else a fresh login.
//
// The resolution runs detached from ctx so one caller giving up does not fail
// the others sharing the flight; a cancelled caller returns ctx.Err().
func (m *Manager) EnsureToken(ctx context.Context, force bool) (string, error) {
	key := flightLazy
	if force {
		key = flightForce
	}

	ch := m.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return m.resolve(fctx, force)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) resolve(ctx context.Context, force bool) (string, error) {
	var access, path string

	err := m.cache.WithExclusiveAccess(ctx, func(slot *Slot) error {
		cached, ok := slot.Current()

		if ok && !force && m.validator.Valid(ctx, cached.AccessToken) {
			access, path = cached.AccessToken, PathReuse
			return nil
		}

		if ok {
			s, err := m.auth.Refresh(ctx, cached.RefreshToken)
			if err == nil {
				slot.Replace(s)
				access, path = s.AccessToken, PathRefresh
				return nil
			}
			m.log.Info("session.ensure.fallback_login", "account_id", cached.AccountID, "err", err)
		}

		creds, err := m.creds.Credentials()
		if err != nil {
			return err
		}
		s, err := m.auth.Login(ctx, creds)
		if err != nil {
			return err
		}
		slot.Replace(s)
		access, path = s.AccessToken, PathLogin
		return nil
	})
	if err != nil {
		m.obs.Ensure(PathFailed)
		lvl := slog.LevelWarn
		if errors.Is(err, ErrMissingConfig) {
			lvl = slog.LevelError
		}
		m.log.Log(ctx, lvl, "session.ensure.fail", "force", force, "err", err)
		return "", err
	}

	m.obs.Ensure(path)
	m.log.Debug("session.ensure.ok", "force", force, "path", path, "access_fp", token.Fingerprint(access))
	return access, nil
}
