package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory Store.
type memStore struct {
	mu    sync.Mutex
	s     Session
	ok    bool
	saves int
	err   error
}

func (m *memStore) Load(context.Context) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, m.ok
}

func (m *memStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.s, m.ok = s, true
	return nil
}

// fakeAuth scripts Login/Refresh results and counts calls.
type fakeAuth struct {
	logins    atomic.Int32
	refreshes atomic.Int32

	// loginGate, when set, blocks Login until closed. loginStarted is
	// signalled (non-blocking) when Login is entered.
	loginGate    chan struct{}
	loginStarted chan struct{}

	login   func(Credentials) (Session, error)
	refresh func(string) (Session, error)

	mu    sync.Mutex
	order []string
}

func (f *fakeAuth) record(op string) {
	f.mu.Lock()
	f.order = append(f.order, op)
	f.mu.Unlock()
}

func (f *fakeAuth) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *fakeAuth) Login(ctx context.Context, c Credentials) (Session, error) {
	f.logins.Add(1)
	f.record(OpLogin)
	if f.loginStarted != nil {
		select {
		case f.loginStarted <- struct{}{}:
		default:
		}
	}
	if f.loginGate != nil {
		select {
		case <-f.loginGate:
		case <-ctx.Done():
			return Session{}, loginFailed(ctx.Err(), "")
		}
	}
	if f.login == nil {
		return Session{}, loginFailed(nil, "no login scripted")
	}
	return f.login(c)
}

func (f *fakeAuth) Refresh(_ context.Context, refresh string) (Session, error) {
	f.refreshes.Add(1)
	f.record(OpRefresh)
	if f.refresh == nil {
		return Session{}, refreshFailed(nil, "no refresh scripted")
	}
	return f.refresh(refresh)
}

// fakeValidator answers probes from a fixed verdict.
type fakeValidator struct {
	valid  atomic.Bool
	probes atomic.Int32
}

func newValidator(valid bool) *fakeValidator {
	v := &fakeValidator{}
	v.valid.Store(valid)
	return v
}

func (v *fakeValidator) Valid(context.Context, string) bool {
	v.probes.Add(1)
	return v.valid.Load()
}

// countingObserver records Observer callbacks.
type countingObserver struct {
	mu      sync.Mutex
	ensures []string
	retries int
	attempt map[string]int
}

func (o *countingObserver) AuthAttempt(op string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt == nil {
		o.attempt = map[string]int{}
	}
	key := op + ":fail"
	if ok {
		key = op + ":ok"
	}
	o.attempt[key]++
}

func (o *countingObserver) Ensure(path string) {
	o.mu.Lock()
	o.ensures = append(o.ensures, path)
	o.mu.Unlock()
}

func (o *countingObserver) Retry() {
	o.mu.Lock()
	o.retries++
	o.mu.Unlock()
}

func (o *countingObserver) snapshot() ([]string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.ensures...), o.retries
}

var testCreds = StaticCredentials{Identifier: "alice.test", Secret: "app-pass", BaseURL: "http://upstream.invalid"}

func sessionOf(access, refresh, id string) Session {
	return Session{AccessToken: access, RefreshToken: refresh, AccountID: id}
}
