package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestManager(cache *Cache, creds CredentialSource, auth Authenticator, v Validator, obs Observer) *Manager {
	return NewManager(cache, creds, auth, v,
		WithObserver(obs),
		WithLogger(discardLogger()),
		WithFlightTimeout(5*time.Second),
	)
}

func TestEnsureToken_EmptyCacheLogsIn(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	auth := &fakeAuth{login: func(Credentials) (Session, error) { return sessionOf("A1", "R1", "u1"), nil }}
	cache := NewCache(store.Load(context.Background()))
	m := newTestManager(cache, testCreds, auth, newValidator(true), nil)

	got, err := m.EnsureToken(context.Background(), false)
	if err != nil {
		t.Fatalf("EnsureToken() error: %v", err)
	}
	if got != "A1" {
		t.Fatalf("token=%q want %q", got, "A1")
	}
	s, ok := m.Snapshot()
	if !ok || s != sessionOf("A1", "R1", "u1") {
		t.Fatalf("cache=%+v ok=%v", s, ok)
	}
}

func TestEnsureToken_SingleFlight(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{
		loginGate:    make(chan struct{}),
		loginStarted: make(chan struct{}, 1),
		login:        func(Credentials) (Session, error) { return sessionOf("A1", "R1", "u1"), nil },
	}
	m := newTestManager(NewCache(Session{}, false), testCreds, auth, newValidator(true), nil)

	const n = 32
	results := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.EnsureToken(context.Background(), false)
		}(i)
	}

	<-auth.loginStarted
	time.Sleep(20 * time.Millisecond)
	close(auth.loginGate)
	wg.Wait()

	if got := auth.logins.Load(); got != 1 {
		t.Fatalf("logins=%d want 1", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if results[i] != "A1" {
			t.Fatalf("caller %d token=%q want %q", i, results[i], "A1")
		}
	}
}

func TestEnsureToken_ReusesValidSession(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{}
	v := newValidator(true)
	obs := &countingObserver{}
	m := newTestManager(NewCache(sessionOf("A0", "R0", "u1"), true), testCreds, auth, v, obs)

	got, err := m.EnsureToken(context.Background(), false)
	if err != nil {
		t.Fatalf("EnsureToken() error: %v", err)
	}
	if got != "A0" {
		t.Fatalf("token=%q want %q", got, "A0")
	}
	if v.probes.Load() != 1 {
		t.Fatalf("probes=%d want 1", v.probes.Load())
	}
	if auth.logins.Load() != 0 || auth.refreshes.Load() != 0 {
		t.Fatalf("logins=%d refreshes=%d want 0/0", auth.logins.Load(), auth.refreshes.Load())
	}
	if ensures, _ := obs.snapshot(); len(ensures) != 1 || ensures[0] != PathReuse {
		t.Fatalf("ensures=%v want [%s]", ensures, PathReuse)
	}
}

func TestEnsureToken_RefreshBeforeLogin(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{
		refresh: func(r string) (Session, error) {
			if r != "R1" {
				t.Errorf("refresh credential=%q want %q", r, "R1")
			}
			return sessionOf("A2", "R2", "u1"), nil
		},
		login: func(Credentials) (Session, error) { return sessionOf("AX", "RX", "u1"), nil },
	}
	m := newTestManager(NewCache(sessionOf("A1", "R1", "u1"), true), testCreds, auth, newValidator(false), nil)

	got, err := m.EnsureToken(context.Background(), false)
	if err != nil {
		t.Fatalf("EnsureToken() error: %v", err)
	}
	if got != "A2" {
		t.Fatalf("token=%q want %q", got, "A2")
	}
	if auth.logins.Load() != 0 {
		t.Fatalf("logins=%d want 0", auth.logins.Load())
	}
	if auth.refreshes.Load() != 1 {
		t.Fatalf("refreshes=%d want 1", auth.refreshes.Load())
	}
	if s, _ := m.Snapshot(); s != sessionOf("A2", "R2", "u1") {
		t.Fatalf("cache=%+v want A2/R2/u1", s)
	}
}

func TestEnsureToken_RefreshFailureFallsBackToLogin(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{
		login: func(Credentials) (Session, error) { return sessionOf("A3", "R3", "u1"), nil },
	}
	m := newTestManager(NewCache(sessionOf("A1", "R1", "u1"), true), testCreds, auth, newValidator(false), nil)

	got, err := m.EnsureToken(context.Background(), false)
	if err != nil {
		t.Fatalf("EnsureToken() error: %v", err)
	}
	if got != "A3" {
		t.Fatalf("token=%q want %q", got, "A3")
	}
	calls := auth.calls()
	if len(calls) != 2 || calls[0] != OpRefresh || calls[1] != OpLogin {
		t.Fatalf("calls=%v want [refresh login]", calls)
	}
}

func TestEnsureToken_LoginFailureLeavesCacheUntouched(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{
		login: func(Credentials) (Session, error) { return Session{}, loginFailed(nil, "HTTP 401") },
	}
	m := newTestManager(NewCache(sessionOf("A1", "R1", "u1"), true), testCreds, auth, newValidator(false), nil)

	_, err := m.EnsureToken(context.Background(), false)
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("err=%v want ErrLoginFailed", err)
	}
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("err=%T want *AuthError", err)
	}
	if s, ok := m.Snapshot(); !ok || s != sessionOf("A1", "R1", "u1") {
		t.Fatalf("cache=%+v ok=%v want untouched", s, ok)
	}
}

func TestEnsureToken_MissingConfig(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{}
	m := newTestManager(NewCache(Session{}, false), StaticCredentials{}, auth, newValidator(true), nil)

	_, err := m.EnsureToken(context.Background(), false)
	if !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("err=%v want ErrMissingConfig", err)
	}
	if auth.logins.Load() != 0 {
		t.Fatalf("logins=%d want 0", auth.logins.Load())
	}
}

func TestEnsureToken_ForceSkipsProbe(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{refresh: func(string) (Session, error) { return sessionOf("A2", "R2", "u1"), nil }}
	v := newValidator(true)
	m := newTestManager(NewCache(sessionOf("A1", "R1", "u1"), true), testCreds, auth, v, nil)

	got, err := m.EnsureToken(context.Background(), true)
	if err != nil {
		t.Fatalf("EnsureToken(force) error: %v", err)
	}
	if got != "A2" {
		t.Fatalf("token=%q want %q", got, "A2")
	}
	if v.probes.Load() != 0 {
		t.Fatalf("probes=%d want 0", v.probes.Load())
	}
	if auth.refreshes.Load() != 1 {
		t.Fatalf("refreshes=%d want 1", auth.refreshes.Load())
	}
}

func TestEnsureToken_LoginPersistsAndRoundTrips(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/session.json"
	store := NewRecordStore(NewFileStore(path), nil, discardLogger())

	auth := &fakeAuth{login: func(Credentials) (Session, error) {
		s := sessionOf("A1", "R1", "u1")
		return s, store.Save(context.Background(), s)
	}}
	m := newTestManager(NewCache(store.Load(context.Background())), testCreds, auth, newValidator(true), nil)

	got, err := m.EnsureToken(context.Background(), false)
	if err != nil {
		t.Fatalf("EnsureToken() error: %v", err)
	}
	if got != "A1" {
		t.Fatalf("token=%q want %q", got, "A1")
	}

	reloaded, ok := NewRecordStore(NewFileStore(path), nil, discardLogger()).Load(context.Background())
	if !ok || reloaded != sessionOf("A1", "R1", "u1") {
		t.Fatalf("reloaded=%+v ok=%v", reloaded, ok)
	}
}

func TestEnsureToken_CancelledCallerDoesNotFailFlight(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{
		loginGate:    make(chan struct{}),
		loginStarted: make(chan struct{}, 1),
		login:        func(Credentials) (Session, error) { return sessionOf("A1", "R1", "u1"), nil },
	}
	m := newTestManager(NewCache(Session{}, false), testCreds, auth, newValidator(true), nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := m.EnsureToken(ctx, false)
		first <- err
	}()
	<-auth.loginStarted

	second := make(chan string, 1)
	go func() {
		tok, _ := m.EnsureToken(context.Background(), false)
		second <- tok
	}()

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("first err=%v want context.Canceled", err)
	}

	close(auth.loginGate)
	if tok := <-second; tok != "A1" {
		t.Fatalf("second token=%q want %q", tok, "A1")
	}
	if auth.logins.Load() != 1 {
		t.Fatalf("logins=%d want 1", auth.logins.Load())
	}
}
