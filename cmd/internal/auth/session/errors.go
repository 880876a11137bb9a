package session

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingConfig is returned when the identifier or secret is not configured.
	// It is fatal for any call that needs credentials and is never retried.
	ErrMissingConfig = errors.New("missing credentials config")

	// ErrLoginFailed is returned when createSession fails or returns an unusable body.
	ErrLoginFailed = errors.New("login failed")

	// ErrRefreshFailed is returned when refreshSession fails or returns an unusable body.
	ErrRefreshFailed = errors.New("refresh failed")

	// ErrPersist is returned when a session record cannot be written.
	ErrPersist = errors.New("session persist failed")

	// ErrNoRecord is returned by a BlobStore when no record exists yet.
	ErrNoRecord = errors.New("no session record")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// AuthError is a failed login or refresh.
// Kind is ErrLoginFailed or ErrRefreshFailed; Err is the underlying cause (may be nil).
type AuthError struct {
	Op     string
	Kind   error
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func loginFailed(err error, detail string) error {
	return &AuthError{Op: "session.login", Kind: ErrLoginFailed, Detail: detail, Err: err}
}

func refreshFailed(err error, detail string) error {
	return &AuthError{Op: "session.refresh", Kind: ErrRefreshFailed, Detail: detail, Err: err}
}

// PersistError reports a failed save. It never invalidates the in-memory cache.
type PersistError struct {
	Backend string
	Err     error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%v (%s): %v", ErrPersist, e.Backend, e.Err)
}

func (e *PersistError) Unwrap() []error { return []error{ErrPersist, e.Err} }

// IsAuthFailure reports whether err is a login or refresh failure.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrLoginFailed) || errors.Is(err, ErrRefreshFailed)
}
