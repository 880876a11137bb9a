package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"skywidget/cmd/internal/xrpc"
)

// Probe policy names accepted by ProbePolicyByName.
const (
	ProbePolicyOptimistic = "optimistic"
	ProbePolicyStrict     = "strict"
)

const nsidGetSession = "com.atproto.server.getSession"

// ProbePolicy classifies the outcome of a probe call. err is nil on 2xx.
// It returns true when the access credential should be considered valid.
type ProbePolicy func(err error) bool

// OptimisticProbe treats only a transport failure or an explicit 401 as invalid.
// Other non-2xx statuses keep the token so unrelated upstream errors do not
// discard a good session.
func OptimisticProbe(err error) bool {
	if err == nil {
		return true
	}
	status, ok := xrpc.StatusCode(err)
	if !ok {
		return false
	}
	return status != http.StatusUnauthorized
}

// StrictProbe extends OptimisticProbe: a 400 carrying ExpiredToken or
// InvalidToken and any 5xx are also invalid.
func StrictProbe(err error) bool {
	if !OptimisticProbe(err) {
		return false
	}
	if err == nil {
		return true
	}
	var he *xrpc.HTTPError
	if !errors.As(err, &he) {
		return true
	}
	if he.StatusCode >= 500 {
		return false
	}
	if he.StatusCode == http.StatusBadRequest {
		switch he.Name {
		case "ExpiredToken", "InvalidToken":
			return false
		}
	}
	return true
}

// ProbePolicyByName resolves a configured policy name.
func ProbePolicyByName(name string) (ProbePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProbePolicyOptimistic:
		return OptimisticProbe, nil
	case ProbePolicyStrict:
		return StrictProbe, nil
	default:
		return nil, fmt.Errorf("%w: unknown probe policy %q", ErrConfig, name)
	}
}

// Prober checks an access credential against getSession.
type Prober struct {
	api    *xrpc.Client
	policy ProbePolicy
	obs    Observer
	log    *slog.Logger
}

// NewProber builds a prober. A nil policy means OptimisticProbe.
func NewProber(api *xrpc.Client, policy ProbePolicy, obs Observer, log *slog.Logger) *Prober {
	if policy == nil {
		policy = OptimisticProbe
	}
	if log == nil {
		log = slog.Default()
	}
	return &Prober{api: api, policy: policy, obs: observerOrNop(obs), log: log}
}

// Valid reports whether access is still usable under the configured policy.
func (p *Prober) Valid(ctx context.Context, access string) bool {
	err := p.api.Query(ctx, nsidGetSession, nil, access, nil)
	ok := p.policy(err)
	p.obs.AuthAttempt(OpProbe, ok)

	switch {
	case err != nil && ok:
		p.log.Debug("session.probe.tolerated", "err", err)
	case !ok:
		p.log.Info("session.probe.invalid", "err", err)
	}
	return ok
}
