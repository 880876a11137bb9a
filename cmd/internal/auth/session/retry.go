package session

import (
	"context"
)

// Op is a downstream call authorized by an access credential.
type Op[T any] func(ctx context.Context, access string) (T, error)

// CallWithRetry runs op with a lazily ensured credential. If op fails, it forces
// re-authentication once and runs op exactly one more time, returning that
// result. If the forced re-authentication itself fails, the first op error is
// returned. An initial ensure failure is returned without calling op.
func CallWithRetry[T any](ctx context.Context, m *Manager, op Op[T]) (T, error) {
	var zero T

	access, err := m.EnsureToken(ctx, false)
	if err != nil {
		return zero, err
	}

	out, opErr := op(ctx, access)
	if opErr == nil {
		return out, nil
	}

	m.obs.Retry()
	m.log.Info("session.retry", "err", opErr)

	access, err = m.EnsureToken(ctx, true)
	if err != nil {
		m.log.Warn("session.retry.reauth_fail", "err", err)
		return zero, opErr
	}
	return op(ctx, access)
}
