package widget

import "time"

// frameLimiter admits at most limit client frames in any window. It is owned
// by one connection's read loop and is not safe for concurrent use.
type frameLimiter struct {
	seen   []time.Time // ring of the last limit admissions
	next   int
	window time.Duration
}

func newFrameLimiter(limit int, window time.Duration) *frameLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &frameLimiter{seen: make([]time.Time, limit), window: window}
}

// Allow records a frame at now unless the oldest of the last limit frames is
// still inside the window.
func (l *frameLimiter) Allow(now time.Time) bool {
	oldest := l.seen[l.next]
	if !oldest.IsZero() && now.Sub(oldest) < l.window {
		return false
	}
	l.seen[l.next] = now
	l.next = (l.next + 1) % len(l.seen)
	return true
}
