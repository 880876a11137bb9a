package session

// Attempt ops reported to Observer.AuthAttempt.
const (
	OpLogin   = "login"
	OpRefresh = "refresh"
	OpProbe   = "probe"
)

// Ensure paths reported to Observer.Ensure.
const (
	PathReuse   = "reuse"
	PathRefresh = "refresh"
	PathLogin   = "login"
	PathFailed  = "failed"
)

// Observer receives lifecycle events for metrics. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	// AuthAttempt records one upstream auth call. For probes ok means "valid".
	AuthAttempt(op string, ok bool)
	// Ensure records how one EnsureToken resolution ended.
	Ensure(path string)
	// Retry records a forced re-authentication after a failed downstream op.
	Retry()
}

type nopObserver struct{}

func (nopObserver) AuthAttempt(string, bool) {}
func (nopObserver) Ensure(string)            {}
func (nopObserver) Retry()                   {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
