package uloop

import "time"

// FdFlags is the fd interest/result flag set from spec.md §6: READ and
// WRITE are interest bits a caller requests; EOF and ERROR are reported by
// the Backend; EDGE_TRIGGER and BLOCKING are caller-requested; BUFFERED is
// the dispatcher-internal re-entrancy sentinel (spec.md §4.5).
type FdFlags uint32

const (
	FdRead FdFlags = 1 << iota
	FdWrite
	FdEdgeTrigger
	FdBlocking
	FdEOF
	FdError
	fdBuffered // dispatcher-internal only; never exposed to callers directly
)

// MaxEvents is the size of the dispatcher's pre-fetch batch, per spec.md §6.
const MaxEvents = 10

// IOEvent is one readiness record as fetched from the Backend: which fd
// became ready, and with what flags (including EOF/ERROR).
type IOEvent struct {
	Fd    int
	Flags FdFlags
}

// TimerHandle identifies an IntervalTimer registered with a Backend.
type TimerHandle int

// Backend is the readiness-multiplexer contract from spec.md §6. The core
// never assumes epoll or kqueue directly; epollBackend (poller_linux.go)
// and kqueueBackend (poller_darwin.go) are the two concrete
// implementations, both adapted from the teacher's FastPoller.
type Backend interface {
	// Init creates the underlying kernel handle (epoll_create1/kqueue).
	Init() error

	// RegisterPoll adds fd to the interest set, or modifies it if already
	// registered, with the given flags (READ/WRITE/EDGE_TRIGGER subset).
	RegisterPoll(fd int, flags FdFlags) error

	// Delete removes fd from the interest set. Deleting an fd that isn't
	// registered is not an error (mirrors spec.md §4.5's fd_delete, which
	// tolerates redundant deletes).
	Delete(fd int) error

	// Fetch blocks up to timeoutMs milliseconds and fills out with up to
	// len(out) ready events (each with EOF/ERROR bits set as observed),
	// returning the count filled.
	Fetch(out []IOEvent, timeoutMs int) (int, error)

	// Close releases the kernel handle. Safe to call once; subsequent
	// calls are no-ops.
	Close() error

	// TimerRegister creates a recurring interval timer delegated to the
	// Backend (spec.md §3's IntervalTimer), firing no core callback by
	// itself — callers observe it only through TimerNext's remaining-time
	// read, exactly as spec.md §4 scopes it.
	TimerRegister(interval time.Duration) (TimerHandle, error)

	// TimerRemove releases a timer obtained from TimerRegister.
	TimerRemove(TimerHandle) error

	// TimerNext returns the remaining time until the timer's next firing.
	TimerNext(TimerHandle) (time.Duration, error)
}
