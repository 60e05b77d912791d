package uloop

import (
	"errors"
	"fmt"
)

// Sentinel errors at the core boundary, matching spec §7's error kinds.
// Match with [errors.Is]; SystemCallFailure paths wrap the originating
// syscall.Errno via [WrapError] instead of being returned bare.
var (
	// ErrAlreadyPending is returned by TimeoutQueue.Add when the timeout is
	// already linked into the queue. ProcessAdd and SignalAdd create a
	// fresh subscription on every call and never return it.
	ErrAlreadyPending = errors.New("uloop: already pending")

	// ErrNotPending is returned when cancelling a timeout, process, or
	// signal subscription that isn't currently linked.
	ErrNotPending = errors.New("uloop: not pending")

	// ErrBackendFailure wraps a failure of the readiness Backend's own
	// syscalls (epoll/kqueue setup, registration, or fetch).
	ErrBackendFailure = errors.New("uloop: backend failure")

	// ErrSystemCallFailure wraps a failure from a supporting syscall (pipe
	// creation, fcntl, timerfd).
	ErrSystemCallFailure = errors.New("uloop: system call failure")

	// ErrLoopTerminated names the condition of a loop whose Done has
	// already run. No operation in this package returns it: Loop methods
	// that reach a manager (timeouts, fds, signals, processes) dereference
	// the managers Done released and panic instead.
	ErrLoopTerminated = errors.New("uloop: loop has been torn down")

	// ErrReentrantRun is returned when Init is called twice without an
	// intervening Done. It is also the sentinel RunTimeout panics with
	// (via WrapError) when called from a goroutine other than the one
	// already running the loop, since that violates the same
	// single-owner contract from the other direction.
	ErrReentrantRun = errors.New("uloop: loop already initialized")
)

// WrapError wraps cause under a sentinel so errors.Is(result, sentinel)
// holds while still carrying the originating message.
//
// This is the one error-construction helper this package needs; the
// teacher's JavaScript-flavored TypeError/RangeError/AggregateError family
// has no analogue in this domain (there are no type coercions or
// multi-error combinators here) and is not reused.
func WrapError(sentinel error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
