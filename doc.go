// Package uloop provides a single-threaded, Unix-only event loop: file
// descriptor readiness, monotonic timeouts, POSIX signal handling, and
// child-process reaping, multiplexed on top of epoll (Linux) or kqueue
// (Darwin/BSD).
//
// # Architecture
//
// A [Loop] owns one readiness [Backend] (epoll or kqueue, chosen at build
// time), an [FdDispatcher] that batches and dispatches fd readiness, a
// [TimeoutQueue] of monotonic deadlines, a [SignalManager] that relays
// POSIX signals through a self-pipe, and a [ProcessReaper] that reaps
// children on SIGCHLD. All five are driven from a single goroutine inside
// [Loop.RunTimeout]; there is no internal locking because spec.md's source
// design assumes, and this port preserves, strictly single-threaded
// cooperative scheduling.
//
// # Platform support
//
// Only Linux (epoll) and Darwin/BSD (kqueue) are supported, matching the
// self-pipe/epoll/kqueue lineage this package is ported from. There is no
// Windows backend.
//
// # Thread safety
//
// Exactly one goroutine may call Init, RunTimeout, End, Done, or any
// Add/Delete method at a time. Callbacks registered with the loop run on
// that same goroutine; RunTimeout panics if called from a different
// goroutine than the one already running it. This is a deliberate
// divergence from a concurrent, multi-goroutine design: the library this
// one is modeled on is single-threaded by contract, and carrying that
// contract forward is what makes the fd dispatcher's re-entrancy
// handling and the timeout queue's FIFO tie-break sound without any
// synchronization.
//
// # Usage
//
//	loop, err := uloop.New(uloop.WithLogger(nil))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := loop.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Done()
//
//	timeout := loop.NewTimeout(func() {
//	    fmt.Println("fired")
//	    loop.End()
//	})
//	loop.TimeoutSet(timeout, 100)
//
//	loop.Run()
package uloop
