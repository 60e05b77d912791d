// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package uloop

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// SignalSubscription describes one caller's interest in a signal number.
// SignalManager does not use this type: SignalAdd stores each subscription
// as a signalEntry in an arena (handle.go) rather than as an intrusive
// list node, per spec.md §9, and returns its Handle.
type SignalSubscription struct {
	signo int
	cb    func(os.Signal)
}

type signalEntry struct {
	signo   int
	cb      func(os.Signal)
	pending bool
}

// SignalManager is the self-pipe waker plus signal bookkeeping from
// spec.md §4.3/§4.4. Grounded on the teacher's FastPoller wake-fd handling
// (wakeup_linux.go/wakeup_darwin.go) for the pipe itself; the "signal
// handler" that spec.md assumes is realized here as a dedicated goroutine
// relaying os/signal.Notify into the pipe, since Go forbids arbitrary code
// (including a non-trivial write-with-retry loop) inside a true OS signal
// handler — os/signal.Notify's channel delivery is this port's
// async-signal-safe boundary (spec.md §9).
type SignalManager struct {
	dispatcher *FdDispatcher
	readFd     int
	writeFd    int

	relayCh   chan os.Signal
	stopRelay chan struct{}

	slots arena[signalEntry]
	order []Handle // sorted ascending by signo; ties are FIFO by insertion

	refcount map[int]int // signo -> number of reasons it's been Notify'd

	logger *Logger

	// OnCancel is invoked for SIGINT/SIGTERM with the signal number, before
	// any matching user subscriptions fire (spec.md §4.4).
	OnCancel func(signo int)

	// OnSIGCHLD is invoked when SIGCHLD is observed, before any matching
	// user subscriptions fire (spec.md §4.4).
	OnSIGCHLD func()
}

// coreSignals are always relayed by the loop itself, independent of any
// user SignalAdd calls (spec.md §4.4/§6).
var coreSignals = []int{int(unix.SIGINT), int(unix.SIGTERM), int(unix.SIGCHLD)}

// NewSignalManager creates the waker pipe and registers its read end with
// dispatcher, wiring in signal_consume (spec.md §4.3).
func NewSignalManager(dispatcher *FdDispatcher, logger *Logger) (*SignalManager, error) {
	readFd, writeFd, err := newSelfPipe()
	if err != nil {
		return nil, err
	}

	m := &SignalManager{
		dispatcher: dispatcher,
		readFd:     readFd,
		writeFd:    writeFd,
		relayCh:    make(chan os.Signal, 64),
		stopRelay:  make(chan struct{}),
		refcount:   make(map[int]int),
		logger:     logger,
	}

	if err := dispatcher.FdAdd(readFd, FdRead|FdEdgeTrigger, m.consume); err != nil {
		_ = closeFD(readFd)
		_ = closeFD(writeFd)
		return nil, err
	}

	go m.relay()

	signal.Ignore(unix.SIGPIPE)
	for _, signo := range coreSignals {
		m.install(signo)
	}

	return m, nil
}

// relay is the async-signal-safe boundary substitute from spec.md §9: it
// blocks on os/signal.Notify's channel (the only context Go permits doing
// real work in response to a signal) and writes one byte per signal number
// to the waker, retrying on EINTR and otherwise ignoring write errors, per
// spec.md §4.3.
func (m *SignalManager) relay() {
	for {
		select {
		case sig, ok := <-m.relayCh:
			if !ok {
				return
			}
			signo, ok := sig.(unix.Signal)
			if !ok {
				continue
			}
			buf := [1]byte{byte(signo)}
			for {
				_, err := writeFD(m.writeFd, buf[:])
				if err == unix.EINTR {
					continue
				}
				break
			}
		case <-m.stopRelay:
			return
		}
	}
}

// install calls signal.Notify for signo the first time it's needed, and
// tracks a refcount so SignalDelete can tell when it's safe to restore the
// prior disposition (spec.md §4.4's "only restore if still ours", adapted:
// os/signal.Notify is additive across callers, so this package's refcount
// stands in for "is the waker still the only thing asking for this
// signal").
func (m *SignalManager) install(signo int) {
	if m.refcount[signo] == 0 {
		signal.Notify(m.relayCh, unix.Signal(signo))
	}
	m.refcount[signo]++
}

// uninstall drops a reference, restoring default disposition (or ignore,
// for SIGPIPE) once nothing references signo anymore.
func (m *SignalManager) uninstall(signo int) {
	m.refcount[signo]--
	if m.refcount[signo] > 0 {
		return
	}
	delete(m.refcount, signo)
	if signo == int(unix.SIGPIPE) {
		signal.Stop(m.relayCh)
		signal.Ignore(unix.SIGPIPE)
		for s := range m.refcount {
			signal.Notify(m.relayCh, unix.Signal(s))
		}
		return
	}
	signal.Reset(unix.Signal(signo))
}

// SignalAdd subscribes cb to signo, per spec.md §4.4's signal_add.
func (m *SignalManager) SignalAdd(signo int, cb func(os.Signal)) (Handle, error) {
	h := m.slots.insert(signalEntry{signo: signo, cb: cb})
	e, _ := m.slots.get(h)
	e.pending = true
	m.insertSorted(h, signo)
	m.install(signo)
	return h, nil
}

// SignalDelete unsubscribes h, restoring the signal's prior disposition if
// nothing else still references it.
func (m *SignalManager) SignalDelete(h Handle) error {
	e, ok := m.slots.get(h)
	if !ok || !e.pending {
		return ErrNotPending
	}
	signo := e.signo
	e.pending = false
	m.unlink(h)
	m.slots.remove(h)
	m.uninstall(signo)
	return nil
}

func (m *SignalManager) insertSorted(h Handle, signo int) {
	pos := len(m.order)
	for i, oh := range m.order {
		oe, _ := m.slots.get(oh)
		if oe.signo > signo {
			pos = i
			break
		}
	}
	m.order = append(m.order, Handle{})
	copy(m.order[pos+1:], m.order[pos:])
	m.order[pos] = h
}

func (m *SignalManager) unlink(h Handle) {
	for i, oh := range m.order {
		if oh == h {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// consume is signal_consume from spec.md §4.3: drains the waker pipe,
// collecting signal numbers into a bitmask, then dispatches in ascending
// signo order — core handling (cancellation, SIGCHLD flag) first, then any
// matching user subscriptions — all from loop context rather than signal
// context.
func (m *SignalManager) consume(fd int, fired FdFlags) {
	var pending uint64
	var buf [64]byte
	for {
		n, err := readFD(m.readFd, buf[:])
		for i := 0; i < n; i++ {
			signo := int(buf[i])
			if signo >= 1 && signo <= 64 {
				pending |= 1 << uint(signo-1)
			}
		}
		if err != nil || n == 0 {
			break
		}
	}
	if pending == 0 {
		return
	}

	for signo := 1; signo <= 64; signo++ {
		if pending&(1<<uint(signo-1)) == 0 {
			continue
		}

		switch signo {
		case int(unix.SIGCHLD):
			if m.OnSIGCHLD != nil {
				m.OnSIGCHLD()
			}
		case int(unix.SIGINT), int(unix.SIGTERM):
			if m.OnCancel != nil {
				m.OnCancel(signo)
			}
		}

		for _, h := range m.order {
			e, ok := m.slots.get(h)
			if !ok || e.signo != signo {
				continue
			}
			if e.cb != nil {
				e.cb(unix.Signal(signo))
			}
		}
	}
}

// Close tears down the signal manager per spec.md §4.8: restores every
// installed disposition, stops the relay goroutine, and closes both ends
// of the waker pipe.
func (m *SignalManager) Close() error {
	for signo := range m.refcount {
		if signo == int(unix.SIGPIPE) {
			continue
		}
		signal.Reset(unix.Signal(signo))
	}
	signal.Ignore(unix.SIGPIPE) // leave the process-wide ignore in place, matching C uloop_done
	signal.Stop(m.relayCh)
	close(m.stopRelay)

	_ = m.dispatcher.FdDelete(m.readFd)
	err1 := closeFD(m.readFd)
	err2 := closeFD(m.writeFd)
	if err1 != nil {
		return err1
	}
	return err2
}

// Poke pokes the waker to break an in-progress Backend wait, used by
// Loop.End (spec.md §4.7) to unblock run_events without needing a real
// signal.
func (m *SignalManager) Poke() {
	buf := [1]byte{0}
	_, _ = writeFD(m.writeFd, buf[:])
}
