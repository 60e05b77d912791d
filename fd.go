package uloop

// FdCallback is invoked with the fd and the fired flag subset
// (READ|WRITE|EOF|ERROR), per spec.md §3's FdRegistration callback shape.
type FdCallback func(fd int, fired FdFlags)

// fdRecord is the dispatcher's private bookkeeping for one registered fd.
// Unlike the teacher's fdInfo (poller_linux.go), which is addressed by a
// caller-owned socket struct threaded through the Backend, here the fd
// itself is the only identity a caller needs to hold — satisfying
// spec.md §9's "no raw pointers into caller memory" without needing an
// arena, since an int is already a safe, copyable handle.
type fdRecord struct {
	flags      FdFlags
	cb         FdCallback
	registered bool
}

// dispatchFrame is one entry in the re-entrancy stack from spec.md §4.5:
// while fd's callback is executing, a frame guards against recursing back
// into it, buffering any same-fd readiness observed in the interim instead.
type dispatchFrame struct {
	fd     int // -1 once the fd has been deleted out from under this frame
	events FdFlags
}

// FdDispatcher batches Backend readiness events and dispatches them to
// per-fd callbacks, implementing spec.md §4.5 in full: batch/cursor
// bookkeeping, deletion-safety scrubbing, and edge-triggered re-entrancy
// buffering via a frame stack. Grounded on the teacher's FastPoller
// dispatch loop (poller_linux.go/poller_darwin.go dispatchEvents), adapted
// from "one backend, inline callbacks" to "batch held across calls, one
// callback per RunEvents call" per spec.md §4.5's batch policy.
type FdDispatcher struct {
	backend   Backend
	regs      map[int]*fdRecord
	batch     []IOEvent
	cursor    int
	stack     []*dispatchFrame
	maxEvents int

	// SetCB mirrors spec.md §4.5's optional fd_set_cb hook, invoked after
	// every successful FdAdd/FdDelete with the fd's resulting flags (0 on
	// delete). Nil by default.
	SetCB func(fd int, flags FdFlags)
}

// NewFdDispatcher wraps backend (already Init'd) in a dispatcher. maxEvents
// overrides the pre-fetch batch size of spec.md §6's MAX_EVENTS (10 if <=0).
func NewFdDispatcher(backend Backend, maxEvents int) *FdDispatcher {
	if maxEvents <= 0 {
		maxEvents = MaxEvents
	}
	return &FdDispatcher{backend: backend, regs: make(map[int]*fdRecord), maxEvents: maxEvents}
}

// FdAdd registers fd for the given interest flags and callback, per
// spec.md §4.5. If flags has neither READ nor WRITE set, this is
// equivalent to FdDelete(fd). Newly-registered fds are forced
// non-blocking unless BLOCKING was requested.
func (d *FdDispatcher) FdAdd(fd int, flags FdFlags, cb FdCallback) error {
	if flags&(FdRead|FdWrite) == 0 {
		return d.FdDelete(fd)
	}

	rec, existed := d.regs[fd]
	if !existed {
		rec = &fdRecord{}
		d.regs[fd] = rec
	}

	if !rec.registered && flags&FdBlocking == 0 {
		if err := setNonblocking(fd); err != nil {
			return WrapError(ErrSystemCallFailure, err)
		}
	}

	if err := d.backend.RegisterPoll(fd, flags); err != nil {
		return err
	}

	rec.flags = flags
	rec.cb = cb
	rec.registered = true

	if d.SetCB != nil {
		d.SetCB(fd, flags)
	}
	return nil
}

// FdDelete unregisters fd. Safe to call from within fd's own callback
// (spec.md §4.5's core deletion-safety guarantee): any queued batch
// entries for fd are scrubbed, and an active dispatch frame for fd is
// marked dead so its re-entrant loop (see dispatchOne) terminates
// without touching fd again.
func (d *FdDispatcher) FdDelete(fd int) error {
	for i := range d.batch {
		if d.batch[i].Fd == fd {
			d.batch[i].Fd = -1
		}
	}

	rec, ok := d.regs[fd]
	if !ok || !rec.registered {
		return nil
	}

	if d.SetCB != nil {
		d.SetCB(fd, 0)
	}
	rec.registered = false

	for _, frame := range d.stack {
		if frame.fd == fd {
			frame.fd = -1
		}
	}

	err := d.backend.Delete(fd)
	rec.flags = 0
	return err
}

// Registered reports whether fd currently has a live registration.
func (d *FdDispatcher) Registered(fd int) bool {
	rec, ok := d.regs[fd]
	return ok && rec.registered
}

// RunEvents implements spec.md §4.5's batch policy: refill the batch from
// the Backend if empty, then dispatch exactly one callback (plus any
// re-entrant buffered continuations for that same fd) before returning,
// so the run loop gets a chance to service timeouts and signals between
// fd callbacks.
func (d *FdDispatcher) RunEvents(timeoutMs int) error {
	if d.cursor >= len(d.batch) {
		buf := make([]IOEvent, d.maxEvents)
		n, err := d.backend.Fetch(buf, timeoutMs)
		if err != nil {
			return err
		}
		d.batch = buf[:n]
		d.cursor = 0
	}

	if d.cursor >= len(d.batch) {
		return nil
	}
	ev := d.batch[d.cursor]
	d.cursor++

	if ev.Fd < 0 {
		return nil // scrubbed by a prior FdDelete
	}
	rec, ok := d.regs[ev.Fd]
	if !ok || !rec.registered {
		return nil
	}

	d.dispatchOne(ev.Fd, rec, ev.Flags)
	return nil
}

// HasPendingBatch reports whether events remain in the current batch, that
// is, whether the next RunEvents call takes its event from the batch
// instead of waiting on the Backend.
func (d *FdDispatcher) HasPendingBatch() bool {
	return d.cursor < len(d.batch)
}

// dispatchOne invokes rec's callback for fd, implementing the re-entrant
// edge-triggered buffering protocol of spec.md §4.5.
func (d *FdDispatcher) dispatchOne(fd int, rec *fdRecord, events FdFlags) {
	for _, frame := range d.stack {
		if frame.fd == fd {
			// Re-entrant delivery for an fd whose callback is already
			// executing higher up the stack: buffer instead of recursing.
			frame.events |= events | fdBuffered
			return
		}
	}

	frame := &dispatchFrame{fd: fd}
	d.stack = append(d.stack, frame)
	defer func() {
		d.stack = d.stack[:len(d.stack)-1]
	}()

	current := events
	for {
		if rec.cb != nil {
			rec.cb(fd, current&(FdRead|FdWrite|FdEOF|FdError))
		}

		if frame.fd == -1 {
			return // deleted during its own callback
		}
		if rec.flags&FdEdgeTrigger == 0 {
			return // level-triggered: the Backend will simply report it again
		}
		if frame.events&fdBuffered == 0 {
			return // nothing accumulated while the callback ran
		}

		current = frame.events &^ fdBuffered
		frame.events = 0

		r, ok := d.regs[fd]
		if !ok || !r.registered {
			return
		}
		rec = r
	}
}
