package uloop

// TimeoutQueue is the ordered list of pending timeouts described in
// spec.md §4.2: a flat, sorted slice rather than a heap. At the expected
// scale (tens of pending timeouts) a slice beats a heap on constant
// factors and keeps cancellation (and the FIFO tie-break spec requires)
// trivial, matching the rationale in spec.md §4.2 and §9.
//
// Entries live in an arena (handle.go) rather than being threaded as
// intrusive list nodes through caller memory, per spec.md §9's porting
// guidance; callers hold a Handle, not a pointer.
type TimeoutQueue struct {
	clock Clock
	slots arena[timeoutEntry]
	order []Handle // sorted ascending by `when`; ties are FIFO by insertion
}

type timeoutEntry struct {
	when    int64
	cb      func()
	pending bool
}

// NewTimeoutQueue returns an empty queue.
func NewTimeoutQueue() *TimeoutQueue {
	return &TimeoutQueue{}
}

// NewTimeout registers cb as an idle (not pending) timeout and returns its
// handle. Use Add or Set to arm it.
func (q *TimeoutQueue) NewTimeout(cb func()) Handle {
	return q.slots.insert(timeoutEntry{cb: cb})
}

// Add arms h to fire at the given absolute monotonic-ms time. Returns
// ErrAlreadyPending if h is already armed, matching spec.md §4.2's add().
func (q *TimeoutQueue) Add(h Handle, when int64) error {
	e, ok := q.slots.get(h)
	if !ok {
		return ErrNotPending
	}
	if e.pending {
		return ErrAlreadyPending
	}
	e.when = when
	e.pending = true
	q.insertSorted(h, when)
	return nil
}

// Set re-arms h to fire msecs from now, cancelling any existing armed
// timeout first (spec.md §4.2's set()). Negative msecs clamp to zero, per
// spec.md §9's resolution of the open question.
func (q *TimeoutQueue) Set(h Handle, msecs int64) error {
	if _, ok := q.slots.get(h); !ok {
		return ErrNotPending
	}
	_ = q.Cancel(h) // idempotent: ignore ErrNotPending
	return q.Add(h, q.clock.Set(msecs))
}

// Cancel unlinks h. Returns ErrNotPending if it wasn't armed.
func (q *TimeoutQueue) Cancel(h Handle) error {
	e, ok := q.slots.get(h)
	if !ok || !e.pending {
		return ErrNotPending
	}
	e.pending = false
	q.unlink(h)
	return nil
}

// Remove fully releases h (it must not be pending). Call this when the
// caller is done with the timeout entirely, mirroring arena cleanup for
// fd/process/signal handles elsewhere in this package.
func (q *TimeoutQueue) Remove(h Handle) {
	q.slots.remove(h)
}

// Pending reports whether h is currently armed.
func (q *TimeoutQueue) Pending(h Handle) bool {
	e, ok := q.slots.get(h)
	return ok && e.pending
}

// Remaining returns the ms until h fires, clamped to the int32 range, or
// -1 if h is not pending (spec.md §4.2).
func (q *TimeoutQueue) Remaining(h Handle) int32 {
	r, ok := q.remaining64(h)
	if !ok {
		return -1
	}
	return Clamp32(r)
}

// Remaining64 is the unclamped 64-bit variant of Remaining.
func (q *TimeoutQueue) Remaining64(h Handle) int64 {
	r, ok := q.remaining64(h)
	if !ok {
		return -1
	}
	return r
}

func (q *TimeoutQueue) remaining64(h Handle) (int64, bool) {
	e, ok := q.slots.get(h)
	if !ok || !e.pending {
		return 0, false
	}
	return q.clock.Diff(e.when, q.clock.Now()), true
}

// insertSorted inserts h before the first entry whose fire time is
// strictly greater, or appends otherwise — this is exactly what preserves
// FIFO ordering among ties, per spec.md §4.2.
func (q *TimeoutQueue) insertSorted(h Handle, when int64) {
	pos := len(q.order)
	for i, oh := range q.order {
		oe, _ := q.slots.get(oh)
		if oe.when > when {
			pos = i
			break
		}
	}
	q.order = append(q.order, Handle{})
	copy(q.order[pos+1:], q.order[pos:])
	q.order[pos] = h
}

func (q *TimeoutQueue) unlink(h Handle) {
	for i, oh := range q.order {
		if oh == h {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

// Drain fires every timeout whose time has arrived (as of a single `now`
// snapshot taken at entry) in ascending-time, FIFO-on-tie order, and
// returns the ms until the next pending timeout (-1 if none remain).
//
// A callback may re-arm its own timeout via Set; because Set computes the
// new fire time from a fresh Clock.Now() rather than the snapshot used by
// this Drain call, a re-armed entry's time will not satisfy `when <= now`
// against this pass's snapshot except in the degenerate same-millisecond
// race, so it will not be redelivered within this call (spec.md §4.2).
func (q *TimeoutQueue) Drain() int64 {
	now := q.clock.Now()
	for len(q.order) > 0 {
		h := q.order[0]
		e, ok := q.slots.get(h)
		if !ok || !e.pending {
			q.order = q.order[1:]
			continue
		}
		if e.when > now {
			break
		}
		q.order = q.order[1:]
		e.pending = false
		cb := e.cb
		if cb != nil {
			cb()
		}
	}
	if len(q.order) == 0 {
		return -1
	}
	head, _ := q.slots.get(q.order[0])
	d := q.clock.Diff(head.when, q.clock.Now())
	if d < 0 {
		d = 0
	}
	return d
}

// Len reports the number of currently pending timeouts.
func (q *TimeoutQueue) Len() int { return len(q.order) }
