package uloop

import (
	"golang.org/x/sys/unix"
)

// processEntry is a caller's interest in one child PID's exit,
// obtained via ProcessReaper.ProcessAdd. Entries live in an arena rather
// than as intrusive list nodes (handle.go), per spec.md §9.
type processEntry struct {
	pid     int
	cb      func(pid int, status unix.WaitStatus)
	pending bool
}

// ProcessReaper is the ordered child-PID tracker from spec.md §4.6.
// Grounded on TimeoutQueue's sorted-slice-over-arena shape (timeout.go);
// ordered by ascending PID here instead of fire time.
type ProcessReaper struct {
	slots arena[processEntry]
	order []Handle // sorted ascending by pid

	logger *Logger
}

// NewProcessReaper returns an empty reaper.
func NewProcessReaper(logger *Logger) *ProcessReaper {
	return &ProcessReaper{logger: logger}
}

// ProcessAdd subscribes cb to pid's exit, per spec.md §4.6's process_add.
// Multiple subscriptions for the same pid are permitted; all fire on reap.
func (r *ProcessReaper) ProcessAdd(pid int, cb func(pid int, status unix.WaitStatus)) Handle {
	h := r.slots.insert(processEntry{pid: pid, cb: cb, pending: true})
	r.insertSorted(h, pid)
	return h
}

// ProcessDelete unsubscribes h. Returns ErrNotPending if it wasn't armed.
func (r *ProcessReaper) ProcessDelete(h Handle) error {
	e, ok := r.slots.get(h)
	if !ok || !e.pending {
		return ErrNotPending
	}
	e.pending = false
	r.unlink(h)
	r.slots.remove(h)
	return nil
}

// Len reports the number of currently tracked subscriptions.
func (r *ProcessReaper) Len() int { return len(r.order) }

func (r *ProcessReaper) insertSorted(h Handle, pid int) {
	pos := len(r.order)
	for i, oh := range r.order {
		oe, _ := r.slots.get(oh)
		if oe.pid > pid {
			pos = i
			break
		}
	}
	r.order = append(r.order, Handle{})
	copy(r.order[pos+1:], r.order[pos:])
	r.order[pos] = h
}

func (r *ProcessReaper) unlink(h Handle) {
	for i, oh := range r.order {
		if oh == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// HandleProcesses implements spec.md §4.6's handle_processes: repeatedly
// reaps with WNOHANG (retrying on EINTR) until waitpid returns 0 or a
// non-EINTR error, delivering each reaped PID to every matching ordered
// subscription (first ProcessDelete'd, then invoked with the wait status).
// Unsubscribed children are silently reaped. Errors other than ECHILD are
// logged at warning level, an addition this distillation's expansion makes
// over the bare C original, which has no logging layer to report into.
func (r *ProcessReaper) HandleProcesses() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if err != unix.ECHILD && r.logger != nil {
				r.logger.Warning().Err(err).Str("call", "wait4").Log("process reap failed")
			}
			return
		}
		if pid <= 0 {
			return
		}
		r.deliver(pid, status)
	}
}

func (r *ProcessReaper) deliver(pid int, status unix.WaitStatus) {
	var matches []Handle
	for _, h := range r.order {
		e, ok := r.slots.get(h)
		if !ok {
			continue
		}
		if e.pid < pid {
			continue
		}
		if e.pid > pid {
			break
		}
		matches = append(matches, h)
	}
	for _, h := range matches {
		e, ok := r.slots.get(h)
		if !ok {
			continue
		}
		cb := e.cb
		_ = r.ProcessDelete(h)
		if cb != nil {
			cb(pid, status)
		}
	}
}
