//go:build linux

package uloop

import "golang.org/x/sys/unix"

// newSelfPipe creates the self-pipe waker from spec.md §4.3: a pipe with
// both ends close-on-exec and non-blocking. Grounded on the teacher's
// createWakeFd (wakeup_linux.go), but uses a real two-fd pipe rather than
// the teacher's single eventfd, since spec.md is explicit that the waker
// is a self-pipe (chosen there for BSD/Linux portability, which an eventfd
// would break on Darwin).
func newSelfPipe() (readFd, writeFd int, err error) {
	var fds [2]int
	if perr := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); perr != nil {
		return 0, 0, WrapError(ErrSystemCallFailure, perr)
	}
	return fds[0], fds[1], nil
}
