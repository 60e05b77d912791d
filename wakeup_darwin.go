//go:build darwin

package uloop

import "golang.org/x/sys/unix"

// newSelfPipe creates the self-pipe waker from spec.md §4.3. Grounded on
// the teacher's createWakeFd (wakeup_darwin.go): Darwin has no pipe2, so
// each end's close-on-exec and non-blocking flags are set individually
// after a plain Pipe(), with cleanup on partial failure.
func newSelfPipe() (readFd, writeFd int, err error) {
	var fds [2]int
	if perr := unix.Pipe(fds[:]); perr != nil {
		return 0, 0, WrapError(ErrSystemCallFailure, perr)
	}
	cleanup := func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	}
	for _, fd := range fds {
		if cerr := unix.SetNonblock(fd, true); cerr != nil {
			cleanup()
			return 0, 0, WrapError(ErrSystemCallFailure, cerr)
		}
		unix.CloseOnExec(fd)
	}
	return fds[0], fds[1], nil
}
