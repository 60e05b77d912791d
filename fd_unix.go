//go:build linux || darwin

package uloop

import (
	"golang.org/x/sys/unix"
)

// closeFD closes a file descriptor on Unix systems.
func closeFD(fd int) error {
	return unix.Close(fd)
}

// readFD reads from a file descriptor on Unix systems.
func readFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// writeFD writes to a file descriptor on Unix systems.
func writeFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// setNonblocking forces fd into non-blocking mode, used by fd_add (spec.md
// §4.5) when BLOCKING was not requested.
func setNonblocking(fd int) error {
	return unix.SetNonblock(fd, true)
}
