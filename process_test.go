package uloop

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestProcessReaper_OrderingIsByAscendingPID(t *testing.T) {
	r := NewProcessReaper(nil)

	h100 := r.ProcessAdd(100, func(int, unix.WaitStatus) {})
	h7 := r.ProcessAdd(7, func(int, unix.WaitStatus) {})
	h42 := r.ProcessAdd(42, func(int, unix.WaitStatus) {})

	var pids []int
	for _, h := range r.order {
		e, ok := r.slots.get(h)
		require.True(t, ok)
		pids = append(pids, e.pid)
	}
	assert.Equal(t, []int{7, 42, 100}, pids)

	require.NoError(t, r.ProcessDelete(h7))
	require.NoError(t, r.ProcessDelete(h42))
	require.NoError(t, r.ProcessDelete(h100))
	assert.Equal(t, 0, r.Len())
}

func TestProcessReaper_DeleteUnknownIsNotPending(t *testing.T) {
	r := NewProcessReaper(nil)
	h := r.ProcessAdd(1, func(int, unix.WaitStatus) {})
	require.NoError(t, r.ProcessDelete(h))
	assert.ErrorIs(t, r.ProcessDelete(h), ErrNotPending)
}

// TestProcessReaper_ReapsRealChild exercises HandleProcesses end to end
// against an actual short-lived child, matching spec.md §4.6/§8's
// reap-and-remove scenario.
func TestProcessReaper_ReapsRealChild(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	r := NewProcessReaper(nil)
	done := make(chan unix.WaitStatus, 1)
	h := r.ProcessAdd(pid, func(gotPID int, status unix.WaitStatus) {
		assert.Equal(t, pid, gotPID)
		done <- status
	})

	deadline := time.Now().Add(5 * time.Second)
	for r.Len() > 0 && time.Now().Before(deadline) {
		r.HandleProcesses()
		if r.Len() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case status := <-done:
		assert.True(t, status.Exited())
		assert.Equal(t, 0, status.ExitStatus())
	default:
		t.Fatal("child was not reaped within the deadline")
	}
	assert.ErrorIs(t, r.ProcessDelete(h), ErrNotPending)
}
