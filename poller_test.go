package uloop

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) Backend {
	t.Helper()
	b := newBackend()
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_FetchReportsReadyFd(t *testing.T) {
	b := newTestBackend(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	fd := int(r.Fd())
	require.NoError(t, b.RegisterPoll(fd, FdRead))

	_, err = w.Write([]byte("hi"))
	require.NoError(t, err)

	out := make([]IOEvent, MaxEvents)
	n, err := b.Fetch(out, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, fd, out[0].Fd)
	assert.NotZero(t, out[0].Flags&FdRead)
}

func TestBackend_FetchTimesOutWithNoReadyFds(t *testing.T) {
	b := newTestBackend(t)

	out := make([]IOEvent, MaxEvents)
	start := time.Now()
	n, err := b.Fetch(out, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestBackend_DeleteStopsFurtherDelivery(t *testing.T) {
	b := newTestBackend(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	fd := int(r.Fd())
	require.NoError(t, b.RegisterPoll(fd, FdRead))
	require.NoError(t, b.Delete(fd))

	_, err = w.Write([]byte("hi"))
	require.NoError(t, err)

	out := make([]IOEvent, MaxEvents)
	n, err := b.Fetch(out, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBackend_TimerRegisterAndRemaining(t *testing.T) {
	b := newTestBackend(t)

	h, err := b.TimerRegister(50 * time.Millisecond)
	require.NoError(t, err)
	defer b.TimerRemove(h)

	remaining, err := b.TimerNext(h)
	if err != nil {
		t.Skipf("TimerNext unsupported on this backend: %v", err)
	}
	assert.LessOrEqual(t, remaining, 50*time.Millisecond)
	assert.GreaterOrEqual(t, remaining, time.Duration(0))
}
