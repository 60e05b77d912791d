package uloop

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSignalManager(t *testing.T) *SignalManager {
	t.Helper()
	d := newTestDispatcher(t)
	m, err := NewSignalManager(d, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestSignalManager_AddDeleteOrdering(t *testing.T) {
	m := newTestSignalManager(t)

	hHigh, err := m.SignalAdd(int(syscall.SIGUSR2), func(os.Signal) {})
	require.NoError(t, err)
	hLow, err := m.SignalAdd(int(syscall.SIGUSR1), func(os.Signal) {})
	require.NoError(t, err)

	require.Len(t, m.order, 2)
	e0, _ := m.slots.get(m.order[0])
	e1, _ := m.slots.get(m.order[1])
	assert.Equal(t, int(syscall.SIGUSR1), e0.signo)
	assert.Equal(t, int(syscall.SIGUSR2), e1.signo)

	require.NoError(t, m.SignalDelete(hLow))
	require.NoError(t, m.SignalDelete(hHigh))
	assert.Empty(t, m.order)
}

func TestSignalManager_DoubleDeleteIsNotPending(t *testing.T) {
	m := newTestSignalManager(t)
	h, err := m.SignalAdd(int(syscall.SIGUSR1), func(os.Signal) {})
	require.NoError(t, err)
	require.NoError(t, m.SignalDelete(h))
	assert.ErrorIs(t, m.SignalDelete(h), ErrNotPending)
}

func TestSignalManager_RefcountSharesOneSignalAcrossSubscribers(t *testing.T) {
	m := newTestSignalManager(t)

	h1, err := m.SignalAdd(int(syscall.SIGUSR1), func(os.Signal) {})
	require.NoError(t, err)
	h2, err := m.SignalAdd(int(syscall.SIGUSR1), func(os.Signal) {})
	require.NoError(t, err)

	assert.Equal(t, 2, m.refcount[int(syscall.SIGUSR1)])
	require.NoError(t, m.SignalDelete(h1))
	assert.Equal(t, 1, m.refcount[int(syscall.SIGUSR1)])
	require.NoError(t, m.SignalDelete(h2))
	_, stillTracked := m.refcount[int(syscall.SIGUSR1)]
	assert.False(t, stillTracked)
}

func TestSignalManager_ConsumeDispatchesAllMatchingSubscribers(t *testing.T) {
	m := newTestSignalManager(t)

	var fired []string
	_, err := m.SignalAdd(int(syscall.SIGUSR1), func(os.Signal) { fired = append(fired, "a") })
	require.NoError(t, err)
	_, err = m.SignalAdd(int(syscall.SIGUSR1), func(os.Signal) { fired = append(fired, "b") })
	require.NoError(t, err)

	buf := [1]byte{byte(syscall.SIGUSR1)}
	_, err = writeFD(m.writeFd, buf[:])
	require.NoError(t, err)

	m.consume(m.readFd, FdRead)
	assert.Equal(t, []string{"a", "b"}, fired)
}

func TestSignalManager_ConsumeRunsCoreHandlersBeforeSubscribers(t *testing.T) {
	m := newTestSignalManager(t)

	var chldFirst bool
	m.OnSIGCHLD = func() { chldFirst = true }
	_, err := m.SignalAdd(int(syscall.SIGCHLD), func(os.Signal) {
		assert.True(t, chldFirst, "OnSIGCHLD must run before user subscriptions")
	})
	require.NoError(t, err)

	buf := [1]byte{byte(syscall.SIGCHLD)}
	_, err = writeFD(m.writeFd, buf[:])
	require.NoError(t, err)

	m.consume(m.readFd, FdRead)
	assert.True(t, chldFirst)
}
