package uloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutQueue_FIFOTieBreak(t *testing.T) {
	q := NewTimeoutQueue()
	var order []int

	var handles []Handle
	for i := 0; i < 3; i++ {
		i := i
		handles = append(handles, q.NewTimeout(func() {
			order = append(order, i)
		}))
	}
	// All three share the same (already-elapsed) absolute fire time, so
	// Drain must fire them in insertion order.
	for _, h := range handles {
		require.NoError(t, q.Add(h, 0))
	}

	next := q.Drain()
	assert.Equal(t, int64(-1), next)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestTimeoutQueue_CancelAndRemaining(t *testing.T) {
	q := NewTimeoutQueue()
	fired := false
	h := q.NewTimeout(func() { fired = true })

	assert.Equal(t, int32(-1), q.Remaining(h))
	require.NoError(t, q.Set(h, 1000))
	assert.True(t, q.Pending(h))
	assert.Greater(t, q.Remaining(h), int32(0))

	require.NoError(t, q.Cancel(h))
	assert.False(t, q.Pending(h))
	assert.Equal(t, int32(-1), q.Remaining(h))

	require.ErrorIs(t, q.Cancel(h), ErrNotPending)
	assert.False(t, fired)
}

func TestTimeoutQueue_SetClampsNegative(t *testing.T) {
	q := NewTimeoutQueue()
	h := q.NewTimeout(func() {})
	require.NoError(t, q.Set(h, -500))
	assert.True(t, q.Pending(h))
	assert.LessOrEqual(t, q.Remaining(h), int32(0))
}

func TestTimeoutQueue_DrainOrdersByAscendingFireTime(t *testing.T) {
	q := NewTimeoutQueue()
	var order []string

	late := q.NewTimeout(func() { order = append(order, "late") })
	early := q.NewTimeout(func() { order = append(order, "early") })

	now := q.clock.Now()
	require.NoError(t, q.Add(late, now+50))
	require.NoError(t, q.Add(early, now+10))

	next := q.Drain()
	// Neither has arrived yet relative to a fresh Now() snapshot taken
	// inside Drain, so nothing should fire and next should point at the
	// earlier one.
	assert.Equal(t, []string(nil), order)
	assert.GreaterOrEqual(t, next, int64(0))
	assert.LessOrEqual(t, next, int64(10))
}

func TestTimeoutQueue_AddRejectsAlreadyPending(t *testing.T) {
	q := NewTimeoutQueue()
	h := q.NewTimeout(func() {})
	require.NoError(t, q.Add(h, 100))
	require.ErrorIs(t, q.Add(h, 200), ErrAlreadyPending)
}
