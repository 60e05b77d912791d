package uloop

import "time"

// Clock is the monotonic millisecond-resolution time source used throughout
// the loop. now() must never regress; diff/set arithmetic must not overflow
// for practical horizons (centuries), matching spec §4.1.
type Clock struct{}

// monotonicEpoch is a reference point captured once at process start.
// time.Time retains a monotonic reading only until it is converted through
// a wall-clock accessor (Unix, UnixMilli, Format, ...); Sub/Since on two
// still-monotonic Time values use that reading instead of the wall clock,
// so they keep advancing correctly even if the wall clock itself steps
// backward (NTP correction, date -s, VM clock sync). Deriving ms values
// via UnixMilli, as a first draft of this file did, would silently have
// thrown the monotonic reading away and let Now() regress.
var monotonicEpoch = time.Now()

// Now returns the current monotonic time in milliseconds, relative to
// monotonicEpoch. The absolute value is process-local and has no relation
// to wall-clock time; every caller in this package only ever diffs two
// Now() readings or compares one against a previously computed deadline,
// so that's exactly what's needed.
func (Clock) Now() int64 {
	return time.Since(monotonicEpoch).Milliseconds()
}

// Diff returns (a-b) in milliseconds, signed.
func (Clock) Diff(a, b int64) int64 {
	return a - b
}

// Set computes now+msecs, clamping negative msecs to zero per spec.md §9's
// resolution of the open question on negative timeout_set input.
func (c Clock) Set(msecs int64) int64 {
	if msecs < 0 {
		msecs = 0
	}
	return c.Now() + msecs
}

// Clamp32 clamps a millisecond duration into the int32 range, matching
// spec §4.2's remaining() contract (32-bit clamp, with a 64-bit variant
// left unclamped by callers that need it).
func Clamp32(ms int64) int32 {
	const max32 = int64(1)<<31 - 1
	const min32 = -(int64(1) << 31)
	if ms > max32 {
		return int32(max32)
	}
	if ms < min32 {
		return int32(min32)
	}
	return int32(ms)
}
