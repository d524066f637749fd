//go:build linux

package reactor

import "golang.org/x/sys/unix"

// monotonicNs reads CLOCK_MONOTONIC in nanoseconds, the resolution idle-
// time accounting needs (see metrics.go).
func monotonicNs() uint64 {
	var ts unix.Timespec
	// CLOCK_MONOTONIC cannot fail for a valid buffer; a failure here
	// indicates a corrupt stack, not a recoverable condition.
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
}

// monotonicMs reads CLOCK_MONOTONIC and returns a millisecond-resolution
// snapshot. L.time is refreshed from this at the top of every poll step
// and unconditionally after the wait, so it never drifts even across a
// non-blocking wait that happened to be descheduled.
func monotonicMs() uint64 {
	return monotonicNs() / 1e6
}

func sigsetAdd(set *unix.Sigset_t, sig int) {
	set.Val[(sig-1)/64] |= 1 << uint((sig-1)%64)
}

// blockedSigset returns the calling thread's current signal mask with
// sig additionally set, for use as the atomic wait-time mask passed to
// Ring.EnterWait. The kernel applies this mask only for the duration of
// the syscall, so there is no unblock-then-wait race: the signal cannot
// be delivered outside the wait and cannot be missed during it.
func blockedSigset(sig int) (*unix.Sigset_t, error) {
	var cur unix.Sigset_t
	if err := unix.PthreadSigmask(0, nil, &cur); err != nil {
		return nil, err
	}
	sigsetAdd(&cur, sig)
	return &cur, nil
}
