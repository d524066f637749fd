//go:build linux

package reactor

import "golang.org/x/sys/unix"

// InvalidateFD notifies the loop that the owner of fd has closed it.
// If a watcher is registered for fd, a poll-remove targeting its
// in-flight poll-add is submitted with user-data 0, so the eventual
// completion is silently discarded rather than resolved to a (by then
// stale) watcher. The table slot is cleared and the watcher's fd set
// to -1 immediately — safe because completions are resolved through a
// generation-checked token (token.go), not a raw pointer the kernel
// might otherwise still reference.
//
// The external handle that owns the Watcher must still not reuse or
// pool it until the loop has processed at least one more iteration:
// Loop tracks this as a retirement entry purely for diagnostic and
// test purposes (PendingRetirements). Go's garbage collector makes the
// retirement window a correctness nicety rather than a memory-safety
// requirement, since a stale token can never resolve back to a freed
// watcher regardless of when it's reclaimed.
func (l *Loop) InvalidateFD(fd int) error {
	slot := l.table.lookup(fd)
	if slot == nil || slot.watcher == nil {
		return nil
	}
	w := slot.watcher
	target := w.tok

	if err := l.ring.PrepPollRemoveOrSubmit(uint64(target), uint64(sentinelToken)); err != nil {
		logRingStarved(l.logger, fd)
		panic(bug("submission queue starved during invalidate_fd", err))
	}

	l.detach(w)
	w.fd = -1
	l.retiring = append(l.retiring, retirement{fd: fd, atIteration: l.iteration})
	logInvalidate(l.logger, fd)
	return nil
}

// CheckFD reports whether fd is currently a valid, open descriptor
// from the kernel's perspective, using a zero-timeout poll(2) probe
// (POLLNVAL is set in revents for a closed or never-valid fd).
func (l *Loop) CheckFD(fd int) error {
	pfds := []unix.PollFd{{Fd: int32(fd), Events: 0}}
	if _, err := unix.Poll(pfds, 0); err != nil && err != unix.EINTR {
		return ErrInvalid
	}
	if pfds[0].Revents&unix.POLLNVAL != 0 {
		return ErrInvalid
	}
	return nil
}

// PendingRetirements returns the number of invalidated fds recorded
// since the start of the current poll step. Entries are dropped at the
// start of the next step, whether or not that step consumes the
// cancellation completion. Used by tests to assert the loop reaches
// quiescence with no leaked retirements.
func (l *Loop) PendingRetirements() int {
	return len(l.retiring)
}

// drainRetirements drops retirement entries recorded before the
// current iteration. It runs at the top of each step, before the drain
// and wait phases, so an entry is gone once the next step has begun.
func (l *Loop) drainRetirements() {
	if len(l.retiring) == 0 {
		return
	}
	kept := l.retiring[:0]
	for _, r := range l.retiring {
		if r.atIteration >= l.iteration {
			kept = append(kept, r)
		}
	}
	l.retiring = kept
}
