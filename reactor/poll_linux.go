//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/axiomhq/uvreactor/iouring"
)

// step runs one poll step with the given timeout, faithfully
// translating the central poll algorithm: drain outstanding interest
// into poll-add submissions, wait for completions under optional
// signal gating and idle-time accounting, dispatch callbacks in
// producer order with one-shot rearming, and defer the signal-I/O
// watcher's callback to the very end of the step.
func (l *Loop) step(timeoutMs int) error {
	l.timeMs = monotonicMs()
	l.iteration++
	l.drainRetirements()

	if l.table.nfds == 0 {
		if !l.queue.empty() {
			panic(bug("nfds == 0 with a non-empty watcher queue", nil))
		}
		return nil
	}

	// Drain phase: encode every queued watcher as a one-shot poll-add,
	// then submit the whole batch in a single syscall.
	for !l.queue.empty() {
		w := l.queue.popFront()
		w.queued = false
		if err := l.ring.PrepPollAddOrSubmit(int(w.fd), uint32(w.pevents), uint64(w.tok)); err != nil {
			logRingStarved(l.logger, int(w.fd))
			panic(bug("submission queue starved during drain", err))
		}
		w.events = w.pevents
	}
	if _, err := l.ring.Submit(); err != nil && err != unix.EBUSY {
		return err
	}

	// Signal gating: block SIGPROF (and whatever else the thread
	// already has blocked) for the duration of the wait syscall only,
	// via the kernel's atomic sigmask argument.
	var sigset *unix.Sigset_t
	if l.flags&BlockSigprof != 0 {
		s, err := blockedSigset(int(unix.SIGPROF))
		if err != nil {
			return err
		}
		sigset = s
	}

	idleEnabled := l.flags&IdleTime != 0
	base := l.timeMs
	effTimeout := timeoutMs
	resetTimeout := false
	userTimeout := 0
	if idleEnabled {
		resetTimeout = true
		userTimeout = timeoutMs
		effTimeout = 0
	}

	for {
		if effTimeout != 0 && idleEnabled {
			l.m.stampEntry()
		}

		var ts *iouring.Timespec
		if effTimeout > 0 {
			ts = &iouring.Timespec{
				Sec:  int64(effTimeout / 1000),
				Nsec: int64(effTimeout%1000) * 1_000_000,
			}
		}
		var minComplete uint32
		if effTimeout != 0 {
			minComplete = 1
		}

		var err error
		for {
			err = l.ring.EnterWait(minComplete, ts, sigset)
			if err != unix.EINTR {
				break
			}
			// Interrupted calls are retried transparently; never
			// observable to the poll engine.
		}

		// Update L.time unconditionally: even a non-blocking wait may
		// have been descheduled, so clocks must not drift.
		l.timeMs = monotonicMs()

		// A non-blocking peek (ts == nil, minComplete == 0) is always
		// satisfied immediately and never reports ETIME/EAGAIN, so the
		// "nothing happened" outcome can't be distinguished from a real
		// kernel timeout by error value alone. Both, plus a batch made
		// up entirely of stale cancellation completions, are folded
		// into the same eventsInvoked == 0 path below.
		if err != nil && err != unix.ETIME && err != unix.EAGAIN {
			return err
		}

		eventsInvoked, haveSignals := l.dispatch()

		if haveSignals {
			l.m.accumulate()
			l.signalWatcher.cb(l, l.signalWatcher, Readable)
			return nil
		}
		if eventsInvoked > 0 {
			return nil
		}

		if resetTimeout {
			effTimeout = userTimeout
			resetTimeout = false
		}
		if effTimeout == -1 {
			continue
		}
		if effTimeout == 0 {
			return nil
		}
		if done := l.adjustTimeout(&effTimeout, base); done {
			return nil
		}
	}
}

// adjustTimeout implements the real_timeout -= (L.time - base) update
// from the central algorithm's timeout-adjustment branch. Returns true
// if the remaining timeout is exhausted and the step should return.
func (l *Loop) adjustTimeout(effTimeout *int, base uint64) bool {
	remaining := *effTimeout - int(l.timeMs-base)
	if remaining <= 0 {
		return true
	}
	*effTimeout = remaining
	return false
}

// dispatch drains available completions in producer order, re-arming
// each resolved watcher and invoking its callback with the filtered
// event mask. The signal-I/O watcher's callback is never invoked here;
// haveSignals reports whether it should be dispatched after every
// other watcher in this step has been.
func (l *Loop) dispatch() (eventsInvoked int, haveSignals bool) {
	l.ring.ForEachCQE(func(userData uint64, res int32, flags uint32) bool {
		tok := token(userData)
		w := l.table.resolve(tok)
		if w == nil || w.fd < 0 {
			return true
		}

		w.events = 0
		_ = l.IOStart(w, w.pevents)
		w.events = w.pevents

		e := EventMask(uint32(res)) & (w.pevents | Err | Hup)
		if e == 0 {
			return true
		}

		if w == l.signalWatcher {
			haveSignals = true
		} else {
			l.m.accumulate()
			w.cb(l, w, e)
			eventsInvoked++
		}
		return true
	})
	return eventsInvoked, haveSignals
}
