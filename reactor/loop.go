//go:build linux

// Package reactor implements the io_uring-backed polling core of an
// asynchronous I/O event loop: a watcher registry, a ring-based
// submission/completion pipeline, one-shot-to-persistent rearming, fd
// invalidation, idle-time accounting, and signal-mask gating around
// the blocking wait. Higher-level handle types (timers, TCP, UDP,
// pipes, processes, signals) are not part of this package; they are
// expected to be built against the primitives in this file and in
// watcher.go.
package reactor

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/axiomhq/uvreactor/iouring"
)

// Loop owns the ring, the watcher table, the rearm queue, and the
// per-loop metrics. A Loop must be driven from a single goroutine for
// its entire lifetime: registry mutation, submission, completion
// dispatch, and callback invocation are all unsynchronized by design,
// the same way the ring itself is single-threaded. Distinct Loop
// instances share no state and may run on distinct goroutines freely.
type Loop struct {
	ring *iouring.Ring

	flags Flags
	timeMs uint64

	table fdTable
	queue watcherQueue

	signalWatcher *Watcher

	m      metrics
	logger Logger

	iteration uint64
	retiring  []retirement

	closed bool
}

type retirement struct {
	fd          int
	atIteration uint64
}

// NewLoop allocates a ring and an empty watcher table. It fails with
// ErrOutOfMemory if the ring's setup or mmap reports ENOMEM,
// ErrPlatformUnavailable if the kernel lacks io_uring (ENOSYS/EPERM) or
// IORING_FEAT_EXT_ARG, and otherwise with the ring's own error — this module
// requires the extended wait argument so that the timeout and signal
// mask reach the kernel atomically in one io_uring_enter call.
func NewLoop(opts ...Option) (*Loop, error) {
	c := newConfig(opts...)

	ring, err := iouring.New(c.entries, c.ring...)
	if err != nil {
		if errors.Is(err, unix.ENOMEM) {
			return nil, ErrOutOfMemory
		}
		if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) {
			return nil, ErrPlatformUnavailable
		}
		return nil, err
	}
	if !ring.HasExtArg() {
		ring.Close()
		return nil, ErrPlatformUnavailable
	}

	l := &Loop{
		ring:   ring,
		flags:  c.flags,
		timeMs: monotonicMs(),
		logger: c.logger,
	}
	l.signalWatcher = NewWatcher(-1, func(*Loop, *Watcher, EventMask) {})
	logLoopInit(l.logger, c.entries)
	return l, nil
}

// Close tears down the ring. It fails with ErrBusy if any watcher is
// still registered, and is a no-op if already closed.
func (l *Loop) Close() error {
	if l.closed {
		return nil
	}
	if l.table.nfds > 0 {
		return ErrBusy
	}
	l.closed = true
	return l.ring.Close()
}

// Configure sets the loop's flags, replacing any previous value.
func (l *Loop) Configure(flags Flags) {
	l.flags = flags
}

// Time returns the loop's cached monotonic time in milliseconds,
// refreshed at the top of every poll step and unconditionally after
// every wait.
func (l *Loop) Time() uint64 { return l.timeMs }

// IdleTime returns the cumulative nanoseconds this loop has spent
// blocked waiting for completions. Always zero unless IdleTime is set
// via Configure/WithFlags.
func (l *Loop) IdleTime() uint64 { return l.m.idleTime() }

// Run executes poll steps according to mode: Default runs until no
// watchers remain registered, Once runs exactly one (possibly
// blocking) step, NoWait runs exactly one non-blocking step. It
// returns whether further work remains (nfds > 0), or ErrClosed if the
// loop has been closed.
func (l *Loop) Run(mode RunMode) (bool, error) {
	if l.closed {
		return false, ErrClosed
	}
	switch mode {
	case NoWait:
		if err := l.step(0); err != nil {
			return false, err
		}
	case Once:
		if err := l.step(-1); err != nil {
			return false, err
		}
	default:
		for l.table.nfds > 0 || !l.queue.empty() {
			if err := l.step(-1); err != nil {
				return false, err
			}
		}
	}
	return l.table.nfds > 0, nil
}
