//go:build linux

package reactor

import "golang.org/x/sys/unix"

// EventMask is a bitwise-OR of readiness bits. Values are taken directly
// from the kernel's poll(2) bit positions so no translation sits between
// a caller's requested mask and the mask encoded into a poll-add SQE.
type EventMask uint32

const (
	// Readable indicates data is available to read.
	Readable EventMask = EventMask(unix.POLLIN)
	// Writable indicates the fd can accept a write without blocking.
	Writable EventMask = EventMask(unix.POLLOUT)
	// Prioritized indicates out-of-band/priority data is available.
	Prioritized EventMask = EventMask(unix.POLLPRI)
	// Disconnect indicates the peer shut down its write half.
	Disconnect EventMask = EventMask(unix.POLLRDHUP)

	// Err is delivery-only: the kernel reports it, callers never request it.
	Err EventMask = EventMask(unix.POLLERR)
	// Hup is delivery-only: the kernel reports it, callers never request it.
	Hup EventMask = EventMask(unix.POLLHUP)
)

// settable is the subset of bits a caller may pass to IOStart/IOStop.
const settable = Readable | Writable | Prioritized | Disconnect

// Callback is invoked with the filtered, non-zero event mask for a
// watcher's completion. It must not block: it runs on the loop's owning
// goroutine and may itself call IOStart/IOStop/IOClose synchronously.
type Callback func(l *Loop, w *Watcher, events EventMask)

// Watcher is a record combining a file descriptor, a persistent
// interest mask, and a callback — the reactor's unit of registration.
// The external handle that creates a Watcher owns it; a Loop holds only
// a non-owning reference from its watcher table and from any in-flight
// completion's token. See InvalidateFD for the lifetime contract around
// closing fd while a poll may still be in flight.
type Watcher struct {
	fd      int32
	pevents EventMask
	events  EventMask
	cb      Callback

	tok token

	queued bool
	next   *Watcher
}

// NewWatcher creates a Watcher bound to fd, not yet registered with any
// Loop. fd must be a valid, non-blocking-capable descriptor for as long
// as the watcher remains started.
func NewWatcher(fd int, cb Callback) *Watcher {
	return &Watcher{fd: int32(fd), cb: cb}
}

// FD returns the watcher's file descriptor, or -1 if it has been
// invalidated.
func (w *Watcher) FD() int { return int(w.fd) }

// watcherQueue is the FIFO of watchers needing (re)arming: a
// singly-linked list with a tail pointer, intrusive via Watcher.next so
// queuing a watcher never allocates.
type watcherQueue struct {
	head, tail *Watcher
}

func (q *watcherQueue) empty() bool { return q.head == nil }

func (q *watcherQueue) pushBack(w *Watcher) {
	w.next = nil
	if q.tail == nil {
		q.head, q.tail = w, w
		return
	}
	q.tail.next = w
	q.tail = w
}

func (q *watcherQueue) popFront() *Watcher {
	w := q.head
	if w == nil {
		return nil
	}
	q.head = w.next
	if q.head == nil {
		q.tail = nil
	}
	w.next = nil
	return w
}

// IOStart registers interest in mask for w. Precondition: w.FD() >= 0
// and mask != 0. Idempotent: calling it twice with the same mask
// produces the same observable state and enqueues w at most once.
func (l *Loop) IOStart(w *Watcher, mask EventMask) error {
	if w.fd < 0 {
		return ErrInvalid
	}
	mask &= settable
	if mask == 0 {
		return nil
	}
	w.pevents |= mask
	w.tok = l.table.register(int(w.fd), w)
	if !w.queued {
		l.queue.pushBack(w)
		w.queued = true
	}
	return nil
}

// IOStop clears mask from w's persistent interest. If the result is
// zero, w is removed from the watcher table and the rearm queue; any
// poll already submitted to the kernel for w's prior token is still
// safely discarded on completion, since the table slot's generation is
// bumped immediately and a stale token never resolves to a watcher
// (see token.go) — this is a stronger, simpler guarantee than tracking
// "in-flight" state explicitly, made possible by token indirection
// replacing a raw kernel pointer.
func (l *Loop) IOStop(w *Watcher, mask EventMask) {
	w.pevents &= ^(mask & settable)
	if w.pevents != 0 {
		return
	}
	l.detach(w)
}

// IOClose force-stops w regardless of its current interest mask,
// applying the same removal rule as IOStop.
func (l *Loop) IOClose(w *Watcher) {
	w.pevents = 0
	l.detach(w)
}

// detach removes w from the rearm queue (if present) and clears its
// watcher-table slot (if still assigned), decrementing nfds.
func (l *Loop) detach(w *Watcher) {
	if w.queued {
		l.removeFromQueue(w)
	}
	if w.fd >= 0 {
		l.table.clear(int(w.fd), w)
	}
}

// removeFromQueue removes w from the FIFO queue, wherever it sits. The
// queue is small in practice (bounded by watchers (re)armed since the
// last drain) and watchers are almost always removed via popFront
// during drain rather than mid-queue, so a linear scan here is simpler
// than a doubly-linked list kept only for O(1) mid-queue removal.
func (l *Loop) removeFromQueue(w *Watcher) {
	w.queued = false
	if l.queue.head == w {
		l.queue.popFront()
		return
	}
	for p := l.queue.head; p != nil && p.next != nil; p = p.next {
		if p.next == w {
			p.next = w.next
			if l.queue.tail == w {
				l.queue.tail = p
			}
			w.next = nil
			return
		}
	}
}
