//go:build linux

package iouring

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/axiomhq/uvreactor/iouring/internal/sys"
)

// ErrSQEStarved is returned when the submission queue is still full
// immediately after an intervening submit. The ring is undersized for the
// caller's working set; this is a fatal, not a retryable, condition.
var ErrSQEStarved = errors.New("iouring: submission queue starved after submit")

// PrepPollAddOrSubmit prepares a one-shot poll-add SQE for fd/mask carrying
// userData, retrying once via an immediate submit if the queue is
// momentarily full. A second failure returns ErrSQEStarved.
func (r *Ring) PrepPollAddOrSubmit(fd int, mask uint32, userData uint64) error {
	r.sqLock.Lock()
	sqe := r.getSQE()
	if sqe == nil {
		r.sqLock.Unlock()
		if _, err := r.Submit(); err != nil {
			return err
		}
		r.sqLock.Lock()
		sqe = r.getSQE()
		if sqe == nil {
			r.sqLock.Unlock()
			return ErrSQEStarved
		}
	}

	sqe.Opcode = uint8(sys.IORING_OP_POLL_ADD)
	sqe.Fd = int32(fd)
	sqe.OpFlags = mask
	sqe.UserData = userData
	r.sqLock.Unlock()
	return nil
}

// PrepPollRemoveOrSubmit prepares a poll-remove SQE targeting a previously
// submitted poll-add identified by targetUserData. Used by fd invalidation
// to cancel an in-flight poll; userData is normally 0 so the eventual
// completion is recognized as a discardable sentinel.
func (r *Ring) PrepPollRemoveOrSubmit(targetUserData, userData uint64) error {
	r.sqLock.Lock()
	sqe := r.getSQE()
	if sqe == nil {
		r.sqLock.Unlock()
		if _, err := r.Submit(); err != nil {
			return err
		}
		r.sqLock.Lock()
		sqe = r.getSQE()
		if sqe == nil {
			r.sqLock.Unlock()
			return ErrSQEStarved
		}
	}

	sqe.Opcode = uint8(sys.IORING_OP_POLL_REMOVE)
	sqe.Fd = -1
	sqe.Addr = targetUserData
	sqe.UserData = userData
	r.sqLock.Unlock()
	return nil
}

// EnterWait submits any pending SQEs and blocks until minComplete CQEs are
// ready, ts elapses, or a signal outside sigset interrupts delivery. The
// kernel applies sigset atomically with respect to signal delivery for the
// duration of the call; there is no unblock-then-wait race.
//
// Requires IORING_FEAT_EXT_ARG (Linux 5.11+); construction of the owning
// Loop rejects rings that lack it rather than approximate this call.
func (r *Ring) EnterWait(minComplete uint32, ts *Timespec, sigset *unix.Sigset_t) error {
	if r.closed.Load() {
		return ErrRingClosed
	}

	r.sqLock.Lock()
	submitted := r.sqPending
	if submitted > 0 {
		tail := atomic.LoadUint32(r.sqTail)
		atomic.StoreUint32(r.sqTail, tail+submitted)
		r.sqPending = 0
	}
	r.sqLock.Unlock()

	var arg sys.GetEventsArg
	if ts != nil {
		arg.Ts = uint64(uintptr(unsafe.Pointer(ts)))
	}
	if sigset != nil {
		arg.Sigmask = uint64(uintptr(unsafe.Pointer(sigset)))
		arg.SigmaskSz = 8
	}

	_, err := sys.EnterExt(r.fd, submitted, minComplete, sys.IORING_ENTER_GETEVENTS, &arg)
	return err
}
