//go:build linux

package iouring

import (
	"sync/atomic"
)

// ForEachCQE iterates over all available CQEs in producer order.
// The callback receives userData, result, and flags for each CQE and
// returns false to stop early. Returns the number of CQEs processed;
// the CQ head is advanced past exactly that many.
func (r *Ring) ForEachCQE(fn func(userData uint64, res int32, flags uint32) bool) int {
	head := atomic.LoadUint32(r.cqHead)
	tail := atomic.LoadUint32(r.cqTail)
	count := 0

	for head != tail {
		idx := head & r.cqMask
		cqe := &r.cqes[idx]

		if !fn(cqe.UserData, cqe.Res, cqe.Flags) {
			break
		}

		head++
		count++
	}

	if count > 0 {
		atomic.StoreUint32(r.cqHead, head)
	}

	return count
}
