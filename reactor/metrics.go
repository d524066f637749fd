package reactor

import "sync/atomic"

// metrics tracks time spent blocked in the kernel wait versus
// dispatching callbacks. It is opt-in via the IdleTime flag; when
// disabled the poll engine skips the stamp-and-override dance entirely
// (see poll_linux.go), so providerEntry stays zero and idleTimeNs
// never advances.
type metrics struct {
	idleTimeNs    uint64 // atomic
	providerEntry uint64 // ns, stamped before a potentially-blocking wait
}

// stampEntry records the provider-entry timestamp immediately before a
// blocking wait whose timeout is non-zero.
func (m *metrics) stampEntry() {
	m.providerEntry = monotonicNs()
}

// accumulate adds the elapsed time since stampEntry to the idle-time
// total. The poll engine calls it before each callback it dispatches;
// only the first call after a stampEntry adds anything, and a wait that
// dispatches no callback does not call it at all.
func (m *metrics) accumulate() {
	now := monotonicNs()
	if m.providerEntry == 0 || now < m.providerEntry {
		return
	}
	atomic.AddUint64(&m.idleTimeNs, now-m.providerEntry)
	m.providerEntry = 0
}

// idleTime returns the monotonically non-decreasing total nanoseconds
// this loop has spent blocked waiting for completions.
func (m *metrics) idleTime() uint64 {
	return atomic.LoadUint64(&m.idleTimeNs)
}
