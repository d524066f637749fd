package reactor

// token is the opaque value carried as kernel user-data for an in-flight
// poll-add SQE, replacing a raw watcher pointer. A Go heap address cannot
// be pinned across a kernel
// round-trip the way a C pointer can, so the fd-indexed watcher table
// itself doubles as the arena: token packs the fd and a per-slot
// generation that is bumped every time the slot is vacated. A completion
// whose token no longer matches the table's current generation for that
// fd refers to a watcher that has since been invalidated or replaced,
// and is dropped exactly like a sentinel completion.
type token uint64

const sentinelToken token = 0

func newToken(fd int, generation uint32) token {
	return token(uint64(uint32(fd))<<32 | uint64(generation))
}

func (t token) fd() int            { return int(int32(uint32(t >> 32))) }
func (t token) generation() uint32 { return uint32(t) }

// fdSlot is one entry of the watcher table: the currently registered
// watcher for an fd, if any, and the generation to stamp into new tokens
// for that fd.
type fdSlot struct {
	watcher    *Watcher
	generation uint32
}

// fdTable is the sparse fd -> watcher mapping the loop uses as both a
// registry and the token arena. It grows on demand and is never shrunk; a closed fd's slot is reused
// (with a bumped generation) rather than the slice being compacted,
// since fds are typically reused quickly by the OS and reallocating the
// backing array on every close would be wasteful.
type fdTable struct {
	slots []fdSlot
	nfds  int
}

func (t *fdTable) ensure(fd int) *fdSlot {
	if fd >= len(t.slots) {
		grown := make([]fdSlot, fd+1)
		copy(grown, t.slots)
		t.slots = grown
	}
	return &t.slots[fd]
}

// lookup returns the slot for fd if it is within bounds, or nil.
func (t *fdTable) lookup(fd int) *fdSlot {
	if fd < 0 || fd >= len(t.slots) {
		return nil
	}
	return &t.slots[fd]
}

// resolve decodes a completion token back to its watcher. It returns
// nil if the token is the sentinel, the fd is out of range, the slot is
// empty, or the slot's generation no longer matches (a stale, already-
// invalidated poll).
func (t *fdTable) resolve(tok token) *Watcher {
	if tok == sentinelToken {
		return nil
	}
	slot := t.lookup(tok.fd())
	if slot == nil || slot.watcher == nil || slot.generation != tok.generation() {
		return nil
	}
	return slot.watcher
}

// register assigns w to fd's slot, incrementing nfds if the slot was
// previously empty, and returns the token to encode into the next
// poll-add SQE for w.
func (t *fdTable) register(fd int, w *Watcher) token {
	slot := t.ensure(fd)
	if slot.watcher == nil {
		t.nfds++
	}
	// fd 0 at generation 0 would pack to the sentinel value; skip that
	// generation so a live watcher's token never reads as a discard.
	if newToken(fd, slot.generation) == sentinelToken {
		slot.generation++
	}
	slot.watcher = w
	return newToken(fd, slot.generation)
}

// clear empties fd's slot (if it still refers to w) and bumps the
// generation so any in-flight completion for the old token is seen as
// stale. Returns true if a slot was actually cleared.
func (t *fdTable) clear(fd int, w *Watcher) bool {
	slot := t.lookup(fd)
	if slot == nil || slot.watcher != w {
		return false
	}
	slot.watcher = nil
	slot.generation++
	t.nfds--
	return true
}
