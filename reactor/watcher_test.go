//go:build linux

package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherQueueFIFOOrder(t *testing.T) {
	var q watcherQueue
	require.True(t, q.empty())

	a := &Watcher{fd: 1}
	b := &Watcher{fd: 2}
	c := &Watcher{fd: 3}
	q.pushBack(a)
	q.pushBack(b)
	q.pushBack(c)

	assert.False(t, q.empty())
	assert.Same(t, a, q.popFront())
	assert.Same(t, b, q.popFront())
	assert.Same(t, c, q.popFront())
	assert.True(t, q.empty())
	assert.Nil(t, q.popFront())
}

func TestWatcherQueueInterleavedPushPop(t *testing.T) {
	var q watcherQueue
	a := &Watcher{fd: 1}
	b := &Watcher{fd: 2}

	q.pushBack(a)
	assert.Same(t, a, q.popFront())

	q.pushBack(b)
	c := &Watcher{fd: 3}
	q.pushBack(c)
	assert.Same(t, b, q.popFront())
	assert.Same(t, c, q.popFront())
	assert.True(t, q.empty())
}

func TestEventMaskBitsDistinct(t *testing.T) {
	bits := []EventMask{Readable, Writable, Prioritized, Disconnect, Err, Hup}
	seen := EventMask(0)
	for _, b := range bits {
		assert.NotZero(t, b)
		assert.Zero(t, seen&b, "mask bit %v overlaps an earlier bit", b)
		seen |= b
	}
}

func TestSettableExcludesDeliveryOnlyBits(t *testing.T) {
	assert.Zero(t, settable&Err)
	assert.Zero(t, settable&Hup)
	assert.Equal(t, Readable|Writable|Prioritized|Disconnect, settable)
}
