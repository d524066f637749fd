//go:build linux

package reactor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoRing(t *testing.T) *Loop {
	t.Helper()
	l, err := NewLoop(WithEntries(64))
	if err != nil {
		if err == ErrPlatformUnavailable {
			t.Skip("io_uring with IORING_FEAT_EXT_ARG not supported on this kernel")
		}
		t.Skipf("reactor loop unavailable: %v", err)
	}
	return l
}

func TestNewLoopAndClose(t *testing.T) {
	l := skipIfNoRing(t)
	require.NotZero(t, l.Time())
	require.NoError(t, l.Close())
	// Closing twice is a no-op, not an error.
	require.NoError(t, l.Close())
}

func TestCloseBusyWithRegisteredWatcher(t *testing.T) {
	l := skipIfNoRing(t)
	defer l.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	watcher := NewWatcher(int(r.Fd()), func(*Loop, *Watcher, EventMask) {})
	require.NoError(t, l.IOStart(watcher, Readable))

	assert.ErrorIs(t, l.Close(), ErrBusy)

	l.IOClose(watcher)
	assert.NoError(t, l.Close())
}

func TestIOStartIdempotent(t *testing.T) {
	l := skipIfNoRing(t)
	defer func() {
		// best-effort cleanup regardless of test outcome
		_, _ = l.Run(NoWait)
	}()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	watcher := NewWatcher(int(r.Fd()), func(*Loop, *Watcher, EventMask) {})

	require.NoError(t, l.IOStart(watcher, Readable))
	firstToken := watcher.tok
	require.True(t, watcher.queued)

	require.NoError(t, l.IOStart(watcher, Readable))
	assert.Equal(t, firstToken, watcher.tok)
	assert.Equal(t, Readable, watcher.pevents)
	assert.Equal(t, 1, l.table.nfds)

	l.IOClose(watcher)
}

func TestIOStopClearsRegistration(t *testing.T) {
	l := skipIfNoRing(t)
	defer l.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	watcher := NewWatcher(int(r.Fd()), func(*Loop, *Watcher, EventMask) {})
	require.NoError(t, l.IOStart(watcher, Readable))
	require.Equal(t, 1, l.table.nfds)

	l.IOStop(watcher, Readable)
	assert.Equal(t, 0, l.table.nfds)
	assert.Zero(t, watcher.pevents)
	assert.False(t, watcher.queued)
}

func TestCheckFDValidAndInvalid(t *testing.T) {
	l := skipIfNoRing(t)
	defer l.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()

	assert.NoError(t, l.CheckFD(int(r.Fd())))

	fd := int(r.Fd())
	require.NoError(t, r.Close())
	assert.ErrorIs(t, l.CheckFD(fd), ErrInvalid)
}

func TestRunNoWaitReturnsImmediatelyWhenIdle(t *testing.T) {
	l := skipIfNoRing(t)
	defer l.Close()

	remaining, err := l.Run(NoWait)
	require.NoError(t, err)
	assert.False(t, remaining)
}

func TestTimeMonotonicAcrossSteps(t *testing.T) {
	l := skipIfNoRing(t)
	defer l.Close()

	t1 := l.Time()
	_, err := l.Run(NoWait)
	require.NoError(t, err)
	t2 := l.Time()
	assert.GreaterOrEqual(t, t2, t1)
}

func TestNewLoopRejectsZeroEntries(t *testing.T) {
	_, err := NewLoop(WithEntries(0))
	assert.Error(t, err)
}
