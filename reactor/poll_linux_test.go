//go:build linux

package reactor

import (
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipePingPong(t *testing.T) {
	l := skipIfNoRing(t)
	defer l.Close()

	ar, aw, err := os.Pipe()
	require.NoError(t, err)
	defer ar.Close()
	defer aw.Close()
	br, bw, err := os.Pipe()
	require.NoError(t, err)
	defer br.Close()
	defer bw.Close()

	const msg = "hello, world"
	_, err = aw.WriteString(msg)
	require.NoError(t, err)
	_, err = bw.WriteString(msg)
	require.NoError(t, err)

	var gotA, gotB string
	var wA, wB *Watcher
	wA = NewWatcher(int(ar.Fd()), func(l *Loop, w *Watcher, e EventMask) {
		buf := make([]byte, len(msg))
		n, _ := ar.Read(buf)
		gotA = string(buf[:n])
		l.IOStop(w, Readable)
	})
	wB = NewWatcher(int(br.Fd()), func(l *Loop, w *Watcher, e EventMask) {
		buf := make([]byte, len(msg))
		n, _ := br.Read(buf)
		gotB = string(buf[:n])
		l.IOStop(w, Readable)
	})

	require.NoError(t, l.IOStart(wA, Readable))
	require.NoError(t, l.IOStart(wB, Readable))

	remaining, err := l.Run(Default)
	require.NoError(t, err)
	assert.False(t, remaining)
	assert.Equal(t, msg, gotA)
	assert.Equal(t, msg, gotB)
}

func TestIdleTimeUnderTimer(t *testing.T) {
	l, err := NewLoop(WithEntries(64), WithFlags(IdleTime))
	if err != nil {
		if err == ErrPlatformUnavailable {
			t.Skip("io_uring with IORING_FEAT_EXT_ARG not supported on this kernel")
		}
		t.Skipf("reactor loop unavailable: %v", err)
	}
	defer l.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	var once sync.Once
	go func() {
		time.Sleep(100 * time.Millisecond)
		once.Do(func() { w.Write([]byte{1}) })
	}()

	fired := false
	watcher := NewWatcher(int(r.Fd()), func(l *Loop, w *Watcher, e EventMask) {
		fired = true
		l.IOStop(w, Readable)
	})
	require.NoError(t, l.IOStart(watcher, Readable))

	deadline := time.Now().Add(2 * time.Second)
	for l.table.nfds > 0 && time.Now().Before(deadline) {
		if _, err := l.Run(Once); err != nil {
			require.NoError(t, err)
		}
	}

	require.True(t, fired, "timer fixture never fired")
	assert.GreaterOrEqual(t, l.IdleTime(), uint64(99_000_000))
}

func TestInvalidateFDDropsStaleCompletion(t *testing.T) {
	l := skipIfNoRing(t)
	defer l.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()

	invoked := false
	watcher := NewWatcher(int(r.Fd()), func(*Loop, *Watcher, EventMask) {
		invoked = true
	})
	require.NoError(t, l.IOStart(watcher, Readable))

	fd := int(r.Fd())
	require.NoError(t, r.Close())
	require.NoError(t, l.InvalidateFD(fd))

	// One more step observes (and discards) the cancellation completion.
	_, err = l.Run(NoWait)
	require.NoError(t, err)

	assert.False(t, invoked, "callback must not fire for an invalidated watcher")
	assert.Equal(t, 0, l.table.nfds)
}

func TestSignalWatcherDispatchedLast(t *testing.T) {
	l := skipIfNoRing(t)
	defer l.Close()

	sr, sw, err := os.Pipe()
	require.NoError(t, err)
	defer sr.Close()
	defer sw.Close()
	nr, nw, err := os.Pipe()
	require.NoError(t, err)
	defer nr.Close()
	defer nw.Close()

	_, err = sw.Write([]byte{1})
	require.NoError(t, err)
	_, err = nw.Write([]byte{1})
	require.NoError(t, err)

	var order []string
	l.signalWatcher = NewWatcher(int(sr.Fd()), func(l *Loop, w *Watcher, e EventMask) {
		order = append(order, "signal")
	})
	normal := NewWatcher(int(nr.Fd()), func(l *Loop, w *Watcher, e EventMask) {
		order = append(order, "normal")
		l.IOStop(w, Readable)
	})

	require.NoError(t, l.IOStart(l.signalWatcher, Readable))
	require.NoError(t, l.IOStart(normal, Readable))

	_, err = l.Run(Once)
	require.NoError(t, err)

	require.Len(t, order, 2)
	assert.Equal(t, "normal", order[0])
	assert.Equal(t, "signal", order[1])
}

// tickLoop drives l through three 100ms-spaced pipe writes from a
// background goroutine, re-arming the watcher after each, and returns
// the loop's accumulated idle time once all three have been observed.
func tickLoop(l *Loop) (uint64, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return 0, err
	}
	defer r.Close()
	defer w.Close()

	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(100 * time.Millisecond)
			w.Write([]byte{1})
		}
	}()

	ticks := 0
	watcher := NewWatcher(int(r.Fd()), func(l *Loop, w *Watcher, e EventMask) {
		buf := make([]byte, 1)
		r.Read(buf)
		ticks++
		if ticks >= 3 {
			l.IOStop(w, Readable)
		}
	})
	if err := l.IOStart(watcher, Readable); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(3 * time.Second)
	for l.table.nfds > 0 && time.Now().Before(deadline) {
		if _, err := l.Run(Once); err != nil {
			return 0, err
		}
	}
	if ticks != 3 {
		return 0, fmt.Errorf("expected 3 ticks, got %d", ticks)
	}
	return l.IdleTime(), nil
}

func TestPerThreadIdleAccounting(t *testing.T) {
	type result struct {
		idle uint64
		err  error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			l, err := NewLoop(WithEntries(64), WithFlags(IdleTime))
			if err != nil {
				results <- result{err: err}
				return
			}
			defer l.Close()
			idle, err := tickLoop(l)
			results <- result{idle: idle, err: err}
		}()
	}

	for i := 0; i < 2; i++ {
		r := <-results
		if r.err == ErrPlatformUnavailable {
			t.Skip("io_uring with IORING_FEAT_EXT_ARG not supported on this kernel")
		}
		require.NoError(t, r.err)
		assert.GreaterOrEqual(t, r.idle, uint64(299*time.Millisecond))
	}
}

func TestCancelBeforeConnect(t *testing.T) {
	l := skipIfNoRing(t)
	defer l.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(fd)

	var dst [4]byte
	copy(dst[:], addr.IP.To4())
	err = unix.Connect(fd, &unix.SockaddrInet4{Port: addr.Port, Addr: dst})
	if err != nil && err != unix.EINPROGRESS {
		require.NoError(t, err)
	}

	fired := 0
	watcher := NewWatcher(fd, func(l *Loop, w *Watcher, e EventMask) {
		fired++
		l.IOStop(w, Writable)
	})
	require.NoError(t, l.IOStart(watcher, Writable))
	require.NoError(t, l.InvalidateFD(fd))

	deadline := time.Now().Add(2 * time.Second)
	for l.table.nfds > 0 && time.Now().Before(deadline) {
		_, err := l.Run(NoWait)
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, fired, 1, "callback must not fire more than once after invalidation")
	assert.Equal(t, 0, l.table.nfds)
}

func TestPollWithDisconnect(t *testing.T) {
	l := skipIfNoRing(t)
	defer l.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	a, b := fds[0], fds[1]
	defer unix.Close(a)
	defer unix.Close(b)

	_, err = unix.Write(b, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, unix.Shutdown(b, unix.SHUT_WR))

	var got EventMask
	watcher := NewWatcher(a, func(l *Loop, w *Watcher, e EventMask) {
		got = e
		l.IOStop(w, Disconnect)
	})
	require.NoError(t, l.IOStart(watcher, Disconnect))

	_, err = l.Run(Once)
	require.NoError(t, err)

	assert.NotZero(t, got&(Disconnect|Hup), "expected a disconnect/hup completion after peer shutdown(SHUT_WR)")
}

func TestOutOfBandReadiness(t *testing.T) {
	l := skipIfNoRing(t)
	defer l.Close()

	lfd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(lfd)
	require.NoError(t, unix.Bind(lfd, &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
	require.NoError(t, unix.Listen(lfd, 1))

	lsa, err := unix.Getsockname(lfd)
	require.NoError(t, err)
	lport := lsa.(*unix.SockaddrInet4)

	cfd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(cfd)
	require.NoError(t, unix.Connect(cfd, &unix.SockaddrInet4{Port: lport.Port, Addr: [4]byte{127, 0, 0, 1}}))

	afd, _, err := unix.Accept(lfd)
	require.NoError(t, err)
	defer unix.Close(afd)

	fired := false
	var got EventMask
	watcher := NewWatcher(afd, func(l *Loop, w *Watcher, e EventMask) {
		fired = true
		got = e
		l.IOStop(w, Prioritized)
	})
	require.NoError(t, l.IOStart(watcher, Prioritized))

	_, err = unix.Send(cfd, []byte("hello"), unix.MSG_OOB)
	require.NoError(t, err)
	_, err = unix.Send(cfd, []byte("world"), unix.MSG_OOB)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for !fired && time.Now().Before(deadline) {
		_, err := l.Run(Once)
		require.NoError(t, err)
	}

	require.True(t, fired, "expected at least one Prioritized completion")
	assert.NotZero(t, got&Prioritized)

	buf := make([]byte, 16)
	n, err := unix.Recv(afd, buf, unix.MSG_OOB)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}
