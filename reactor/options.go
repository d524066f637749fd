//go:build linux

package reactor

import "github.com/axiomhq/uvreactor/iouring"

// Flags configure loop-wide behavior, set at construction and mutable
// afterward via Configure.
type Flags uint32

const (
	// BlockSigprof blocks SIGPROF around the blocking wait, so that a
	// profiling signal never interrupts a poll step with a spurious
	// EINTR-shaped retry.
	BlockSigprof Flags = 1 << iota
	// IdleTime enables idle-time accounting (see metrics.go). Left off
	// by default since it costs an extra non-blocking wait per step.
	IdleTime
)

// RunMode selects how many iterations Run executes and whether it may
// block.
type RunMode int

const (
	// Default runs iterations until no watchers remain registered and
	// no further work is pending.
	Default RunMode = iota
	// Once runs exactly one iteration, blocking if necessary.
	Once
	// NoWait runs exactly one iteration without blocking.
	NoWait
)

const defaultEntries = 4096

type config struct {
	entries uint32
	flags   Flags
	logger  Logger
	ring    []iouring.Option
}

// Option configures a Loop at construction time.
type Option func(*config)

// WithEntries sets the ring's submission/completion queue capacity.
// Defaults to 4096.
func WithEntries(n uint32) Option {
	return func(c *config) { c.entries = n }
}

// WithFlags sets the initial configuration flags, equivalent to calling
// Configure immediately after construction.
func WithFlags(f Flags) Option {
	return func(c *config) { c.flags = f }
}

// WithLogger overrides the default process-wide logger for this loop.
func WithLogger(l Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithSQPoll enables kernel-side SQ polling on the underlying ring,
// forwarded directly to iouring.WithSQPoll.
func WithSQPoll(idleMs uint32) Option {
	return func(c *config) {
		c.ring = append(c.ring, iouring.WithSQPoll(), iouring.WithSQPollIdle(idleMs))
	}
}

func newConfig(opts ...Option) config {
	c := config{entries: defaultEntries, logger: defaultLogger()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
