// Package sys provides low-level io_uring syscall wrappers and types.
package sys

// Syscall numbers for io_uring (x86_64)
const (
	SYS_IO_URING_SETUP = 425
	SYS_IO_URING_ENTER = 426
)

// io_uring_op - the two opcodes the reactor core ever submits. One-shot
// poll-add and poll-remove are the whole wire contract; every other
// IORING_OP_* the kernel defines goes unused here.
type Op uint8

const (
	IORING_OP_POLL_ADD    Op = 6
	IORING_OP_POLL_REMOVE Op = 7
)

// Setup flags (IORING_SETUP_*)
const (
	IORING_SETUP_SQPOLL uint32 = 1 << 1 // Kernel polls SQ
)

// Feature flags (IORING_FEAT_*)
const (
	IORING_FEAT_SINGLE_MMAP uint32 = 1 << 0 // SQ/CQ share mmap
	IORING_FEAT_EXT_ARG     uint32 = 1 << 8 // Extended argument (combined timeout + sigmask)
)

// Enter flags (IORING_ENTER_*)
const (
	IORING_ENTER_GETEVENTS uint32 = 1 << 0 // Wait for events
	IORING_ENTER_SQ_WAKEUP uint32 = 1 << 1 // Wake SQPOLL thread
	IORING_ENTER_EXT_ARG   uint32 = 1 << 3 // Extended argument
)

// SQ ring flags
const (
	IORING_SQ_NEED_WAKEUP uint32 = 1 << 0 // SQPOLL needs wakeup
)

// mmap offsets for the ring buffers
const (
	IORING_OFF_SQ_RING uint64 = 0
	IORING_OFF_CQ_RING uint64 = 0x8000000
	IORING_OFF_SQES    uint64 = 0x10000000
)
