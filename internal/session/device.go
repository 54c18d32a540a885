// Package session manages the Device Session: opening a binder device
// node, negotiating its ABI, mapping the receive arena, and performing the
// fused BINDER_WRITE_READ ioctl that is this library's only transport
// primitive.
package session

import "github.com/ngrantham/go-binder/internal/abi"

// PageSize is the mmap granularity the receive arena is sized against.
// Binder clients in the wild assume the common 4 KiB page size rather
// than querying it, since ArenaSize must be a fixed constant agreed with
// the kernel at mmap time.
const PageSize = 4096

// ArenaSize is the size of the read-only mmap'd receive arena: 1 MiB minus
// two pages, matching what every binder client in the wild requests. The
// two-page shortfall leaves room for the kernel's own bookkeeping at the
// top of the mapping.
const ArenaSize = 1*1024*1024 - 2*PageSize

// Device abstracts the kernel binder device node so the Command Loop and
// its tests never touch syscalls directly. A real Linux binary gets
// linuxDevice; tests get a fake that replays canned BR_* frames.
type Device interface {
	// Descriptor returns the negotiated ABI for this device.
	Descriptor() *abi.Descriptor

	// WriteRead performs one fused BINDER_WRITE_READ: it writes all of
	// write (BC_* commands) and reads as many bytes as fit into read,
	// blocking until at least one byte is available unless nonBlocking
	// is set. It returns the number of bytes actually consumed from
	// write and actually placed into read.
	WriteRead(write []byte, read []byte, nonBlocking bool) (consumed int, received int, err error)

	// SetMaxThreads issues BINDER_SET_MAX_THREADS. Failure is logged and
	// ignored by callers; the kernel tolerates clients that never call it.
	SetMaxThreads(max uint32) error

	// Arena returns the mmap'd receive buffer backing kernel-returned
	// data pointers in BR_TRANSACTION/BR_REPLY payloads.
	Arena() []byte

	// Poll blocks until the device fd is ready, optionally multiplexed
	// with one caller-supplied signalFD (pass a negative value for
	// none), waiting on POLLIN|POLLERR|POLLHUP|POLLNVAL with level-
	// triggered semantics. timeoutMs follows poll(2): negative blocks
	// forever, zero returns immediately. The returned revents is always
	// the device fd's own mask; a non-nil error means the poll call
	// itself failed, never an overloaded negative revents value.
	Poll(signalFD int, timeoutMs int) (revents int16, err error)

	// Fd returns the raw device file descriptor. Test use only;
	// production code goes through WriteRead/Poll.
	Fd() int

	// Close unmaps the arena and closes the device fd.
	Close() error
}
