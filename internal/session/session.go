package session

import (
	"fmt"
	"sync/atomic"

	"github.com/ngrantham/go-binder/internal/abi"
	"github.com/ngrantham/go-binder/internal/logging"
)

// Session owns one open Device for the lifetime of a Client: the device
// node fd, its negotiated ABI, the mmap'd receive arena, and a refcount
// tracking how many Command Loop threads are currently using it.
type Session struct {
	dev    Device
	path   string
	logger *logging.Logger
	refs   int32
	closed int32
}

// Open opens path against desc (use abi.Native() unless the caller has a
// specific reason to force ABI32/ABI64), negotiates the kernel protocol
// version, mmaps the arena, and best-effort sets max looper threads.
// SetMaxThreads failures are logged, not returned: a kernel that rejects
// it still accepts everything else.
func Open(path string, desc *abi.Descriptor, maxThreads uint32) (*Session, error) {
	logger := logging.Default()

	dev, err := openDevice(path, desc)
	if err != nil {
		return nil, err
	}

	if err := dev.SetMaxThreads(maxThreads); err != nil {
		logger.Warn("BINDER_SET_MAX_THREADS failed, continuing", "error", err)
	}

	return &Session{dev: dev, path: path, logger: logger, refs: 1}, nil
}

// openDevice is a var so tests can substitute a fake Device without
// touching a real device node; it resolves to openPlatform, which Linux
// builds implement for real and other platforms stub out.
var openDevice = openPlatform

// NewWithDevice wraps an already-constructed Device (typically a
// *MockDevice) in a Session, for callers outside this package that want
// Session's refcounting and closed-guard semantics over a test double
// without going through a real device node.
func NewWithDevice(dev Device) *Session {
	return &Session{dev: dev, path: "(mock)", logger: logging.Default(), refs: 1}
}

// Acquire increments the session's reference count. Each looper thread
// calling Acquire must pair it with a Release.
func (s *Session) Acquire() {
	atomic.AddInt32(&s.refs, 1)
}

// Release decrements the reference count, closing the underlying device
// once it reaches zero.
func (s *Session) Release() error {
	if atomic.AddInt32(&s.refs, -1) > 0 {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	return s.dev.Close()
}

// Descriptor returns the negotiated ABI descriptor.
func (s *Session) Descriptor() *abi.Descriptor {
	return s.dev.Descriptor()
}

// DevicePath returns the device node path this session was opened
// against.
func (s *Session) DevicePath() string {
	return s.path
}

// RawHandle returns the underlying device file descriptor. Test use
// only: production code has no business bypassing WriteRead/Poll.
func (s *Session) RawHandle() int {
	return s.dev.Fd()
}

// Poll blocks until the device is ready, multiplexing the binder fd
// with one optional caller-supplied signaling fd (pass a negative
// value for none). Callers needing cancellation poll, then only issue
// WriteRead once the binder fd itself reports POLLIN, or abandon the
// wait entirely once the signaling fd becomes ready.
func (s *Session) Poll(signalFD int, timeoutMs int) (int16, error) {
	if atomic.LoadInt32(&s.closed) != 0 {
		return 0, fmt.Errorf("session: use of closed session")
	}
	return s.dev.Poll(signalFD, timeoutMs)
}

// WriteRead delegates to the underlying Device.
func (s *Session) WriteRead(write, read []byte, nonBlocking bool) (int, int, error) {
	if atomic.LoadInt32(&s.closed) != 0 {
		return 0, 0, fmt.Errorf("session: use of closed session")
	}
	return s.dev.WriteRead(write, read, nonBlocking)
}

// Arena returns the mmap'd receive buffer.
func (s *Session) Arena() []byte {
	return s.dev.Arena()
}
