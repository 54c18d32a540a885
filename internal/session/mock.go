package session

import (
	"errors"
	"sync"

	"github.com/ngrantham/go-binder/internal/abi"
)

// MockDevice is a Device test double that replays a scripted sequence of
// inbound BR_* frames and records every BC_* write it receives, so the
// Command Loop and transact() can be tested without a kernel.
type MockDevice struct {
	mu sync.Mutex

	desc *abi.Descriptor

	// Reads is consumed in order: each WriteRead call copies the front
	// entry into the caller's read buffer. An entry that doesn't fit is
	// truncated and the call returns an error alongside the bytes copied.
	Reads [][]byte

	// Writes accumulates every byte slice passed as the write argument.
	Writes [][]byte

	arena []byte

	ClosedCalled       bool
	SetMaxThreadsCalls []uint32
	SetMaxThreadsErr   error

	// ErrOnEmptyReads, if set, is returned once Reads is exhausted
	// instead of blocking forever (tests never want a real block).
	ErrOnEmptyReads error

	// FakeFd is returned by Fd(); MockDevice has no real descriptor.
	FakeFd int

	// PollRevents and PollErr are returned by Poll when PollFunc is nil.
	PollRevents int16
	PollErr     error

	// PollFunc, when set, overrides Poll entirely so a test can vary
	// the result across successive calls (e.g. not-ready then ready).
	PollFunc func(signalFD int, timeoutMs int) (int16, error)

	// PollCalls records the signalFD argument of every Poll call.
	PollCalls []int
}

// NewMockDevice creates a MockDevice for desc with an arena of ArenaSize
// zero bytes, large enough to back any offsets tests point into it.
func NewMockDevice(desc *abi.Descriptor) *MockDevice {
	return &MockDevice{desc: desc, arena: make([]byte, ArenaSize)}
}

func (m *MockDevice) Descriptor() *abi.Descriptor { return m.desc }

func (m *MockDevice) WriteRead(write, read []byte, nonBlocking bool) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(write) > 0 {
		cp := make([]byte, len(write))
		copy(cp, write)
		m.Writes = append(m.Writes, cp)
	}

	if len(m.Reads) == 0 {
		if m.ErrOnEmptyReads != nil {
			return len(write), 0, m.ErrOnEmptyReads
		}
		return len(write), 0, nil
	}

	next := m.Reads[0]
	m.Reads = m.Reads[1:]
	n := copy(read, next)
	if n < len(next) {
		return len(write), n, errors.New("session: mock read buffer too small")
	}
	return len(write), n, nil
}

func (m *MockDevice) SetMaxThreads(max uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetMaxThreadsCalls = append(m.SetMaxThreadsCalls, max)
	return m.SetMaxThreadsErr
}

func (m *MockDevice) Arena() []byte { return m.arena }

func (m *MockDevice) Poll(signalFD int, timeoutMs int) (int16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PollCalls = append(m.PollCalls, signalFD)
	if m.PollFunc != nil {
		return m.PollFunc(signalFD, timeoutMs)
	}
	return m.PollRevents, m.PollErr
}

func (m *MockDevice) Fd() int { return m.FakeFd }

func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClosedCalled = true
	return nil
}

// QueueRead appends raw BR_* frame bytes (built by hand; wire.Encode*
// only builds BC_* commands) to the scripted sequence of inbound reads.
func (m *MockDevice) QueueRead(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads = append(m.Reads, frame)
}

var _ Device = (*MockDevice)(nil)
