package binder

import (
	"github.com/ngrantham/go-binder/internal/abi"
	"github.com/ngrantham/go-binder/internal/interfaces"
	"github.com/ngrantham/go-binder/internal/registry"
	"github.com/ngrantham/go-binder/internal/session"
)

// MockDevice re-exports session.MockDevice: a Device test double that
// replays a scripted sequence of inbound BR_* frames and records every
// BC_* write it receives, so Command Loop dispatch can be tested without
// a kernel.
type MockDevice = session.MockDevice

// NewMockClient builds a Client backed by a MockDevice instead of a real
// device node, for tests that exercise transact()/Read dispatch without a
// kernel. Script inbound frames on the returned MockDevice (via
// QueueRead) before driving a Loop from the Client.
func NewMockClient(desc *abi.Descriptor, handler interfaces.Handler) (*Client, *MockDevice) {
	if desc == nil {
		desc = abi.Native()
	}
	dev := session.NewMockDevice(desc)
	sess := session.NewWithDevice(dev)

	c := &Client{
		sess:     sess,
		registry: registry.New(),
		protocol: NewDefaultProtocol("mock"),
		handler:  handler,
		metrics:  NewMetrics(),
	}
	return c, dev
}
