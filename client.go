// Package binder is the public API of the Driver Engine: a client library
// for Android's Binder IPC facility that speaks the kernel's binder
// protocol directly over /dev/binder via BINDER_WRITE_READ, without going
// through the Android framework's Java/native bindings.
package binder

import (
	"time"

	"github.com/ngrantham/go-binder/internal/abi"
	"github.com/ngrantham/go-binder/internal/interfaces"
	"github.com/ngrantham/go-binder/internal/loop"
	"github.com/ngrantham/go-binder/internal/registry"
	"github.com/ngrantham/go-binder/internal/session"
)

// Config selects the device node, ABI, looper thread budget and
// application Handler for a new Client.
type Config struct {
	// DevicePath is the binder character device to open, e.g.
	// "/dev/binder", "/dev/hwbinder" or "/dev/vndbinder".
	DevicePath string

	// Descriptor pins the ABI this Client negotiates; nil selects
	// abi.Native(), the pointer width this binary itself was built for.
	Descriptor *abi.Descriptor

	// MaxThreads is the BINDER_SET_MAX_THREADS budget requested at open
	// time. 0 (the default) tells the kernel it may never spawn loopers
	// on this process's behalf; every looper thread must be entered
	// explicitly via Loop.EnterLooper.
	MaxThreads uint32

	// Handler services transactions a LocalObject classifies Application.
	// It may be nil for a Client that only ever issues outgoing
	// transactions.
	Handler interfaces.Handler

	// Protocol is this Client's RPC header convention, handed to every
	// inbound Request as Request.Protocol. Transact sends its payload as
	// given and does not write an RPC header itself. Nil selects
	// NewDefaultProtocol(DevicePath).
	Protocol interfaces.RPCProtocol
}

// Client owns one open Device Session: its negotiated ABI, mmap'd receive
// arena, Object Registry, and the Command Loops its looper threads drive
// against it.
type Client struct {
	sess     *session.Session
	registry *registry.Registry
	protocol interfaces.RPCProtocol
	handler  interfaces.Handler
	metrics  *Metrics
}

// Open constructs a Client per the Device Session procedure: open the
// device, negotiate BINDER_VERSION, mmap the receive arena, and
// best-effort set BINDER_SET_MAX_THREADS.
func Open(cfg Config) (*Client, error) {
	desc := cfg.Descriptor
	if desc == nil {
		desc = abi.Native()
	}

	sess, err := session.Open(cfg.DevicePath, desc, cfg.MaxThreads)
	if err != nil {
		return nil, WrapError("open", err)
	}

	protocol := cfg.Protocol
	if protocol == nil {
		protocol = NewDefaultProtocol(cfg.DevicePath)
	}

	return &Client{
		sess:     sess,
		registry: registry.New(),
		protocol: protocol,
		handler:  cfg.Handler,
		metrics:  NewMetrics(),
	}, nil
}

// Close releases this Client's reference to the underlying Device Session,
// closing the device once every other looper thread sharing it has also
// released.
func (c *Client) Close() error {
	return c.sess.Release()
}

// Registry exposes the Object Registry so callers can register local
// objects and remote death-notification proxies before entering a looper.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// Metrics returns this Client's operation counters.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// Protocol returns the RPC Protocol Descriptor this Client hands to
// inbound Requests; callers use it to write the header of outgoing
// requests themselves.
func (c *Client) Protocol() interfaces.RPCProtocol {
	return c.protocol
}

// NewLoop creates a Command Loop for one looper thread, sharing this
// Client's Device Session, Object Registry and Handler. Callers running
// more than one looper thread should call Session.Acquire for each and
// Release it on thread exit; NewLoop itself does not adjust the refcount.
func (c *Client) NewLoop() *loop.Loop {
	return loop.New(c.sess, c.registry, c.handler, c.protocol, c.metrics)
}

// Acquire increments the Device Session's reference count, for a caller
// spawning an additional looper thread against this Client.
func (c *Client) Acquire() {
	c.sess.Acquire()
}

// Release decrements the Device Session's reference count; see
// Session.Release.
func (c *Client) Release() error {
	return c.sess.Release()
}

// Poll blocks until the Device Session is ready, multiplexed with one
// optional caller-supplied signaling fd (pass a negative value for
// none); see Session.Poll. A caller wanting to cancel a pending Read
// polls with a pipe or eventfd as signalFD and writes to it from
// another goroutine to unblock the wait without tearing down the
// Session.
func (c *Client) Poll(signalFD int, timeoutMs int) (int16, error) {
	return c.sess.Poll(signalFD, timeoutMs)
}

// Transact sends a two-way or oneway outgoing transaction against handle
// and blocks until its terminal frame arrives, recording the call's
// outcome and latency to Metrics. data/offsets describe the flat payload
// and any embedded object references within it; reply, if non-nil, is
// populated with a two-way call's response payload.
func (c *Client) Transact(l *loop.Loop, handle uint32, code uint32, oneway bool, data []byte, offsets []uint64, reply *interfaces.Reply) (int32, error) {
	var flags uint32
	if oneway {
		flags |= abi.TFOneWay
	}

	start := time.Now()
	status, err := l.Transact(handle, code, flags, data, offsets, 0, reply)
	c.metrics.RecordTransaction(uint64(len(data)), oneway, status, uint64(time.Since(start).Nanoseconds()))

	if err != nil {
		return status, WrapError("transact", err)
	}
	return status, StatusError("transact", status)
}
