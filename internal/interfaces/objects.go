// Package interfaces declares the collaborator interfaces the Command
// Loop consumes: the Object Registry, Local/Remote objects, the
// application Handler, and the RPC Protocol Descriptor. The Driver Engine
// depends only on these interfaces; internal/registry and the root
// binder package supply the default implementations.
package interfaces

// CanHandleResult classifies how (or whether) a LocalObject can service an
// inbound transaction, resolved by interface name and transaction code.
type CanHandleResult int

const (
	// None means the object has no handler for this (iface, code) pair;
	// the Command Loop replies with a BAD_MESSAGE status.
	None CanHandleResult = iota
	// Looper means the framework thread itself services the request
	// synchronously, without invoking the application Handler.
	Looper
	// Application means the request is dispatched through the external
	// Handler callback.
	Application
)

func (r CanHandleResult) String() string {
	switch r {
	case None:
		return "none"
	case Looper:
		return "looper"
	case Application:
		return "application"
	default:
		return "unknown"
	}
}

// OutputData is the read-only view over an outgoing or decoded payload:
// the flat byte buffer, the offsets of embedded object references within
// it, and the summed size of any out-of-line scatter-gather buffers.
type OutputData interface {
	// Bytes returns the flat payload.
	Bytes() []byte
	// Offsets returns byte offsets into Bytes() at which an embedded
	// object reference (a flat_binder_object) is located.
	Offsets() []uint64
	// BuffersSize returns the summed size of out-of-line SG buffers, or
	// 0 if this payload carries none.
	BuffersSize() uint64
}

// Writer is the mutable counterpart of OutputData, used when building an
// outgoing request or reply.
type Writer interface {
	OutputData
	// WriteBytes appends to the flat payload.
	WriteBytes(p []byte)
	// WriteOffset records an embedded object reference at the payload's
	// current length.
	WriteOffset()
}

// Request is the remote-request carrier built from a decoded
// BR_TRANSACTION: sender credentials, the negotiated RPC protocol, the
// transaction code and flags, and (if non-empty) the arena payload, which
// the carrier owns until Release issues BC_FREE_BUFFER. The Command Loop
// does not parse an interface name out of the payload, so Interface is
// left empty on carriers it builds.
type Request struct {
	SenderPID  int32
	SenderEUID uint32
	Interface  string
	Code       uint32
	Flags      uint32
	Protocol   RPCProtocol

	data        []byte
	offsets     []uint64
	bufferPtr   uint64
	hasBuffer   bool
	releaseFunc func(ptr uint64)
}

// NewRequest constructs a Request carrier. releaseFunc is invoked exactly
// once by Release if hasBuffer is true; it is the Session's BC_FREE_BUFFER
// hook.
func NewRequest(data []byte, offsets []uint64, bufferPtr uint64, hasBuffer bool, releaseFunc func(uint64)) *Request {
	return &Request{data: data, offsets: offsets, bufferPtr: bufferPtr, hasBuffer: hasBuffer, releaseFunc: releaseFunc}
}

func (r *Request) Bytes() []byte        { return r.data }
func (r *Request) Offsets() []uint64    { return r.offsets }
func (r *Request) BuffersSize() uint64  { return 0 }

// Release frees the arena buffer this carrier owns, if any. It is
// idempotent: calling it twice only frees once.
func (r *Request) Release() {
	if r.hasBuffer && r.releaseFunc != nil {
		r.releaseFunc(r.bufferPtr)
		r.hasBuffer = false
	}
}

// Reply is the carrier an application Handler or looper populates in
// response to a Request, or that a caller supplies to transact() to
// receive an outgoing transaction's result.
type Reply struct {
	data    []byte
	offsets []uint64
	buffers uint64
}

// NewReply creates an empty, writable Reply carrier.
func NewReply() *Reply {
	return &Reply{}
}

// NewReplyWithData wraps an already-decoded payload and offset table (a
// received BR_REPLY or BR_TRANSACTION's data) as a read-only Reply, without
// going through WriteBytes/WriteOffset.
func NewReplyWithData(data []byte, offsets []uint64) *Reply {
	return &Reply{data: data, offsets: offsets}
}

func (r *Reply) Bytes() []byte       { return r.data }
func (r *Reply) Offsets() []uint64   { return r.offsets }
func (r *Reply) BuffersSize() uint64 { return r.buffers }

func (r *Reply) WriteBytes(p []byte) {
	r.data = append(r.data, p...)
}

func (r *Reply) WriteOffset() {
	r.offsets = append(r.offsets, uint64(len(r.data)))
}

// SetBuffersSize declares the summed size of out-of-line SG buffers this
// reply carries, selecting BC_REPLY_SG over BC_REPLY at encode time.
func (r *Reply) SetBuffersSize(n uint64) {
	r.buffers = n
}

var (
	_ OutputData = (*Request)(nil)
	_ Writer     = (*Reply)(nil)
)

// LocalObject is a binder object hosted by this process: the Command Loop
// notifies it of kernel-driven refcount transitions and asks it to
// service inbound transactions.
type LocalObject interface {
	// HandleIncrefs and HandleAcquire are invoked synchronously from
	// frame dispatch, before the loop emits BC_INCREFS_DONE /
	// BC_ACQUIRE_DONE.
	HandleIncrefs()
	HandleAcquire()
	HandleDecrefs()
	HandleRelease()

	// CanHandle classifies an inbound transaction before dispatch.
	CanHandle(iface string, code uint32) CanHandleResult

	// HandleLooperTransaction services a transaction classified Looper,
	// synchronously on the Command Loop's own thread.
	HandleLooperTransaction(req *Request, code uint32, flags uint32) (*Reply, int32)
}

// RemoteObject is a proxy for a binder object hosted by another process,
// identified by kernel handle.
type RemoteObject interface {
	// HandleDeathNotification is invoked at most once, when BR_DEAD_BINDER
	// arrives for this object's handle.
	HandleDeathNotification()
}

// Handler is the application-side dispatcher for transactions classified
// Application by a LocalObject's CanHandle.
type Handler interface {
	Transact(obj LocalObject, req *Request, code uint32, flags uint32) (*Reply, int32)
}

// RPCProtocol prefixes outgoing requests with whatever header convention
// identifies the calling interface to the remote object (the Android
// reference writes the interface's descriptor string; this library
// treats the exact convention as pluggable per RPCProtocol implementation).
type RPCProtocol interface {
	WriteRPCHeader(w Writer, ifaceName string)
}

// ObjectRegistry resolves cookies and handles to the local/remote objects
// the Command Loop dispatches against. internal/registry provides the
// default in-memory implementation.
type ObjectRegistry interface {
	GetLocal(cookie uint64) LocalObject
	GetRemote(handle uint32) RemoteObject

	// RegisterRemote and UnregisterRemote track which handle a
	// death-notification proxy was registered for, so GetRemote can
	// resolve it by handle. BR_DEAD_BINDER itself carries only the
	// death cookie, never the handle, so delivery routing is handled
	// separately by the Command Loop; these calls exist purely so the
	// registry stays queryable by handle.
	RegisterRemote(handle uint32, obj RemoteObject)
	UnregisterRemote(handle uint32)
}

// Observer receives Command Loop instrumentation hooks. A Loop's observer
// may be nil, in which case the loop simply skips the call; the root
// binder package's Metrics is the default implementation.
type Observer interface {
	// ObserveInboundTransaction is called once per BR_TRANSACTION the
	// Command Loop dispatches, with the size of its flat payload.
	ObserveInboundTransaction(bytesReceived uint64)
	// ObserveBufferFree is called once per BC_FREE_BUFFER the loop
	// issues.
	ObserveBufferFree()
}
