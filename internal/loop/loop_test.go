package loop

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/ngrantham/go-binder/internal/abi"
	"github.com/ngrantham/go-binder/internal/interfaces"
	"github.com/ngrantham/go-binder/internal/session"
	"github.com/ngrantham/go-binder/internal/wire"
)

// --- BR_* frame builders for scripting a MockDevice. ---
//
// Real wire.Encode* helpers only build BC_* commands (client-to-kernel), so
// tests fabricate BR_* returns (kernel-to-client) by hand from the same
// per-ABI field encoders the decoder uses. The opcode's declared size is
// left at 0: the Command Loop advances past a known frame by its decoded
// struct size, never by the opcode's own size bits (those only matter for
// skipping an opcode this library doesn't recognize at all).

const (
	brDirRead  = 2
	brType     = uint32('r')
	brTypeShift = 8
	brDirShift  = 30
)

var brNrs = map[string]uint32{
	"BR_TRANSACTION":          2,
	"BR_REPLY":                3,
	"BR_DEAD_REPLY":           5,
	"BR_TRANSACTION_COMPLETE": 6,
	"BR_INCREFS":              7,
	"BR_ACQUIRE":              8,
	"BR_DEAD_BINDER":          15,
}

func brOpcode(name string) uint32 {
	nr, ok := brNrs[name]
	if !ok {
		panic("unknown BR_* name in test: " + name)
	}
	return (brDirRead << brDirShift) | (brType << brTypeShift) | nr
}

func rawFrame(name string, payload []byte) []byte {
	buf := make([]byte, 4, 4+len(payload))
	op := brOpcode(name)
	buf[0] = byte(op)
	buf[1] = byte(op >> 8)
	buf[2] = byte(op >> 16)
	buf[3] = byte(op >> 24)
	return append(buf, payload...)
}

// transactionFrame builds a raw BR_TRANSACTION or BR_REPLY frame. h.Handle
// doubles as the decoded TargetCookie, since binder_transaction_data's
// first field is a target union interpreted as a cookie on the way in.
func transactionFrame(name string, h *abi.TransactionHeader) []byte {
	data := abi.ABI64.EncodeTransaction(nil, h, false)
	return rawFrame(name, data)
}

func ptrCookieFrame(name string, pc abi.PtrCookie) []byte {
	return rawFrame(name, abi.ABI64.EncodePtrCookie(nil, pc))
}

func deadBinderFrame(cookie uint64) []byte {
	return rawFrame("BR_DEAD_BINDER", abi.ABI64.EncodePointer(nil, cookie))
}

func newTestLoop(registry interfaces.ObjectRegistry, handler interfaces.Handler) (*Loop, *session.MockDevice) {
	dev := session.NewMockDevice(abi.ABI64)
	l := New(dev, registry, handler, nil, nil)
	return l, dev
}

type fakeRegistry struct {
	locals  map[uint64]interfaces.LocalObject
	remotes map[uint32]interfaces.RemoteObject
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		locals:  map[uint64]interfaces.LocalObject{},
		remotes: map[uint32]interfaces.RemoteObject{},
	}
}
func (r *fakeRegistry) GetLocal(cookie uint64) interfaces.LocalObject { return r.locals[cookie] }
func (r *fakeRegistry) GetRemote(handle uint32) interfaces.RemoteObject {
	return r.remotes[handle]
}
func (r *fakeRegistry) RegisterRemote(handle uint32, obj interfaces.RemoteObject) {
	r.remotes[handle] = obj
}
func (r *fakeRegistry) UnregisterRemote(handle uint32) { delete(r.remotes, handle) }

type fakeLocalObject struct {
	increfs, acquire int
	reply            *interfaces.Reply
	status           int32
}

func (o *fakeLocalObject) HandleIncrefs() { o.increfs++ }
func (o *fakeLocalObject) HandleAcquire() { o.acquire++ }
func (o *fakeLocalObject) HandleDecrefs() {}
func (o *fakeLocalObject) HandleRelease() {}
func (o *fakeLocalObject) CanHandle(iface string, code uint32) interfaces.CanHandleResult {
	return interfaces.Looper
}
func (o *fakeLocalObject) HandleLooperTransaction(req *interfaces.Request, code, flags uint32) (*interfaces.Reply, int32) {
	return o.reply, o.status
}

func bytesPtr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

// Scenario: a two-way transaction completes with a real reply payload.
func TestScenarioSimpleReply(t *testing.T) {
	l, dev := newTestLoop(newFakeRegistry(), nil)

	payload := []byte("pong")
	dev.QueueRead(rawFrame("BR_TRANSACTION_COMPLETE", nil))
	dev.QueueRead(transactionFrame("BR_REPLY", &abi.TransactionHeader{
		DataPtr: bytesPtr(payload), DataSize: uint64(len(payload)),
	}))

	var reply interfaces.Reply
	status, err := l.Transact(1, 7, 0, []byte("ping"), nil, 0, &reply)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	require.Equal(t, payload, reply.Bytes())

	// BC_TRANSACTION, then the BC_FREE_BUFFER the received buffer requires.
	require.Len(t, dev.Writes, 2)
}

// Scenario: the kernel reports the target process is gone.
func TestScenarioDeadPeer(t *testing.T) {
	l, dev := newTestLoop(newFakeRegistry(), nil)
	dev.QueueRead(rawFrame("BR_DEAD_REPLY", nil))

	status, err := l.Transact(1, 7, 0, []byte("ping"), nil, 0, nil)
	require.NoError(t, err)
	require.Equal(t, StatusDeadObject, status)
	require.Len(t, dev.Writes, 1)
}

// Scenario: BR_INCREFS/BR_ACQUIRE arrive batched ahead of the transaction's
// own terminal frames in a single buffered read; both must be acked and the
// target local object notified before Transact returns.
func TestScenarioRefcountInterleaving(t *testing.T) {
	reg := newFakeRegistry()
	obj := &fakeLocalObject{}
	reg.locals[42] = obj

	l, dev := newTestLoop(reg, nil)
	batch := append(
		append(
			ptrCookieFrame("BR_INCREFS", abi.PtrCookie{Ptr: 0x10, Cookie: 42}),
			ptrCookieFrame("BR_ACQUIRE", abi.PtrCookie{Ptr: 0x10, Cookie: 42})...,
		),
		rawFrame("BR_TRANSACTION_COMPLETE", nil)...,
	)
	dev.QueueRead(batch)
	dev.QueueRead(transactionFrame("BR_REPLY", &abi.TransactionHeader{}))

	status, err := l.Transact(1, 7, 0, nil, nil, 0, nil)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	require.Equal(t, 1, obj.increfs)
	require.Equal(t, 1, obj.acquire)

	// BC_TRANSACTION, then the BC_INCREFS_DONE+BC_ACQUIRE_DONE acks flushed
	// once the reply arrives.
	require.Len(t, dev.Writes, 2)
	require.Len(t, dev.Writes[1],
		len(abi.ABI64.EncodePtrCookie(nil, abi.PtrCookie{}))*2+8)
}

// Scenario: a oneway transaction completes on BR_TRANSACTION_COMPLETE alone.
func TestScenarioOneway(t *testing.T) {
	l, dev := newTestLoop(newFakeRegistry(), nil)
	dev.QueueRead(rawFrame("BR_TRANSACTION_COMPLETE", nil))

	status, err := l.Transact(1, 7, abi.TFOneWay, []byte("fire"), nil, 0, nil)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	require.Len(t, dev.Writes, 1)
}

// Scenario: an inbound transaction for a registered local object arrives
// batched with the outer transaction's own terminal frames. The inbound
// request must be dispatched and its BC_REPLY flushed before Transact
// returns.
func TestScenarioInboundDuringReplyWait(t *testing.T) {
	reg := newFakeRegistry()
	reply := interfaces.NewReply()
	reply.WriteBytes([]byte("ack"))
	obj := &fakeLocalObject{reply: reply, status: StatusOK}
	reg.locals[99] = obj

	l, dev := newTestLoop(reg, nil)

	inboundPayload := []byte("hello")
	batch := append(
		transactionFrame("BR_TRANSACTION", &abi.TransactionHeader{
			Handle: 99, DataPtr: bytesPtr(inboundPayload), DataSize: uint64(len(inboundPayload)),
		}),
		rawFrame("BR_TRANSACTION_COMPLETE", nil)...,
	)
	dev.QueueRead(batch)
	dev.QueueRead(transactionFrame("BR_REPLY", &abi.TransactionHeader{}))

	status, err := l.Transact(1, 7, 0, nil, nil, 0, nil)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)

	// BC_TRANSACTION (outgoing), then the inbound object's BC_REPLY flushed
	// before this call returns.
	require.Len(t, dev.Writes, 2)
}

// Scenario: a registered death notification fires via passive Read. The
// proxy is resolvable through the registry by handle until the moment it
// fires, after which the registry's handle-keyed entry is gone too.
func TestScenarioDeathNotification(t *testing.T) {
	reg := newFakeRegistry()
	l, dev := newTestLoop(reg, nil)

	notified := 0
	proxy := RemoteFunc(func() { notified++ })
	require.NoError(t, l.RequestDeathNotification(5, proxy))
	require.Len(t, dev.Writes, 1) // BC_REQUEST_DEATH_NOTIFICATION, from RequestDeathNotification's own flush
	require.NotNil(t, reg.GetRemote(5))

	cookie := l.nextDeathCookie
	dev.QueueRead(deadBinderFrame(cookie))

	require.NoError(t, l.Read())
	require.Equal(t, 1, notified)
	require.Nil(t, reg.GetRemote(5))
}

// RemoteFunc adapts a closure to interfaces.RemoteObject for this test file.
type RemoteFunc func()

func (f RemoteFunc) HandleDeathNotification() { f() }

var _ interfaces.RemoteObject = RemoteFunc(nil)
