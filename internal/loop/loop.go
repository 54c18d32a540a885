package loop

import (
	"encoding/binary"
	"errors"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/ngrantham/go-binder/internal/abi"
	"github.com/ngrantham/go-binder/internal/interfaces"
	"github.com/ngrantham/go-binder/internal/logging"
	"github.com/ngrantham/go-binder/internal/wire"
)

// Session is the narrow slice of *session.Session a Command Loop drives:
// the fused write_read transport and the negotiated ABI. Declaring it here
// rather than importing the session package lets loop_test.go substitute
// anything with this method set, not just a real Session.
type Session interface {
	Descriptor() *abi.Descriptor
	WriteRead(write, read []byte, nonBlocking bool) (consumed, received int, err error)
}

// Loop is the Command Loop for one looper thread: it owns a stack-local
// Read Buffer and pending-write accumulator, and drives a Session's fused
// write_read calls, decoding BR_* frames and dispatching them against an
// Object Registry.
type Loop struct {
	sess     Session
	desc     *abi.Descriptor
	registry interfaces.ObjectRegistry
	handler  interfaces.Handler
	protocol interfaces.RPCProtocol
	observer interfaces.Observer
	logger   *logging.Logger

	rb  ReadBuffer
	out []byte // BC_* bytes queued during dispatch, flushed on the next write_read

	deathMu         sync.Mutex
	deathNotified   map[uint64]deathEntry
	nextDeathCookie uint64
}

// deathEntry pairs the RemoteObject a death notification targets with the
// handle it was registered against, so delivery (keyed by cookie, the only
// identifier BR_DEAD_BINDER carries) can still unregister the registry's
// handle-keyed bookkeeping afterward.
type deathEntry struct {
	handle uint32
	obj    interfaces.RemoteObject
}

// New creates a Command Loop over sess. handler may be nil if this loop
// never services Application-classified transactions; protocol and
// observer may both be nil, in which case inbound Requests carry no RPC
// Protocol Descriptor and no metrics are recorded.
func New(sess Session, registry interfaces.ObjectRegistry, handler interfaces.Handler, protocol interfaces.RPCProtocol, observer interfaces.Observer) *Loop {
	return &Loop{
		sess:          sess,
		desc:          sess.Descriptor(),
		registry:      registry,
		handler:       handler,
		protocol:      protocol,
		observer:      observer,
		logger:        logging.Default(),
		deathNotified: make(map[uint64]deathEntry),
	}
}

// transactionState tracks one in-flight outgoing transaction across
// however many write_read round trips it takes to reach a terminal frame.
type transactionState struct {
	oneway bool
	done   bool
	status int32
	reply  *interfaces.Reply
}

func (t *transactionState) complete(status int32, reply *interfaces.Reply) {
	t.status = status
	t.reply = reply
	t.done = true
}

// queueOut appends b to the commands awaiting the next write_read.
func (l *Loop) queueOut(b []byte) {
	l.out = append(l.out, b...)
}

// takeOut returns and clears the queued outgoing bytes.
func (l *Loop) takeOut() []byte {
	out := l.out
	l.out = nil
	return out
}

// writeRead issues one fused write_read, retrying transparently on EAGAIN
// or EINTR with no backoff and no retry bound, per this library's tight
// retry policy: the kernel signals "try again" only because the ioctl was
// made non-blocking, not because of genuine resource exhaustion.
func (l *Loop) writeRead(write []byte, nonBlocking bool) (int, error) {
	for {
		consumed, received, err := l.sess.WriteRead(write, l.rb.Tail(), nonBlocking)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) {
				if consumed > 0 && consumed <= len(write) {
					write = write[consumed:]
				}
				continue
			}
			return 0, err
		}
		l.rb.Commit(received)
		return received, nil
	}
}

// processBuffer decodes and dispatches every complete frame currently
// sitting in the Read Buffer, leaving any trailing partial frame in place
// for the next write_read to complete. tx is non-nil only while an
// outgoing transaction is watching for its terminal frame.
func (l *Loop) processBuffer(tx *transactionState) error {
	for {
		peek := l.rb.Peek()
		if len(peek) < 4 {
			break
		}

		frame, err := wire.Decode(l.desc, peek)
		if err != nil {
			if errors.Is(err, abi.ErrShortFrame) {
				break
			}
			var unknown wire.ErrUnknownOpcode
			if errors.As(err, &unknown) {
				skipLen := 4 + abi.IOCSize(uint32(unknown))
				if len(peek) < skipLen {
					break
				}
				l.logger.Warn("unexpected BR_* opcode, skipping", "opcode", uint32(unknown))
				l.rb.Advance(skipLen)
				continue
			}
			return err
		}

		l.rb.Advance(frame.Consumed)
		if err := l.dispatchFrame(frame, tx); err != nil {
			return err
		}
	}
	l.rb.Compact()
	return nil
}

// dispatchFrame implements the Core Dispatch table: one BR_* frame in,
// zero or more BC_* commands queued, and (for BR_TRANSACTION/BR_REPLY and
// the other transaction-terminal opcodes) the transaction state machine
// advanced.
func (l *Loop) dispatchFrame(f *wire.Frame, tx *transactionState) error {
	switch f.Op {
	case abi.BROpNoop, abi.BROpOK, abi.BROpSpawnLooper, abi.BROpFinished, abi.BROpClearDeathNotificationDone:
		l.logger.Debug("br frame", "op", int(f.Op))
		return nil

	case abi.BROpIncrefs:
		l.notifyLocal(f.RefTarget, func(o interfaces.LocalObject) { o.HandleIncrefs() })
		l.queueOut(wire.EncodeIncrefsDone(l.desc, nil, f.RefTarget))
		return nil

	case abi.BROpAcquire:
		l.notifyLocal(f.RefTarget, func(o interfaces.LocalObject) { o.HandleAcquire() })
		l.queueOut(wire.EncodeAcquireDone(l.desc, nil, f.RefTarget))
		return nil

	case abi.BROpDecrefs:
		l.notifyLocal(f.RefTarget, func(o interfaces.LocalObject) { o.HandleDecrefs() })
		return nil

	case abi.BROpRelease:
		l.notifyLocal(f.RefTarget, func(o interfaces.LocalObject) { o.HandleRelease() })
		return nil

	case abi.BROpTransaction:
		return l.dispatchInboundTransaction(f.Transaction)

	case abi.BROpTransactionComplete:
		if tx != nil && !tx.done && tx.oneway {
			tx.complete(StatusOK, nil)
		}
		return nil

	case abi.BROpDeadReply:
		if tx != nil && !tx.done {
			tx.complete(StatusDeadObject, nil)
		}
		return nil

	case abi.BROpFailedReply:
		if tx != nil && !tx.done {
			tx.complete(StatusFailed, nil)
		}
		return nil

	case abi.BROpReply:
		return l.dispatchReply(f.Transaction, tx)

	case abi.BROpDeadBinder:
		l.deathMu.Lock()
		entry, ok := l.deathNotified[f.DeathCookie]
		if ok {
			delete(l.deathNotified, f.DeathCookie)
		}
		l.deathMu.Unlock()
		l.queueOut(wire.EncodeDeadBinderDone(l.desc, nil, f.DeathCookie))
		if ok && entry.obj != nil {
			l.registry.UnregisterRemote(entry.handle)
			entry.obj.HandleDeathNotification()
		} else {
			l.logger.Warn("BR_DEAD_BINDER for unknown cookie", "cookie", f.DeathCookie)
		}
		return nil

	case abi.BROpError:
		l.logger.Warn("BR_ERROR", "status", f.Status)
		return nil

	case abi.BROpAcquireResult:
		l.logger.Debug("BR_ACQUIRE_RESULT", "status", f.Status)
		return nil

	default:
		l.logger.Warn("unrecognized BROp, skipping", "op", int(f.Op))
		return nil
	}
}

func (l *Loop) notifyLocal(pc abi.PtrCookie, fn func(interfaces.LocalObject)) {
	obj := l.registry.GetLocal(pc.Cookie)
	if obj == nil {
		l.logger.Warn("refcount frame for unknown local cookie", "cookie", pc.Cookie)
		return
	}
	fn(obj)
}

// dispatchInboundTransaction implements Inbound Transaction Dispatch: it
// resolves the target local object by cookie, classifies the transaction
// via CanHandle, dispatches to the looper or the application Handler, and
// (unless the transaction is oneway) queues a BC_REPLY carrying either the
// handler's reply payload or a bare status.
func (l *Loop) dispatchInboundTransaction(t *abi.TransactionData) error {
	hasBuffer := t.DataSize > 0
	var data []byte
	var offsets []uint64
	if hasBuffer {
		raw := ptrToBytes(t.DataPtr, t.DataSize)
		data = make([]byte, len(raw))
		copy(data, raw)
		offsets = ptrToOffsets(l.desc, t.OffsetsPtr, t.OffsetsSize)
	}

	if l.observer != nil {
		l.observer.ObserveInboundTransaction(uint64(len(data)))
	}

	req := interfaces.NewRequest(data, offsets, t.DataPtr, hasBuffer, func(ptr uint64) {
		l.queueOut(wire.EncodeFreeBuffer(l.desc, nil, ptr))
		if l.observer != nil {
			l.observer.ObserveBufferFree()
		}
	})
	req.SenderPID = t.SenderPID
	req.SenderEUID = t.SenderEUID
	req.Code = t.Code
	req.Flags = t.Flags
	req.Protocol = l.protocol

	obj := l.registry.GetLocal(t.TargetCookie)
	var reply *interfaces.Reply
	status := StatusBadMessage

	if obj != nil {
		switch obj.CanHandle("", t.Code) {
		case interfaces.Looper:
			reply, status = obj.HandleLooperTransaction(req, t.Code, t.Flags)
		case interfaces.Application:
			if l.handler != nil {
				reply, status = l.handler.Transact(obj, req, t.Code, t.Flags)
			}
		}
	}

	if t.Flags&abi.TFOneWay == 0 {
		l.queueOut(l.encodeInboundReply(reply, status))
	}

	req.Release()
	return nil
}

// encodeInboundReply builds the BC_REPLY (or BC_REPLY_SG) bytes for an
// inbound transaction's response: the handler's payload on success, or a
// bare TF_STATUS_CODE frame carrying status when it produced none.
func (l *Loop) encodeInboundReply(reply *interfaces.Reply, status int32) []byte {
	if status == StatusOK && reply != nil && len(reply.Bytes()) > 0 {
		data := reply.Bytes()
		dataPtr := uint64(uintptr(unsafe.Pointer(&data[0])))

		var offsetsBuf []byte
		var offsetsPtr uint64
		if len(reply.Offsets()) > 0 {
			offsetsBuf = encodeOffsets(l.desc, reply.Offsets())
			offsetsPtr = uint64(uintptr(unsafe.Pointer(&offsetsBuf[0])))
		}

		h := &abi.TransactionHeader{
			DataPtr:     dataPtr,
			DataSize:    uint64(len(data)),
			OffsetsPtr:  offsetsPtr,
			OffsetsSize: uint64(len(offsetsBuf)),
			BuffersSize: reply.BuffersSize(),
		}
		out := wire.EncodeReply(l.desc, nil, h)
		runtime.KeepAlive(data)
		runtime.KeepAlive(offsetsBuf)
		return out
	}

	statusBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(statusBuf, uint32(status))
	h := &abi.TransactionHeader{
		Flags:    abi.TFStatusCode,
		DataPtr:  uint64(uintptr(unsafe.Pointer(&statusBuf[0]))),
		DataSize: 4,
	}
	out := wire.EncodeReply(l.desc, nil, h)
	runtime.KeepAlive(statusBuf)
	return out
}

// dispatchReply implements the BR_REPLY row of Core Dispatch: decode the
// transaction data, translate it into a status and (if one is present) a
// Reply carrier, free the arena buffer exactly once, and complete tx.
func (l *Loop) dispatchReply(t *abi.TransactionData, tx *transactionState) error {
	hasBuffer := t.DataSize > 0
	status := StatusOK
	var replyCarrier *interfaces.Reply

	if hasBuffer {
		raw := ptrToBytes(t.DataPtr, t.DataSize)
		if t.Flags&abi.TFStatusCode != 0 {
			if len(raw) >= 4 {
				status = int32(binary.LittleEndian.Uint32(raw))
			}
		} else {
			cp := make([]byte, len(raw))
			copy(cp, raw)
			offsets := ptrToOffsets(l.desc, t.OffsetsPtr, t.OffsetsSize)
			replyCarrier = interfaces.NewReplyWithData(cp, offsets)
		}
		l.queueOut(wire.EncodeFreeBuffer(l.desc, nil, t.DataPtr))
		if l.observer != nil {
			l.observer.ObserveBufferFree()
		}
	}

	if tx != nil && !tx.done {
		tx.complete(status, replyCarrier)
	}
	return nil
}

// Transact implements Outgoing Transaction construction and the blocking
// loop that drives it to a terminal frame (BR_REPLY, BR_DEAD_REPLY,
// BR_FAILED_REPLY, or, for a oneway call, BR_TRANSACTION_COMPLETE). It
// returns the transaction's status and, for a two-way call, populates
// reply if one was supplied.
func (l *Loop) Transact(handle uint32, code uint32, flags uint32, payload []byte, offsets []uint64, buffersSize uint64, reply *interfaces.Reply) (int32, error) {
	tx := &transactionState{oneway: flags&abi.TFOneWay != 0, status: pending}

	var dataPtr uint64
	if len(payload) > 0 {
		dataPtr = uint64(uintptr(unsafe.Pointer(&payload[0])))
	}
	var offsetsBuf []byte
	var offsetsPtr uint64
	if len(offsets) > 0 {
		offsetsBuf = encodeOffsets(l.desc, offsets)
		offsetsPtr = uint64(uintptr(unsafe.Pointer(&offsetsBuf[0])))
	}

	h := &abi.TransactionHeader{
		Handle:      handle,
		Code:        code,
		Flags:       flags,
		DataPtr:     dataPtr,
		DataSize:    uint64(len(payload)),
		OffsetsPtr:  offsetsPtr,
		OffsetsSize: uint64(len(offsets)) * uint64(l.desc.PtrSize),
		BuffersSize: buffersSize,
	}
	write := append(l.takeOut(), wire.EncodeTransaction(l.desc, nil, h)...)

	for !tx.done {
		received, err := l.writeRead(write, false)
		if err != nil {
			return mapDriverError(err), err
		}
		write = l.takeOut()
		if received > 0 {
			if err := l.processBuffer(tx); err != nil {
				return StatusFailed, err
			}
		}
	}
	runtime.KeepAlive(payload)
	runtime.KeepAlive(offsetsBuf)

	// Once this transaction's terminal frame has arrived, any BC_* commands
	// queued along the way still need to reach the kernel before this call
	// returns control to the caller: both whatever is sitting in l.out (queued
	// by the processBuffer call that just completed tx) and whatever the loop
	// above had already captured into write for the round that never ran
	// (the final iteration's processBuffer can complete tx before that
	// pending write is ever sent).
	pending := append(write, l.takeOut()...)
	for len(pending) > 0 {
		w := pending
		pending = nil
		if _, err := l.writeRead(w, false); err != nil {
			break
		}
		if err := l.processBuffer(nil); err != nil {
			break
		}
		pending = l.takeOut()
	}

	if reply != nil && tx.reply != nil {
		*reply = *tx.reply
	}
	return tx.status, nil
}

// Read implements Passive Read: a zero-write write_read that dispatches
// whatever frames the kernel hands back, repeating as long as the last
// round produced data. A looper thread calls this in a loop between
// transactions.
func (l *Loop) Read() error {
	for {
		received, err := l.writeRead(l.takeOut(), false)
		if err != nil {
			return err
		}
		if err := l.processBuffer(nil); err != nil {
			return err
		}
		if received == 0 {
			return nil
		}
	}
}

// EnterLooper announces this thread as a looper, per BC_ENTER_LOOPER.
func (l *Loop) EnterLooper() error {
	l.queueOut(wire.EncodeEnterLooper(l.desc, nil))
	return l.flushOut()
}

// ExitLooper announces that this thread is leaving the looper pool.
func (l *Loop) ExitLooper() error {
	l.queueOut(wire.EncodeExitLooper(l.desc, nil))
	return l.flushOut()
}

// RequestDeathNotification registers obj to be notified via
// HandleDeathNotification the next time BR_DEAD_BINDER arrives for handle.
// It also registers obj with the Object Registry under handle, so
// GetRemote(handle) resolves it until the notification fires or is
// cleared; delivery itself is still routed by cookie, the only
// identifier BR_DEAD_BINDER carries.
func (l *Loop) RequestDeathNotification(handle uint32, obj interfaces.RemoteObject) error {
	l.deathMu.Lock()
	l.nextDeathCookie++
	cookie := l.nextDeathCookie
	l.deathNotified[cookie] = deathEntry{handle: handle, obj: obj}
	l.deathMu.Unlock()

	l.registry.RegisterRemote(handle, obj)

	l.queueOut(wire.EncodeRequestDeathNotification(l.desc, nil, abi.HandleCookie{Handle: handle, Cookie: cookie}))
	return l.flushOut()
}

func (l *Loop) flushOut() error {
	received, err := l.writeRead(l.takeOut(), false)
	if err != nil {
		return err
	}
	if received > 0 {
		return l.processBuffer(nil)
	}
	return nil
}

// mapDriverError turns a fatal (non-EAGAIN/EINTR) write_read error into the
// negative status a caller observes, mirroring how a driver-level ioctl
// failure surfaces as a negative return code on a real binder client.
func mapDriverError(err error) int32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return StatusFailed
}

func encodeOffsets(d *abi.Descriptor, offsets []uint64) []byte {
	buf := make([]byte, len(offsets)*d.PtrSize)
	for i, o := range offsets {
		off := i * d.PtrSize
		if d.PtrSize == 8 {
			binary.LittleEndian.PutUint64(buf[off:], o)
		} else {
			binary.LittleEndian.PutUint32(buf[off:], uint32(o))
		}
	}
	return buf
}

func ptrToBytes(ptr uint64, size uint64) []byte {
	if ptr == 0 || size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), int(size))
}

func ptrToOffsets(d *abi.Descriptor, ptr uint64, size uint64) []uint64 {
	if ptr == 0 || size == 0 {
		return nil
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), int(size))
	count := int(size) / d.PtrSize
	out := make([]uint64, count)
	for i := 0; i < count; i++ {
		off := i * d.PtrSize
		if d.PtrSize == 8 {
			out[i] = binary.LittleEndian.Uint64(raw[off:])
		} else {
			out[i] = uint64(binary.LittleEndian.Uint32(raw[off:]))
		}
	}
	return out
}
