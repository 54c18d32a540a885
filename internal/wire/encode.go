// Package wire implements the Wire Codec: stateless BC_* command encoders
// and BR_* return decoders, parameterized by an abi.Descriptor so the same
// calls work for both the 32-bit and 64-bit kernel ABI.
package wire

import (
	"github.com/ngrantham/go-binder/internal/abi"
)

// EncodeEnterLooper, EncodeExitLooper and EncodeRegisterLooper append their
// bare opcode (no payload) to dst.
func EncodeEnterLooper(d *abi.Descriptor, dst []byte) []byte {
	return appendOp(dst, d.BCEnterLooper)
}

func EncodeExitLooper(d *abi.Descriptor, dst []byte) []byte {
	return appendOp(dst, d.BCExitLooper)
}

func EncodeRegisterLooper(d *abi.Descriptor, dst []byte) []byte {
	return appendOp(dst, d.BCRegisterLooper)
}

// EncodeIncrefs, EncodeAcquire, EncodeRelease and EncodeDecrefs append a
// BC_* opcode followed by a bare 32-bit handle argument.
func EncodeIncrefs(d *abi.Descriptor, dst []byte, handle uint32) []byte {
	return d.EncodeUint32(appendOp(dst, d.BCIncrefs), handle)
}

func EncodeAcquire(d *abi.Descriptor, dst []byte, handle uint32) []byte {
	return d.EncodeUint32(appendOp(dst, d.BCAcquire), handle)
}

func EncodeRelease(d *abi.Descriptor, dst []byte, handle uint32) []byte {
	return d.EncodeUint32(appendOp(dst, d.BCRelease), handle)
}

func EncodeDecrefs(d *abi.Descriptor, dst []byte, handle uint32) []byte {
	return d.EncodeUint32(appendOp(dst, d.BCDecrefs), handle)
}

// EncodeIncrefsDone and EncodeAcquireDone ack a BR_INCREFS/BR_ACQUIRE
// notification with the same ptr/cookie pair the kernel sent.
func EncodeIncrefsDone(d *abi.Descriptor, dst []byte, pc abi.PtrCookie) []byte {
	return d.EncodePtrCookie(appendOp(dst, d.BCIncrefsDone), pc)
}

func EncodeAcquireDone(d *abi.Descriptor, dst []byte, pc abi.PtrCookie) []byte {
	return d.EncodePtrCookie(appendOp(dst, d.BCAcquireDone), pc)
}

// EncodeFreeBuffer appends BC_FREE_BUFFER for the arena offset returned in
// a transaction's data.ptr. Exactly one of these must be sent per
// BR_TRANSACTION/BR_REPLY received with a non-empty payload, or the arena
// leaks.
func EncodeFreeBuffer(d *abi.Descriptor, dst []byte, bufferPtr uint64) []byte {
	return d.EncodePointer(appendOp(dst, d.BCFreeBuffer), bufferPtr)
}

// EncodeRequestDeathNotification and EncodeClearDeathNotification
// register/deregister interest in BR_DEAD_BINDER for a remote handle.
func EncodeRequestDeathNotification(d *abi.Descriptor, dst []byte, hc abi.HandleCookie) []byte {
	return d.EncodeHandleCookie(appendOp(dst, d.BCRequestDeathNotification), hc)
}

func EncodeClearDeathNotification(d *abi.Descriptor, dst []byte, hc abi.HandleCookie) []byte {
	return d.EncodeHandleCookie(appendOp(dst, d.BCClearDeathNotification), hc)
}

// EncodeDeadBinderDone acks a BR_DEAD_BINDER notification.
func EncodeDeadBinderDone(d *abi.Descriptor, dst []byte, cookie uint64) []byte {
	return d.EncodePointer(appendOp(dst, d.BCDeadBinderDone), cookie)
}

// EncodeTransaction appends BC_TRANSACTION (or BC_TRANSACTION_SG when
// h.BuffersSize is non-zero) followed by its binder_transaction_data.
func EncodeTransaction(d *abi.Descriptor, dst []byte, h *abi.TransactionHeader) []byte {
	if h.BuffersSize != 0 {
		return d.EncodeTransaction(appendOp(dst, d.BCTransactionSG), h, true)
	}
	return d.EncodeTransaction(appendOp(dst, d.BCTransaction), h, false)
}

// EncodeReply appends BC_REPLY (or BC_REPLY_SG) followed by its
// binder_transaction_data. Used both for normal replies and, with
// TFStatusCode set and a 4-byte payload carrying the status, for status
// replies.
func EncodeReply(d *abi.Descriptor, dst []byte, h *abi.TransactionHeader) []byte {
	if h.BuffersSize != 0 {
		return d.EncodeTransaction(appendOp(dst, d.BCReplySG), h, true)
	}
	return d.EncodeTransaction(appendOp(dst, d.BCReply), h, false)
}

func appendOp(dst []byte, op uint32) []byte {
	buf := make([]byte, 4)
	buf[0] = byte(op)
	buf[1] = byte(op >> 8)
	buf[2] = byte(op >> 16)
	buf[3] = byte(op >> 24)
	return append(dst, buf...)
}
