package abi

import "encoding/binary"

// Descriptor is one of the two fixed, process-lifetime ABI descriptors
// (ABI32, ABI64). It carries the pointer width the kernel's binder_*
// structs are laid out with on this architecture, the kernel protocol
// version this library expects BINDER_VERSION to report, and the full
// opcode tables (BC_* for encoding, BINDER_WRITE_READ/VERSION/SET_MAX_THREADS
// for session construction) sized for that pointer width.
type Descriptor struct {
	PtrSize       int   // 4 or 8
	KernelVersion int32 // expected BINDER_VERSION reply

	// Real device ioctls, sized per-ABI because binder_write_read embeds
	// binder_size_t/binder_uintptr_t fields whose width depends on PtrSize.
	IoctlWriteRead      uint32
	IoctlVersion        uint32
	IoctlSetMaxThreads  uint32

	// BC_* command opcodes, sized per their payload's ABI-dependent layout.
	BCIncrefs                  uint32
	BCDecrefs                  uint32
	BCAcquire                  uint32
	BCRelease                  uint32
	BCFreeBuffer               uint32
	BCIncrefsDone              uint32
	BCAcquireDone              uint32
	BCEnterLooper              uint32
	BCExitLooper               uint32
	BCRegisterLooper           uint32
	BCRequestDeathNotification uint32
	BCClearDeathNotification   uint32
	BCDeadBinderDone           uint32
	BCTransaction              uint32
	BCReply                    uint32
	BCTransactionSG            uint32
	BCReplySG                  uint32
}

// transactionDataSize returns sizeof(struct binder_transaction_data) for a
// descriptor of the given pointer width: target/cookie (ptrSize each),
// code/flags/pid/euid (4 bytes each), data_size/offsets_size (ptrSize
// each), and the data.ptr union (2*ptrSize, since this library never uses
// the inline small-payload form).
func transactionDataSize(ptrSize int) int {
	return 6*ptrSize + 16
}

// writeReadSize returns sizeof(struct binder_write_read): three pairs of
// (size, consumed) binder_size_t fields plus two binder_uintptr_t buffer
// pointers, all ptrSize wide.
func writeReadSize(ptrSize int) int {
	return 6 * ptrSize
}

func newDescriptor(ptrSize int, kernelVersion int32) *Descriptor {
	ptrCookieSize := uint32(2 * ptrSize)
	handleCookieSize := uint32(4 + ptrSize)
	txSize := uint32(transactionDataSize(ptrSize))
	txSGSize := txSize + uint32(ptrSize)
	ptrArgSize := uint32(ptrSize)

	return &Descriptor{
		PtrSize:       ptrSize,
		KernelVersion: kernelVersion,

		IoctlWriteRead:     iocEncode(iocRead|iocWrite, binderIoctlType, nrWriteRead, uint32(writeReadSize(ptrSize))),
		IoctlVersion:       iocEncode(iocRead|iocWrite, binderIoctlType, nrVersion, ioSizeVersion),
		IoctlSetMaxThreads: iocEncode(iocWrite, binderIoctlType, nrSetMaxThreads, ioSizeSetMaxThreads),

		BCIncrefs: iocEncode(iocWrite, 'c', bcNrIncrefs, 4),
		BCDecrefs: iocEncode(iocWrite, 'c', bcNrDecrefs, 4),
		BCAcquire: iocEncode(iocWrite, 'c', bcNrAcquire, 4),
		BCRelease: iocEncode(iocWrite, 'c', bcNrRelease, 4),

		BCFreeBuffer: iocEncode(iocWrite, 'c', bcNrFreeBuffer, ptrArgSize),

		BCIncrefsDone: iocEncode(iocWrite, 'c', bcNrIncrefsDone, ptrCookieSize),
		BCAcquireDone: iocEncode(iocWrite, 'c', bcNrAcquireDone, ptrCookieSize),

		BCEnterLooper:    iocEncode(0, 'c', bcNrEnterLooper, 0),
		BCExitLooper:     iocEncode(0, 'c', bcNrExitLooper, 0),
		BCRegisterLooper: iocEncode(0, 'c', bcNrRegisterLooper, 0),

		BCRequestDeathNotification: iocEncode(iocWrite, 'c', bcNrRequestDeathNotification, handleCookieSize),
		BCClearDeathNotification:   iocEncode(iocWrite, 'c', bcNrClearDeathNotification, handleCookieSize),
		BCDeadBinderDone:           iocEncode(iocWrite, 'c', bcNrDeadBinderDone, ptrArgSize),

		BCTransaction:   iocEncode(iocWrite, 'c', bcNrTransaction, txSize),
		BCReply:         iocEncode(iocWrite, 'c', bcNrReply, txSize),
		BCTransactionSG: iocEncode(iocWrite, 'c', bcNrTransactionSG, txSGSize),
		BCReplySG:       iocEncode(iocWrite, 'c', bcNrReplySG, txSGSize),
	}
}

// ABI32 and ABI64 are the two process-lifetime static ABI descriptors.
// Real binder deployments report the same protocol version on both
// pointer widths; this library keeps that simplification rather than
// inventing a distinct version number per width.
var (
	ABI32 = newDescriptor(4, CurrentProtocolVersion)
	ABI64 = newDescriptor(8, CurrentProtocolVersion)
)

// Native returns the ABI descriptor matching this process's own pointer
// width, since a binder client always runs compiled for the bitness of the
// device node it opens.
func Native() *Descriptor {
	if nativePtrSize() == 8 {
		return ABI64
	}
	return ABI32
}

// TransactionHeader is the data passed to EncodeTransaction: the fields of
// an outgoing binder_transaction_data (or _sg variant).
type TransactionHeader struct {
	Handle      uint32 // target.handle; ignored for replies
	Code        uint32
	Flags       uint32
	DataPtr     uint64 // address of the flat payload buffer
	DataSize    uint64
	OffsetsPtr  uint64 // address of the offsets-into-payload array
	OffsetsSize uint64
	BuffersSize uint64 // sum of out-of-line SG buffer sizes; 0 if none
}

// EncodeTransaction appends a binder_transaction_data (or, when sg is
// true, binder_transaction_data_sg) to dst and returns the result.
func (d *Descriptor) EncodeTransaction(dst []byte, h *TransactionHeader, sg bool) []byte {
	buf := make([]byte, transactionDataSize(d.PtrSize))
	d.putPtrSized(buf[0:], uint64(h.Handle))
	off := d.PtrSize
	d.putPtrSized(buf[off:], 0) // cookie; unused when targeting by handle
	off += d.PtrSize
	binary.LittleEndian.PutUint32(buf[off:], h.Code)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.Flags)
	off += 4
	off += 4 // sender_pid; filled by the kernel, zero on the way out
	off += 4 // sender_euid; filled by the kernel
	d.putPtrSized(buf[off:], h.DataSize)
	off += d.PtrSize
	d.putPtrSized(buf[off:], h.OffsetsSize)
	off += d.PtrSize
	d.putPtrSized(buf[off:], h.DataPtr)
	off += d.PtrSize
	d.putPtrSized(buf[off:], h.OffsetsPtr)

	dst = append(dst, buf...)
	if sg {
		sgTail := make([]byte, d.PtrSize)
		d.putPtrSized(sgTail, h.BuffersSize)
		dst = append(dst, sgTail...)
	}
	return dst
}

// TransactionData is a decoded inbound binder_transaction_data: a BR_TRANSACTION
// or BR_REPLY payload.
type TransactionData struct {
	TargetCookie uint64 // local object cookie (BR_TRANSACTION) or unused (BR_REPLY)
	Code         uint32
	Flags        uint32
	SenderPID    int32
	SenderEUID   uint32
	DataPtr      uint64
	DataSize     uint64
	OffsetsPtr   uint64
	OffsetsSize  uint64
}

// DecodeTransaction decodes a binder_transaction_data payload (the bytes
// following the BR_TRANSACTION/BR_REPLY opcode word).
func (d *Descriptor) DecodeTransaction(data []byte) (*TransactionData, error) {
	want := transactionDataSize(d.PtrSize)
	if len(data) < want {
		return nil, ErrShortFrame
	}
	t := &TransactionData{}
	t.TargetCookie = d.getPtrSized(data[0:])
	off := d.PtrSize
	off += d.PtrSize // cookie field, superseded by TargetCookie for our purposes
	t.Code = binary.LittleEndian.Uint32(data[off:])
	off += 4
	t.Flags = binary.LittleEndian.Uint32(data[off:])
	off += 4
	t.SenderPID = int32(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	t.SenderEUID = binary.LittleEndian.Uint32(data[off:])
	off += 4
	t.DataSize = d.getPtrSized(data[off:])
	off += d.PtrSize
	t.OffsetsSize = d.getPtrSized(data[off:])
	off += d.PtrSize
	t.DataPtr = d.getPtrSized(data[off:])
	off += d.PtrSize
	t.OffsetsPtr = d.getPtrSized(data[off:])
	return t, nil
}

// PtrCookie is the payload of BC/BR_INCREFS_DONE, BC/BR_ACQUIRE_DONE,
// BR_INCREFS, BR_ACQUIRE, BR_RELEASE and BR_DECREFS: a ptr/cookie pair
// identifying a local object.
type PtrCookie struct {
	Ptr    uint64
	Cookie uint64
}

// EncodePtrCookie appends a ptr/cookie pair to dst.
func (d *Descriptor) EncodePtrCookie(dst []byte, pc PtrCookie) []byte {
	buf := make([]byte, 2*d.PtrSize)
	d.putPtrSized(buf, pc.Ptr)
	d.putPtrSized(buf[d.PtrSize:], pc.Cookie)
	return append(dst, buf...)
}

// DecodePtrCookie decodes a ptr/cookie pair.
func (d *Descriptor) DecodePtrCookie(data []byte) (PtrCookie, error) {
	if len(data) < 2*d.PtrSize {
		return PtrCookie{}, ErrShortFrame
	}
	return PtrCookie{
		Ptr:    d.getPtrSized(data),
		Cookie: d.getPtrSized(data[d.PtrSize:]),
	}, nil
}

// HandleCookie is the payload of BC_REQUEST_DEATH_NOTIFICATION and
// BC_CLEAR_DEATH_NOTIFICATION.
type HandleCookie struct {
	Handle uint32
	Cookie uint64
}

// EncodeHandleCookie appends a handle/cookie pair to dst.
func (d *Descriptor) EncodeHandleCookie(dst []byte, hc HandleCookie) []byte {
	buf := make([]byte, 4+d.PtrSize)
	binary.LittleEndian.PutUint32(buf, hc.Handle)
	d.putPtrSized(buf[4:], hc.Cookie)
	return append(dst, buf...)
}

// DecodePointer decodes a single ABI-width pointer value, used for
// BC_FREE_BUFFER's argument and BR_DEAD_BINDER/BC_DEAD_BINDER_DONE's cookie.
func (d *Descriptor) DecodePointer(data []byte) (uint64, error) {
	if len(data) < d.PtrSize {
		return 0, ErrShortFrame
	}
	return d.getPtrSized(data), nil
}

// EncodePointer appends a single ABI-width pointer value to dst.
func (d *Descriptor) EncodePointer(dst []byte, v uint64) []byte {
	buf := make([]byte, d.PtrSize)
	d.putPtrSized(buf, v)
	return append(dst, buf...)
}

// EncodeUint32 appends a bare 32-bit argument to dst, used for BC_INCREFS,
// BC_DECREFS, BC_ACQUIRE and BC_RELEASE (handle arguments are always
// 32-bit regardless of ABI).
func (d *Descriptor) EncodeUint32(dst []byte, v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return append(dst, buf...)
}

// DecodeUint32 decodes a bare 32-bit value.
func (d *Descriptor) DecodeUint32(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, ErrShortFrame
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (d *Descriptor) putPtrSized(dst []byte, v uint64) {
	if d.PtrSize == 8 {
		binary.LittleEndian.PutUint64(dst, v)
	} else {
		binary.LittleEndian.PutUint32(dst, uint32(v))
	}
}

func (d *Descriptor) getPtrSized(src []byte) uint64 {
	if d.PtrSize == 8 {
		return binary.LittleEndian.Uint64(src)
	}
	return uint64(binary.LittleEndian.Uint32(src))
}
