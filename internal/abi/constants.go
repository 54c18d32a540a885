// Package abi provides the two fixed Binder ABI descriptors (32-bit and
// 64-bit) that the Driver Engine negotiates against at Device Session
// construction time: opcode tables, frame sizes, and field encoders/decoders.
package abi

// ioctl encoding, mirroring the kernel's _IOC() convention from
// asm-generic/ioctl.h. BC_*/BR_* values are not real ioctl numbers (only
// BINDER_WRITE_READ, BINDER_VERSION and BINDER_SET_MAX_THREADS are) but the
// kernel encodes them the same way so that a frame's declared payload size
// can be recovered from its opcode alone via IOCSize.
const (
	iocWrite    = 1
	iocRead     = 2
	iocSizeBits = 14
	iocDirBits  = 2
	iocTypeBits = 8
	iocNrBits   = 8

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

// iocEncode builds an ioctl-style command number from its direction, type,
// number and size fields.
func iocEncode(dir, typ, nr, size uint32) uint32 {
	return (dir << iocDirShift) | (size << iocSizeShift) | (typ << iocTypeShift) | (nr << iocNrShift)
}

// IOCSize extracts the declared payload size (in bytes) from an opcode,
// independent of which ABI produced it.
func IOCSize(opcode uint32) int {
	return int((opcode >> iocSizeShift) & ((1 << iocSizeBits) - 1))
}

// IOCNr extracts the command number from an opcode. BC_*/BR_* opcodes share
// the same numbering across both ABIs; only their declared size differs.
func IOCNr(opcode uint32) uint32 {
	return (opcode >> iocNrShift) & ((1 << iocNrBits) - 1)
}

// IOCType extracts the type byte ('b' for device ioctls, 'c' for BC_*
// commands, 'r' for BR_* returns).
func IOCType(opcode uint32) byte {
	return byte((opcode >> iocTypeShift) & ((1 << iocTypeBits) - 1))
}

// Real kernel ioctl numbers. BINDER_WRITE_READ's declared size depends on
// the ABI's binder_write_read layout, so it is computed per Descriptor.
const (
	binderIoctlType       = 'b'
	nrVersion             = 9
	nrSetMaxThreads       = 5
	nrWriteRead           = 1
	ioSizeVersion         = 4 // sizeof(struct binder_version) == sizeof(__s32)
	ioSizeSetMaxThreads   = 4
)

// BINDER_CURRENT_PROTOCOL_VERSION, negotiated via the BINDER_VERSION ioctl.
const CurrentProtocolVersion int32 = 8

// BC_* command numbers (the 'nr' field of the BC opcode; the 'c' type byte
// and payload size are filled in per-ABI by Descriptor).
const (
	bcNrTransaction                = 0
	bcNrReply                      = 1
	bcNrFreeBuffer                 = 3
	bcNrIncrefs                    = 4
	bcNrAcquire                    = 5
	bcNrRelease                    = 6
	bcNrDecrefs                    = 7
	bcNrIncrefsDone                = 8
	bcNrAcquireDone                = 9
	bcNrRegisterLooper             = 11
	bcNrEnterLooper                = 12
	bcNrExitLooper                 = 13
	bcNrRequestDeathNotification   = 14
	bcNrClearDeathNotification     = 15
	bcNrDeadBinderDone             = 16
	bcNrTransactionSG              = 17
	bcNrReplySG                    = 18
)

// BR_* return numbers (the 'nr' field of the BR opcode).
const (
	brNrError                       = 0
	brNrOK                          = 1
	brNrTransaction                 = 2
	brNrReply                       = 3
	brNrAcquireResult               = 4
	brNrDeadReply                   = 5
	brNrTransactionComplete         = 6
	brNrIncrefs                     = 7
	brNrAcquire                     = 8
	brNrRelease                     = 9
	brNrDecrefs                     = 10
	brNrNoop                        = 12
	brNrSpawnLooper                 = 13
	brNrFinished                    = 14
	brNrDeadBinder                  = 15
	brNrClearDeathNotificationDone  = 16
	brNrFailedReply                 = 17
)

// BROp identifies a decoded BR_* return frame by kind rather than by raw
// wire opcode, so the Command Loop dispatches on an exhaustive Go type
// instead of an if/else chain over magic numbers.
type BROp int

const (
	BROpUnknown BROp = iota
	BROpError
	BROpOK
	BROpTransaction
	BROpReply
	BROpAcquireResult
	BROpDeadReply
	BROpTransactionComplete
	BROpIncrefs
	BROpAcquire
	BROpRelease
	BROpDecrefs
	BROpNoop
	BROpSpawnLooper
	BROpFinished
	BROpDeadBinder
	BROpClearDeathNotificationDone
	BROpFailedReply
)

// brNrToOp maps the ABI-independent 'nr' field to a BROp. Unknown numbers
// decode to BROpUnknown, which the Command Loop logs and skips.
var brNrToOp = map[uint32]BROp{
	brNrError:                      BROpError,
	brNrOK:                         BROpOK,
	brNrTransaction:                BROpTransaction,
	brNrReply:                      BROpReply,
	brNrAcquireResult:              BROpAcquireResult,
	brNrDeadReply:                  BROpDeadReply,
	brNrTransactionComplete:        BROpTransactionComplete,
	brNrIncrefs:                    BROpIncrefs,
	brNrAcquire:                    BROpAcquire,
	brNrRelease:                    BROpRelease,
	brNrDecrefs:                    BROpDecrefs,
	brNrNoop:                       BROpNoop,
	brNrSpawnLooper:                BROpSpawnLooper,
	brNrFinished:                   BROpFinished,
	brNrDeadBinder:                 BROpDeadBinder,
	brNrClearDeathNotificationDone: BROpClearDeathNotificationDone,
	brNrFailedReply:                BROpFailedReply,
}

// DecodeOp resolves a wire opcode to its BROp, independent of ABI.
func DecodeOp(opcode uint32) BROp {
	if IOCType(opcode) != 'r' {
		return BROpUnknown
	}
	op, ok := brNrToOp[IOCNr(opcode)]
	if !ok {
		return BROpUnknown
	}
	return op
}

// Transaction flags (binder_transaction_data.flags).
const (
	TFOneWay    uint32 = 0x01
	TFRootObj   uint32 = 0x04
	TFStatusCode uint32 = 0x08
	TFAcceptFDs uint32 = 0x10
	TFClearBuf  uint32 = 0x20
)
