package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/ngrantham/go-binder/internal/abi"
)

// Frame is a decoded BR_* return: Op selects which of the payload fields,
// if any, is populated.
type Frame struct {
	Op          abi.BROp
	Status      int32               // BR_ERROR, BR_ACQUIRE_RESULT
	Transaction *abi.TransactionData // BR_TRANSACTION, BR_REPLY
	RefTarget   abi.PtrCookie       // BR_INCREFS, BR_ACQUIRE, BR_RELEASE, BR_DECREFS
	DeathCookie uint64              // BR_DEAD_BINDER, BR_CLEAR_DEATH_NOTIFICATION_DONE

	// Consumed is the number of bytes of the input buffer this frame used
	// (4-byte opcode plus payload), so the Read Buffer can advance past it.
	Consumed int
}

// ErrUnknownOpcode is returned when a BR_* opcode's nr field doesn't match
// any return this library understands. The Command Loop logs and skips it
// rather than treating it as fatal, since the kernel is free to add BR_*
// codes a client doesn't yet use.
type ErrUnknownOpcode uint32

func (e ErrUnknownOpcode) Error() string {
	return fmt.Sprintf("wire: unknown BR_* opcode 0x%08x", uint32(e))
}

// Decode parses exactly one BR_* frame from the front of buf. It returns
// ErrShortFrame if buf does not yet contain a complete frame (the caller
// should wait for more data from the kernel rather than treat this as an
// error), and ErrUnknownOpcode for an opcode this library doesn't
// recognize.
func Decode(d *abi.Descriptor, buf []byte) (*Frame, error) {
	if len(buf) < 4 {
		return nil, abi.ErrShortFrame
	}
	opcode := binary.LittleEndian.Uint32(buf)
	op := abi.DecodeOp(opcode)
	payload := buf[4:]

	f := &Frame{Op: op}

	switch op {
	case abi.BROpOK, abi.BROpDeadReply, abi.BROpTransactionComplete,
		abi.BROpNoop, abi.BROpSpawnLooper, abi.BROpFinished, abi.BROpFailedReply:
		f.Consumed = 4

	case abi.BROpError, abi.BROpAcquireResult:
		v, err := d.DecodeUint32(payload)
		if err != nil {
			return nil, err
		}
		f.Status = int32(v)
		f.Consumed = 4 + 4

	case abi.BROpTransaction, abi.BROpReply:
		t, err := d.DecodeTransaction(payload)
		if err != nil {
			return nil, err
		}
		f.Transaction = t
		f.Consumed = 4 + (6*d.PtrSize + 16)

	case abi.BROpIncrefs, abi.BROpAcquire, abi.BROpRelease, abi.BROpDecrefs:
		pc, err := d.DecodePtrCookie(payload)
		if err != nil {
			return nil, err
		}
		f.RefTarget = pc
		f.Consumed = 4 + 2*d.PtrSize

	case abi.BROpDeadBinder, abi.BROpClearDeathNotificationDone:
		v, err := d.DecodePointer(payload)
		if err != nil {
			return nil, err
		}
		f.DeathCookie = v
		f.Consumed = 4 + d.PtrSize

	default:
		return nil, ErrUnknownOpcode(opcode)
	}

	return f, nil
}
