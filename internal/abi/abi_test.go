package abi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIOCEncodeRoundTrip(t *testing.T) {
	op := iocEncode(iocWrite|iocRead, 'c', 42, 64)
	require.Equal(t, 64, IOCSize(op))
	require.Equal(t, uint32(42), IOCNr(op))
	require.Equal(t, byte('c'), IOCType(op))
}

func TestDecodeOpRejectsNonBRType(t *testing.T) {
	bc := ABI64.BCTransaction
	require.Equal(t, BROpUnknown, DecodeOp(bc))
}

func TestDecodeOpKnownOpcodes(t *testing.T) {
	op := iocEncode(iocRead, 'r', brNrTransactionComplete, 0)
	require.Equal(t, BROpTransactionComplete, DecodeOp(op))

	op = iocEncode(iocRead, 'r', brNrDeadBinder, 8)
	require.Equal(t, BROpDeadBinder, DecodeOp(op))
}

func TestDecodeOpUnknownNr(t *testing.T) {
	op := iocEncode(iocRead, 'r', 0xff, 0)
	require.Equal(t, BROpUnknown, DecodeOp(op))
}

func TestDescriptorOpcodesDifferByPointerWidth(t *testing.T) {
	require.Equal(t, 4, ABI32.PtrSize)
	require.Equal(t, 8, ABI64.PtrSize)
	require.NotEqual(t, ABI32.BCTransaction, ABI64.BCTransaction)
	require.Equal(t, IOCSize(ABI32.BCTransaction)+24, IOCSize(ABI64.BCTransaction))
}

func TestEncodeDecodeTransactionRoundTrip32(t *testing.T) {
	h := &TransactionHeader{
		Handle:      7,
		Code:        100,
		Flags:       TFAcceptFDs,
		DataPtr:     0x1000,
		DataSize:    16,
		OffsetsPtr:  0x2000,
		OffsetsSize: 0,
	}
	buf := ABI32.EncodeTransaction(nil, h, false)
	require.Len(t, buf, transactionDataSize(4))

	// Decode as if it were a BR_TRANSACTION; the target.handle field and
	// the decoded TargetCookie field don't alias the same semantics, but
	// code/flags/data pointers must survive the round trip.
	got, err := ABI32.DecodeTransaction(buf)
	require.NoError(t, err)
	require.Equal(t, h.Code, got.Code)
	require.Equal(t, h.Flags, got.Flags)
	require.Equal(t, h.DataSize, got.DataSize)
	require.Equal(t, h.DataPtr, got.DataPtr)
	require.Equal(t, h.OffsetsPtr, got.OffsetsPtr)
}

func TestEncodeDecodeTransactionRoundTrip64(t *testing.T) {
	h := &TransactionHeader{
		Handle:      0,
		Code:        5,
		Flags:       TFOneWay,
		DataPtr:     0xdeadbeef,
		DataSize:    256,
		OffsetsPtr:  0,
		OffsetsSize: 0,
	}
	buf := ABI64.EncodeTransaction(nil, h, false)
	require.Len(t, buf, transactionDataSize(8))

	got, err := ABI64.DecodeTransaction(buf)
	require.NoError(t, err)
	require.Equal(t, h.Code, got.Code)
	require.Equal(t, h.Flags, got.Flags)
	require.Equal(t, h.DataSize, got.DataSize)
	require.Equal(t, h.DataPtr, got.DataPtr)
}

func TestEncodeTransactionSGAppendsBuffersSize(t *testing.T) {
	h := &TransactionHeader{Code: 1, DataSize: 8, BuffersSize: 128}
	plain := ABI64.EncodeTransaction(nil, h, false)
	sg := ABI64.EncodeTransaction(nil, h, true)
	require.Len(t, sg, len(plain)+8)
}

func TestDecodeTransactionShortFrame(t *testing.T) {
	_, err := ABI64.DecodeTransaction(make([]byte, 4))
	require.ErrorIs(t, err, ErrShortFrame)
}

func TestPtrCookieRoundTrip(t *testing.T) {
	pc := PtrCookie{Ptr: 0x1111, Cookie: 0x2222}
	buf := ABI64.EncodePtrCookie(nil, pc)
	got, err := ABI64.DecodePtrCookie(buf)
	require.NoError(t, err)
	require.Equal(t, pc, got)
}

func TestHandleCookieEncodeLength(t *testing.T) {
	buf := ABI32.EncodeHandleCookie(nil, HandleCookie{Handle: 3, Cookie: 9})
	require.Len(t, buf, 4+4)

	buf = ABI64.EncodeHandleCookie(nil, HandleCookie{Handle: 3, Cookie: 9})
	require.Len(t, buf, 4+8)
}

func TestPointerRoundTrip(t *testing.T) {
	buf := ABI32.EncodePointer(nil, 0xaabbccdd)
	got, err := ABI32.DecodePointer(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(0xaabbccdd), got)
}

func TestUint32RoundTrip(t *testing.T) {
	buf := ABI64.EncodeUint32(nil, 77)
	got, err := ABI64.DecodeUint32(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(77), got)
}

func TestNativeMatchesOneOfTheStaticDescriptors(t *testing.T) {
	n := Native()
	require.True(t, n == ABI32 || n == ABI64)
	require.Equal(t, nativePtrSize(), n.PtrSize)
}
