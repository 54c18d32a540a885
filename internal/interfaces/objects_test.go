package interfaces

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplyWriterAccumulatesPayloadAndOffsets(t *testing.T) {
	r := NewReply()
	r.WriteBytes([]byte("AB"))
	r.WriteOffset()
	r.WriteBytes([]byte("CD"))

	require.Equal(t, []byte("ABCD"), r.Bytes())
	require.Equal(t, []uint64{2}, r.Offsets())
	require.Equal(t, uint64(0), r.BuffersSize())

	r.SetBuffersSize(128)
	require.Equal(t, uint64(128), r.BuffersSize())
}

func TestRequestReleaseIsIdempotent(t *testing.T) {
	calls := 0
	req := NewRequest([]byte("payload"), nil, 0xabc, true, func(ptr uint64) {
		calls++
		require.Equal(t, uint64(0xabc), ptr)
	})

	req.Release()
	req.Release()
	require.Equal(t, 1, calls)
}

func TestRequestWithNoBufferNeverCallsRelease(t *testing.T) {
	calls := 0
	req := NewRequest(nil, nil, 0, false, func(uint64) { calls++ })
	req.Release()
	require.Equal(t, 0, calls)
}

func TestCanHandleResultStringer(t *testing.T) {
	require.Equal(t, "none", None.String())
	require.Equal(t, "looper", Looper.String())
	require.Equal(t, "application", Application.String())
}
