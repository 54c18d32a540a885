package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ngrantham/go-binder/internal/abi"
)

var errSetMaxThreads = errors.New("set max threads failed")

func withMockOpenDevice(t *testing.T, mock *MockDevice) {
	t.Helper()
	orig := openDevice
	openDevice = func(path string, desc *abi.Descriptor) (Device, error) {
		return mock, nil
	}
	t.Cleanup(func() { openDevice = orig })
}

func TestOpenSetsMaxThreadsBestEffort(t *testing.T) {
	mock := NewMockDevice(abi.ABI64)
	withMockOpenDevice(t, mock)

	s, err := Open("/dev/binder", abi.ABI64, 4)
	require.NoError(t, err)
	require.Equal(t, []uint32{4}, mock.SetMaxThreadsCalls)
	require.NoError(t, s.Release())
}

func TestOpenToleratesSetMaxThreadsFailure(t *testing.T) {
	mock := NewMockDevice(abi.ABI64)
	mock.SetMaxThreadsErr = errSetMaxThreads
	withMockOpenDevice(t, mock)

	s, err := Open("/dev/binder", abi.ABI64, 0)
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestRefcountClosesOnLastRelease(t *testing.T) {
	mock := NewMockDevice(abi.ABI64)
	withMockOpenDevice(t, mock)

	s, err := Open("/dev/binder", abi.ABI64, 0)
	require.NoError(t, err)

	s.Acquire()
	require.NoError(t, s.Release())
	require.False(t, mock.ClosedCalled)

	require.NoError(t, s.Release())
	require.True(t, mock.ClosedCalled)
}

func TestWriteReadRejectedAfterClose(t *testing.T) {
	mock := NewMockDevice(abi.ABI64)
	withMockOpenDevice(t, mock)

	s, err := Open("/dev/binder", abi.ABI64, 0)
	require.NoError(t, err)
	require.NoError(t, s.Release())

	_, _, err = s.WriteRead(nil, make([]byte, 16), false)
	require.Error(t, err)
}

func TestPollDelegatesToDeviceAndReturnsRevents(t *testing.T) {
	mock := NewMockDevice(abi.ABI64)
	mock.PollRevents = unix.POLLIN
	withMockOpenDevice(t, mock)

	s, err := Open("/dev/binder", abi.ABI64, 0)
	require.NoError(t, err)
	defer s.Release()

	revents, err := s.Poll(-1, -1)
	require.NoError(t, err)
	require.Equal(t, int16(unix.POLLIN), revents)
	require.Equal(t, []int{-1}, mock.PollCalls)
}

func TestPollMultiplexesSignalFD(t *testing.T) {
	mock := NewMockDevice(abi.ABI64)
	withMockOpenDevice(t, mock)

	s, err := Open("/dev/binder", abi.ABI64, 0)
	require.NoError(t, err)
	defer s.Release()

	_, err = s.Poll(7, 0)
	require.NoError(t, err)
	require.Equal(t, []int{7}, mock.PollCalls)
}

func TestPollRejectedAfterClose(t *testing.T) {
	mock := NewMockDevice(abi.ABI64)
	withMockOpenDevice(t, mock)

	s, err := Open("/dev/binder", abi.ABI64, 0)
	require.NoError(t, err)
	require.NoError(t, s.Release())

	_, err = s.Poll(-1, -1)
	require.Error(t, err)
}

func TestWriteReadDelegatesToDevice(t *testing.T) {
	mock := NewMockDevice(abi.ABI64)
	mock.QueueRead([]byte{1, 2, 3, 4})
	withMockOpenDevice(t, mock)

	s, err := Open("/dev/binder", abi.ABI64, 0)
	require.NoError(t, err)
	defer s.Release()

	read := make([]byte, 16)
	_, n, err := s.WriteRead([]byte{9, 9}, read, false)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{1, 2, 3, 4}, read[:n])
	require.Equal(t, [][]byte{{9, 9}}, mock.Writes)
}
