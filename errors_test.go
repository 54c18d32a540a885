package binder

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngrantham/go-binder/internal/loop"
)

func TestStatusErrorClassifiesKnownStatuses(t *testing.T) {
	require.Nil(t, StatusError("transact", loop.StatusOK))

	err := StatusError("transact", loop.StatusDeadObject)
	require.True(t, IsCode(err, ErrCodeDeadObject))
	require.True(t, IsDeadObject(err))

	err = StatusError("transact", loop.StatusBadMessage)
	require.True(t, IsCode(err, ErrCodeBadMessage))

	err = StatusError("transact", loop.StatusFailed)
	require.True(t, IsCode(err, ErrCodeFailed))
}

func TestStatusErrorUnknownStatusIsDriverFailure(t *testing.T) {
	err := StatusError("transact", -999)
	require.True(t, IsCode(err, ErrCodeDriverFailure))
}

func TestWrapErrorClassifiesErrno(t *testing.T) {
	err := WrapError("open", syscall.ENOENT)
	require.True(t, IsCode(err, ErrCodeDriverFailure))

	var be *Error
	require.True(t, errors.As(err, &be))
	require.Equal(t, syscall.ENOENT, be.Errno)
}

func TestWrapErrorNilIsNil(t *testing.T) {
	require.Nil(t, WrapError("open", nil))
}

func TestErrorIsMatchesByCode(t *testing.T) {
	a := &Error{Op: "x", Code: ErrCodeDeadObject}
	b := &Error{Op: "y", Code: ErrCodeDeadObject}
	require.True(t, errors.Is(a, b))

	c := &Error{Op: "z", Code: ErrCodeFailed}
	require.False(t, errors.Is(a, c))
}
