package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngrantham/go-binder/internal/interfaces"
)

type fakeLocal struct{}

func (fakeLocal) HandleIncrefs() {}
func (fakeLocal) HandleAcquire() {}
func (fakeLocal) HandleDecrefs() {}
func (fakeLocal) HandleRelease() {}
func (fakeLocal) CanHandle(iface string, code uint32) interfaces.CanHandleResult {
	return interfaces.None
}
func (fakeLocal) HandleLooperTransaction(req *interfaces.Request, code, flags uint32) (*interfaces.Reply, int32) {
	return nil, 0
}

type fakeRemote struct{ notified int }

func (f *fakeRemote) HandleDeathNotification() { f.notified++ }

func TestGetLocalUnknownCookieReturnsNil(t *testing.T) {
	r := New()
	require.Nil(t, r.GetLocal(42))
}

func TestRegisterAndGetLocal(t *testing.T) {
	r := New()
	obj := fakeLocal{}
	r.RegisterLocal(1, obj)
	require.Equal(t, interfaces.LocalObject(obj), r.GetLocal(1))

	r.UnregisterLocal(1)
	require.Nil(t, r.GetLocal(1))
}

func TestRegisterAndGetRemote(t *testing.T) {
	r := New()
	obj := &fakeRemote{}
	r.RegisterRemote(7, obj)
	require.Same(t, obj, r.GetRemote(7))

	r.UnregisterRemote(7)
	require.Nil(t, r.GetRemote(7))
}
