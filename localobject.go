package binder

import (
	"github.com/ngrantham/go-binder/internal/interfaces"
	"github.com/ngrantham/go-binder/internal/loop"
)

// TransactionFunc services one transaction code for a LocalObjectFunc.
type TransactionFunc func(req *interfaces.Request) (*interfaces.Reply, int32)

// LocalObjectFunc is a minimal interfaces.LocalObject built from a handler
// table keyed by transaction code, for applications that don't need a
// hand-written type per exported object. Every registered code is
// serviced synchronously on the Command Loop thread (CanHandle classifies
// it Looper); a code missing from Handlers is classified None and answered
// with BAD_MESSAGE. LocalObjectFunc never classifies a code Application, so
// its transactions never reach Client.Handler.
type LocalObjectFunc struct {
	Handlers map[uint32]TransactionFunc

	OnIncrefs func()
	OnAcquire func()
	OnDecrefs func()
	OnRelease func()
}

func (o *LocalObjectFunc) HandleIncrefs() {
	if o.OnIncrefs != nil {
		o.OnIncrefs()
	}
}

func (o *LocalObjectFunc) HandleAcquire() {
	if o.OnAcquire != nil {
		o.OnAcquire()
	}
}

func (o *LocalObjectFunc) HandleDecrefs() {
	if o.OnDecrefs != nil {
		o.OnDecrefs()
	}
}

func (o *LocalObjectFunc) HandleRelease() {
	if o.OnRelease != nil {
		o.OnRelease()
	}
}

// CanHandle classifies any code present in Handlers as Looper-serviced;
// everything else is None, which the Command Loop replies to with
// BAD_MESSAGE.
func (o *LocalObjectFunc) CanHandle(iface string, code uint32) interfaces.CanHandleResult {
	if _, ok := o.Handlers[code]; ok {
		return interfaces.Looper
	}
	return interfaces.None
}

func (o *LocalObjectFunc) HandleLooperTransaction(req *interfaces.Request, code uint32, flags uint32) (*interfaces.Reply, int32) {
	fn, ok := o.Handlers[code]
	if !ok {
		return nil, loop.StatusBadMessage
	}
	return fn(req)
}

var _ interfaces.LocalObject = (*LocalObjectFunc)(nil)
