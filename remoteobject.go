package binder

import "github.com/ngrantham/go-binder/internal/interfaces"

// RemoteObjectFunc adapts a plain callback to interfaces.RemoteObject, for
// callers that just want to run a closure when a proxy's BR_DEAD_BINDER
// arrives.
type RemoteObjectFunc func()

// HandleDeathNotification invokes f.
func (f RemoteObjectFunc) HandleDeathNotification() { f() }

var _ interfaces.RemoteObject = (RemoteObjectFunc)(nil)
