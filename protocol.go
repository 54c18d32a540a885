package binder

import (
	"unicode/utf16"

	"github.com/ngrantham/go-binder/internal/interfaces"
)

// DefaultProtocol is the RPC Protocol Descriptor this library uses absent
// an application-supplied one: it prefixes an outgoing request with its
// interface name as a NUL-terminated UTF-16LE string, the convention the
// Android reference implementation uses for its interface token.
type DefaultProtocol struct {
	devicePath string
}

// NewDefaultProtocol selects a protocol variant by device path. Every
// current binder device node (/dev/binder, /dev/vndbinder) speaks the
// same interface-token convention; this hook exists so a future
// differently-framed device (e.g. a HIDL-flavored /dev/hwbinder) can
// select a distinct RPCProtocol without changing Client's API.
func NewDefaultProtocol(devicePath string) *DefaultProtocol {
	return &DefaultProtocol{devicePath: devicePath}
}

// WriteRPCHeader writes ifaceName as UTF-16LE code units terminated by a
// NUL code unit.
func (p *DefaultProtocol) WriteRPCHeader(w interfaces.Writer, ifaceName string) {
	for _, u := range utf16.Encode([]rune(ifaceName)) {
		w.WriteBytes([]byte{byte(u), byte(u >> 8)})
	}
	w.WriteBytes([]byte{0, 0})
}

var _ interfaces.RPCProtocol = (*DefaultProtocol)(nil)
