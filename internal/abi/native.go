package abi

import "unsafe"

// nativePtrSize reports the pointer width of the running binary, which
// this library uses to pick ABI32 vs ABI64: a binder client always runs
// compiled for the bitness of the device node it opens, so there is
// nothing to negotiate here beyond what BINDER_VERSION confirms.
func nativePtrSize() int {
	return int(unsafe.Sizeof(uintptr(0)))
}
