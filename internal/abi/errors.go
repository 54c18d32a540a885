package abi

import "errors"

// ErrShortFrame is returned by the Decode* methods when the supplied slice
// is too small to contain the struct being decoded, which signals a
// truncated read rather than a malformed one (the Read Buffer should block
// for more data, not treat this as a protocol error).
var ErrShortFrame = errors.New("abi: short frame")
