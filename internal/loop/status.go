package loop

// Transaction status codes, modeled on the Android status_t values a real
// binder client observes (and on the wire status embedded in BR_REPLY).
// Zero is success; negative codes are the errno-shaped statuses the
// kernel or this library can produce.
const (
	StatusOK          int32 = 0
	StatusDeadObject   int32 = -32 // EPIPE: target process no longer exists
	StatusFailed       int32 = -2147483646
	StatusBadMessage   int32 = -74 // EBADMSG: target refused the transaction

	// pending is the internal sentinel transact() assigns to a
	// transaction before any terminal frame has arrived; it can never
	// appear on the wire, so any code that observes it past transact()
	// returning indicates a dispatch bug.
	pending int32 = -999999999
)
