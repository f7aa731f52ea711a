package types

import "errors"

// User errors, returned directly to the submitting caller (spec 7).
var (
	ErrNotConnected     = errors.New("evs: not connected, peer is not in the OPERATIONAL state")
	ErrInvalidUserType  = errors.New("evs: user_type 0xff is reserved for internal completion messages")
)

// Transient errors never propagate past the output queue; the caller retries
// on the next submission or timer tick.
var (
	ErrFlowControl = errors.New("evs: send blocked by flow control, retry later")
	ErrOutputFull  = errors.New("evs: output queue full, retry later")
)

// ProtocolViolation is a fatal assertion failure: a forbidden state
// transition, re-entrant delivery, re-entrant shift_to, a missing install
// message where one was required, or trans-delivery residue. These are
// raised as panics that unwind past HandleUp/HandleDown; the engine never
// recovers them. An input-map recover miss is different: InputMap.Recover
// returns it as an error value, and resend/delegateResend log it and stop
// that retransmission. No check raises a violation for an inconsistent
// self-authored join.
type ProtocolViolation struct {
	Reason string
}

func (e *ProtocolViolation) Error() string {
	return "evs: protocol violation: " + e.Reason
}

// Violation builds a ProtocolViolation for the given reason.
func Violation(reason string) error {
	return &ProtocolViolation{Reason: reason}
}
