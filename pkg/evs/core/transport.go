package core

import "github.com/jabolina/go-evs/pkg/evs/types"

// Transport is the out-of-scope collaborator of spec 6: the engine only
// depends on this narrow contract, never on a concrete wire format or
// socket. Mirrors the shape of the teacher's core.Transport interface
// (Listen/Close) plus the explicit backpressure return spec 6 requires of
// pass_down.
type Transport interface {
	// PassDown sends msg to every member of the current view (or, for
	// directed gap/delegate traffic, the caller narrows via msg's fields).
	// Returns nil on acceptance, ErrBackpressure if the caller should retry,
	// or another error for a hard transport failure.
	PassDown(msg types.Message) error

	// Listen returns the channel of inbound messages already parsed from
	// the wire (spec 6: wire parsing itself is out of scope for the core).
	Listen() <-chan InboundMessage

	// Close releases the transport's resources.
	Close() error
}

// InboundMessage pairs a parsed message with its sender, matching
// handle_up(cid, read_buf, offset, up_meta) where up_meta.source is the
// non-nil sender UUID.
type InboundMessage struct {
	Source  types.UUID
	Message types.Message
}

// ErrBackpressure signals the non-blocking transport is temporarily unable
// to accept more data; the caller retries on the next timer tick.
var ErrBackpressure = errBackpressure{}

type errBackpressure struct{}

func (errBackpressure) Error() string { return "evs: transport backpressure, retry" }
