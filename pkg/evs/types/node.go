package types

import "time"

// Node is the per-peer record kept in the node table (spec 4.3's "known").
// It is inserted on first contact with a peer and erased at state
// transitions when Installed == false.
type Node struct {
	// Operational means this peer is believed reachable and agreeing.
	Operational bool

	// Installed means this peer has confirmed the pending install message.
	Installed bool

	// Tstamp is the last time any message from this peer was observed.
	Tstamp time.Time

	// JoinMsg is the latest join message received from this peer, if any.
	JoinMsg *JoinMessage

	// LeaveMsg is set once this peer announced a graceful departure.
	LeaveMsg *LeaveMessage

	// FifoSeq holds this peer's last-seen membership-message fifo counter.
	// It starts at -1; the engine neither updates nor consults it, so stale
	// or duplicate join and leave messages are not filtered by it.
	FifoSeq int64
}

// NewNode creates a fresh, operational, non-installed node record stamped
// at the given time.
func NewNode(now time.Time) Node {
	return Node{
		Operational: true,
		Installed:   false,
		Tstamp:      now,
		FifoSeq:     -1,
	}
}

// IsLeaving reports whether this node has announced a graceful departure.
func (n Node) IsLeaving() bool {
	return n.LeaveMsg != nil
}
