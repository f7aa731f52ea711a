package core

import (
	"github.com/jabolina/go-evs/pkg/evs/types"
)

// isPreviousView reports whether vid belongs to a view this peer has
// already superseded (spec 3 "Previous views", retained for
// cfg.PreviousViewTTL to filter duplicate traffic).
func (e *Engine) isPreviousView(vid types.ViewId) bool {
	for _, pv := range e.previousViews {
		if pv.id.Equal(vid) {
			return true
		}
	}
	return false
}

// discoverSource implements spec 4.4's "Foreign-source discovery": a
// non-Leave message from an unknown UUID registers the node as operational
// and forces a RECOVERY transition. Join messages are stored by the caller
// only *after* this returns, since entering RECOVERY wipes stored joins.
func (e *Engine) discoverSource(source types.UUID, isLeave bool) {
	if source == e.self {
		return
	}
	if _, known := e.table.Get(source); known {
		return
	}
	e.table.Ensure(source, e.now())
	if isLeave {
		return
	}
	switch e.state {
	case StateOperational, StateJoining, StateRecovery:
		e.triggerRecovery()
	}
}

// triggerRecovery shifts to RECOVERY (without an immediate join broadcast)
// unless already there, per the many "merge/partition detected" call sites
// in spec 4.4.
func (e *Engine) triggerRecovery() {
	if e.state == StateRecovery {
		return
	}
	e.shiftToRecoveryNoJoin()
}

// markOperationalIfDown flips a known node back to operational, returning
// whether it had been marked down (spec 4.4 "mark operational and trigger
// RECOVERY").
func (e *Engine) markOperationalIfDown(source types.UUID) bool {
	n, known := e.table.Get(source)
	if !known {
		return false
	}
	if !n.Operational {
		e.table.MarkOperational(source, true)
		return true
	}
	return false
}
