package core

import (
	"github.com/jabolina/go-evs/pkg/evs/types"
)

// processTick dispatches a fired timer under the critical section (spec 5:
// inactivity sweep, consensus timeout, proactive resend, join rebroadcast,
// previous-view GC). Timers never call Engine methods directly; they only
// enqueue a Tick, which the event loop in engine.go feeds here.
func (e *Engine) processTick(tick Tick) {
	switch tick.Kind {
	case TickInactiveCheck:
		e.onInactiveCheck()
	case TickConsensusTimeout:
		e.onConsensusTimeout()
	case TickResend:
		e.onResendTick()
	case TickSendJoin:
		e.onSendJoinTick()
	case TickCleanup:
		e.onCleanupTick()
	}
}

// onInactiveCheck sweeps operational peers whose last contact exceeds
// cfg.InactiveTimeout, marking them down and forcing RECOVERY (spec 4.4
// "Inactivity sweep").
func (e *Engine) onInactiveCheck() {
	if e.state == StateClosed || e.state == StateLeaving {
		return
	}
	cutoff := e.now().Add(-e.cfg.InactiveTimeout)
	stale := e.table.InactiveSince(e.self, cutoff)
	if len(stale) == 0 {
		return
	}
	for _, id := range stale {
		e.table.MarkOperational(id, false)
		e.im.SetOperational(id, false)
	}
	if e.metrics != nil {
		e.metrics.InactivityEvictions.Add(float64(len(stale)))
	}
	e.triggerRecovery()
	e.broadcastJoin()
}

// onConsensusTimeout fires cfg.ConsensusTimeout after entering RECOVERY
// without reaching agreement; rebroadcasting the join nudges any peer that
// missed the original round (spec 4.4 "Consensus timeout").
func (e *Engine) onConsensusTimeout() {
	if e.state != StateRecovery {
		return
	}
	if IsConsensus(e.table, e.self, e.currentView) && IsRepresentative(e.table, e.self) {
		e.sendInstall()
		return
	}
	e.broadcastJoin()
	e.timers.StartOnce(TickConsensusTimeout, e.cfg.ConsensusTimeout)
}

// onResendTick proactively retransmits our own unacknowledged range while
// OPERATIONAL, covering silent packet loss that never prompted a gap
// request from any peer (spec 4.4 "Periodic resend").
func (e *Engine) onResendTick() {
	if e.state != StateOperational {
		return
	}
	rng := e.im.GetRange(e.self)
	aru := e.im.GetAruSeq()
	if rng.Hs.IsNone() {
		return
	}
	lo := aru
	if lo.IsNone() {
		lo = 0
	} else {
		lo = lo.Next()
	}
	if lo > rng.Hs {
		return
	}
	e.resend(types.Range{Lu: lo, Hs: rng.Hs})
}

// onSendJoinTick rebroadcasts our join while not yet OPERATIONAL, backing
// off geometrically up to 8x the base period so a large group's join storm
// settles instead of growing unboundedly (supplements spec 5, grounded in
// the original's exponential backoff on unanswered joins).
func (e *Engine) onSendJoinTick() {
	if e.state == StateOperational || e.state == StateClosed || e.state == StateLeaving {
		e.joinBackoff = 0
		return
	}
	e.broadcastJoin()

	base := e.cfg.SendJoinPeriod
	if e.joinBackoff == 0 {
		e.joinBackoff = base
	} else if e.joinBackoff < base*8 {
		e.joinBackoff *= 2
		if e.joinBackoff > base*8 {
			e.joinBackoff = base * 8
		}
	}
	e.timers.StartOnce(TickSendJoin, e.joinBackoff)
}

// onCleanupTick evicts previous-view records older than cfg.PreviousViewTTL
// (spec 3 "Previous views").
func (e *Engine) onCleanupTick() {
	if len(e.previousViews) == 0 {
		return
	}
	cutoff := e.now().Add(-e.cfg.PreviousViewTTL)
	kept := e.previousViews[:0]
	for _, pv := range e.previousViews {
		if pv.at.After(cutoff) {
			kept = append(kept, pv)
		}
	}
	e.previousViews = kept
}
