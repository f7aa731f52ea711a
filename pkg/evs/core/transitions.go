package core

import (
	"github.com/jabolina/go-evs/pkg/evs/types"
)

// shiftTo implements spec 4.4's guarded state transition: re-entrant
// invocation (shifting already true) is fatal, as is an edge absent from
// the transition table.
func (e *Engine) shiftTo(to State) {
	if e.shifting {
		panic(types.Violation("re-entrant shift_to"))
	}
	if !CanTransition(e.state, to) {
		panic(types.Violation("forbidden state transition " + e.state.String() + " -> " + to.String()))
	}

	e.shifting = true
	defer func() { e.shifting = false }()

	from := e.state
	e.state = to
	if from == StateRecovery && to != StateRecovery {
		e.joinBackoff = 0
	}
	if e.metrics != nil {
		e.metrics.CurrentState.Set(float64(to))
	}

	switch to {
	case StateRecovery:
		e.enterRecovery(from, true)
	case StateOperational:
		e.enterOperational()
	case StateLeaving:
		e.enterLeaving()
	case StateClosed:
		e.enterClosed()
	case StateJoining:
		// No entry action of its own: Start() arms the timers, then calls
		// selfElectAfterJoin() right after the first broadcastJoin() so a
		// peer with no discovered foreign source still leaves this state
		// instead of waiting forever for one (joinflow.go).
	}
}

// shiftToRecoveryNoJoin is shiftTo(StateRecovery) without broadcasting a fresh join
// immediately (spec 4.4 handle_join: "shift to RECOVERY (without immediately
// broadcasting)").
func (e *Engine) shiftToRecoveryNoJoin() {
	if e.state == StateRecovery {
		return
	}
	if e.shifting {
		panic(types.Violation("re-entrant shift_to"))
	}
	if !CanTransition(e.state, StateRecovery) {
		panic(types.Violation("forbidden state transition " + e.state.String() + " -> RECOVERY"))
	}
	e.shifting = true
	defer func() { e.shifting = false }()
	from := e.state
	e.state = StateRecovery
	if e.metrics != nil {
		e.metrics.CurrentState.Set(float64(StateRecovery))
	}
	e.enterRecovery(from, false)
}

// enterRecovery implements spec 4.4 "Entering RECOVERY".
func (e *Engine) enterRecovery(from State, broadcastJoin bool) {
	e.timers.Stop(TickResend)
	e.timers.Stop(TickSendJoin)
	e.timers.StartPeriodic(TickSendJoin, e.cfg.SendJoinPeriod)

	if from != StateRecovery {
		e.table.ClearJoinMessages()
		e.table.ClearInstalled()
		e.installMsg = nil
		e.timers.StartOnce(TickConsensusTimeout, e.cfg.ConsensusTimeout)
		if e.metrics != nil {
			e.metrics.RecoveryEntries.Inc()
		}
	}

	e.drainOutput(false)

	if broadcastJoin {
		e.broadcastJoin()
	}
}

// enterOperational implements spec 4.4 "Entering OPERATIONAL". Requires a
// consistent install message whose installed set matches reality; callers
// (handleGap, handleUser, handleJoin's election path) only invoke
// shiftTo(StateOperational) after verifying that.
func (e *Engine) enterOperational() {
	if e.installMsg == nil {
		panic(types.Violation("entering OPERATIONAL without an install message"))
	}
	install := e.installMsg

	e.timers.Stop(TickConsensusTimeout)
	e.timers.Stop(TickSendJoin)

	e.deliver()

	transView := e.synthesizeTransView()
	e.deliverView(transView)
	e.deliverTrans()

	e.im.Clear()

	e.previousViews = append(e.previousViews, previousViewEntry{id: e.currentView, at: e.now()})
	e.currentView = install.SourceViewId

	for id, n := range install.NodeList {
		if !n.Leaving {
			e.im.SetOperational(id, true)
			e.im.SetSafeSeq(id, n.SafeSeq)
		}
	}

	e.lastSent = types.SeqnoMax

	regView := e.synthesizeRegView(install)
	e.deliverView(regView)
	e.lastRegMembers = regView.Members

	e.table.EraseNonInstalled()
	e.table.ClearJoinMessages()
	e.installMsg = nil

	e.timers.StartPeriodic(TickResend, e.cfg.ResendPeriod)
}

// enterLeaving implements spec 4.4 "Entering LEAVING".
func (e *Engine) enterLeaving() {
	e.timers.Stop(TickConsensusTimeout)

	if !e.leaveAnnounced {
		e.leaveAnnounced = true
		leave := types.LeaveMessage{Envelope: types.Envelope{
			Type:         types.TypeLeave,
			Source:       e.self,
			SourceViewId: e.currentView,
			FifoSeq:      e.nextFifoSeq(),
		}}
		if err := e.transport.PassDown(types.LeaveMsg(leave)); err != nil {
			e.log.Warnf("evs: failed broadcasting leave: %v", err)
		}
	}

	e.drainOutput(true)
	e.deliver()
	e.deliverTrans()
	e.deliverView(types.NewView(types.ViewReg, e.currentView))

	// The CLOSED transition concludes the same logical shift that entered
	// LEAVING (spec 4.4); it is applied directly rather than re-entering
	// shiftTo, whose re-entrancy guard is for accidental nested shifts
	// triggered from handler code, not this specified epilogue.
	e.state = StateClosed
	if e.metrics != nil {
		e.metrics.CurrentState.Set(float64(StateClosed))
	}
	e.enterClosed()
}

func (e *Engine) enterClosed() {
	e.timers.StopAll()
}
