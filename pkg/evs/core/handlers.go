package core

import (
	"github.com/jabolina/go-evs/pkg/evs/types"
)

// handleUser implements spec 4.4 "Handling user messages".
func (e *Engine) handleUser(source types.UUID, msg *types.UserMessage) {
	if e.state == StateJoining || e.state == StateClosed {
		return
	}

	e.discoverSource(source, false)

	if !msg.SourceViewId.Equal(e.currentView) {
		if n, known := e.table.Get(source); known && n.IsLeaving() {
			return
		}
		if e.isPreviousView(msg.SourceViewId) {
			return
		}
		if e.markOperationalIfDown(source) {
			e.triggerRecovery()
		}
		if e.state == StateRecovery && e.installMsg != nil && msg.SourceViewId.Equal(e.installMsg.SourceViewId) {
			for id := range e.installMsg.NodeList {
				e.table.MarkInstalled(id)
			}
			if e.table.AllInstalled() && IsConsensus(e.table, e.self, e.currentView) {
				e.shiftTo(StateOperational)
			} else if e.state != StateRecovery {
				e.shiftToRecoveryNoJoin()
			}
		}
		return
	}

	before := e.im.GetRange(source)
	aruBefore := e.im.GetAruSeq()
	e.im.Insert(source, *msg, msg.Payload)
	after := e.im.GetRange(source)
	if after.Lu != before.Lu {
		e.table.Touch(source, e.now())
	}

	if !after.Hs.IsNone() && (after.Lu.IsNone() || after.Lu <= after.Hs) && after.Lu != after.Hs.Next() && !msg.Flags.Has(types.FlagRetrans) {
		if gap, ok := e.pendingGap(source); ok {
			e.sendGap(source, gap)
		}
	}

	if len(e.outputQueue) == 0 && !msg.Flags.Has(types.FlagMore) && (e.lastSent.IsNone() || e.lastSent < after.Hs) {
		e.completeUser(after.Hs)
	} else if len(e.outputQueue) == 0 {
		aruAfter := e.im.GetAruSeq()
		if aruAfter != aruBefore {
			e.sendAck()
		}
	}

	e.deliver()
	e.drainOutput(false)

	if e.state == StateRecovery {
		aru := e.im.GetAruSeq()
		safe := e.im.GetSafeSeq()
		if e.lastSent == aru {
			selfNode, _ := e.table.Get(e.self)
			needsJoin := selfNode.JoinMsg == nil || selfNode.JoinMsg.AruSeq != aru || selfNode.JoinMsg.Seq != safe
			if needsJoin {
				e.broadcastJoin()
			}
		}
	}
}

// pendingGap reports whether a hole exists in source's receive window that
// is not yet covered by an outstanding request — here approximated as
// "lu <= hs", i.e. some reserved seqno above lu has not arrived.
func (e *Engine) pendingGap(source types.UUID) (types.Range, bool) {
	r := e.im.GetRange(source)
	if r.Lu.IsNone() || r.Hs.IsNone() {
		return types.Range{}, false
	}
	if r.Lu <= r.Hs {
		return types.Range{Lu: r.Lu, Hs: r.Hs}, true
	}
	return types.Range{}, false
}

func (e *Engine) sendGap(target types.UUID, rng types.Range) {
	gap := types.GapMessage{
		Envelope: types.Envelope{
			Type:         types.TypeGap,
			Source:       e.self,
			SourceViewId: e.currentView,
			AruSeq:       e.im.GetAruSeq(),
		},
		RangeUUID: target,
		Range:     rng,
	}
	if err := e.transport.PassDown(types.GapMsg(gap)); err != nil {
		e.log.Warnf("evs: failed sending gap to %s: %v", target, err)
	}
	if e.metrics != nil {
		e.metrics.GapMessagesSent.Inc()
	}
}

// sendAck sends a pure ack gap (range_uuid == Nil) carrying the advanced aru.
func (e *Engine) sendAck() {
	gap := types.GapMessage{
		Envelope: types.Envelope{
			Type:         types.TypeGap,
			Source:       e.self,
			SourceViewId: e.currentView,
			AruSeq:       e.im.GetAruSeq(),
		},
		RangeUUID: types.Nil,
	}
	if err := e.transport.PassDown(types.GapMsg(gap)); err != nil {
		e.log.Warnf("evs: failed sending ack gap: %v", err)
	}
	if e.metrics != nil {
		e.metrics.GapMessagesSent.Inc()
	}
}

// handleLeave stores the departure notice and marks the sender down; it
// never triggers foreign-source discovery's RECOVERY kick (spec 4.4: only
// non-Leave messages do).
func (e *Engine) handleLeave(source types.UUID, msg *types.LeaveMessage) {
	e.discoverSource(source, true)
	n, _ := e.table.Get(source)
	n.LeaveMsg = msg
	n.Operational = false
	e.table.Set(source, n)

	switch e.state {
	case StateOperational:
		e.shiftToRecoveryNoJoin()
		e.broadcastJoin()
	case StateRecovery:
		e.broadcastJoin()
	}
}

// handleDelegate unwraps a tunneled recovery message and processes the
// inner user message as if it had arrived directly from its embedded
// source, per spec 3 "DelegateMessage".
func (e *Engine) handleDelegate(_ types.UUID, msg *types.DelegateMessage) {
	inner := msg.Inner
	origin := inner.Source
	if inner.Flags.Has(types.FlagSource) && inner.EmbedSource != types.Nil {
		origin = inner.EmbedSource
	}
	e.handleUser(origin, &inner)
}
