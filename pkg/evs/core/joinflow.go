package core

import (
	"github.com/jabolina/go-evs/pkg/evs/types"
)

// buildNodeList snapshots this peer's view of the group for a join/install
// message's node_list (spec 3).
func (e *Engine) buildNodeList() map[types.UUID]types.MessageNode {
	out := make(map[types.UUID]types.MessageNode)
	for id, n := range e.table.SnapshotAll() {
		viewId := e.currentView
		if n.JoinMsg != nil {
			viewId = n.JoinMsg.SourceViewId
		}
		out[id] = types.MessageNode{
			Operational: n.Operational,
			Leaving:     n.IsLeaving(),
			ViewId:      viewId,
			SafeSeq:     e.im.GetSourceSafeSeq(id),
			ImRange:     e.im.GetRange(id),
		}
	}
	return out
}

// buildOwnJoin constructs this peer's current join message, reflecting its
// own claimed safe/aru and its full view of the node table.
func (e *Engine) buildOwnJoin() types.JoinMessage {
	return types.JoinMessage{
		Envelope: types.Envelope{
			Type:         types.TypeJoin,
			Source:       e.self,
			SourceViewId: e.currentView,
			AruSeq:       e.im.GetAruSeq(),
			FifoSeq:      e.nextFifoSeq(),
		},
		Seq:      e.im.GetSafeSeq(),
		AruSeq:   e.im.GetAruSeq(),
		NodeList: e.buildNodeList(),
	}
}

// broadcastJoin rebuilds and sends this peer's join message, storing a copy
// locally so later consensus checks compare against what was actually sent.
func (e *Engine) broadcastJoin() {
	join := e.buildOwnJoin()
	n := e.table.Ensure(e.self, e.now())
	n.JoinMsg = &join
	e.table.Set(e.self, n)
	if err := e.transport.PassDown(types.JoinMsg(join)); err != nil {
		e.log.Warnf("evs: failed broadcasting join: %v", err)
	}
}

// selfElectAfterJoin mirrors the original's loopback of a peer's own
// broadcast join through its own handling (evs_proto.cpp shift_to case
// S_JOINING sets loopback so the peer processes its own traffic): having
// just advertised a join, a peer that found no foreign source to react to
// would otherwise sit in JOINING forever, so it runs the same
// consensus/install check handle_join performs on itself. In the
// degenerate single-node case this lets it self-elect immediately
// (spec 4.4, invariant 5); with peers present it simply parks in RECOVERY
// until their joins arrive.
func (e *Engine) selfElectAfterJoin() {
	if e.state != StateJoining {
		return
	}
	// Entering RECOVERY clears every stored join (including the one just
	// broadcast) before a fresh consensus round, so the self-join consulted
	// by the consensus check below must be rebuilt after the shift, exactly
	// as handleJoin does at the end of its own handling.
	e.shiftToRecoveryNoJoin()
	e.broadcastJoin()
	if IsConsensus(e.table, e.self, e.currentView) && IsRepresentative(e.table, e.self) {
		e.sendInstall()
	}
}

// highestObservedViewSeq finds the largest view sequence this peer has
// seen, used to pick the next install's view id (representative+1).
func (e *Engine) highestObservedViewSeq() uint32 {
	max := e.currentView.Seq
	for _, pv := range e.previousViews {
		if pv.id.Seq > max {
			max = pv.id.Seq
		}
	}
	for _, n := range e.table.SnapshotAll() {
		if n.JoinMsg != nil && n.JoinMsg.SourceViewId.Seq > max {
			max = n.JoinMsg.SourceViewId.Seq
		}
	}
	if e.installMsg != nil && e.installMsg.SourceViewId.Seq > max {
		max = e.installMsg.SourceViewId.Seq
	}
	return max
}

// sendInstall implements spec 4.4's install leader election: the
// representative broadcasts an InstallMessage whose view id exceeds every
// observed prior view seq.
func (e *Engine) sendInstall() {
	viewId := types.ViewId{Representative: e.self, Seq: e.highestObservedViewSeq() + 1}
	install := types.InstallMessage{
		Envelope: types.Envelope{
			Type:         types.TypeInstall,
			Source:       e.self,
			SourceViewId: viewId,
			AruSeq:       e.im.GetAruSeq(),
			FifoSeq:      e.nextFifoSeq(),
		},
		Seq:      e.im.GetSafeSeq(),
		AruSeq:   e.im.GetAruSeq(),
		NodeList: e.buildNodeList(),
	}
	e.installMsg = &install
	e.table.MarkInstalled(e.self)
	if err := e.transport.PassDown(types.InstallMsg(install)); err != nil {
		e.log.Warnf("evs: failed broadcasting install: %v", err)
	}
	if e.table.AllInstalled() && IsConsensus(e.table, e.self, e.currentView) {
		e.shiftTo(StateOperational)
	}
}

// handleInstall processes an install proposal from the elected
// representative: accept it, mark ourselves and the sending representative
// installed, and answer with a self-addressed gap (spec 4.4 "Install leader
// election").
func (e *Engine) handleInstall(source types.UUID, msg *types.InstallMessage) {
	if e.state == StateLeaving {
		return
	}
	if e.isPreviousView(msg.SourceViewId) {
		return
	}
	e.discoverSource(source, false)

	// Shift first: entering RECOVERY discards any stored install message.
	if e.state != StateRecovery {
		e.triggerRecovery()
	}
	if e.installMsg == nil || !e.installMsg.SourceViewId.Equal(msg.SourceViewId) {
		e.installMsg = msg
	}
	e.table.MarkInstalled(source)
	e.table.MarkInstalled(e.self)

	ack := types.GapMessage{
		Envelope: types.Envelope{
			Type:         types.TypeGap,
			Source:       e.self,
			SourceViewId: msg.SourceViewId,
			AruSeq:       e.im.GetAruSeq(),
		},
		RangeUUID: e.self,
		Range:     e.im.GetRange(e.self),
	}
	if err := e.transport.PassDown(types.GapMsg(ack)); err != nil {
		e.log.Warnf("evs: failed sending install ack: %v", err)
	}
	if e.metrics != nil {
		e.metrics.GapMessagesSent.Inc()
	}

	if e.table.AllInstalled() && IsConsensus(e.table, e.self, e.currentView) {
		e.shiftTo(StateOperational)
	}
}

// handleJoin implements spec 4.4 "Handling joins", the consensus
// convergence heart of the engine.
func (e *Engine) handleJoin(source types.UUID, msg *types.JoinMessage) {
	if e.state == StateLeaving {
		return
	}
	if e.isPreviousView(msg.SourceViewId) {
		return
	}
	if e.installMsg != nil {
		return
	}

	if e.state == StateOperational {
		if selfNode, ok := e.table.Get(e.self); ok && selfNode.JoinMsg != nil &&
			msg.SourceViewId.Equal(e.currentView) &&
			IsConsistentSameView(AsJoinLike(selfNode.JoinMsg), AsJoinLike(msg)) {
			return
		}
	}

	if e.state != StateRecovery {
		e.shiftToRecoveryNoJoin()
	}

	e.discoverSource(source, false)
	e.markOperationalIfDown(source)
	n, _ := e.table.Get(source)
	n.JoinMsg = msg
	e.table.Set(source, n)

	owe := false
	if msg.SourceViewId.Equal(e.currentView) {
		before := e.im.GetSourceSafeSeq(source)
		e.im.SetSafeSeq(source, msg.AruSeq)
		if e.im.GetSourceSafeSeq(source) != before || msg.AruSeq != msg.Seq {
			owe = e.statesCompare(source, msg)
		}
	} else {
		owe = e.statesCompare(source, msg)
	}

	e.broadcastJoin()

	if IsConsensus(e.table, e.self, e.currentView) && IsRepresentative(e.table, e.self) {
		e.sendInstall()
	} else if owe {
		e.broadcastJoin()
	}
}

// statesCompare implements spec 4.4's decision kernel, returning whether
// this peer owes a join broadcast as a result.
func (e *Engine) statesCompare(author types.UUID, foreign *types.JoinMessage) bool {
	owe := false
	cutoff := e.now().Add(-e.cfg.InactiveTimeout)

	for id, entry := range foreign.NodeList {
		n, known := e.table.Get(id)
		if !known {
			continue
		}
		if n.Operational && (n.Tstamp.Before(cutoff) || entry.Leaving) {
			e.table.MarkOperational(id, false)
			e.im.SetOperational(id, false)
			owe = true
		}
	}

	for id, entry := range foreign.NodeList {
		if entry.ViewId.Equal(e.currentView) {
			before := e.im.GetSourceSafeSeq(id)
			e.im.SetSafeSeq(id, entry.SafeSeq)
			if e.im.GetSourceSafeSeq(id) != before {
				owe = true
			}
		}
	}

	highHs := types.SeqnoMax
	lowLu := types.SeqnoMax
	var lowLuSource types.UUID
	any := false
	for id, entry := range foreign.NodeList {
		if !entry.ViewId.Equal(e.currentView) {
			continue
		}
		any = true
		highHs = types.MaxSeqno(highHs, entry.ImRange.Hs)
		if entry.ImRange.Lu.IsNone() {
			continue
		}
		if lowLu.IsNone() || entry.ImRange.Lu < lowLu {
			lowLu = entry.ImRange.Lu
			lowLuSource = id
		}
	}

	if any && !highHs.IsNone() {
		if e.lastSent.IsNone() || e.lastSent < highHs {
			e.completeUser(highHs)
			owe = true
		} else if lowLuSource == author {
			e.resend(types.Range{Lu: lowLu, Hs: highHs})
		}
		for id, n := range e.table.SnapshotAll() {
			if n.Operational {
				continue
			}
			if entry, ok := foreign.NodeList[id]; ok && entry.ViewId.Equal(e.currentView) {
				e.delegateResend(id, types.Range{Lu: lowLu, Hs: highHs})
			}
		}
	}

	return owe
}
