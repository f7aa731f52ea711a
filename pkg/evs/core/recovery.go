package core

import (
	"github.com/jabolina/go-evs/pkg/evs/types"
)

// handleGap implements spec 4.4 "Gap handling".
func (e *Engine) handleGap(source types.UUID, msg *types.GapMessage) {
	if e.state == StateJoining || e.state == StateClosed {
		return
	}

	e.discoverSource(source, false)

	if e.state == StateRecovery && e.installMsg != nil && msg.SourceViewId.Equal(e.installMsg.SourceViewId) {
		e.table.MarkInstalled(source)
		if e.table.AllInstalled() && IsConsensus(e.table, e.self, e.currentView) {
			e.shiftTo(StateOperational)
		}
		return
	}

	if e.isPreviousView(msg.SourceViewId) {
		e.log.Debugf("evs: dropping gap from previous view %v, source %s", msg.SourceViewId, source)
		return
	}

	if !msg.SourceViewId.Equal(e.currentView) {
		e.log.Debugf("evs: dropping gap from unknown view %v, source %s", msg.SourceViewId, source)
		if e.markOperationalIfDown(source) {
			e.triggerRecovery()
		}
		return
	}

	e.im.SetSafeSeq(source, msg.AruSeq)

	switch {
	case msg.RangeUUID == e.self:
		e.resend(msg.Range)
	case msg.RangeUUID != types.Nil && e.state == StateRecovery:
		e.delegateResend(msg.RangeUUID, msg.Range)
	}
}

// resend implements spec 4.4 "Retransmission (resend)": walk our own
// messages in rng, copy the payload, tag RETRANS, refresh aru_seq, and
// advance by seq_range+1.
func (e *Engine) resend(rng types.Range) {
	if rng.Hs.IsNone() {
		return
	}
	seq := rng.Lu
	for seq <= rng.Hs {
		msg, _, err := e.im.Recover(e.self, seq)
		if err != nil {
			e.log.Errorf("evs: resend stopped at seq %d: %v", seq, err)
			return
		}
		retrans := msg
		retrans.Flags |= types.FlagRetrans
		retrans.AruSeq = e.im.GetAruSeq()
		if sendErr := e.transport.PassDown(types.UserMsg(retrans)); sendErr != nil {
			e.log.Warnf("evs: resend of seq %d failed: %v", seq, sendErr)
		}
		if e.metrics != nil {
			e.metrics.ResendsSent.Inc()
		}
		seq = seq + types.Seqno(msg.SeqRange) + 1
	}
}

// delegateResend implements spec 4.4 "Delegated recovery (recover)": we
// retransmit onBehalfOf's messages, tagging SOURCE|RETRANS and wrapping in a
// Delegate envelope so the receiver adopts onBehalfOf as the true sender.
func (e *Engine) delegateResend(onBehalfOf types.UUID, rng types.Range) {
	if rng.Hs.IsNone() {
		return
	}
	seq := rng.Lu
	for seq <= rng.Hs {
		msg, _, err := e.im.Recover(onBehalfOf, seq)
		if err != nil {
			e.log.Errorf("evs: delegated recovery for %s stopped at seq %d: %v", onBehalfOf, seq, err)
			return
		}
		inner := msg
		inner.Flags |= types.FlagSource | types.FlagRetrans
		inner.EmbedSource = onBehalfOf
		delegate := types.DelegateMessage{
			Envelope: types.Envelope{
				Type:         types.TypeDelegate,
				Source:       e.self,
				SourceViewId: e.currentView,
				AruSeq:       e.im.GetAruSeq(),
			},
			Inner: inner,
		}
		if sendErr := e.transport.PassDown(types.DelegateMsg(delegate)); sendErr != nil {
			e.log.Warnf("evs: delegated resend of %s seq %d failed: %v", onBehalfOf, seq, sendErr)
		}
		if e.metrics != nil {
			e.metrics.ResendsSent.Inc()
		}
		seq = seq + types.Seqno(msg.SeqRange) + 1
	}
}
