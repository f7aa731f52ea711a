package core

import (
	"github.com/jabolina/go-evs/pkg/evs/types"
)

// submitLocked implements the downward interface of spec 6, called with the
// critical section already held.
func (e *Engine) submitLocked(payload []byte, userType uint8, safety types.SafetyPrefix) error {
	if userType == types.CompletionUserType {
		return types.ErrInvalidUserType
	}
	if e.state != StateOperational {
		return types.ErrNotConnected
	}

	item := outputItem{payload: payload, userType: userType, safety: safety}

	// Preserve submission order: never jump ahead of an already-queued item.
	if len(e.outputQueue) > 0 {
		return e.enqueueOutput(item)
	}

	_, err := e.trySendUser(item, false, types.SeqnoMax)
	if err == types.ErrFlowControl {
		return e.enqueueOutput(item)
	}
	return err
}

func (e *Engine) enqueueOutput(item outputItem) error {
	if len(e.outputQueue) >= e.cfg.MaxOutputSize {
		return types.ErrOutputFull
	}
	e.outputQueue = append(e.outputQueue, item)
	e.reportQueueDepth()
	return nil
}

func (e *Engine) reportQueueDepth() {
	if e.metrics != nil {
		e.metrics.OutputQueueDepth.Set(float64(len(e.outputQueue)))
	}
}

func (e *Engine) nextSeq() types.Seqno {
	if e.lastSent.IsNone() {
		return 0
	}
	return e.lastSent.Next()
}

func (e *Engine) nextFifoSeq() int64 {
	e.fifoCounter++
	return e.fifoCounter
}

// trySendUser implements spec 4.4's send_user path. upTo, when not
// SeqnoMax, batches a synthetic burst up to that seq (used by CompleteUser);
// otherwise a single-seq message is sent. local suppresses network emission
// (still assigns a seq) for the drain performed on entering LEAVING.
func (e *Engine) trySendUser(item outputItem, local bool, upTo types.Seqno) (types.Seqno, error) {
	seq := e.nextSeq()

	if !local && e.state == StateOperational {
		if types.IsFlowControl(seq, e.im.GetAruSeq(), e.cfg.SendWindow) {
			return types.SeqnoMax, types.ErrFlowControl
		}
	}

	seqRange := uint8(0)
	if !upTo.IsNone() && upTo > seq {
		span := upTo - seq
		if span > types.MaxSeqRange {
			span = types.MaxSeqRange
		}
		seqRange = uint8(span)
	}

	more := types.Flags(0)
	isCompletion := item.userType == types.CompletionUserType
	if !isCompletion && len(e.outputQueue) >= 2 {
		aru := e.im.GetAruSeq()
		if !types.IsFlowControl(seq.Next(), aru, e.cfg.SendWindow) {
			more = types.FlagMore
		}
	}

	msg := types.UserMessage{
		Envelope: types.Envelope{
			Type:         types.TypeUser,
			Source:       e.self,
			SourceViewId: e.currentView,
			Seq:          seq,
			AruSeq:       e.im.GetAruSeq(),
			Flags:        more,
		},
		SeqRange: seqRange,
		Safety:   item.safety,
		UserType: item.userType,
		Payload:  item.payload,
	}

	// Insert first so the local aru already reflects this pending send.
	e.im.Insert(e.self, msg, item.payload)
	e.im.SetSafeSeq(e.self, e.im.GetAruSeq())

	if !local {
		if err := e.transport.PassDown(types.UserMsg(msg)); err != nil {
			e.log.Warnf("evs: pass_down failed for seq %d: %v", seq, err)
		}
	}

	e.lastSent = seq + types.Seqno(seqRange)

	if !e.delivering {
		e.deliver()
	}
	return seq, nil
}

// completeUser sends a synthetic DROP message advancing last_sent to
// highSeq without generating real payload — used to catch a peer up to a
// claimed hs (spec 4.4 "Complete-user").
func (e *Engine) completeUser(highSeq types.Seqno) {
	if !e.lastSent.IsNone() && e.lastSent >= highSeq {
		return
	}
	item := outputItem{payload: nil, userType: types.CompletionUserType, safety: types.SafetyDrop}
	if _, err := e.trySendUser(item, false, highSeq); err != nil {
		e.log.Warnf("evs: completion send failed: %v", err)
	}
}

// drainOutput repeatedly sends queued items until the queue empties or flow
// control blocks further admission. local marks the graceful-leave drain
// (spec 4.4 "Entering LEAVING").
func (e *Engine) drainOutput(local bool) {
	for len(e.outputQueue) > 0 {
		item := e.outputQueue[0]
		if _, err := e.trySendUser(item, local, types.SeqnoMax); err != nil {
			if err == types.ErrFlowControl {
				break
			}
			e.log.Warnf("evs: drain send failed, dropping item: %v", err)
		}
		e.outputQueue = e.outputQueue[1:]
	}
	e.reportQueueDepth()
}
