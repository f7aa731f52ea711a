package core

import (
	"testing"

	"github.com/jabolina/go-evs/pkg/evs/types"
)

func TestInputMap_InsertAdvancesContiguousLu(t *testing.T) {
	im := NewInputMap()
	src := types.NewUUID()
	im.SetOperational(src, true)

	im.Insert(src, types.UserMessage{Envelope: types.Envelope{Seq: 0}}, nil)
	r := im.GetRange(src)
	if r.Lu != 1 || r.Hs != 0 {
		t.Fatalf("expected lu=1 hs=0 after first insert, got %+v", r)
	}

	im.Insert(src, types.UserMessage{Envelope: types.Envelope{Seq: 2}}, nil)
	r = im.GetRange(src)
	if r.Lu != 1 || r.Hs != 2 {
		t.Fatalf("a gap at seq 1 must stall lu, got %+v", r)
	}

	im.Insert(src, types.UserMessage{Envelope: types.Envelope{Seq: 1}}, nil)
	r = im.GetRange(src)
	if r.Lu != 3 || r.Hs != 2 {
		t.Fatalf("filling the gap must advance lu past both entries, got %+v", r)
	}
}

func TestInputMap_InsertHonorsSeqRangeReservation(t *testing.T) {
	im := NewInputMap()
	src := types.NewUUID()
	im.SetOperational(src, true)

	im.Insert(src, types.UserMessage{Envelope: types.Envelope{Seq: 0}, SeqRange: 2}, nil)
	r := im.GetRange(src)
	if r.Lu != 3 || r.Hs != 2 {
		t.Fatalf("a burst reservation should advance lu past its high seq, got %+v", r)
	}
}

func TestInputMap_GetAruSeq_MinOverOperationalSources(t *testing.T) {
	im := NewInputMap()
	a, b := types.NewUUID(), types.NewUUID()
	im.SetOperational(a, true)
	im.SetOperational(b, true)

	im.Insert(a, types.UserMessage{Envelope: types.Envelope{Seq: 0}}, nil)
	im.Insert(a, types.UserMessage{Envelope: types.Envelope{Seq: 1}}, nil)
	im.Insert(b, types.UserMessage{Envelope: types.Envelope{Seq: 0}}, nil)

	if got := im.GetAruSeq(); got != 0 {
		t.Fatalf("aru must be bounded by the slowest source, got %d", got)
	}
}

func TestInputMap_GetAruSeq_NoOperationalSourcesIsNone(t *testing.T) {
	im := NewInputMap()
	if got := im.GetAruSeq(); !got.IsNone() {
		t.Fatalf("aru with no operational sources must be none")
	}
}

func TestInputMap_SafeSeqMonotonic(t *testing.T) {
	im := NewInputMap()
	src := types.NewUUID()
	im.SetSafeSeq(src, 5)
	im.SetSafeSeq(src, 2)
	if got := im.GetSourceSafeSeq(src); got != 5 {
		t.Fatalf("safe seq must never regress, got %d", got)
	}
}

func TestInputMap_IsFifoAgreedSafe(t *testing.T) {
	im := NewInputMap()
	src := types.NewUUID()
	im.SetOperational(src, true)
	im.Insert(src, types.UserMessage{Envelope: types.Envelope{Seq: 0}}, nil)
	im.Insert(src, types.UserMessage{Envelope: types.Envelope{Seq: 1}}, nil)

	if !im.IsFifo(src, 0) || !im.IsFifo(src, 1) {
		t.Fatalf("both contiguous entries must be fifo-deliverable")
	}
	if im.IsFifo(src, 2) {
		t.Fatalf("seq 2 was never received")
	}

	if !im.IsAgreed(0) {
		t.Fatalf("aru=1 (lu-1) should make seq 0 agreed")
	}

	im.SetSafeSeq(src, 1)
	if !im.IsSafe(1) {
		t.Fatalf("seq 1 should be safe once the source's safe watermark reaches it")
	}
}

func TestInputMap_EraseThenRecoverUsesShadow(t *testing.T) {
	im := NewInputMap()
	src := types.NewUUID()
	im.Insert(src, types.UserMessage{Envelope: types.Envelope{Seq: 0}, UserType: 7}, []byte("payload"))
	im.Erase(src, 0)

	msg, payload, err := im.Recover(src, 0)
	if err != nil {
		t.Fatalf("recover from shadow must succeed: %v", err)
	}
	if msg.UserType != 7 || string(payload) != "payload" {
		t.Fatalf("recovered entry mismatch: %+v %q", msg, payload)
	}
}

func TestInputMap_RecoverMissIsFatal(t *testing.T) {
	im := NewInputMap()
	_, _, err := im.Recover(types.NewUUID(), 99)
	if err == nil {
		t.Fatalf("recovering an entry that was never stored must error")
	}
	if _, ok := err.(*types.ProtocolViolation); !ok {
		t.Fatalf("expected a ProtocolViolation, got %T", err)
	}
}

func TestInputMap_IterateIsTotallyOrdered(t *testing.T) {
	im := NewInputMap()
	a, b := types.NewUUID(), types.NewUUID()
	im.Insert(a, types.UserMessage{Envelope: types.Envelope{Seq: 1}}, nil)
	im.Insert(b, types.UserMessage{Envelope: types.Envelope{Seq: 0}}, nil)
	im.Insert(a, types.UserMessage{Envelope: types.Envelope{Seq: 0}}, nil)

	all := im.Iterate()
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].seq > all[i].seq {
			t.Fatalf("entries must be non-decreasing by seq")
		}
	}
}
