package core

import (
	"sort"

	"github.com/jabolina/go-evs/pkg/evs/types"
)

// inputEntry is one stored (source, seq) message plus its payload handle.
type inputEntry struct {
	msg     types.UserMessage
	payload []byte
}

// sourceWindow is the per-source sliding window of received messages plus
// its receive range and safe-seq watermark.
type sourceWindow struct {
	rng     types.Range
	safeSeq types.Seqno
	entries map[types.Seqno]inputEntry
	// shadow retains erased entries briefly so Recover can still serve a
	// delegated-recovery request racing with delivery; cleared by the FSM
	// on view changes.
	shadow map[types.Seqno]inputEntry
}

func newSourceWindow() *sourceWindow {
	return &sourceWindow{
		rng:     types.EmptyRange(),
		safeSeq: types.SeqnoMax,
		entries: make(map[types.Seqno]inputEntry),
		shadow:  make(map[types.Seqno]inputEntry),
	}
}

// InputMap is the mapping (source, seq) -> (UserMessage, payload), plus the
// per-source and group-wide aggregates of spec 3/4.2 (C4).
//
// Ownership: InputMap exclusively owns every stored message; payload buffers
// of erased entries stay in the shadow store until Clear.
type InputMap struct {
	sources map[types.UUID]*sourceWindow
	// operational restricts GetAruSeq/GetSafeSeq to this set of sources,
	// mirroring "group aru = min over operational sources".
	operational map[types.UUID]bool
}

// NewInputMap returns an empty input map.
func NewInputMap() *InputMap {
	return &InputMap{
		sources:     make(map[types.UUID]*sourceWindow),
		operational: make(map[types.UUID]bool),
	}
}

func (m *InputMap) window(source types.UUID) *sourceWindow {
	w, ok := m.sources[source]
	if !ok {
		w = newSourceWindow()
		m.sources[source] = w
	}
	return w
}

// SetOperational marks which sources participate in the group aggregates.
func (m *InputMap) SetOperational(source types.UUID, operational bool) {
	if operational {
		m.operational[source] = true
	} else {
		delete(m.operational, source)
	}
}

// Clear drops every source window — called on entering OPERATIONAL (spec
// 4.4 "clear input map").
func (m *InputMap) Clear() {
	m.sources = make(map[types.UUID]*sourceWindow)
	m.operational = make(map[types.UUID]bool)
}

// Insert stores msg if its seq is within the source's admissible window,
// updates hs, and advances lu while contiguous. Duplicate (retransmitted)
// messages are silently deduplicated — a seq below lu is ignored entirely;
// re-inserting a stored seq at or above lu replaces its entry and payload
// without changing the range. Returns the source's new Range.
func (m *InputMap) Insert(source types.UUID, msg types.UserMessage, payload []byte) types.Range {
	w := m.window(source)

	if !w.rng.Lu.IsNone() && msg.Seq < w.rng.Lu {
		// Entirely below the receive frontier: a duplicate retransmit of
		// something already delivered/erased. Nothing to do.
		return w.rng
	}

	w.entries[msg.Seq] = inputEntry{msg: msg, payload: payload}
	high := msg.HighSeq()
	w.rng.Hs = types.MaxSeqno(w.rng.Hs, high)

	if w.rng.Lu.IsNone() {
		w.rng.Lu = 0
	}
	for {
		if _, ok := w.entries[w.rng.Lu]; ok {
			w.rng.Lu = w.rng.Lu.Next()
			continue
		}
		// A message with seq_range > 0 reserves the whole burst without a
		// stored entry per seqno; treat the reserved tail as contiguous.
		advanced := false
		for s, e := range w.entries {
			if s < w.rng.Lu && e.msg.HighSeq() >= w.rng.Lu {
				w.rng.Lu = e.msg.HighSeq().Next()
				advanced = true
				break
			}
		}
		if !advanced {
			break
		}
	}
	return w.rng
}

// SetSafeSeq advances source's safe watermark monotonically; lower values
// are a no-op (spec 8 idempotence).
func (m *InputMap) SetSafeSeq(source types.UUID, s types.Seqno) {
	w := m.window(source)
	w.safeSeq = types.MaxSeqno(w.safeSeq, s)
}

// GetRange returns source's current receive range.
func (m *InputMap) GetRange(source types.UUID) types.Range {
	return m.window(source).rng
}

// GetAruSeq returns the group aru: min over operational sources of lu-1
// (SeqnoMax if a source has received nothing, which dominates the min).
func (m *InputMap) GetAruSeq() types.Seqno {
	result := types.SeqnoMax
	any := false
	for source := range m.operational {
		any = true
		lu := m.window(source).rng.Lu
		var aru types.Seqno
		if lu.IsNone() {
			aru = types.SeqnoMax
		} else if lu == 0 {
			aru = types.SeqnoMax // nothing confirmed below seq 0
		} else {
			aru = lu - 1
		}
		if aru.IsNone() {
			return types.SeqnoMax
		}
		result = types.MinSeqno(result, aru)
	}
	if !any {
		return types.SeqnoMax
	}
	return result
}

// GetSafeSeq returns the group safe seq: min of per-source safe seqs over
// operational sources.
func (m *InputMap) GetSafeSeq() types.Seqno {
	result := types.SeqnoMax
	any := false
	for source := range m.operational {
		any = true
		result = types.MinSeqno(result, m.window(source).safeSeq)
	}
	if !any {
		return types.SeqnoMax
	}
	return result
}

// GetSourceSafeSeq returns a single source's safe watermark.
func (m *InputMap) GetSourceSafeSeq(source types.UUID) types.Seqno {
	return m.window(source).safeSeq
}

// Find looks up a stored entry, consulting the shadow store too.
func (m *InputMap) Find(source types.UUID, seq types.Seqno) (types.UserMessage, []byte, bool) {
	w := m.window(source)
	if e, ok := w.entries[seq]; ok {
		return e.msg, e.payload, true
	}
	if e, ok := w.shadow[seq]; ok {
		return e.msg, e.payload, true
	}
	return types.UserMessage{}, nil, false
}

// Recover revives a message from shadow storage for delegated
// retransmission. Per spec 4.2, failing to find an entry here is a protocol
// bug: the caller only calls Recover for a (source, seq) it has already
// reasoned must have been seen.
func (m *InputMap) Recover(source types.UUID, seq types.Seqno) (types.UserMessage, []byte, error) {
	msg, payload, ok := m.Find(source, seq)
	if !ok {
		return types.UserMessage{}, nil, types.Violation("input map recover miss for a message that must exist")
	}
	return msg, payload, nil
}

// Erase removes (source, seq) from the live entries and moves it, payload
// included, to the shadow store so Recover/Resend can still serve it.
func (m *InputMap) Erase(source types.UUID, seq types.Seqno) {
	w := m.window(source)
	if e, ok := w.entries[seq]; ok {
		w.shadow[seq] = e
		delete(w.entries, seq)
	}
}

// deliverable is one entry paired with its originating source, returned by
// Iterate in the map's total delivery order.
type deliverable struct {
	source types.UUID
	seq    types.Seqno
	entry  inputEntry
}

// Iterate returns every stored entry across every source in the map's total
// order: ascending by seq, then by source UUID (spec 4.2 "iteration").
func (m *InputMap) Iterate() []deliverable {
	var all []deliverable
	for source, w := range m.sources {
		for seq, e := range w.entries {
			all = append(all, deliverable{source: source, seq: seq, entry: e})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].seq != all[j].seq {
			return all[i].seq < all[j].seq
		}
		return types.CompareUUID(all[i].source, all[j].source) < 0
	})
	return all
}

// IsFifo reports whether seq from source is within that source's own FIFO
// frontier: seq <= lu-1.
func (m *InputMap) IsFifo(source types.UUID, seq types.Seqno) bool {
	lu := m.window(source).rng.Lu
	if lu.IsNone() {
		return false
	}
	if lu == 0 {
		return false
	}
	return seq <= lu-1
}

// IsAgreed reports whether seq is within the group aru frontier.
func (m *InputMap) IsAgreed(seq types.Seqno) bool {
	aru := m.GetAruSeq()
	if aru.IsNone() {
		return false
	}
	return seq <= aru
}

// IsSafe reports whether seq is within the group safe frontier.
func (m *InputMap) IsSafe(seq types.Seqno) bool {
	safe := m.GetSafeSeq()
	if safe.IsNone() {
		return false
	}
	return seq <= safe
}

// Sources returns every source UUID currently tracked, known or operational.
func (m *InputMap) Sources() []types.UUID {
	ids := make([]types.UUID, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	return ids
}
