package core

import (
	"github.com/jabolina/go-evs/pkg/evs/types"
)

// deliver implements spec 4.5's deliver(): walk the input map in its total
// order, deliver every entry whose safety prefix clears its gate, then
// erase it. Re-entrant invocation is fatal.
func (e *Engine) deliver() {
	if e.delivering {
		panic(types.Violation("re-entrant deliver"))
	}
	e.delivering = true
	defer func() { e.delivering = false }()

	for _, d := range e.im.Iterate() {
		if !e.isDeliverable(d.source, d.seq, d.entry.msg.Safety) {
			continue
		}
		if d.entry.msg.Safety != types.SafetyDrop {
			e.onUp(UpEvent{
				Kind:     UpUser,
				Payload:  d.entry.payload,
				Source:   d.source,
				UserType: d.entry.msg.UserType,
			})
		}
		e.im.Erase(d.source, d.seq)
	}
}

func (e *Engine) isDeliverable(source types.UUID, seq types.Seqno, safety types.SafetyPrefix) bool {
	switch safety {
	case types.SafetyDrop:
		return true
	case types.SafetyFifo:
		return e.im.IsFifo(source, seq)
	case types.SafetyAgreed:
		return e.im.IsAgreed(seq)
	case types.SafetySafe:
		return e.im.IsSafe(seq)
	default:
		return false
	}
}

// deliverTrans implements spec 4.5's deliver_trans(): deliver every entry
// that is FIFO within its source regardless of nominal safety, then assert
// no residue remains that is either FIFO-from-a-partitioned-source or from
// a fully installed peer — any such residue is a protocol bug.
func (e *Engine) deliverTrans() {
	if e.delivering {
		panic(types.Violation("re-entrant deliver"))
	}
	e.delivering = true
	defer func() { e.delivering = false }()

	var residue []deliverable
	for _, d := range e.im.Iterate() {
		if e.im.IsFifo(d.source, d.seq) {
			if d.entry.msg.Safety != types.SafetyDrop {
				e.onUp(UpEvent{
					Kind:     UpUser,
					Payload:  d.entry.payload,
					Source:   d.source,
					UserType: d.entry.msg.UserType,
				})
			}
			e.im.Erase(d.source, d.seq)
			continue
		}
		residue = append(residue, d)
	}

	for _, d := range residue {
		n, known := e.table.Get(d.source)
		partitioned := known && !n.Operational && !n.IsLeaving()
		installed := known && n.Installed
		if partitioned || installed {
			panic(types.Violation("trans-delivery residue from a partitioned or fully installed peer"))
		}
	}
}

// deliverView pushes a view upward and counts it for metrics. No two
// upward calls interleave a REG view with in-view payloads of another view
// because both deliver() calls that bracket a view transition run to
// completion (under delivering) before deliverView is invoked.
func (e *Engine) deliverView(v types.View) {
	if e.metrics != nil {
		e.metrics.ViewChanges.Inc()
	}
	e.onUp(UpEvent{Kind: UpView, View: v})
}

// synthesizeTransView builds the bridging view from the node table's
// knowledge of which peers are installed && join.view_id == current_view
// (members) vs leaving/partitioned in the pending install message, per
// spec 4.5.
func (e *Engine) synthesizeTransView() types.View {
	v := types.NewView(types.ViewTrans, e.currentView)
	for id, n := range e.table.SnapshotAll() {
		if n.Installed && n.JoinMsg != nil && n.JoinMsg.SourceViewId.Equal(e.currentView) {
			v.Members[id] = types.MemberMeta{}
		}
	}
	for id, entry := range e.installMsg.NodeList {
		if _, member := v.Members[id]; member {
			continue
		}
		if entry.Leaving {
			v.Left[id] = types.MemberMeta{}
		} else if !entry.Operational {
			v.Partitioned[id] = types.MemberMeta{}
		}
	}
	return v
}

// synthesizeRegView builds the next agreed membership from the install
// message's node list: installed, non-leaving entries are members; leaving
// entries are left; everyone else observed is partitioned.
func (e *Engine) synthesizeRegView(install *types.InstallMessage) types.View {
	v := types.NewView(types.ViewReg, install.SourceViewId)
	for id, n := range install.NodeList {
		if n.Leaving {
			v.Left[id] = types.MemberMeta{}
			continue
		}
		if n.Operational {
			v.Members[id] = types.MemberMeta{}
		} else {
			v.Partitioned[id] = types.MemberMeta{}
		}
	}
	for id := range v.Members {
		if _, wasKnown := e.previousMembers()[id]; !wasKnown {
			v.Joined[id] = types.MemberMeta{}
		}
	}
	return v
}

// previousMembers returns the membership of the last delivered REG view,
// used only to compute the Joined set of the next one.
func (e *Engine) previousMembers() map[types.UUID]types.MemberMeta {
	return e.lastRegMembers
}
