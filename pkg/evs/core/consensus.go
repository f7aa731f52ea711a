package core

import (
	"github.com/jabolina/go-evs/pkg/evs/types"
)

// imRangeEqual compares two advertised receive ranges field-by-field; used
// to decide whether a set of {uuid -> im_range} agrees across two joins.
func imRangeEqual(a, b types.Range) bool {
	return a.Lu == b.Lu && a.Hs == b.Hs
}

// nodeListSubset extracts, from a join/install node_list, the subset whose
// classification matches the given predicate, keyed by uuid -> ImRange.
func nodeListSubset(list map[types.UUID]types.MessageNode, pred func(types.MessageNode) bool) map[types.UUID]types.Range {
	out := make(map[types.UUID]types.Range)
	for id, n := range list {
		if pred(n) {
			out[id] = n.ImRange
		}
	}
	return out
}

func rangesEqual(a, b map[types.UUID]types.Range) bool {
	if len(a) != len(b) {
		return false
	}
	for id, ra := range a {
		rb, ok := b[id]
		if !ok || !imRangeEqual(ra, rb) {
			return false
		}
	}
	return true
}

func isOperationalEntry(n types.MessageNode) bool  { return n.Operational && !n.Leaving }
func isPartitionedEntry(n types.MessageNode) bool   { return !n.Operational && !n.Leaving }
func isLeavingEntry(n types.MessageNode) bool       { return n.Leaving }

// IsConsistentSameView implements spec 4.3.1: two same-view messages (here,
// a locally authored reference join/install `local` and an incoming
// `incoming`) are consistent iff aru and claimed-safe agree and the
// operational/partitioned/leaving node-list subsets agree exactly.
func IsConsistentSameView(local, incoming JoinLike) bool {
	if local.AruSeq() != incoming.AruSeq() {
		return false
	}
	if local.SafeClaim() != incoming.SafeClaim() {
		return false
	}

	localList, incomingList := local.Nodes(), incoming.Nodes()
	if !rangesEqual(nodeListSubset(localList, isOperationalEntry), nodeListSubset(incomingList, isOperationalEntry)) {
		return false
	}
	if !rangesEqual(nodeListSubset(localList, isPartitionedEntry), nodeListSubset(incomingList, isPartitionedEntry)) {
		return false
	}
	if !rangesEqual(nodeListSubset(localList, isLeavingEntry), nodeListSubset(incomingList, isLeavingEntry)) {
		return false
	}
	return true
}

// IsConsistentJoining implements spec 4.3.2: when the incoming message's
// source_view_id differs from the current view, consensus requires that for
// every locally operational node we hold a join whose (aru, seq, view_id)
// agrees with the incoming message whenever the view ids match, and that
// the sets of operational UUIDs are identical.
func IsConsistentJoining(table *NodeTable, incoming *types.JoinMessage) bool {
	localOps := make(map[types.UUID]bool)
	for _, id := range table.OperationalIds() {
		localOps[id] = true
	}
	incomingOps := make(map[types.UUID]bool)
	for id, n := range incoming.NodeList {
		if n.Operational && !n.Leaving {
			incomingOps[id] = true
		}
	}
	if len(localOps) != len(incomingOps) {
		return false
	}
	for id := range localOps {
		if !incomingOps[id] {
			return false
		}
	}

	for _, id := range table.OperationalIds() {
		n, ok := table.Get(id)
		if !ok || n.JoinMsg == nil {
			return false
		}
		if n.JoinMsg.SourceViewId.Equal(incoming.SourceViewId) {
			if n.JoinMsg.AruSeq != incoming.AruSeq || n.JoinMsg.Seq != incoming.Seq {
				return false
			}
		}
	}
	return true
}

// JoinLike abstracts over JoinMessage/InstallMessage for same-view
// consistency checks, which are defined identically over both variants.
type JoinLike interface {
	AruSeq() types.Seqno
	SafeClaim() types.Seqno
	Nodes() map[types.UUID]types.MessageNode
	ViewId() types.ViewId
}

type joinLikeJoin struct{ m *types.JoinMessage }

func (j joinLikeJoin) AruSeq() types.Seqno                          { return j.m.AruSeq }
func (j joinLikeJoin) SafeClaim() types.Seqno                       { return j.m.Seq }
func (j joinLikeJoin) Nodes() map[types.UUID]types.MessageNode      { return j.m.NodeList }
func (j joinLikeJoin) ViewId() types.ViewId                         { return j.m.SourceViewId }

type joinLikeInstall struct{ m *types.InstallMessage }

func (j joinLikeInstall) AruSeq() types.Seqno                     { return j.m.AruSeq }
func (j joinLikeInstall) SafeClaim() types.Seqno                  { return j.m.Seq }
func (j joinLikeInstall) Nodes() map[types.UUID]types.MessageNode { return j.m.NodeList }
func (j joinLikeInstall) ViewId() types.ViewId                    { return j.m.SourceViewId }

func AsJoinLike(m *types.JoinMessage) JoinLike       { return joinLikeJoin{m} }
func AsInstallLike(m *types.InstallMessage) JoinLike { return joinLikeInstall{m} }

// IsConsensus implements spec 4.3: this peer has its own join, that join is
// same-view-consistent with itself trivially, and for every operational node
// a join exists that is consistent with this peer's own join.
func IsConsensus(table *NodeTable, self types.UUID, currentView types.ViewId) bool {
	selfNode, ok := table.Get(self)
	if !ok || selfNode.JoinMsg == nil {
		return false
	}
	selfJoin := selfNode.JoinMsg

	for _, id := range table.OperationalIds() {
		n, ok := table.Get(id)
		if !ok || n.JoinMsg == nil {
			return false
		}
		if id == self {
			continue
		}
		if n.JoinMsg.SourceViewId.Equal(currentView) && selfJoin.SourceViewId.Equal(currentView) {
			if !IsConsistentSameView(AsJoinLike(selfJoin), AsJoinLike(n.JoinMsg)) {
				return false
			}
		} else {
			if !IsConsistentJoining(table, n.JoinMsg) {
				return false
			}
		}
	}
	return true
}

// IsRepresentative delegates to the node table (spec 4.3, spec 9 tie-break).
func IsRepresentative(table *NodeTable, self types.UUID) bool {
	return table.IsRepresentative(self)
}
