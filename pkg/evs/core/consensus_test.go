package core

import (
	"testing"
	"time"

	"github.com/jabolina/go-evs/pkg/evs/types"
)

func sameViewJoin(viewId types.ViewId, aru, safe types.Seqno, nodes map[types.UUID]types.MessageNode) *types.JoinMessage {
	return &types.JoinMessage{
		Envelope: types.Envelope{SourceViewId: viewId},
		Seq:      safe,
		AruSeq:   aru,
		NodeList: nodes,
	}
}

func TestIsConsistentSameView_AgreesOnAruSafeAndSubsets(t *testing.T) {
	view := types.ViewId{Representative: types.NewUUID(), Seq: 1}
	a, b := types.NewUUID(), types.NewUUID()
	nodes := map[types.UUID]types.MessageNode{
		a: {Operational: true, ViewId: view, ImRange: types.Range{Lu: 2, Hs: 2}},
		b: {Operational: true, ViewId: view, ImRange: types.Range{Lu: 1, Hs: 1}},
	}

	local := sameViewJoin(view, 5, 5, nodes)
	incoming := sameViewJoin(view, 5, 5, nodes)

	if !IsConsistentSameView(AsJoinLike(local), AsJoinLike(incoming)) {
		t.Fatalf("identical joins over the same view must be consistent")
	}
}

func TestIsConsistentSameView_DisagreesOnAru(t *testing.T) {
	view := types.ViewId{Representative: types.NewUUID(), Seq: 1}
	local := sameViewJoin(view, 5, 5, nil)
	incoming := sameViewJoin(view, 6, 5, nil)

	if IsConsistentSameView(AsJoinLike(local), AsJoinLike(incoming)) {
		t.Fatalf("differing aru must break consistency")
	}
}

func TestIsConsistentSameView_DisagreesOnOperationalSubset(t *testing.T) {
	view := types.ViewId{Representative: types.NewUUID(), Seq: 1}
	a := types.NewUUID()
	local := sameViewJoin(view, 5, 5, map[types.UUID]types.MessageNode{
		a: {Operational: true, ViewId: view, ImRange: types.Range{Lu: 1, Hs: 1}},
	})
	incoming := sameViewJoin(view, 5, 5, map[types.UUID]types.MessageNode{
		a: {Operational: false, ViewId: view, ImRange: types.Range{Lu: 1, Hs: 1}},
	})

	if IsConsistentSameView(AsJoinLike(local), AsJoinLike(incoming)) {
		t.Fatalf("disagreeing on whether a is operational must break consistency")
	}
}

func TestIsConsensus_SingleNodeTrivially(t *testing.T) {
	tbl := NewNodeTable()
	self := types.NewUUID()
	now := time.Now()
	tbl.Ensure(self, now)

	view := types.ViewId{Representative: self, Seq: 0}
	n, _ := tbl.Get(self)
	n.JoinMsg = &types.JoinMessage{Envelope: types.Envelope{SourceViewId: view}}
	tbl.Set(self, n)

	if !IsConsensus(tbl, self, view) {
		t.Fatalf("a lone operational node with its own join is trivially consensual")
	}
	if !IsRepresentative(tbl, self) {
		t.Fatalf("a lone node is its own representative")
	}
}

func TestIsConsensus_FalseWithoutSelfJoin(t *testing.T) {
	tbl := NewNodeTable()
	self := types.NewUUID()
	tbl.Ensure(self, time.Now())
	view := types.ViewId{Representative: self, Seq: 0}

	if IsConsensus(tbl, self, view) {
		t.Fatalf("consensus requires this peer to have authored its own join first")
	}
}

func TestIsConsensus_TwoNodesAgreeingSameView(t *testing.T) {
	tbl := NewNodeTable()
	now := time.Now()
	self, peer := types.NewUUID(), types.NewUUID()
	tbl.Ensure(self, now)
	tbl.Ensure(peer, now)
	view := types.ViewId{Representative: self, Seq: 0}

	nodes := map[types.UUID]types.MessageNode{
		self: {Operational: true, ViewId: view, ImRange: types.Range{Lu: 1, Hs: 0}},
		peer: {Operational: true, ViewId: view, ImRange: types.Range{Lu: 1, Hs: 0}},
	}
	selfNode, _ := tbl.Get(self)
	selfNode.JoinMsg = sameViewJoin(view, 0, 0, nodes)
	tbl.Set(self, selfNode)

	peerNode, _ := tbl.Get(peer)
	peerNode.JoinMsg = sameViewJoin(view, 0, 0, nodes)
	tbl.Set(peer, peerNode)

	if !IsConsensus(tbl, self, view) {
		t.Fatalf("two nodes with identical same-view joins must reach consensus")
	}
}
