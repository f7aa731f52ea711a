package core

import (
	"sort"
	"time"

	"github.com/jabolina/go-evs/pkg/evs/types"
)

// NodeTable is the per-peer record keyed by UUID (spec 3 "Node", C3).
// It is owned exclusively by the FSM: all mutation happens inside a
// critical section (see shim.go).
type NodeTable struct {
	nodes map[types.UUID]types.Node
}

// NewNodeTable returns an empty table.
func NewNodeTable() *NodeTable {
	return &NodeTable{nodes: make(map[types.UUID]types.Node)}
}

// Ensure returns the node for id, inserting a fresh operational record on
// first contact.
func (t *NodeTable) Ensure(id types.UUID, now time.Time) types.Node {
	n, ok := t.nodes[id]
	if !ok {
		n = types.NewNode(now)
		t.nodes[id] = n
	}
	return n
}

// Get returns the node for id and whether it is known.
func (t *NodeTable) Get(id types.UUID) (types.Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Set stores n under id.
func (t *NodeTable) Set(id types.UUID, n types.Node) {
	t.nodes[id] = n
}

// Erase removes id's record entirely.
func (t *NodeTable) Erase(id types.UUID) {
	delete(t.nodes, id)
}

// EraseNonInstalled removes every node whose Installed flag is unset. Called
// on entering OPERATIONAL, after a successful install (spec 4.4).
func (t *NodeTable) EraseNonInstalled() {
	for id, n := range t.nodes {
		if !n.Installed {
			delete(t.nodes, id)
		}
	}
}

// ClearInstalled unsets Installed on every node.
func (t *NodeTable) ClearInstalled() {
	for id, n := range t.nodes {
		n.Installed = false
		t.nodes[id] = n
	}
}

// ClearJoinMessages nulls every stored join message.
func (t *NodeTable) ClearJoinMessages() {
	for id, n := range t.nodes {
		n.JoinMsg = nil
		t.nodes[id] = n
	}
}

// SortedIds returns every known UUID in ascending order — the total order
// used for representative election and deterministic iteration.
func (t *NodeTable) SortedIds() []types.UUID {
	ids := make([]types.UUID, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return types.CompareUUID(ids[i], ids[j]) < 0
	})
	return ids
}

// OperationalIds returns the sorted UUIDs of operational nodes.
func (t *NodeTable) OperationalIds() []types.UUID {
	var ids []types.UUID
	for id, n := range t.nodes {
		if n.Operational {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return types.CompareUUID(ids[i], ids[j]) < 0
	})
	return ids
}

// IsRepresentative reports whether id is the smallest-uuid operational node
// (spec 4.3). The departing-node tie-break open question is resolved per
// spec 9: as soon as a node is marked non-operational it drops out of this
// computation, so the next-smallest operational id becomes representative
// immediately.
func (t *NodeTable) IsRepresentative(id types.UUID) bool {
	ops := t.OperationalIds()
	return len(ops) > 0 && ops[0] == id
}

// AllInstalled reports whether every operational node has Installed set.
func (t *NodeTable) AllInstalled() bool {
	for _, id := range t.OperationalIds() {
		n := t.nodes[id]
		if !n.Installed {
			return false
		}
	}
	return true
}

// MarkInstalled sets Installed on id if known.
func (t *NodeTable) MarkInstalled(id types.UUID) {
	if n, ok := t.nodes[id]; ok {
		n.Installed = true
		t.nodes[id] = n
	}
}

// MarkOperational sets/clears Operational on id if known, returning whether
// the node existed.
func (t *NodeTable) MarkOperational(id types.UUID, operational bool) bool {
	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	n.Operational = operational
	t.nodes[id] = n
	return true
}

// Touch bumps id's Tstamp to now.
func (t *NodeTable) Touch(id types.UUID, now time.Time) {
	if n, ok := t.nodes[id]; ok {
		n.Tstamp = now
		t.nodes[id] = n
	}
}

// SnapshotAll returns a shallow copy of every known node record, for
// read-only consumers (view synthesis, metrics).
func (t *NodeTable) SnapshotAll() map[types.UUID]types.Node {
	out := make(map[types.UUID]types.Node, len(t.nodes))
	for id, n := range t.nodes {
		out[id] = n
	}
	return out
}

// InactiveSince returns the UUIDs of operational, non-self nodes whose
// Tstamp is older than cutoff — the inactivity sweep of spec 4.4.
func (t *NodeTable) InactiveSince(self types.UUID, cutoff time.Time) []types.UUID {
	var stale []types.UUID
	for id, n := range t.nodes {
		if id == self || !n.Operational {
			continue
		}
		if n.Tstamp.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}
