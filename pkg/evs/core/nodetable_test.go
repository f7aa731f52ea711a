package core

import (
	"testing"
	"time"

	"github.com/jabolina/go-evs/pkg/evs/types"
)

func TestNodeTable_EnsureIsIdempotent(t *testing.T) {
	tbl := NewNodeTable()
	id := types.NewUUID()
	now := time.Now()

	first := tbl.Ensure(id, now)
	if !first.Operational {
		t.Fatalf("a freshly ensured node starts operational")
	}

	tbl.MarkOperational(id, false)
	second := tbl.Ensure(id, now.Add(time.Second))
	if second.Operational {
		t.Fatalf("Ensure must not reset an existing node's state")
	}
}

func TestNodeTable_IsRepresentative_SmallestOperationalUUID(t *testing.T) {
	tbl := NewNodeTable()
	now := time.Now()

	var ids []types.UUID
	for i := 0; i < 3; i++ {
		id := types.NewUUID()
		ids = append(ids, id)
		tbl.Ensure(id, now)
	}

	reps := 0
	var rep types.UUID
	for _, id := range ids {
		if tbl.IsRepresentative(id) {
			reps++
			rep = id
		}
	}
	if reps != 1 {
		t.Fatalf("exactly one node must be representative, got %d", reps)
	}

	// Marking the representative down drops it from the computation
	// immediately (spec 9 tie-break resolution).
	tbl.MarkOperational(rep, false)
	if tbl.IsRepresentative(rep) {
		t.Fatalf("a non-operational node can never be representative")
	}
}

func TestNodeTable_AllInstalled(t *testing.T) {
	tbl := NewNodeTable()
	now := time.Now()
	a, b := types.NewUUID(), types.NewUUID()
	tbl.Ensure(a, now)
	tbl.Ensure(b, now)

	if tbl.AllInstalled() {
		t.Fatalf("nothing is installed yet")
	}
	tbl.MarkInstalled(a)
	if tbl.AllInstalled() {
		t.Fatalf("b is still not installed")
	}
	tbl.MarkInstalled(b)
	if !tbl.AllInstalled() {
		t.Fatalf("both operational nodes are installed")
	}
}

func TestNodeTable_EraseNonInstalled(t *testing.T) {
	tbl := NewNodeTable()
	now := time.Now()
	keep, drop := types.NewUUID(), types.NewUUID()
	tbl.Ensure(keep, now)
	tbl.Ensure(drop, now)
	tbl.MarkInstalled(keep)

	tbl.EraseNonInstalled()

	if _, ok := tbl.Get(keep); !ok {
		t.Fatalf("installed node must survive")
	}
	if _, ok := tbl.Get(drop); ok {
		t.Fatalf("non-installed node must be erased")
	}
}

func TestNodeTable_InactiveSince(t *testing.T) {
	tbl := NewNodeTable()
	base := time.Now()
	self := types.NewUUID()
	stale := types.NewUUID()
	fresh := types.NewUUID()

	tbl.Ensure(self, base)
	tbl.Ensure(stale, base)
	tbl.Ensure(fresh, base)
	tbl.Touch(fresh, base.Add(10*time.Second))

	cutoff := base.Add(5 * time.Second)
	got := tbl.InactiveSince(self, cutoff)
	if len(got) != 1 || got[0] != stale {
		t.Fatalf("expected only %v to be stale, got %v", stale, got)
	}
}
