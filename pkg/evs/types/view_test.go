package types

import "testing"

func TestView_IsEmptySignalsShutdown(t *testing.T) {
	v := NewView(ViewReg, ViewId{Representative: NewUUID(), Seq: 1})
	if !v.IsEmpty() {
		t.Fatalf("a freshly built view with no members is empty")
	}
	v.Members[NewUUID()] = MemberMeta{}
	if v.IsEmpty() {
		t.Fatalf("a view with a member is not empty")
	}
}

func TestViewId_Equal(t *testing.T) {
	rep := NewUUID()
	a := ViewId{Representative: rep, Seq: 3}
	b := ViewId{Representative: rep, Seq: 3}
	c := ViewId{Representative: rep, Seq: 4}
	if !a.Equal(b) {
		t.Fatalf("identical view ids must compare equal")
	}
	if a.Equal(c) {
		t.Fatalf("different seqs must not compare equal")
	}
}

func TestViewId_Less(t *testing.T) {
	low := ViewId{Representative: Nil, Seq: 1}
	high := ViewId{Representative: Nil, Seq: 2}
	if !low.Less(high) {
		t.Fatalf("lower seq must sort first")
	}
	if high.Less(low) {
		t.Fatalf("higher seq must not sort first")
	}
}
