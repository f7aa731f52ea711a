package types

// ViewType distinguishes a stable, agreed membership (Reg) from the
// transitional bridge (Trans) delivered between two Reg views.
type ViewType int

const (
	ViewReg ViewType = iota
	ViewTrans
)

func (t ViewType) String() string {
	if t == ViewTrans {
		return "TRANS"
	}
	return "REG"
}

// ViewId is globally unique, totally ordered by Seq then Representative.
type ViewId struct {
	Representative UUID
	Seq            uint32
}

// Less totally orders two view ids: sequence first, representative breaks ties.
func (v ViewId) Less(o ViewId) bool {
	if v.Seq != o.Seq {
		return v.Seq < o.Seq
	}
	return CompareUUID(v.Representative, o.Representative) < 0
}

func (v ViewId) Equal(o ViewId) bool {
	return v.Seq == o.Seq && v.Representative == o.Representative
}

// MemberMeta is opaque per-member metadata carried by a View's membership
// sets; the engine does not interpret its contents.
type MemberMeta struct {
	JoinedAt int64
}

// View is a membership snapshot delivered upward. A Reg view carries the
// next agreed membership; a Trans view bridges the previous Reg view to the
// next, carrying residual FIFO messages from members still present.
type View struct {
	Type        ViewType
	Id          ViewId
	Members     map[UUID]MemberMeta
	Joined      map[UUID]MemberMeta
	Left        map[UUID]MemberMeta
	Partitioned map[UUID]MemberMeta
}

// NewView builds an empty view of the given type and id.
func NewView(t ViewType, id ViewId) View {
	return View{
		Type:        t,
		Id:          id,
		Members:     make(map[UUID]MemberMeta),
		Joined:      make(map[UUID]MemberMeta),
		Left:        make(map[UUID]MemberMeta),
		Partitioned: make(map[UUID]MemberMeta),
	}
}

// IsEmpty reports whether this is the terminal empty view delivered on a
// graceful self-leave (signals shutdown upward).
func (v View) IsEmpty() bool {
	return len(v.Members) == 0
}
