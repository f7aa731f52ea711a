package core

import (
	"time"

	"github.com/jabolina/go-evs/pkg/evs/definition"
	"github.com/jabolina/go-evs/pkg/evs/types"
)

// outputItem is one pending downward payload awaiting admission (spec 3
// "Output queue").
type outputItem struct {
	payload  []byte
	userType uint8
	safety   types.SafetyPrefix
}

// UpEventKind distinguishes the two shapes of the upward interface (spec 6).
type UpEventKind int

const (
	UpUser UpEventKind = iota
	UpView
)

// UpEvent is what the engine hands to the application layer via pass_up.
// No two upward calls interleave a REG view with in-view payloads of
// another view, and an empty view signals shutdown.
type UpEvent struct {
	Kind     UpEventKind
	Payload  []byte
	Source   types.UUID
	UserType uint8
	View     types.View
}

type previousViewEntry struct {
	id types.ViewId
	at time.Time
}

// Engine is the peer protocol state machine of spec 4.4 (C7), wired to the
// node table (C3), input map (C4), consensus checker (C6), and the
// handle_up/handle_down shims (C8) in shim.go. All mutation happens inside
// the critical section acquired by HandleUp/HandleDown and by the tick loop
// around processTick.
type Engine struct {
	self types.UUID
	cfg  types.Configuration
	log  types.Logger
	metrics *definition.Metrics

	transport Transport
	onUp      func(UpEvent)
	nowFn     func() time.Time

	table *NodeTable
	im    *InputMap

	state        State
	shifting     bool
	delivering   bool
	currentView  types.ViewId
	installMsg   *types.InstallMessage
	lastSent     types.Seqno
	fifoCounter  int64
	outputQueue  []outputItem
	previousViews []previousViewEntry
	joinBackoff  time.Duration
	leaveAnnounced bool
	lastRegMembers map[types.UUID]types.MemberMeta

	timers *TimerSet
	events chan Tick
	done   chan struct{}

	cs criticalSection
}

// NewEngine constructs a peer in the CLOSED state. Call Start to begin
// processing and shift to JOINING.
func NewEngine(self types.UUID, cfg types.Configuration, transport Transport, log types.Logger, metrics *definition.Metrics, onUp func(UpEvent)) *Engine {
	events := make(chan Tick, 32)
	e := &Engine{
		self:      self,
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		transport: transport,
		onUp:      onUp,
		nowFn:     time.Now,
		table:     NewNodeTable(),
		im:        NewInputMap(),
		state:     StateClosed,
		lastSent:  types.SeqnoMax,
		events:    events,
		timers:    NewTimerSet(events),
		done:      make(chan struct{}),
		lastRegMembers: make(map[types.UUID]types.MemberMeta),
	}
	e.currentView = types.ViewId{Representative: self, Seq: 0}
	e.table.Ensure(self, e.now())
	e.im.SetOperational(self, true)
	return e
}

func (e *Engine) now() time.Time { return e.nowFn() }

// Start shifts CLOSED -> JOINING, arms the ambient timers, and begins the
// background tick-consuming loop. HandleUp/HandleDown may be called concurrently
// with timer firing; both funnel through the same critical section.
func (e *Engine) Start() {
	release := e.cs.acquire()
	e.shiftTo(StateJoining)
	e.timers.StartPeriodic(TickInactiveCheck, e.cfg.InactiveCheckPeriod)
	e.timers.StartPeriodic(TickCleanup, e.cfg.InactiveCheckPeriod)
	e.broadcastJoin()
	e.timers.StartPeriodic(TickSendJoin, e.cfg.SendJoinPeriod)
	e.selfElectAfterJoin()
	release()
	go e.loop()
}

// Stop halts every timer and the tick loop. If currently OPERATIONAL or
// RECOVERY, prefer calling Leave first for a graceful departure.
func (e *Engine) Stop() {
	e.timers.StopAll()
	close(e.done)
}

func (e *Engine) loop() {
	for {
		select {
		case tick := <-e.events:
			release := e.cs.acquire()
			e.processTick(tick)
			release()
		case <-e.done:
			return
		}
	}
}
