package core

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jabolina/go-evs/pkg/evs/types"
)

// captureTransport records every PassDown call instead of touching a real
// socket, matching the teacher's own real-transport-in-tests philosophy
// (fuzzy/commit_test.go) while staying deterministic: every delivery in
// these tests is driven explicitly by the test, not by a goroutine race.
type captureTransport struct {
	mu   sync.Mutex
	sent []types.Message
}

func newCaptureTransport() *captureTransport { return &captureTransport{} }

func (c *captureTransport) PassDown(msg types.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureTransport) Listen() <-chan InboundMessage { return nil }
func (c *captureTransport) Close() error                  { return nil }

func (c *captureTransport) drain() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.sent
	c.sent = nil
	return out
}

type recordingUp struct {
	mu     sync.Mutex
	events []UpEvent
}

func (r *recordingUp) handler() func(UpEvent) {
	return func(ev UpEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	}
}

func (r *recordingUp) views() []types.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.View
	for _, e := range r.events {
		if e.Kind == UpView {
			out = append(out, e.View)
		}
	}
	return out
}

func testConfig() types.Configuration {
	cfg := types.DefaultConfiguration()
	cfg.InactiveTimeout = 5 * time.Second
	return cfg
}

// newTestEngine builds an engine without calling Start, so no tick loop
// runs: timers armed by state entries only queue ticks that nothing
// consumes, and tests drive ticks and HandleUp/HandleDown by hand for full
// determinism. Each test stops its engines before goleak's check so those
// timer goroutines are gone.
func newTestEngine(t *testing.T, self types.UUID, transport Transport, onUp func(UpEvent)) *Engine {
	t.Helper()
	log := &silentLogger{}
	e := NewEngine(self, testConfig(), transport, log, nil, onUp)
	return e
}

type silentLogger struct{}

func (silentLogger) Info(v ...interface{})                 {}
func (silentLogger) Infof(format string, v ...interface{})  {}
func (silentLogger) Warn(v ...interface{})                  {}
func (silentLogger) Warnf(format string, v ...interface{})  {}
func (silentLogger) Error(v ...interface{})                 {}
func (silentLogger) Errorf(format string, v ...interface{}) {}
func (silentLogger) Debug(v ...interface{})                 {}
func (silentLogger) Debugf(format string, v ...interface{}) {}

// bootstrapToOperational drives a lone engine from CLOSED through its own
// trivial single-node consensus round without ever calling Start (so no
// tick loop runs to race the test), reproducing by hand
// the same two calls Start() itself makes: broadcastJoin() followed by
// selfElectAfterJoin(), which is what lets a peer with no discovered foreign
// source leave JOINING and self-elect.
func bootstrapToOperational(t *testing.T, e *Engine) {
	t.Helper()
	release := e.cs.acquire()
	e.shiftTo(StateJoining)
	e.broadcastJoin()
	e.selfElectAfterJoin()
	release()
	if got := e.CurrentState(); got != StateOperational {
		t.Fatalf("a lone node must reach OPERATIONAL immediately on its own join, got %s", got)
	}
}

func TestEngine_SingleNodeBringUp(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := newCaptureTransport()
	up := &recordingUp{}
	e := newTestEngine(t, types.NewUUID(), transport, up.handler())
	defer e.Stop()

	bootstrapToOperational(t, e)

	views := up.views()
	if len(views) == 0 {
		t.Fatalf("expected at least one view delivered")
	}
	last := views[len(views)-1]
	if last.Type != types.ViewReg || len(last.Members) != 1 {
		t.Fatalf("expected a single-member REG view, got %+v", last)
	}
}

func TestEngine_TwoNodeJoin(t *testing.T) {
	defer goleak.VerifyNone(t)

	tA, tB := newCaptureTransport(), newCaptureTransport()
	upA, upB := &recordingUp{}, &recordingUp{}
	a := newTestEngine(t, types.NewUUID(), tA, upA.handler())
	b := newTestEngine(t, types.NewUUID(), tB, upB.handler())
	defer a.Stop()
	defer b.Stop()

	release := a.cs.acquire()
	a.shiftTo(StateJoining)
	a.broadcastJoin()
	release()

	release = b.cs.acquire()
	b.shiftTo(StateJoining)
	b.broadcastJoin()
	release()

	// Exchange whatever each side broadcast until neither produces
	// anything new, simulating a lossless, infinitely-patient network.
	for round := 0; round < 10; round++ {
		fromA, fromB := tA.drain(), tB.drain()
		if len(fromA) == 0 && len(fromB) == 0 {
			break
		}
		for _, m := range fromA {
			b.HandleUp(InboundMessage{Source: a.self, Message: m})
		}
		for _, m := range fromB {
			a.HandleUp(InboundMessage{Source: b.self, Message: m})
		}
	}

	if a.CurrentState() != StateOperational || b.CurrentState() != StateOperational {
		t.Fatalf("expected both peers OPERATIONAL, got a=%s b=%s", a.CurrentState(), b.CurrentState())
	}

	aViews, bViews := upA.views(), upB.views()
	lastA, lastB := aViews[len(aViews)-1], bViews[len(bViews)-1]
	if len(lastA.Members) != 2 || len(lastB.Members) != 2 {
		t.Fatalf("expected a 2-member view on both sides, got a=%+v b=%+v", lastA, lastB)
	}
}

func TestEngine_GapResendOnMissingSeq(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := newCaptureTransport()
	e := newTestEngine(t, types.NewUUID(), transport, func(UpEvent) {})
	defer e.Stop()
	bootstrapToOperational(t, e)

	peer := types.NewUUID()
	view := e.currentView
	e.table.Ensure(peer, e.now())
	e.im.SetOperational(peer, true)
	transport.drain()

	// Peer's seq 1 arrives before seq 0: a hole opens in its window.
	e.HandleUp(InboundMessage{Source: peer, Message: types.UserMsg(types.UserMessage{
		Envelope: types.Envelope{Type: types.TypeUser, Source: peer, SourceViewId: view, Seq: 1},
	})})

	sent := transport.drain()
	foundGapRequest := false
	for _, m := range sent {
		if m.Gap != nil && m.Gap.RangeUUID == peer {
			foundGapRequest = true
		}
	}
	if !foundGapRequest {
		t.Fatalf("expected a gap request naming the peer's missing range, got %+v", sent)
	}
}

func TestEngine_InactivePeerTriggersRecovery(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := newCaptureTransport()
	e := newTestEngine(t, types.NewUUID(), transport, func(UpEvent) {})
	defer e.Stop()
	bootstrapToOperational(t, e)

	start := e.now()
	peer := types.NewUUID()
	e.table.Ensure(peer, start)
	e.im.SetOperational(peer, true)

	later := start.Add(time.Hour)
	e.nowFn = func() time.Time { return later }

	release := e.cs.acquire()
	e.onInactiveCheck()
	release()

	n, _ := e.table.Get(peer)
	if n.Operational {
		t.Fatalf("a peer silent past the inactivity timeout must be marked down")
	}
	if e.CurrentState() != StateRecovery {
		t.Fatalf("detecting an inactive peer must force RECOVERY, got %s", e.CurrentState())
	}
}

func TestEngine_GracefulLeaveDeliversEmptyTerminalView(t *testing.T) {
	defer goleak.VerifyNone(t)
	transport := newCaptureTransport()
	up := &recordingUp{}
	e := newTestEngine(t, types.NewUUID(), transport, up.handler())
	defer e.Stop()
	bootstrapToOperational(t, e)

	if err := e.Leave(); err != nil {
		t.Fatalf("graceful leave must not error: %v", err)
	}

	if e.CurrentState() != StateClosed {
		t.Fatalf("expected CLOSED after a graceful leave, got %s", e.CurrentState())
	}

	views := up.views()
	last := views[len(views)-1]
	if !last.IsEmpty() {
		t.Fatalf("the final view delivered on self-leave must be empty (shutdown signal), got %+v", last)
	}

	sent := transport.drain()
	foundLeave := false
	for _, m := range sent {
		if m.Leave != nil {
			foundLeave = true
		}
	}
	if !foundLeave {
		t.Fatalf("expected a Leave message to have been broadcast")
	}
}

func TestEngine_PartitionMergeViaUnknownPeerJoin(t *testing.T) {
	defer goleak.VerifyNone(t)

	tA, tB := newCaptureTransport(), newCaptureTransport()
	upA, upB := &recordingUp{}, &recordingUp{}
	a := newTestEngine(t, types.NewUUID(), tA, upA.handler())
	b := newTestEngine(t, types.NewUUID(), tB, upB.handler())
	defer a.Stop()
	defer b.Stop()

	// Both sides bootstrap independently, as if on opposite sides of a
	// partition that has already resolved into two singleton groups.
	bootstrapToOperational(t, a)
	bootstrapToOperational(t, b)
	tA.drain()
	tB.drain()

	// The partition heals: each peer starts hearing the other's join
	// traffic out of the blue, which must force both back to RECOVERY and
	// reconverge on a merged 2-member view.
	release := b.cs.acquire()
	b.broadcastJoin()
	release()

	for round := 0; round < 10; round++ {
		fromA, fromB := tA.drain(), tB.drain()
		if len(fromA) == 0 && len(fromB) == 0 {
			break
		}
		for _, m := range fromA {
			b.HandleUp(InboundMessage{Source: a.self, Message: m})
		}
		for _, m := range fromB {
			a.HandleUp(InboundMessage{Source: b.self, Message: m})
		}
	}

	if a.CurrentState() != StateOperational || b.CurrentState() != StateOperational {
		t.Fatalf("expected both peers to reconverge on OPERATIONAL, got a=%s b=%s", a.CurrentState(), b.CurrentState())
	}
	aViews := upA.views()
	if last := aViews[len(aViews)-1]; len(last.Members) != 2 {
		t.Fatalf("expected the merged view to carry both members, got %+v", last)
	}
}
