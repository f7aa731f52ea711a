package core

import (
	"sync"

	"github.com/jabolina/go-evs/pkg/evs/types"
)

// criticalSection models the scoped-acquisition guard of Design Notes
// "Critical section guard: model with scoped acquisition guaranteeing
// release on all exit paths (including fatal errors)". The mutex is held
// for the entire duration of handle_up/handle_down and released via defer
// even if the handler panics with a ProtocolViolation.
type criticalSection struct {
	mu sync.Mutex
}

func (c *criticalSection) acquire() func() {
	c.mu.Lock()
	return c.mu.Unlock
}

// HandleUp is the C8 upper-boundary shim: it is called for each inbound
// frame already parsed by the (out-of-scope) wire layer, and dispatches to
// the matching C7 handler under the critical section. Node discovery for
// unknown sources is the handlers' responsibility (spec 4.4
// "foreign-source discovery" excludes Leave messages from forcing it).
func (e *Engine) HandleUp(in InboundMessage) {
	release := e.cs.acquire()
	defer release()

	env := in.Message.Envelope()

	switch {
	case in.Message.User != nil:
		e.handleUser(in.Source, in.Message.User)
	case in.Message.Gap != nil:
		e.handleGap(in.Source, in.Message.Gap)
	case in.Message.Join != nil:
		e.handleJoin(in.Source, in.Message.Join)
	case in.Message.Install != nil:
		e.handleInstall(in.Source, in.Message.Install)
	case in.Message.Leave != nil:
		e.handleLeave(in.Source, in.Message.Leave)
	case in.Message.Delegate != nil:
		e.handleDelegate(in.Source, in.Message.Delegate)
	default:
		e.log.Warnf("evs: dropping message with no recognizable variant, type=%d", env.Type)
	}
}

// HandleDown is the C8 lower-boundary shim for application submissions
// (spec 6 downward interface): EINVAL for the reserved completion
// user_type, ENOTCONN outside OPERATIONAL, otherwise queue-or-send under
// the critical section.
func (e *Engine) HandleDown(payload []byte, userType uint8, safety types.SafetyPrefix) error {
	release := e.cs.acquire()
	defer release()
	return e.submitLocked(payload, userType, safety)
}

// CurrentState reports the FSM's current state under the critical section,
// for status reporting (daemon health, tests).
func (e *Engine) CurrentState() State {
	release := e.cs.acquire()
	defer release()
	return e.state
}

// Leave requests a graceful self-departure (spec 4.4 "Entering LEAVING").
// It is a no-op once already LEAVING or CLOSED.
func (e *Engine) Leave() error {
	release := e.cs.acquire()
	defer release()
	if e.state == StateLeaving || e.state == StateClosed {
		return nil
	}
	e.shiftTo(StateLeaving)
	return nil
}
