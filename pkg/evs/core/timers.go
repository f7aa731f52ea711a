package core

import (
	"sync"
	"time"
)

// TickKind identifies which scheduled callback fired (spec 5: inactivity,
// consensus timeout, resend, send-join, cleanup).
type TickKind int

const (
	TickInactiveCheck TickKind = iota
	TickConsensusTimeout
	TickResend
	TickSendJoin
	TickCleanup
)

// Tick is the event a Timer enqueues; the FSM consumes these from its event
// loop under the same critical section as HandleUp/HandleDown, so timers
// never call FSM methods directly (Design Notes: "Timers as objects owning
// back-pointers to the FSM").
type Tick struct {
	Kind TickKind
}

// TimerSet owns one independently start/stoppable periodic or one-shot timer
// per TickKind, all feeding a single shared event channel.
type TimerSet struct {
	mu     sync.Mutex
	events chan Tick
	timers map[TickKind]*time.Timer
	tickers map[TickKind]*time.Ticker
	stopCh map[TickKind]chan struct{}
}

// NewTimerSet returns a TimerSet whose ticks are delivered on events.
func NewTimerSet(events chan Tick) *TimerSet {
	return &TimerSet{
		events:  events,
		timers:  make(map[TickKind]*time.Timer),
		tickers: make(map[TickKind]*time.Ticker),
		stopCh:  make(map[TickKind]chan struct{}),
	}
}

// StartPeriodic (re)starts a repeating timer for kind at the given period.
func (s *TimerSet) StartPeriodic(kind TickKind, period time.Duration) {
	s.Stop(kind)
	s.mu.Lock()
	ticker := time.NewTicker(period)
	stop := make(chan struct{})
	s.tickers[kind] = ticker
	s.stopCh[kind] = stop
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				select {
				case s.events <- Tick{Kind: kind}:
				case <-stop:
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

// StartOnce (re)starts a one-shot timer for kind after delay.
func (s *TimerSet) StartOnce(kind TickKind, delay time.Duration) {
	s.Stop(kind)
	s.mu.Lock()
	stop := make(chan struct{})
	s.stopCh[kind] = stop
	t := time.AfterFunc(delay, func() {
		select {
		case s.events <- Tick{Kind: kind}:
		case <-stop:
		}
	})
	s.timers[kind] = t
	s.mu.Unlock()
}

// Stop halts the timer for kind, if running. Idempotent.
func (s *TimerSet) Stop(kind TickKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.stopCh[kind]; ok {
		close(stop)
		delete(s.stopCh, kind)
	}
	if t, ok := s.timers[kind]; ok {
		t.Stop()
		delete(s.timers, kind)
	}
	if t, ok := s.tickers[kind]; ok {
		t.Stop()
		delete(s.tickers, kind)
	}
}

// StopAll halts every timer, used on engine shutdown.
func (s *TimerSet) StopAll() {
	for _, kind := range []TickKind{TickInactiveCheck, TickConsensusTimeout, TickResend, TickSendJoin, TickCleanup} {
		s.Stop(kind)
	}
}
