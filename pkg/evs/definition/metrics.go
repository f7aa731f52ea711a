package definition

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the prometheus collectors the engine updates. Carried as an
// ambient concern regardless of spec.md's Non-goals (which scope out
// congestion control and persistence, not observability).
type Metrics struct {
	ViewChanges      prometheus.Counter
	RecoveryEntries  prometheus.Counter
	GapMessagesSent  prometheus.Counter
	ResendsSent      prometheus.Counter
	OutputQueueDepth prometheus.Gauge
	CurrentState     prometheus.Gauge
	InactivityEvictions prometheus.Counter
}

// NewMetrics registers and returns the engine's collector set against reg.
// Pass prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer for the daemon.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ViewChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evs",
			Name:      "view_changes_total",
			Help:      "Number of views (REG or TRANS) delivered upward.",
		}),
		RecoveryEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evs",
			Name:      "recovery_entries_total",
			Help:      "Number of times the engine entered the RECOVERY state.",
		}),
		GapMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evs",
			Name:      "gap_messages_total",
			Help:      "Number of gap messages sent (ack, self-retransmit request, or delegated recovery request).",
		}),
		ResendsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evs",
			Name:      "resends_total",
			Help:      "Number of retransmitted or delegated-recovery user messages sent.",
		}),
		OutputQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "evs",
			Name:      "output_queue_depth",
			Help:      "Current number of payloads pending in the output queue.",
		}),
		CurrentState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "evs",
			Name:      "fsm_state",
			Help:      "Current protocol FSM state (0=CLOSED,1=JOINING,2=LEAVING,3=RECOVERY,4=OPERATIONAL).",
		}),
		InactivityEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evs",
			Name:      "inactivity_evictions_total",
			Help:      "Number of peers marked non-operational by the inactivity sweep.",
		}),
	}
	reg.MustRegister(m.ViewChanges, m.RecoveryEntries, m.GapMessagesSent, m.ResendsSent, m.OutputQueueDepth, m.CurrentState, m.InactivityEvictions)
	return m
}
