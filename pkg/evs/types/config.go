package types

import "time"

// Configuration holds every tunable of spec 6 plus the ambient knobs the
// daemon needs (metrics listener, log level). Zero value is invalid; use
// DefaultConfiguration to get sane defaults and override from there.
type Configuration struct {
	// SendWindow is the flow-control admission window in messages.
	SendWindow uint32

	// MaxOutputSize bounds the outbound queue.
	MaxOutputSize int

	InactiveTimeout     time.Duration
	InactiveCheckPeriod time.Duration
	ConsensusTimeout    time.Duration
	ResendPeriod        time.Duration
	SendJoinPeriod      time.Duration

	// PreviousViewTTL is how long a retired ViewId is remembered to filter
	// duplicate traffic from a view that has since been superseded.
	PreviousViewTTL time.Duration

	// MetricsAddr, if non-empty, serves a prometheus /metrics handler.
	MetricsAddr string

	// LogLevel controls the default slog-backed Logger's verbosity.
	LogLevel string
}

// DefaultConfiguration returns the defaults enumerated in spec 6/5.
func DefaultConfiguration() Configuration {
	return Configuration{
		SendWindow:          8,
		MaxOutputSize:       128,
		InactiveTimeout:     5 * time.Second,
		InactiveCheckPeriod: time.Second,
		ConsensusTimeout:    time.Second,
		ResendPeriod:        time.Second,
		SendJoinPeriod:      300 * time.Millisecond,
		PreviousViewTTL:     5 * time.Minute,
		LogLevel:            "info",
	}
}
