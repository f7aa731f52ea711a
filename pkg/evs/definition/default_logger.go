package definition

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"

	"github.com/jabolina/go-evs/pkg/evs/types"
)

// DefaultLogger is the Logger used when the caller does not provide its own
// implementation. Unlike the teacher's hand-rolled level-prefixing over
// stdlib log, it is backed by log/slog with a tint handler for colorized,
// leveled output — the idiom the newer repos in the pack use instead of
// formatting level prefixes by hand.
type DefaultLogger struct {
	logger *slog.Logger
}

// NewDefaultLogger builds a DefaultLogger writing to stderr at the given
// level ("debug", "info", "warn", "error"; unknown values default to info).
func NewDefaultLogger(level string) *DefaultLogger {
	return &DefaultLogger{
		logger: slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level: parseLevel(level),
		})),
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var _ types.Logger = (*DefaultLogger)(nil)

func (l *DefaultLogger) Info(v ...interface{})  { l.logger.Info(fmt.Sprint(v...)) }
func (l *DefaultLogger) Infof(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}
func (l *DefaultLogger) Warn(v ...interface{}) { l.logger.Warn(fmt.Sprint(v...)) }
func (l *DefaultLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}
func (l *DefaultLogger) Error(v ...interface{}) { l.logger.Error(fmt.Sprint(v...)) }
func (l *DefaultLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}
func (l *DefaultLogger) Debug(v ...interface{}) { l.logger.Debug(fmt.Sprint(v...)) }
func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}
