// Package logx is the broker's log sink: leveled lines of the form
// "<epoch_seconds> <mark> <message>", written to an io.Writer.
package logx

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level is one of the four severities the broker recognizes.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// ParseLevel maps the config/CLI spelling onto a Level. Unrecognized
// spellings fall back to Warn, the broker's default.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return Debug
	case "information", "info", "INFORMATION", "INFO":
		return Info
	case "warning", "warn", "WARNING", "WARN":
		return Warn
	case "error", "ERROR":
		return Error
	default:
		return Warn
	}
}

func (l Level) mark() byte {
	switch l {
	case Debug:
		return '#'
	case Info:
		return 'i'
	case Warn:
		return '*'
	case Error:
		return '!'
	default:
		return '*'
	}
}

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFORMATION"
	case Warn:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "WARNING"
	}
}

// Logger filters by minimum level and appends formatted lines to Sink.
// It is safe for concurrent use from multiple connection goroutines.
type Logger struct {
	mu    sync.Mutex
	Sink  io.Writer
	Level Level
	now   func() time.Time // overridden in tests
}

// New returns a Logger writing to stdout at the given minimum level.
func New(level Level) *Logger {
	return &Logger{Sink: os.Stdout, Level: level, now: time.Now}
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.Level {
		return
	}
	now := l.now
	if now == nil {
		now = time.Now
	}
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	fmt.Fprintf(l.Sink, "%d %c %s\n", now().Unix(), level.mark(), msg)
	l.mu.Unlock()
}

func (l *Logger) Debugf(format string, args ...any) { l.log(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...any)   { l.log(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...any)   { l.log(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...any)  { l.log(Error, format, args...) }
