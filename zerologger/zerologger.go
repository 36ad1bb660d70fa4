// Package zerologger adapts zerolog to the modhost Logger interface.
package zerologger

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger forwards key-value log calls to a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger writing JSON lines to w at the named level.
func New(w io.Writer, level string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zl := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &Logger{zl: zl}, nil
}

// NewConsole creates a human-readable logger for terminals.
func NewConsole(w io.Writer, level string) (*Logger, error) {
	return New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}, level)
}

// Wrap adapts an existing zerolog logger.
func Wrap(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) Info(msg string, args ...any)  { send(l.zl.Info(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { send(l.zl.Error(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { send(l.zl.Warn(), msg, args) }
func (l *Logger) Debug(msg string, args ...any) { send(l.zl.Debug(), msg, args) }

// send attaches args as fields. Keys that are not strings are formatted,
// and a trailing value without a key is logged under "arg".
func send(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			e = e.Interface("arg", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
