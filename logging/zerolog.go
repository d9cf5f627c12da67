package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ZerologAdapter wraps a zerolog.Logger to implement the Logger interface.
// Key/value args are attached as typed fields; a dangling key is logged under
// "arg" rather than dropped.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a Logger from a zerolog.Logger.
func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

func attach(e *zerolog.Event, args []any) *zerolog.Event {
	i := 0
	for ; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		e = e.Interface(key, args[i+1])
	}
	if i < len(args) {
		e = e.Interface("arg", args[i])
	}
	return e
}

// Debug logs a debug message.
func (z *ZerologAdapter) Debug(msg string, args ...any) { attach(z.logger.Debug(), args).Msg(msg) }

// Info logs an informational message.
func (z *ZerologAdapter) Info(msg string, args ...any) { attach(z.logger.Info(), args).Msg(msg) }

// Warn logs a warning message.
func (z *ZerologAdapter) Warn(msg string, args ...any) { attach(z.logger.Warn(), args).Msg(msg) }

// Error logs an error message.
func (z *ZerologAdapter) Error(msg string, args ...any) { attach(z.logger.Error(), args).Msg(msg) }
