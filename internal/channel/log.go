package channel

import (
	"context"

	"github.com/rs/zerolog"
)

// Log writes messages to the logger; used when no chat is configured.
type Log struct {
	logger *zerolog.Logger
}

func NewLog(logger *zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, message string) bool {
	if ctx.Err() != nil {
		return false
	}
	l.logger.Info().Str("channel", "log").Msg(message)
	return true
}
