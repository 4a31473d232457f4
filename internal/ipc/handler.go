package ipc

import (
	"time"

	"github.com/rs/zerolog"
)

// RequestLogger logs an incoming command. STATUS is polled often and only
// logged at debug level.
func RequestLogger(log zerolog.Logger, cmd Command) {
	ev := log.Info()
	if cmd.Command == CmdStatus {
		ev = log.Debug()
	}
	ev.Str("command", string(cmd.Command)).
		Str("payload", truncateForLog(cmd.PayloadValue(), 256)).
		Msg("command received")
}

// ResponseLogger logs the reply sent for cmd
func ResponseLogger(log zerolog.Logger, cmd Command, resp Response, duration time.Duration) {
	if resp.OK() {
		ev := log.Info()
		if cmd.Command == CmdStatus {
			ev = log.Debug()
		}
		ev.Str("command", string(cmd.Command)).Dur("duration", duration).Msg("response: success")
		return
	}
	log.Info().
		Str("command", string(cmd.Command)).
		Str("error", resp.ErrMsg).
		Dur("duration", duration).
		Msg("response: error")
}
