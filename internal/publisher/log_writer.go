package publisher

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// LogWriter drains the outbox into the log when no brokers are configured.
type LogWriter struct {
	log zerolog.Logger
}

func NewLogWriter(log zerolog.Logger) *LogWriter {
	return &LogWriter{log: log.With().Str("component", "outbox_log").Logger()}
}

func (w *LogWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, msg := range msgs {
		event := w.log.Debug().Str("key", string(msg.Key))
		for _, h := range msg.Headers {
			event = event.Str(h.Key, string(h.Value))
		}
		event.RawJSON("payload", msg.Value).Msg("order event")
	}
	return nil
}
