package events

import (
	"context"

	"github.com/rs/zerolog"

	"medvault/core/logging"
)

// Sink receives events after their transaction has committed. A sink
// failure never rolls back state; the journal remains the source of truth.
type Sink interface {
	Publish(ctx context.Context, evs []Event) error
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: logging.Component(log, "events")}
}

func (s *LogSink) Publish(_ context.Context, evs []Event) error {
	for _, ev := range evs {
		e := s.log.Info().
			Uint64("seq", ev.Seq).
			Str("type", string(ev.Type)).
			Str("actor", ev.Actor.Hex()).
			Str("hash", ev.Hash)
		if !ev.Patient.IsEmpty() {
			e = e.Str("patient", ev.Patient.Hex())
		}
		e.Fields(toAny(ev.Fields)).Msg("event")
	}
	return nil
}

func toAny(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Fanout publishes to every sink and returns the first error after trying
// all of them.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, evs []Event) error {
	var first error
	for _, s := range f {
		if err := s.Publish(ctx, evs); err != nil && first == nil {
			first = err
		}
	}
	return first
}
