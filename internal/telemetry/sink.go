package telemetry

import (
	"context"
	"log"

	"botfleet/backend/internal/broadcast"
	"botfleet/backend/internal/telemetry/producer"
)

// Sink is a broadcast observer that forwards every published event to the
// Kafka producer and the OTel emitter. It never reports itself closed:
// export failures are logged and the next event is attempted anyway.
type Sink struct {
	producer producer.Producer
	emitter  EventEmitter
	metrics  *Metrics
}

// NewSink returns a sink over the given exporters. Any of them may be nil.
func NewSink(p producer.Producer, e EventEmitter, m *Metrics) *Sink {
	return &Sink{producer: p, emitter: e, metrics: m}
}

// Send implements broadcast.Observer. Runs on the hub's writer goroutine
// for this observer, so a slow export only delays the pipeline, never the
// session that published the event.
func (s *Sink) Send(ev broadcast.Event, payload []byte) error {
	s.metrics.EventPublished(context.Background(), string(ev.Type))
	if s.producer != nil {
		if err := s.producer.Emit(context.Background(), ev.SessionID, payload); err != nil {
			log.Printf("telemetry: kafka emit failed: %v", err)
		}
	}
	EmitAsync(s.emitter, ev)
	return nil
}
