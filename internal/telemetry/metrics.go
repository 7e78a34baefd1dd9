package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics instruments the session registry and the event pipeline.
type Metrics struct {
	sessionsActive  metric.Int64UpDownCounter
	eventsPublished metric.Int64Counter
}

// NewMetrics creates the instruments on the given provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter("botfleet.sessions")
	active, err := meter.Int64UpDownCounter(
		"botfleet.sessions.active",
		metric.WithDescription("Number of live sessions in the registry"),
	)
	if err != nil {
		return nil, err
	}
	published, err := meter.Int64Counter(
		"botfleet.events.published",
		metric.WithDescription("Broadcast events published, by type"),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{sessionsActive: active, eventsPublished: published}, nil
}

// SessionAdded records a new live session.
func (m *Metrics) SessionAdded(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsActive.Add(ctx, 1)
}

// SessionRemoved records a session leaving the registry.
func (m *Metrics) SessionRemoved(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsActive.Add(ctx, -1)
}

// EventPublished counts one published event of the given type.
func (m *Metrics) EventPublished(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}
